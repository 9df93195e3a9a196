// Package store is the persistence gateway over the jobs and scheduled_jobs
// tables. Each operation is a single SQL round trip against a caller-supplied
// *sql.DB; the store owns no connections and keeps no state of its own.
//
// The DSN must set parseTime=true (TIMESTAMP columns scan into time.Time)
// and multiStatements=true (migration files hold more than one statement).
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/seanpm2001/mysql-queue/internal/core"
	"github.com/seanpm2001/mysql-queue/migrations"
)

// Store provides typed access to the queue tables.
type Store struct {
	db *sql.DB
}

// New wraps db. The caller owns the pool and its lifetime.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying pool for callers that need a health ping.
func (s *Store) DB() *sql.DB { return s.db }

// Migrate idempotently creates the queue tables from the embedded migration
// files.
func Migrate(db *sql.DB) error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	driver, err := migratemysql.WithInstance(db, &migratemysql.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "mysql", driver)
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// InsertJob inserts a job row and returns its id. A uniqueness conflict on
// the parent link (another worker persisted the same continuation first)
// returns a core.ErrDuplicate-wrapped error.
func (s *Store) InsertJob(ctx context.Context, job *core.Job) (int64, error) {
	params, err := core.EncodeParams(job.Params)
	if err != nil {
		return 0, fmt.Errorf("insert job: %w", err)
	}

	// Roots carry ParentID 0 in memory but NULL in SQL: the unique index on
	// parent_id must admit any number of roots while rejecting a second
	// continuation of the same parent.
	var parent any
	if job.ParentID != 0 {
		parent = job.ParentID
	}

	query, args, err := sq.Insert("jobs").
		Columns("scheduled_job_id", "parent_id", "name", "status", "parameters", "attempt").
		Values(job.ScheduledJobID, parent, job.Name, job.Status, params, job.Attempt).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert job: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isDuplicate(err) {
			return 0, fmt.Errorf("insert job for parent %d: %w", job.ParentID, core.ErrDuplicate)
		}
		return 0, fmt.Errorf("insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert job id: %w", err)
	}
	return id, nil
}

// InsertScheduledJob inserts a scheduled_jobs row and returns its id.
func (s *Store) InsertScheduledJob(ctx context.Context, sj *core.ScheduledJob) (int64, error) {
	params, err := core.EncodeParams(sj.Params)
	if err != nil {
		return 0, fmt.Errorf("insert scheduled job: %w", err)
	}

	query, args, err := sq.Insert("scheduled_jobs").
		Columns("name", "status", "parameters", "scheduled_for").
		Values(sj.Name, sj.Status, params, sj.ScheduledFor).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert scheduled job: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert scheduled job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert scheduled job id: %w", err)
	}
	return id, nil
}

// DeleteScheduledJob removes a scheduled_jobs row. Deleting an absent row is
// not an error.
func (s *Store) DeleteScheduledJob(ctx context.Context, id int64) error {
	query, args, err := sq.Delete("scheduled_jobs").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete scheduled job: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete scheduled job %d: %w", id, err)
	}
	return nil
}

// ReadyScheduledJobs returns up to limit scheduled jobs that are due, bound
// to one of names, and not in excludeIDs, oldest first.
func (s *Store) ReadyScheduledJobs(ctx context.Context, names []string, excludeIDs []int64, limit int) ([]*core.ScheduledJob, error) {
	if len(names) == 0 || limit <= 0 {
		return nil, nil
	}

	query, args, err := sq.Select("id", "name", "status", "parameters", "scheduled_for").
		From("scheduled_jobs").
		Where(sq.Expr("scheduled_for <= NOW()")).
		Where(sq.Eq{"name": names}).
		Where(sq.NotEq{"id": withSentinel(excludeIDs)}).
		OrderBy("scheduled_for ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ready scheduled jobs: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select ready scheduled jobs: %w", err)
	}
	defer rows.Close()

	var out []*core.ScheduledJob
	for rows.Next() {
		var (
			sj     core.ScheduledJob
			params []byte
		)
		if err := rows.Scan(&sj.ID, &sj.Name, &sj.Status, &params, &sj.ScheduledFor); err != nil {
			return nil, fmt.Errorf("scan scheduled job: %w", err)
		}
		if sj.Params, err = core.DecodeParams(params); err != nil {
			return nil, fmt.Errorf("scheduled job %d: %w", sj.ID, err)
		}
		out = append(out, &sj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ready scheduled jobs: %w", err)
	}
	return out, nil
}

// StuckJobs returns up to limit job rows abandoned by crashed workers: status
// outside terminalStatuses, name in names, id not in excludeIDs, updated_at
// older than stuckAfter.
func (s *Store) StuckJobs(ctx context.Context, terminalStatuses, names []string, excludeIDs []int64, stuckAfter time.Duration, limit int) ([]*core.StuckJob, error) {
	if len(names) == 0 || limit <= 0 {
		return nil, nil
	}

	query, args, err := sq.Select("id", "scheduled_job_id", "parent_id", "name", "status", "parameters", "attempt").
		From("jobs").
		Where(sq.NotEq{"status": terminalStatuses}).
		Where(sq.Eq{"name": names}).
		Where(sq.NotEq{"id": withSentinel(excludeIDs)}).
		Where(sq.Expr("updated_at < NOW() - INTERVAL ? SECOND", int64(stuckAfter.Seconds()))).
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build stuck jobs: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select stuck jobs: %w", err)
	}
	defer rows.Close()

	var out []*core.StuckJob
	for rows.Next() {
		var (
			j      core.Job
			parent sql.NullInt64
			params []byte
		)
		if err := rows.Scan(&j.ID, &j.ScheduledJobID, &parent, &j.Name, &j.Status, &params, &j.Attempt); err != nil {
			return nil, fmt.Errorf("scan stuck job: %w", err)
		}
		j.ParentID = parent.Int64
		if j.Params, err = core.DecodeParams(params); err != nil {
			return nil, fmt.Errorf("stuck job %d: %w", j.ID, err)
		}
		out = append(out, &core.StuckJob{Job: j})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stuck jobs: %w", err)
	}
	return out, nil
}

// withSentinel prepends the impossible id 0 so the NOT IN clause is never
// empty.
func withSentinel(ids []int64) []int64 {
	out := make([]int64, 0, len(ids)+1)
	out = append(out, 0)
	return append(out, ids...)
}

// isDuplicate reports whether err is MySQL error 1062 (ER_DUP_ENTRY).
func isDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1062
}
