// Package mysqlqueue is a durable, MySQL-backed job queue with scheduled
// jobs, multi-stage continuations, crash recovery of stuck jobs, and bounded
// concurrent execution.
//
// Clients register named handlers and schedule work that survives process
// restarts:
//
//	db, _ := sql.Open("mysql", dsn) // parseTime=true&multiStatements=true
//	_ = mysqlqueue.Initialize(db)
//
//	id, _ := mysqlqueue.Schedule(ctx, db, "greet", "start",
//		map[string]any{"name": "world"}, time.Now())
//
//	w := mysqlqueue.NewWorker(db, map[string]mysqlqueue.Handler{
//		"greet": func(ctx context.Context, status string, params any) (*mysqlqueue.Result, error) {
//			return nil, nil // done
//		},
//	}, mysqlqueue.Options{})
//	defer w.Stop(10 * time.Second)
//
// Delivery is at-least-once: a handler may observe the same (status, params)
// step more than once and must be idempotent at that granularity.
package mysqlqueue

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/seanpm2001/mysql-queue/internal/core"
	"github.com/seanpm2001/mysql-queue/internal/cron"
	"github.com/seanpm2001/mysql-queue/internal/events"
	"github.com/seanpm2001/mysql-queue/internal/store"
	"github.com/seanpm2001/mysql-queue/internal/worker"
)

// Handler advances a job one step; see core.Handler for the full contract.
type Handler = core.Handler

// Result is the continuation a handler requests. A nil *Result means done.
type Result = core.Result

// Options configures a Worker; zero values select the documented defaults.
type Options = worker.Options

// Worker is a running pipeline; stop it with Stop.
type Worker = worker.Worker

// EventPublisher receives a lifecycle event for every persisted transition.
type EventPublisher = events.Publisher

// JobEvent describes one persisted transition.
type JobEvent = events.JobEvent

// CronScheduler turns recurring cron expressions into scheduled jobs.
type CronScheduler = cron.Scheduler

// MaxRetries is the attempt budget for a contiguous same-status chain.
const MaxRetries = core.MaxRetries

// Terminal job statuses.
const (
	StatusCanceled = core.StatusCanceled
	StatusFailed   = core.StatusFailed
	StatusDone     = core.StatusDone
)

// Initialize idempotently creates the queue tables on db. The DSN must set
// parseTime=true and multiStatements=true.
func Initialize(db *sql.DB) error {
	return store.Migrate(db)
}

// Schedule persists a scheduled job that becomes runnable at or after dueAt
// and returns its id. params must be JSON-serializable (nil, booleans,
// numbers, strings, sequences, string-keyed maps).
func Schedule(ctx context.Context, db *sql.DB, name, status string, params any, dueAt time.Time) (int64, error) {
	return store.New(db).InsertScheduledJob(ctx, &core.ScheduledJob{
		Name:         name,
		Status:       status,
		Params:       params,
		ScheduledFor: dueAt,
	})
}

// NewWorker starts a worker polling db for jobs whose names appear in
// handlers. The returned worker is already running.
func NewWorker(db *sql.DB, handlers map[string]Handler, opts Options) *Worker {
	return worker.New(store.New(db), handlers, opts)
}

// NewCronScheduler creates an idle cron scheduler inserting into db. Register
// entries, then call Start.
func NewCronScheduler(db *sql.DB, log *slog.Logger) *CronScheduler {
	return cron.New(store.New(db), log)
}

// NewNATSEventPublisher publishes lifecycle events over an established NATS
// connection; pass it in Options.Events.
func NewNATSEventPublisher(nc *nats.Conn) EventPublisher {
	return events.NewNATSPublisher(nc)
}
