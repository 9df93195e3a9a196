// Package cron turns recurring cron expressions into scheduled_jobs rows.
// Each registered entry inserts one scheduled job every time its schedule
// fires; the worker picks the rows up like any other scheduled work.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/seanpm2001/mysql-queue/internal/core"
)

// checkInterval is how often the runner looks for due entries.
const checkInterval = time.Second

// Inserter is the single persistence operation the scheduler needs.
type Inserter interface {
	InsertScheduledJob(ctx context.Context, sj *core.ScheduledJob) (int64, error)
}

type entry struct {
	name     string
	jobName  string
	status   string
	params   any
	schedule cron.Schedule
	next     time.Time
}

// Scheduler fires registered cron entries. Register everything before Start;
// registration after Start is not supported.
type Scheduler struct {
	gw  Inserter
	log *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry

	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates an idle Scheduler.
func New(gw Inserter, log *slog.Logger) *Scheduler {
	return &Scheduler{
		gw:      gw,
		log:     log,
		entries: make(map[string]*entry),
		stop:    make(chan struct{}),
	}
}

// Register adds a recurring schedule under a unique registration name.
// expr is a standard five-field cron expression or a descriptor such as
// "@hourly"; tz optionally names an IANA timezone.
func (s *Scheduler) Register(name, expr, tz, jobName, status string, params any) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	var (
		schedule cron.Schedule
		err      error
	)
	if tz != "" {
		loc, locErr := time.LoadLocation(tz)
		if locErr != nil {
			return fmt.Errorf("invalid timezone %q: %w", tz, locErr)
		}
		schedule, err = parser.Parse("CRON_TZ=" + loc.String() + " " + expr)
	} else {
		schedule, err = parser.Parse(expr)
	}
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("cron entry %q already registered", name)
	}
	s.entries[name] = &entry{
		name:     name,
		jobName:  jobName,
		status:   status,
		params:   params,
		schedule: schedule,
		next:     schedule.Next(time.Now()),
	}
	return nil
}

// Start launches the runner goroutine.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(checkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.fire(context.Background(), time.Now())
			}
		}
	}()
}

// Stop halts the runner and waits for it to exit.
func (s *Scheduler) Stop() {
	close(s.stop)
	s.wg.Wait()
}

// fire inserts a scheduled job for every due entry and advances its next run
// time. Insert failures are logged; the entry still advances so a broken
// database does not cause a thundering backlog on recovery.
func (s *Scheduler) fire(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.next.After(now) {
			continue
		}

		id, err := s.gw.InsertScheduledJob(ctx, &core.ScheduledJob{
			Name:         e.jobName,
			Status:       e.status,
			Params:       e.params,
			ScheduledFor: e.next,
		})
		if err != nil {
			s.log.Error("fire cron entry", "entry", e.name, "error", err)
		} else {
			s.log.Info("fired cron entry", "entry", e.name, "scheduled_job_id", id)
		}

		e.next = e.schedule.Next(now)
	}
}
