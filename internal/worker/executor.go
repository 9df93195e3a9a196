package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/seanpm2001/mysql-queue/internal/core"
	"github.com/seanpm2001/mysql-queue/internal/events"
	"github.com/seanpm2001/mysql-queue/internal/metrics"
)

// executor advances a single pipeline item exactly one step and persists the
// resulting continuation.
type executor struct {
	gw       Gateway
	handlers map[string]core.Handler
	log      *slog.Logger
	report   func(error)
	emit     func(*events.JobEvent)
}

// execute advances item one step. The return value is the persisted
// continuation, or nil when the step ended the chain: terminal cleanup, a
// benign lost race, or a persistence error (logged and reported, never
// propagated).
func (e *executor) execute(ctx context.Context, item runnable) *core.Job {
	switch v := item.(type) {
	case *core.Job:
		return e.executeJob(ctx, v)
	case *core.ScheduledJob:
		return e.executeScheduledJob(ctx, v)
	case *core.StuckJob:
		return e.executeStuckJob(ctx, v)
	}
	e.log.Error("unknown pipeline item", "ref", item.Ref())
	return nil
}

func (e *executor) executeJob(ctx context.Context, job *core.Job) *core.Job {
	if job.Finished() {
		e.cleanup(ctx, job)
		return nil
	}

	res, err := e.invoke(ctx, job)
	if err != nil {
		e.report(fmt.Errorf("handler %s (job %d, status %s, attempt %d): %w",
			job.Name, job.ID, job.Status, job.Attempt, err))
		next := job.Retry()
		metrics.ExecutedJobs.WithLabelValues(outcomeOf(job, next)).Inc()
		return e.persist(ctx, next)
	}

	next := job.Beget(core.StatusDone, nil)
	if res != nil {
		next = job.Beget(res.Status, res.Params)
	}
	metrics.ExecutedJobs.WithLabelValues(outcomeOf(job, next)).Inc()
	return e.persist(ctx, next)
}

func (e *executor) executeScheduledJob(ctx context.Context, sj *core.ScheduledJob) *core.Job {
	e.log.Info("starting scheduled job", "scheduled_job_id", sj.ID, "name", sj.Name, "status", sj.Status)
	metrics.ExecutedJobs.WithLabelValues("started").Inc()
	return e.persist(ctx, sj.Beget())
}

func (e *executor) executeStuckJob(ctx context.Context, stuck *core.StuckJob) *core.Job {
	e.log.Info("recovering stuck job", "job_id", stuck.ID, "name", stuck.Name,
		"status", stuck.Status, "attempt", stuck.Attempt)
	metrics.ExecutedJobs.WithLabelValues("recovered").Inc()
	return e.persist(ctx, stuck.Beget())
}

// invoke runs the handler, converting a panic into an ordinary error so the
// retry budget applies to it like any other failure.
func (e *executor) invoke(ctx context.Context, job *core.Job) (res *core.Result, err error) {
	h, ok := e.handlers[job.Name]
	if !ok {
		// The publishers only poll bound names; reaching here means the
		// binding map changed underneath us.
		return nil, fmt.Errorf("no handler bound for %q", job.Name)
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return h(ctx, job.Status, job.Params)
}

// persist inserts the continuation. A lost uniqueness race (another worker
// already persisted it) ends the chain silently.
func (e *executor) persist(ctx context.Context, next *core.Job) *core.Job {
	id, err := e.gw.InsertJob(ctx, next)
	if err != nil {
		if errors.Is(err, core.ErrDuplicate) {
			e.log.Debug("lost continuation race", "parent_id", next.ParentID, "name", next.Name)
			metrics.ExecutedJobs.WithLabelValues("conflict").Inc()
			return nil
		}
		e.log.Error("persist continuation", "name", next.Name, "parent_id", next.ParentID, "error", err)
		e.report(fmt.Errorf("persist continuation of %d: %w", next.ParentID, err))
		return nil
	}
	next.ID = id

	e.emit(&events.JobEvent{
		Type:           eventTypeOf(next),
		JobID:          next.ID,
		ScheduledJobID: next.ScheduledJobID,
		ParentID:       next.ParentID,
		Name:           next.Name,
		Status:         next.Status,
		Attempt:        next.Attempt,
		At:             time.Now().UTC(),
	})
	return next
}

// cleanup is the terminal path: delete the originating scheduled row, if any.
func (e *executor) cleanup(ctx context.Context, job *core.Job) {
	metrics.ExecutedJobs.WithLabelValues("cleanup").Inc()
	if job.ScheduledJobID != 0 {
		if err := e.gw.DeleteScheduledJob(ctx, job.ScheduledJobID); err != nil {
			e.log.Error("delete scheduled job", "scheduled_job_id", job.ScheduledJobID, "error", err)
			e.report(fmt.Errorf("delete scheduled job %d: %w", job.ScheduledJobID, err))
			return
		}
	}
	e.emit(&events.JobEvent{
		Type:           events.TypeCleanedUp,
		JobID:          job.ID,
		ScheduledJobID: job.ScheduledJobID,
		Name:           job.Name,
		Status:         job.Status,
		Attempt:        job.Attempt,
		At:             time.Now().UTC(),
	})
}

func outcomeOf(parent, next *core.Job) string {
	switch {
	case next.Status == core.StatusDone:
		return "done"
	case next.Status == core.StatusFailed:
		return "failed"
	case next.Status == parent.Status:
		return "retried"
	}
	return "continued"
}

func eventTypeOf(next *core.Job) string {
	switch {
	case next.Status == core.StatusDone:
		return events.TypeDone
	case next.Status == core.StatusFailed:
		return events.TypeFailed
	case next.ParentID == 0:
		return events.TypeStarted
	case next.Attempt > 1:
		return events.TypeRetried
	}
	return events.TypeContinued
}
