// Package worker is the concurrent runtime of the queue: two polling
// publishers (due scheduled jobs, stuck jobs) feed a deduplicating channel
// pipeline drained by a fixed pool of consumers, each executing handler
// steps and persisting continuations.
package worker

import (
	"context"
	"time"

	"github.com/seanpm2001/mysql-queue/internal/core"
)

// Gateway is the persistence surface the runtime needs. *store.Store
// implements it; tests substitute an in-memory fake.
type Gateway interface {
	// InsertJob persists a job row and returns its id. A lost uniqueness
	// race returns an error wrapping core.ErrDuplicate.
	InsertJob(ctx context.Context, job *core.Job) (int64, error)

	// DeleteScheduledJob idempotently removes a scheduled_jobs row.
	DeleteScheduledJob(ctx context.Context, id int64) error

	// ReadyScheduledJobs returns due scheduled jobs bound to names,
	// excluding ids already in flight.
	ReadyScheduledJobs(ctx context.Context, names []string, excludeIDs []int64, limit int) ([]*core.ScheduledJob, error)

	// StuckJobs returns non-terminal job rows older than stuckAfter.
	StuckJobs(ctx context.Context, terminalStatuses, names []string, excludeIDs []int64, stuckAfter time.Duration, limit int) ([]*core.StuckJob, error)
}

// runnable is anything the pipeline can carry: *core.Job, *core.ScheduledJob
// or *core.StuckJob.
type runnable interface {
	Ref() core.Ref
}
