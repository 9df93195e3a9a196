package worker

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/seanpm2001/mysql-queue/internal/core"
)

// fakeGateway is an in-memory Gateway modelled on the MySQL store:
// auto-increment ids, a unique constraint on the parent link, and time-based
// stuck/ready selection. Unlike the store, StuckJobs skips rows that already
// have a continuation, and ReadyScheduledJobs returns rows in no set order.
type fakeGateway struct {
	mu          sync.Mutex
	nextJobID   int64
	nextSchedID int64
	jobs        map[int64]*core.Job
	updated     map[int64]time.Time // jobs.updated_at
	scheduled   map[int64]*core.ScheduledJob
	parents     map[int64]struct{} // persisted parent links

	insertErr error // when set, InsertJob fails with this
	pollErr   error // when set, ReadyScheduledJobs and StuckJobs fail with this
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		jobs:      make(map[int64]*core.Job),
		updated:   make(map[int64]time.Time),
		scheduled: make(map[int64]*core.ScheduledJob),
		parents:   make(map[int64]struct{}),
	}
}

func (f *fakeGateway) InsertJob(_ context.Context, job *core.Job) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.insertErr != nil {
		return 0, f.insertErr
	}
	if job.ParentID != 0 {
		if _, dup := f.parents[job.ParentID]; dup {
			return 0, fmt.Errorf("insert job for parent %d: %w", job.ParentID, core.ErrDuplicate)
		}
		f.parents[job.ParentID] = struct{}{}
	}

	f.nextJobID++
	stored := *job
	stored.ID = f.nextJobID
	f.jobs[stored.ID] = &stored
	f.updated[stored.ID] = time.Now()
	return stored.ID, nil
}

func (f *fakeGateway) insertScheduled(sj *core.ScheduledJob) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSchedID++
	stored := *sj
	stored.ID = f.nextSchedID
	f.scheduled[stored.ID] = &stored
	return stored.ID
}

// insertStuck pre-loads a job row with a backdated updated_at, as if a
// crashed worker had abandoned it.
func (f *fakeGateway) insertStuck(job *core.Job, updatedAt time.Time) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextJobID++
	stored := *job
	stored.ID = f.nextJobID
	f.jobs[stored.ID] = &stored
	f.updated[stored.ID] = updatedAt
	if stored.ParentID != 0 {
		f.parents[stored.ParentID] = struct{}{}
	}
	return stored.ID
}

func (f *fakeGateway) DeleteScheduledJob(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.scheduled, id)
	return nil
}

func (f *fakeGateway) ReadyScheduledJobs(_ context.Context, names []string, excludeIDs []int64, limit int) ([]*core.ScheduledJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pollErr != nil {
		return nil, f.pollErr
	}

	now := time.Now()
	var out []*core.ScheduledJob
	for _, sj := range f.scheduled {
		if len(out) >= limit {
			break
		}
		if sj.ScheduledFor.After(now) || !slices.Contains(names, sj.Name) || slices.Contains(excludeIDs, sj.ID) {
			continue
		}
		copied := *sj
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeGateway) StuckJobs(_ context.Context, terminalStatuses, names []string, excludeIDs []int64, stuckAfter time.Duration, limit int) ([]*core.StuckJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pollErr != nil {
		return nil, f.pollErr
	}

	cutoff := time.Now().Add(-stuckAfter)
	var out []*core.StuckJob
	for id, j := range f.jobs {
		if len(out) >= limit {
			break
		}
		if slices.Contains(terminalStatuses, j.Status) || !slices.Contains(names, j.Name) || slices.Contains(excludeIDs, id) {
			continue
		}
		// A job whose parent link is taken already has a continuation.
		if _, continued := f.parents[id]; continued {
			continue
		}
		if !f.updated[id].Before(cutoff) {
			continue
		}
		out = append(out, &core.StuckJob{Job: *j})
	}
	return out, nil
}

// jobRows returns a snapshot of all persisted job rows.
func (f *fakeGateway) jobRows() []*core.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*core.Job, 0, len(f.jobs))
	for _, j := range f.jobs {
		copied := *j
		out = append(out, &copied)
	}
	slices.SortFunc(out, func(a, b *core.Job) int { return int(a.ID - b.ID) })
	return out
}

func (f *fakeGateway) scheduledCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.scheduled)
}
