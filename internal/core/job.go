// Package core defines the queue's entity types and their state transitions.
// Job, ScheduledJob and StuckJob are immutable value types: a transition
// (Beget) always produces a new value, never mutates the receiver.
package core

import "time"

// MaxRetries is the attempt budget for a contiguous same-status chain.
// Once a job has been attempted MaxRetries times in one status, the next
// continuation is persisted with StatusFailed.
const MaxRetries = 5

// Ultimate (terminal) statuses. A job in one of these statuses gets no
// further continuation, and its originating scheduled_jobs row is deleted.
const (
	StatusCanceled = "canceled"
	StatusFailed   = "failed"
	StatusDone     = "done"
)

// UltimateStatuses returns the terminal statuses, for SQL exclusion lists.
func UltimateStatuses() []string {
	return []string{StatusCanceled, StatusFailed, StatusDone}
}

// IsUltimate reports whether status is terminal.
func IsUltimate(status string) bool {
	switch status {
	case StatusCanceled, StatusFailed, StatusDone:
		return true
	}
	return false
}

// Kind distinguishes the concrete entity a Ref points at. A ScheduledJob
// with id 7 and a Job with id 7 are distinct pipeline identities.
type Kind uint8

const (
	KindJob Kind = iota + 1
	KindScheduledJob
	KindStuckJob
)

func (k Kind) String() string {
	switch k {
	case KindJob:
		return "job"
	case KindScheduledJob:
		return "scheduled_job"
	case KindStuckJob:
		return "stuck_job"
	}
	return "unknown"
}

// Ref is the dedup identity of an entity traversing the pipeline.
type Ref struct {
	Kind Kind
	ID   int64
}

// Job is one execution record: an in-flight or terminal row of the jobs
// table. ParentID links successive continuations; ScheduledJobID links back
// to the originating scheduled_jobs row (0 for synthetic roots).
type Job struct {
	ID             int64
	ScheduledJobID int64
	ParentID       int64
	Name           string
	Status         string
	Params         any
	Attempt        int
}

// Ref returns the job's pipeline identity.
func (j *Job) Ref() Ref { return Ref{Kind: KindJob, ID: j.ID} }

// Finished reports whether the job has reached an ultimate status.
func (j *Job) Finished() bool { return IsUltimate(j.Status) }

// Beget returns the continuation to persist after advancing j one step.
// Re-entering the current status counts as a retry and increments the
// attempt counter; moving to a new status resets it to 1. When the retry
// budget is exhausted the continuation is persisted as failed instead.
func (j *Job) Beget(status string, params any) *Job {
	attempt := 1
	if status == j.Status {
		if j.Attempt >= MaxRetries {
			status = StatusFailed
		} else {
			attempt = j.Attempt + 1
		}
	}
	return &Job{
		ScheduledJobID: j.ScheduledJobID,
		ParentID:       j.ID,
		Name:           j.Name,
		Status:         status,
		Params:         params,
		Attempt:        attempt,
	}
}

// Retry returns the continuation persisted after a handler error: the same
// status with an incremented attempt, or a failed row once the budget is
// spent.
func (j *Job) Retry() *Job { return j.Beget(j.Status, j.Params) }

// ScheduledJob is a pending scheduled_jobs row: a job that becomes runnable
// at or after ScheduledFor.
type ScheduledJob struct {
	ID           int64
	Name         string
	Status       string
	Params       any
	ScheduledFor time.Time
}

// Ref returns the scheduled job's pipeline identity.
func (s *ScheduledJob) Ref() Ref { return Ref{Kind: KindScheduledJob, ID: s.ID} }

// Beget returns the root Job for this scheduled item.
func (s *ScheduledJob) Beget() *Job {
	return &Job{
		ScheduledJobID: s.ID,
		ParentID:       0,
		Name:           s.Name,
		Status:         s.Status,
		Params:         s.Params,
		Attempt:        1,
	}
}

// StuckJob is a jobs row rediscovered by the recovery publisher: non-terminal
// status, updated_at older than the stuck threshold. Executing it persists a
// recovery continuation; the abandoned handler is never re-invoked directly.
type StuckJob struct {
	Job
}

// Ref returns the stuck job's pipeline identity, distinct from a live Job
// with the same row id.
func (s *StuckJob) Ref() Ref { return Ref{Kind: KindStuckJob, ID: s.ID} }

// Beget returns the recovery continuation: same status, attempt + 1, parented
// on the stuck row, or a failed row once the retry budget is spent.
func (s *StuckJob) Beget() *Job { return s.Job.Retry() }
