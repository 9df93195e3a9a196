package core

import "context"

// Result is the continuation a handler requests: the next status and the
// parameters to carry into it.
type Result struct {
	Status string
	Params any
}

// Handler advances a job one step. A nil Result means the job is done. A
// non-nil error triggers the retry path: the same status is re-attempted
// until the budget is spent, then the job is persisted as failed.
//
// Delivery is at-least-once. Handlers must be re-entrant across retries and
// idempotent at the granularity of (status, params).
type Handler func(ctx context.Context, status string, params any) (*Result, error)
