package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/seanpm2001/mysql-queue/internal/metrics"
)

// consumer serially drains the shared pipeline channel. A consumer keeps a
// whole continuation chain to itself: after one executor step it feeds the
// result straight back into execute instead of returning to the channel,
// until the chain ends in cleanup, a lost race, or a terminal row's cleanup
// step.
type consumer struct {
	id    int
	exec  *executor
	sieve *sieve
	queue <-chan runnable
	log   *slog.Logger
}

func (c *consumer) run(ctx context.Context) {
	log := c.log.With("consumer", c.id)
	log.Debug("consumer started")

	// Sieve removal is deferred by one item: the previous ref stays in the
	// sieve until the next item is accepted, so a re-polled duplicate cannot
	// slip in between executor start and completion.
	var prev runnable
	for item := range c.queue {
		if prev != nil {
			c.sieve.Remove(prev.Ref())
			metrics.InFlight.Set(float64(c.sieve.Len()))
		}
		prev = item

		c.process(ctx, log, item)
	}

	if prev != nil {
		c.sieve.Remove(prev.Ref())
		metrics.InFlight.Set(float64(c.sieve.Len()))
	}
	log.Debug("consumer stopped")
}

// process runs one item's continuation chain. Nothing escapes: a panic from
// anywhere below is logged and reported, and the consumer moves on.
func (c *consumer) process(ctx context.Context, log *slog.Logger, item runnable) {
	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("consumer %d: %v", c.id, p)
			log.Error("unexpected consumer error", "error", err)
			c.exec.report(err)
		}
	}()

	ref := item.Ref()
	log.Debug("received", "kind", ref.Kind.String(), "id", ref.ID)

	var cur runnable = item
	for cur != nil {
		next := c.exec.execute(ctx, cur)
		if next == nil {
			return
		}
		cur = next
	}
}
