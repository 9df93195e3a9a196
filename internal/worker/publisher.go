package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/seanpm2001/mysql-queue/internal/metrics"
)

// source performs one poll-and-publish cycle. It returns the number of items
// pushed into the pipeline, and true once the pipeline is shutting down and
// nothing could be published.
type source func(ctx context.Context) (published int, stopped bool)

// publisher runs a polling loop with adaptive backoff: after an empty cycle
// it sleeps max(minSleep, maxSleep-elapsed); after a productive cycle it
// re-polls immediately, draining a backlog at full speed.
type publisher struct {
	locus    string
	minSleep time.Duration
	maxSleep time.Duration
	poll     source
	log      *slog.Logger
	stop     <-chan struct{}
}

func (p *publisher) run(ctx context.Context) {
	p.log.Info("publisher started", "locus", p.locus)
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		start := time.Now()
		n, stopped := p.poll(ctx)
		elapsed := time.Since(start)
		metrics.PollDuration.WithLabelValues(p.locus).Observe(elapsed.Seconds())

		if stopped {
			p.log.Info("publisher stopped", "locus", p.locus)
			return
		}
		if n > 0 {
			continue
		}

		sleep := p.maxSleep - elapsed
		if sleep < p.minSleep {
			sleep = p.minSleep
		}
		if sleep <= 0 {
			continue
		}

		timer.Reset(sleep)
		select {
		case <-timer.C:
		case <-p.stop:
			if !timer.Stop() {
				<-timer.C
			}
			// Poll once more; the source observes the shutdown and
			// reports stopped.
		}
	}
}
