package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/seanpm2001/mysql-queue/internal/core"
	"github.com/seanpm2001/mysql-queue/internal/events"
	"github.com/seanpm2001/mysql-queue/internal/metrics"
)

// Publisher loci, used in logs and metrics labels.
const (
	locusScheduler = "scheduler"
	locusRecovery  = "recovery"
)

// Options configures a Worker. The zero value of each field selects its
// default.
type Options struct {
	// BufferSize is the capacity of the intermediate pipeline channel.
	// Default 10.
	BufferSize int

	// Prefetch is the publisher batch size. Default 10.
	Prefetch int

	// NumConsumers is the number of consumer goroutines. Default 2.
	NumConsumers int

	// Scheduler publisher sleep bounds. Defaults 0s and 10s.
	MinSchedulerSleep time.Duration
	MaxSchedulerSleep time.Duration

	// Recovery publisher sleep bounds. Defaults 0s and 10s.
	MinRecoverySleep time.Duration
	MaxRecoverySleep time.Duration

	// RecoveryThreshold is the age at which a non-terminal job row counts as
	// abandoned. Default 20 minutes.
	RecoveryThreshold time.Duration

	// Logger receives structured runtime logs. Default discards everything.
	Logger *slog.Logger

	// OnError receives handler and database errors. Panics it raises are
	// swallowed. Default no-op.
	OnError func(error)

	// Events, when non-nil, receives a lifecycle event for every persisted
	// transition. Publish failures are logged and dropped.
	Events events.Publisher
}

func (o Options) withDefaults() Options {
	if o.BufferSize <= 0 {
		o.BufferSize = 10
	}
	if o.Prefetch <= 0 {
		o.Prefetch = 10
	}
	if o.NumConsumers <= 0 {
		o.NumConsumers = 2
	}
	if o.MaxSchedulerSleep <= 0 {
		o.MaxSchedulerSleep = 10 * time.Second
	}
	if o.MaxRecoverySleep <= 0 {
		o.MaxRecoverySleep = 10 * time.Second
	}
	if o.RecoveryThreshold <= 0 {
		o.RecoveryThreshold = 20 * time.Minute
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.OnError == nil {
		o.OnError = func(error) {}
	}
	return o
}

// Worker is the running pipeline: two publishers feeding a deduplicated,
// bounded channel drained by a fixed consumer pool.
type Worker struct {
	gw       Gateway
	handlers map[string]core.Handler
	opts     Options
	id       string
	names    []string

	sieve *sieve
	input chan runnable // dedup gate input
	queue chan runnable // bounded intermediate channel
	stop  chan struct{} // closed once by Stop

	running atomic.Bool
	pubWG   sync.WaitGroup // both publishers
	pipeWG  sync.WaitGroup // forwarder + consumers

	log    *slog.Logger
	report func(error)
}

// New wires the pipeline and starts all loops. The returned worker is
// running; stop it with Stop.
func New(gw Gateway, handlers map[string]core.Handler, opts Options) *Worker {
	opts = opts.withDefaults()

	names := make([]string, 0, len(handlers))
	for name := range handlers {
		names = append(names, name)
	}

	w := &Worker{
		gw:       gw,
		handlers: handlers,
		opts:     opts,
		id:       uuid.New().String(),
		names:    names,
		sieve:    newSieve(),
		input:    make(chan runnable),
		queue:    make(chan runnable, opts.BufferSize),
		stop:     make(chan struct{}),
	}
	w.log = opts.Logger.With("worker_id", w.id)
	w.report = safeReport(opts.OnError)
	w.running.Store(true)

	exec := &executor{
		gw:       gw,
		handlers: handlers,
		log:      w.log,
		report:   w.report,
		emit:     w.safeEmit(opts.Events),
	}

	// Dedup gate: forward each new ref to the bounded channel, drop refs
	// already in flight. Closing input cascades to the consumers.
	w.pipeWG.Add(1)
	go func() {
		defer w.pipeWG.Done()
		defer close(w.queue)
		for item := range w.input {
			if !w.sieve.Add(item.Ref()) {
				continue
			}
			metrics.InFlight.Set(float64(w.sieve.Len()))
			w.queue <- item
		}
	}()

	ctx := context.Background()

	for i := 0; i < opts.NumConsumers; i++ {
		c := &consumer{id: i, exec: exec, sieve: w.sieve, queue: w.queue, log: w.log}
		w.pipeWG.Add(1)
		go func() {
			defer w.pipeWG.Done()
			c.run(ctx)
		}()
	}

	scheduler := &publisher{
		locus:    locusScheduler,
		minSleep: opts.MinSchedulerSleep,
		maxSleep: opts.MaxSchedulerSleep,
		poll:     w.pollScheduled,
		log:      w.log,
		stop:     w.stop,
	}
	recovery := &publisher{
		locus:    locusRecovery,
		minSleep: opts.MinRecoverySleep,
		maxSleep: opts.MaxRecoverySleep,
		poll:     w.pollStuck,
		log:      w.log,
		stop:     w.stop,
	}
	for _, p := range []*publisher{scheduler, recovery} {
		w.pubWG.Add(1)
		go func(p *publisher) {
			defer w.pubWG.Done()
			p.run(ctx)
		}(p)
	}

	w.log.Info("worker started", "handlers", len(handlers),
		"consumers", opts.NumConsumers, "buffer", opts.BufferSize, "prefetch", opts.Prefetch)
	return w
}

// ID returns the worker's process-unique identity, as used in its logs.
func (w *Worker) ID() string { return w.id }

// Stop shuts the pipeline down: publishers exit, the dedup input closes, the
// intermediate channel drains, consumers finish their current chains. It
// returns true iff every loop exited within timeout. In-flight handler
// invocations are never interrupted; a second Stop is a no-op.
func (w *Worker) Stop(timeout time.Duration) bool {
	if !w.running.CompareAndSwap(true, false) {
		return true
	}

	close(w.stop)
	done := make(chan struct{})
	go func() {
		w.pubWG.Wait()
		close(w.input)
		w.pipeWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.log.Info("worker stopped")
		return true
	case <-time.After(timeout):
		w.log.Warn("worker stop timed out", "timeout", timeout)
		return false
	}
}

// stopping reports whether Stop has been called.
func (w *Worker) stopping() bool {
	select {
	case <-w.stop:
		return true
	default:
		return false
	}
}

// pollScheduled is the scheduler publisher's source: fetch due scheduled
// jobs not already in flight and push them into the pipeline.
func (w *Worker) pollScheduled(ctx context.Context) (int, bool) {
	if w.stopping() {
		return 0, true
	}

	rows, err := w.gw.ReadyScheduledJobs(ctx, w.names, w.sieve.IDs(core.KindScheduledJob), w.opts.Prefetch)
	if err != nil {
		w.log.Error("poll scheduled jobs", "locus", "scheduler thread", "error", err)
		w.report(fmt.Errorf("scheduler thread: %w", err))
		return 0, false
	}

	items := make([]runnable, len(rows))
	for i, row := range rows {
		items[i] = row
	}
	return w.batchPublish(locusScheduler, items)
}

// pollStuck is the recovery publisher's source: fetch abandoned job rows not
// already in flight and push them into the pipeline.
func (w *Worker) pollStuck(ctx context.Context) (int, bool) {
	if w.stopping() {
		return 0, true
	}

	rows, err := w.gw.StuckJobs(ctx, core.UltimateStatuses(), w.names,
		w.sieve.IDs(core.KindStuckJob), w.opts.RecoveryThreshold, w.opts.Prefetch)
	if err != nil {
		w.log.Error("poll stuck jobs", "locus", "recovery thread", "error", err)
		w.report(fmt.Errorf("recovery thread: %w", err))
		return 0, false
	}

	items := make([]runnable, len(rows))
	for i, row := range rows {
		items[i] = row
	}
	return w.batchPublish(locusRecovery, items)
}

// batchPublish pushes items one at a time, stopping at the first refusal.
// It reports stopped only when the pipeline shut down and nothing was
// published.
func (w *Worker) batchPublish(locus string, items []runnable) (int, bool) {
	published := 0
	for _, item := range items {
		select {
		case w.input <- item:
			published++
		case <-w.stop:
			return published, published == 0
		}
	}
	if published > 0 {
		metrics.PublishedJobs.WithLabelValues(locus).Add(float64(published))
	}
	return published, false
}

// safeReport wraps the user's error callback so a panic inside it cannot
// take down a pipeline loop.
func safeReport(fn func(error)) func(error) {
	return func(err error) {
		defer func() {
			if p := recover(); p != nil {
				fmt.Fprintf(os.Stderr, "mysql-queue: error callback panicked: %v\n", p)
			}
		}()
		fn(err)
	}
}

// safeEmit wraps the optional event publisher the same way.
func (w *Worker) safeEmit(pub events.Publisher) func(*events.JobEvent) {
	return func(event *events.JobEvent) {
		if pub == nil {
			return
		}
		defer func() {
			if p := recover(); p != nil {
				w.log.Error("event publisher panicked", "panic", p)
			}
		}()
		if err := pub.PublishJobEvent(event); err != nil {
			w.log.Error("publish lifecycle event", "type", event.Type, "job_id", event.JobID, "error", err)
		}
	}
}
