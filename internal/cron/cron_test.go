package cron

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/seanpm2001/mysql-queue/internal/core"
)

type recordingInserter struct {
	mu   sync.Mutex
	rows []*core.ScheduledJob
}

func (r *recordingInserter) InsertScheduledJob(_ context.Context, sj *core.ScheduledJob) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, sj)
	return int64(len(r.rows)), nil
}

func newTestScheduler(r *recordingInserter) *Scheduler {
	return New(r, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegister_InvalidExpression(t *testing.T) {
	s := newTestScheduler(&recordingInserter{})
	if err := s.Register("bad", "not a cron expr", "", "job", "start", nil); err == nil {
		t.Error("Register with invalid expression: error = nil, want error")
	}
}

func TestRegister_InvalidTimezone(t *testing.T) {
	s := newTestScheduler(&recordingInserter{})
	if err := s.Register("bad-tz", "* * * * *", "Mars/Olympus", "job", "start", nil); err == nil {
		t.Error("Register with invalid timezone: error = nil, want error")
	}
}

func TestRegister_DuplicateName(t *testing.T) {
	s := newTestScheduler(&recordingInserter{})
	if err := s.Register("nightly", "@daily", "", "job", "start", nil); err != nil {
		t.Fatalf("first Register error: %v", err)
	}
	if err := s.Register("nightly", "@hourly", "", "job", "start", nil); err == nil {
		t.Error("duplicate Register: error = nil, want error")
	}
}

func TestFire_DueEntryInsertsScheduledJob(t *testing.T) {
	rec := &recordingInserter{}
	s := newTestScheduler(rec)
	if err := s.Register("every-minute", "* * * * *", "", "report", "start", map[string]any{"kind": "daily"}); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	// Force the entry due, then fire.
	s.mu.Lock()
	firesAt := time.Now().Add(-time.Second)
	s.entries["every-minute"].next = firesAt
	s.mu.Unlock()

	s.fire(context.Background(), time.Now())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.rows) != 1 {
		t.Fatalf("inserted rows = %d, want 1", len(rec.rows))
	}
	row := rec.rows[0]
	if row.Name != "report" {
		t.Errorf("Name = %q, want %q", row.Name, "report")
	}
	if row.Status != "start" {
		t.Errorf("Status = %q, want %q", row.Status, "start")
	}
	if !row.ScheduledFor.Equal(firesAt) {
		t.Errorf("ScheduledFor = %v, want %v", row.ScheduledFor, firesAt)
	}
}

func TestFire_EntryAdvancesAfterFiring(t *testing.T) {
	rec := &recordingInserter{}
	s := newTestScheduler(rec)
	if err := s.Register("every-minute", "* * * * *", "", "report", "start", nil); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	now := time.Now()
	s.mu.Lock()
	s.entries["every-minute"].next = now.Add(-time.Second)
	s.mu.Unlock()

	s.fire(context.Background(), now)
	s.fire(context.Background(), now) // same instant: must not double-fire

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.rows) != 1 {
		t.Errorf("inserted rows = %d, want 1 (entry must advance past now)", len(rec.rows))
	}
}

func TestFire_FutureEntryDoesNotFire(t *testing.T) {
	rec := &recordingInserter{}
	s := newTestScheduler(rec)
	if err := s.Register("later", "* * * * *", "", "report", "start", nil); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	s.fire(context.Background(), time.Now().Add(-time.Hour))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.rows) != 0 {
		t.Errorf("inserted rows = %d, want 0", len(rec.rows))
	}
}

func TestStartStop(t *testing.T) {
	s := newTestScheduler(&recordingInserter{})
	s.Start()
	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
