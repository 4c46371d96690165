package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

type fakeJobs struct {
	purges  atomic.Int32
	pending atomic.Int32
	fail    bool
}

func (f *fakeJobs) PurgeIncomplete(context.Context) (int, error) {
	f.purges.Add(1)
	if f.fail {
		return 0, errors.New("database unavailable")
	}
	return 1, nil
}

func (f *fakeJobs) RunPendingChecks(context.Context) (int, error) {
	f.pending.Add(1)
	return 0, nil
}

func newTestScheduler(jobs Jobs) *Scheduler {
	s := New(jobs, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.PurgeInterval = 10 * time.Millisecond
	s.PendingInterval = 5 * time.Millisecond
	return s
}

func TestRunTicksBothJobs(t *testing.T) {
	jobs := &fakeJobs{}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	newTestScheduler(jobs).Run(ctx)

	if n := jobs.purges.Load(); n < 2 {
		t.Errorf("purges = %d, want at least 2", n)
	}
	if n := jobs.pending.Load(); n < 2 {
		t.Errorf("pending checks = %d, want at least 2", n)
	}
}

func TestRunKeepsGoingAfterFailure(t *testing.T) {
	jobs := &fakeJobs{fail: true}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	newTestScheduler(jobs).Run(ctx)

	if n := jobs.purges.Load(); n < 2 {
		t.Errorf("purges = %d, want at least 2 despite errors", n)
	}
}

func TestRunPurgesAtStart(t *testing.T) {
	jobs := &fakeJobs{}
	s := newTestScheduler(jobs)
	s.PurgeInterval = time.Hour
	s.PendingInterval = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if n := jobs.purges.Load(); n != 1 {
		t.Errorf("purges = %d, want 1", n)
	}
	if n := jobs.pending.Load(); n != 0 {
		t.Errorf("pending checks = %d, want 0 before the first tick", n)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		newTestScheduler(&fakeJobs{}).Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
