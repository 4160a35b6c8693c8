package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"storefront/internal/types"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestRuntime_RegisterValidation(t *testing.T) {
	r := NewRuntime(discardLogger(), nil, time.Second)
	noop := func(context.Context) {}

	tests := []struct {
		name   string
		task   Task
		delay  time.Duration
		period time.Duration
	}{
		{"nil task", nil, 0, time.Second},
		{"negative delay", noop, -time.Second, time.Second},
		{"zero period", noop, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Register(tt.name, tt.task, tt.delay, tt.period)
			if types.CodeOf(err) != types.ErrCodeValidationSchedule {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestRuntime_FiresImmediatelyThenPeriodically(t *testing.T) {
	r := NewRuntime(discardLogger(), nil, time.Second)
	var runs atomic.Int32
	if err := r.Register("tick", func(context.Context) { runs.Add(1) }, 0, 30*time.Millisecond); err != nil {
		t.Fatalf("register: %v", err)
	}
	r.Start()
	r.Start() // idempotent
	defer r.Stop()

	waitFor(t, 2*time.Second, func() bool { return runs.Load() >= 3 })
}

func TestRuntime_InitialDelay(t *testing.T) {
	r := NewRuntime(discardLogger(), nil, time.Second)
	var runs atomic.Int32
	if err := r.Register("late", func(context.Context) { runs.Add(1) }, time.Hour, time.Hour); err != nil {
		t.Fatalf("register: %v", err)
	}
	r.Start()
	defer r.Stop()

	time.Sleep(50 * time.Millisecond)
	if runs.Load() != 0 {
		t.Errorf("expected no run before the initial delay, got %d", runs.Load())
	}
}

func TestRuntime_PanicDoesNotDeregister(t *testing.T) {
	r := NewRuntime(discardLogger(), nil, time.Second)
	var runs atomic.Int32
	task := func(context.Context) {
		if runs.Add(1) == 1 {
			panic("boom")
		}
	}
	if err := r.Register("flaky", task, 0, 20*time.Millisecond); err != nil {
		t.Fatalf("register: %v", err)
	}
	r.Start()
	defer r.Stop()

	waitFor(t, 2*time.Second, func() bool { return runs.Load() >= 3 })
}

func TestRuntime_SameTaskNeverOverlaps(t *testing.T) {
	r := NewRuntime(discardLogger(), nil, time.Second)
	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		runs    atomic.Int32
	)
	task := func(context.Context) {
		mu.Lock()
		active++
		if active > maxSeen {
			maxSeen = active
		}
		mu.Unlock()

		time.Sleep(40 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		runs.Add(1)
	}
	if err := r.Register("slow", task, 0, 5*time.Millisecond); err != nil {
		t.Fatalf("register: %v", err)
	}
	r.Start()

	waitFor(t, 2*time.Second, func() bool { return runs.Load() >= 3 })
	r.Stop()

	mu.Lock()
	defer mu.Unlock()
	if maxSeen != 1 {
		t.Errorf("expected at most one concurrent run, saw %d", maxSeen)
	}
}

func TestRuntime_StopCancelsAndWaits(t *testing.T) {
	r := NewRuntime(discardLogger(), nil, time.Second)
	started := make(chan struct{})
	var finished atomic.Bool
	task := func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		finished.Store(true)
	}
	if err := r.Register("cooperative", task, 0, time.Hour); err != nil {
		t.Fatalf("register: %v", err)
	}
	r.Start()
	<-started

	if !r.Stop() {
		t.Error("expected the cooperative task to drain within the grace period")
	}
	if !finished.Load() {
		t.Error("expected Stop to wait for the in-flight run")
	}
	if !r.Stop() {
		t.Error("second Stop must report the first result")
	}
}

func TestRuntime_StopGivesUpAfterGrace(t *testing.T) {
	r := NewRuntime(discardLogger(), nil, 50*time.Millisecond)
	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	if err := r.Register("stuck", func(context.Context) {
		close(started)
		<-release
	}, 0, time.Hour); err != nil {
		t.Fatalf("register: %v", err)
	}
	r.Start()
	<-started

	begin := time.Now()
	if r.Stop() {
		t.Error("expected Stop to report an abandoned task")
	}
	if elapsed := time.Since(begin); elapsed > time.Second {
		t.Errorf("Stop took %s, expected about the grace period", elapsed)
	}
}

func TestRuntime_RegisterAfterStop(t *testing.T) {
	r := NewRuntime(discardLogger(), nil, time.Second)
	r.Stop()
	if err := r.Register("late", func(context.Context) {}, 0, time.Second); err != ErrRuntimeStopped {
		t.Errorf("expected ErrRuntimeStopped, got %v", err)
	}
	r.Start() // no effect after Stop
}

func TestDelaySchedule(t *testing.T) {
	s := &delaySchedule{delay: 10 * time.Minute, period: time.Hour}
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	if got := s.Next(t0); !got.Equal(t0.Add(10 * time.Minute)) {
		t.Errorf("first firing: expected +10m, got %v", got)
	}
	fired := t0.Add(10 * time.Minute)
	if got := s.Next(fired); !got.Equal(fired.Add(time.Hour)) {
		t.Errorf("second firing: expected +1h, got %v", got)
	}
}
