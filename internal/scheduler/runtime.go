package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"storefront/internal/types"
)

// DefaultStopGrace bounds how long Stop waits for in-flight cycles.
const DefaultStopGrace = 5 * time.Second

// Task is the body of one cycle. ctx is cancelled when the runtime stops.
type Task func(ctx context.Context)

// ErrRuntimeStopped is returned by Register after Stop.
var ErrRuntimeStopped = errors.New("scheduler: runtime stopped")

// Runtime hosts periodic tasks. Each registered task fires once after its
// initial delay and then every period. A task never overlaps itself: a firing
// that arrives while the previous cycle is still running is skipped. A panic
// inside a cycle is recovered and logged, and the next firing proceeds on
// schedule.
type Runtime struct {
	cron   *cron.Cron
	logger *slog.Logger
	grace  time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	started  bool
	stopped  bool
	inFlight map[string]int

	stopOnce sync.Once
	drained  bool
}

// NewRuntime creates a stopped Runtime. loc is the location cron evaluates
// firing times in; grace <= 0 selects DefaultStopGrace.
func NewRuntime(logger *slog.Logger, loc *time.Location, grace time.Duration) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	if grace <= 0 {
		grace = DefaultStopGrace
	}

	cl := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runtime{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:   logger,
		grace:    grace,
		ctx:      ctx,
		cancel:   cancel,
		inFlight: make(map[string]int),
	}
}

// Register schedules task under name. It is the only fallible step of the
// runtime: a nil task, a negative delay or a non-positive period is rejected.
func (r *Runtime) Register(name string, task Task, initialDelay, period time.Duration) error {
	switch {
	case task == nil:
		return types.NewAppError(types.ErrCodeValidationSchedule, fmt.Sprintf("task %q is nil", name), nil)
	case initialDelay < 0:
		return types.NewAppError(types.ErrCodeValidationSchedule, fmt.Sprintf("task %q has negative initial delay %s", name, initialDelay), nil)
	case period <= 0:
		return types.NewAppError(types.ErrCodeValidationSchedule, fmt.Sprintf("task %q has non-positive period %s", name, period), nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrRuntimeStopped
	}

	r.cron.Schedule(&delaySchedule{delay: initialDelay, period: period}, cron.FuncJob(func() {
		r.track(name, 1)
		defer r.track(name, -1)
		task(r.ctx)
	}))

	r.logger.Info("task registered",
		"task", name,
		"initial_delay", initialDelay.String(),
		"period", period.String(),
	)
	return nil
}

// Start begins firing registered tasks. Calling Start more than once, or
// after Stop, has no effect.
func (r *Runtime) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.stopped {
		return
	}
	r.started = true
	r.cron.Start()
}

// Stop prevents new firings, cancels the context passed to running cycles
// and waits up to the grace period for them to return. It reports whether
// every in-flight cycle finished in time. Stop is safe to call repeatedly;
// later calls return the first call's result.
func (r *Runtime) Stop() bool {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.stopped = true
		r.mu.Unlock()

		r.cancel()
		done := r.cron.Stop()

		timer := time.NewTimer(r.grace)
		defer timer.Stop()

		select {
		case <-done.Done():
			r.drained = true
		case <-timer.C:
			r.logger.Warn("grace period elapsed, abandoning in-flight tasks",
				"grace", r.grace.String(),
				"tasks", r.running(),
			)
		}
	})
	return r.drained
}

func (r *Runtime) track(name string, delta int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inFlight[name] += delta
	if r.inFlight[name] <= 0 {
		delete(r.inFlight, name)
	}
}

func (r *Runtime) running() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.inFlight))
	for name := range r.inFlight {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// delaySchedule fires once initial delay after the runtime starts and then
// every period after each firing. cron calls Next once when the entry is
// armed and once after every firing, always from its scheduling goroutine.
type delaySchedule struct {
	delay  time.Duration
	period time.Duration
	armed  bool
}

func (s *delaySchedule) Next(t time.Time) time.Time {
	if !s.armed {
		s.armed = true
		return t.Add(s.delay)
	}
	return t.Add(s.period)
}

// cronLogger adapts slog to cron.Logger. cron's informational chatter
// (wake-ups, scheduling) goes to debug.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
