package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"storefront/internal/types"
)

// taskLine gives one component its own Runtime so a slow cycle in one task
// never delays another task's timer. Every cycle of the task, whether fired
// by the timer or requested by a caller, passes through the line's gate, so
// two cycles of the same task never run at once.
type taskLine struct {
	name    TaskType
	runtime *Runtime
	logger  *slog.Logger
	cycle   func(context.Context) CycleReport
	guard   CycleGuard
	delay   func() time.Duration
	period  time.Duration

	gate sync.Mutex

	startOnce sync.Once
	startErr  error
}

type lineConfig struct {
	logger *slog.Logger
	loc    *time.Location
	grace  time.Duration
	guard  CycleGuard
	cycle  func(context.Context) CycleReport
	delay  func() time.Duration
	period time.Duration
}

func newTaskLine(name TaskType, cfg lineConfig) *taskLine {
	logger := cfg.logger.With("task", string(name))
	return &taskLine{
		name:    name,
		runtime: NewRuntime(logger, cfg.loc, cfg.grace),
		logger:  logger,
		cycle:   cfg.cycle,
		guard:   cfg.guard,
		delay:   cfg.delay,
		period:  cfg.period,
	}
}

// start registers the timer entry with the delay computed at call time and
// starts the runtime. Repeated calls return the first result.
func (l *taskLine) start() error {
	l.startOnce.Do(func() {
		if l.startErr = l.runtime.Register(string(l.name), l.fire, l.delay(), l.period); l.startErr != nil {
			return
		}
		l.runtime.Start()
	})
	return l.startErr
}

func (l *taskLine) stop() bool {
	return l.runtime.Stop()
}

// fire is the timer entry. A firing that finds the task busy is skipped.
func (l *taskLine) fire(ctx context.Context) {
	_, err := l.tryRun(ctx)
	switch {
	case err == nil:
	case types.CodeOf(err) == types.ErrCodeConflictTaskRunning:
		l.logger.InfoContext(ctx, "cycle skipped, task already running", "reason", err.Error())
	default:
		l.logger.ErrorContext(ctx, "cycle not started", "error", err)
	}
}

// run waits for any in-process cycle of the task to finish and then runs
// one. The cross-process guard is not consulted.
func (l *taskLine) run(ctx context.Context) CycleReport {
	l.gate.Lock()
	defer l.gate.Unlock()
	return l.cycle(ctx)
}

// tryRun runs one cycle unless the task is already running here or, when a
// guard is set, in another process.
func (l *taskLine) tryRun(ctx context.Context) (CycleReport, error) {
	if !l.gate.TryLock() {
		return CycleReport{Task: l.name}, types.NewAppError(types.ErrCodeConflictTaskRunning,
			fmt.Sprintf("%s cycle already running", l.name), nil)
	}
	defer l.gate.Unlock()

	if l.guard != nil {
		release, ok, err := l.guard.Acquire(ctx, l.name)
		if err != nil {
			return CycleReport{Task: l.name}, err
		}
		if !ok {
			return CycleReport{Task: l.name}, types.NewAppError(types.ErrCodeConflictTaskRunning,
				fmt.Sprintf("%s cycle running in another process", l.name), nil)
		}
		defer release()
	}
	return l.cycle(ctx), nil
}

func immediately() time.Duration { return 0 }

// locationOf returns the clock's location when it exposes one.
func locationOf(c Clock) *time.Location {
	if l, ok := c.(interface{ Location() *time.Location }); ok {
		return l.Location()
	}
	return c.Now().Location()
}
