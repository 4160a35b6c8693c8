// Package main is the entrypoint for the lifecycle Lambda function.
//
// EventBridge rules send a LifecyclePayload naming one task. The handler
// takes a distributed job lock for the task and hour, records job history,
// and runs exactly one cycle at the payload's reference time. Scheduling
// lives in EventBridge, so the in-process runtime is never started here.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"storefront/internal/app"
	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/scheduler"
)

// lockTTL covers the Lambda execution duration with margin.
const lockTTL = 15 * time.Minute

// Runner runs one cycle.
type Runner interface {
	RunOnce(ctx context.Context, task scheduler.TaskType) (scheduler.CycleReport, error)
}

// RunnerFactory returns a Runner whose clock reads now.
type RunnerFactory func(now time.Time) (Runner, error)

// JobLocker abstracts the distributed lock acquisition.
type JobLocker interface {
	Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error)
}

// JobHistorian abstracts the job history recording.
type JobHistorian interface {
	Start(ctx context.Context, jobType string) (int64, error)
	Finish(ctx context.Context, id int64, status string, items int, err error) error
}

// Handler holds the dependencies for the Lambda handler function.
type Handler struct {
	NewRunner  RunnerFactory
	JobLock    JobLocker
	JobHistory JobHistorian
	WorkerID   string
	Now        func() time.Time
	Logger     *slog.Logger
	// DurableCooldown must be set for stock_alerts to run. Containers come
	// and go between hourly invocations, so a cooldown kept in memory or on
	// /tmp would let every cold start alert again.
	DurableCooldown bool
}

// LockID is the job lock key for task at now: one run per task per hour.
func LockID(task scheduler.TaskType, now time.Time) string {
	return fmt.Sprintf("%s:%s", task, now.UTC().Truncate(time.Hour).Format("2006-01-02T15"))
}

// Handle processes one EventBridge payload.
func (h *Handler) Handle(ctx context.Context, payload scheduler.LifecyclePayload) (string, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := time.Now().UTC()
	if h.Now != nil {
		now = h.Now()
	}
	if payload.ReferenceTime != nil {
		now = *payload.ReferenceTime
	}

	taskStr := string(payload.Task)
	logger.InfoContext(ctx, "lifecycle handler invoked",
		"task", taskStr,
		"reference_time", now.Format(time.RFC3339),
		"worker_id", h.WorkerID,
	)

	if payload.Task == "" {
		return "", fmt.Errorf("empty task type in lifecycle payload")
	}
	if payload.Task == scheduler.TaskStockAlerts && !h.DurableCooldown {
		logger.ErrorContext(ctx, "refusing stock_alerts without a durable cooldown store, set LIFECYCLE_COOLDOWN_STORE=postgres",
			"task", taskStr,
		)
		return "skipped: stock_alerts needs LIFECYCLE_COOLDOWN_STORE=postgres", nil
	}

	lockID := LockID(payload.Task, now)
	acquired, err := h.JobLock.Acquire(ctx, lockID, h.WorkerID, lockTTL)
	if err != nil {
		logger.ErrorContext(ctx, "failed to acquire job lock",
			"lock_id", lockID,
			"error", err,
		)
		return "", fmt.Errorf("acquiring job lock %s: %w", lockID, err)
	}
	if !acquired {
		logger.InfoContext(ctx, "job lock not acquired, another worker is processing",
			"lock_id", lockID,
		)
		return fmt.Sprintf("skipped: lock %s held by another worker", lockID), nil
	}

	jobID, err := h.JobHistory.Start(ctx, taskStr)
	if err != nil {
		// Non-fatal: the cycle still runs without a history row.
		logger.ErrorContext(ctx, "failed to start job history",
			"task", taskStr,
			"error", err,
		)
		jobID = 0
	}

	report, execErr := h.run(ctx, payload.Task, now)

	// Per-entity failures are retried by the next scheduled cycle, so they
	// are recorded as partial rather than failing the invocation. A failed
	// invocation would be redelivered and repeat broadcasts already sent.
	status := db.JobStatus(execErr, report.Err())
	historyErr := execErr
	if historyErr == nil {
		historyErr = report.Err()
	}
	if jobID != 0 {
		if finishErr := h.JobHistory.Finish(ctx, jobID, status, report.Items(), historyErr); finishErr != nil {
			logger.ErrorContext(ctx, "failed to finish job history",
				"job_id", jobID,
				"task", taskStr,
				"error", finishErr,
			)
		}
	}

	if status == db.JobSkipped {
		logger.InfoContext(ctx, "cycle already running elsewhere", "task", taskStr, "reason", execErr.Error())
		return fmt.Sprintf("skipped: %s already running", taskStr), nil
	}
	if execErr != nil {
		logger.ErrorContext(ctx, "task execution failed",
			"task", taskStr,
			"error", execErr,
		)
		return "", fmt.Errorf("task %s failed: %w", taskStr, execErr)
	}

	result := fmt.Sprintf("task %s %s: %d items processed", taskStr, status, report.Items())
	logger.InfoContext(ctx, result,
		"task", taskStr,
		"items", report.Items(),
		"failed", report.Failed,
		"notify_failed", report.NotifyFailed,
	)
	return result, nil
}

func (h *Handler) run(ctx context.Context, task scheduler.TaskType, now time.Time) (scheduler.CycleReport, error) {
	runner, err := h.NewRunner(now)
	if err != nil {
		return scheduler.CycleReport{Task: task}, err
	}
	return runner.RunOnce(ctx, task)
}

// referenceClock reads the time of the current invocation. The Lambda
// runtime delivers one event at a time per instance.
type referenceClock struct {
	mu  sync.Mutex
	loc *time.Location
	t   time.Time
}

func (c *referenceClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *referenceClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.t.IsZero() {
		return time.Now().In(c.loc)
	}
	return c.t.In(c.loc)
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: loading configuration: %v\n", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg.LogLevel)
	logger.Info("lifecycle Lambda initializing (cold start)")

	ctx := context.Background()
	pool, err := app.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to open database pool", "error", err)
		os.Exit(1)
	}

	clock := &referenceClock{loc: cfg.Lifecycle.Location()}
	comps, err := app.Build(ctx, cfg, pool, clock, logger)
	if err != nil {
		logger.Error("failed to wire engine", "error", err)
		os.Exit(1)
	}

	handler := &Handler{
		NewRunner: func(now time.Time) (Runner, error) {
			clock.Set(now)
			return comps.Engine, nil
		},
		JobLock:    db.NewJobLockRepository(pool),
		JobHistory: db.NewJobHistoryRepository(pool),
		WorkerID:   comps.WorkerID,
		Logger:     logger,

		DurableCooldown: comps.DurableCooldown,
	}
	if !handler.DurableCooldown {
		logger.Warn("cooldowns are not durable, stock_alerts invocations will be refused",
			"cooldown_store", cfg.Lifecycle.CooldownStore,
		)
	}

	logger.Info("lifecycle Lambda initialized",
		"worker_id", handler.WorkerID,
		"breaker", comps.Breaker.State(),
	)
	lambda.Start(handler.Handle)
}
