// Package main implements the job-runner CLI for running one lifecycle
// cycle by hand, bypassing both the in-process runtime and the Lambda shim.
//
// Usage:
//
//	go run ./cmd/tools/job-runner --task=order_lifecycle
//	go run ./cmd/tools/job-runner --task=sale_lifecycle --reference-time=2026-03-01T00:00:00Z
//	go run ./cmd/tools/job-runner --dry-run --task=stock_alerts
//	go run ./cmd/tools/job-runner --list
//
// Configuration comes from the environment (or .env), exactly as for the
// host process. Setting NOTIFY_TRANSPORT=log keeps notifications local.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/app"
	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/scheduler"
)

var taskDescriptions = map[scheduler.TaskType]string{
	scheduler.TaskOrderLifecycle: "Advance order statuses and set delivery estimates (daily at midnight)",
	scheduler.TaskSaleLifecycle:  "Activate and complete sales, broadcast start/end notices (daily)",
	scheduler.TaskStockAlerts:    "Alert admins and wishlisters about low stock (hourly)",
}

const lockTTL = 15 * time.Minute

type options struct {
	task    scheduler.TaskType
	refTime *time.Time
	list    bool
	dryRun  bool
	noLock  bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("job-runner", flag.ContinueOnError)
	fs.SetOutput(stderr)
	taskFlag := fs.String("task", "", "Task type to execute (e.g., order_lifecycle)")
	refTimeFlag := fs.String("reference-time", "", "Override reference time (RFC3339, e.g., 2026-03-01T00:00:00Z)")
	listFlag := fs.Bool("list", false, "List all available task types and exit")
	dryRunFlag := fs.Bool("dry-run", false, "Print the JSON payload without executing")
	noLockFlag := fs.Bool("no-lock", false, "Skip the distributed job lock and job history")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: job-runner [flags]\n\n")
		fmt.Fprintf(stderr, "Run one lifecycle cycle directly.\n\n")
		fmt.Fprintf(stderr, "Flags:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts := options{
		task:   scheduler.TaskType(*taskFlag),
		list:   *listFlag,
		dryRun: *dryRunFlag,
		noLock: *noLockFlag,
	}
	if opts.list {
		return opts, nil
	}
	if opts.task == "" {
		return opts, fmt.Errorf("--task is required")
	}
	if _, ok := taskDescriptions[opts.task]; !ok {
		return opts, fmt.Errorf("unknown task type %q", opts.task)
	}
	if *refTimeFlag != "" {
		t, err := time.Parse(time.RFC3339, *refTimeFlag)
		if err != nil {
			return opts, fmt.Errorf("invalid --reference-time %q (expected RFC3339): %w", *refTimeFlag, err)
		}
		opts.refTime = &t
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n\n", err)
		printAvailableTasks(os.Stderr)
		os.Exit(2)
	}
	if opts.list {
		printAvailableTasks(os.Stderr)
		return
	}

	payload := scheduler.LifecyclePayload{Task: opts.task, ReferenceTime: opts.refTime}
	if opts.dryRun {
		if err := printPayload(os.Stdout, payload); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading configuration: %v\n", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	report, err := execute(ctx, cfg, payload, opts.noLock, logger)
	if err != nil {
		logger.Error("task execution failed", "task", string(payload.Task), "error", err)
		os.Exit(1)
	}
	if err := json.NewEncoder(os.Stdout).Encode(report); err != nil {
		logger.Error("failed to print report", "error", err)
	}
	if report.Err() != nil {
		os.Exit(3)
	}
}

// execute wires the engine at the reference time and runs one cycle, under
// the same task:hour job lock the Lambda takes.
func execute(ctx context.Context, cfg *config.Config, payload scheduler.LifecyclePayload, noLock bool, logger *slog.Logger) (scheduler.CycleReport, error) {
	pool, err := app.NewPool(ctx, cfg.Database)
	if err != nil {
		return scheduler.CycleReport{}, err
	}
	defer pool.Close()

	loc := cfg.Lifecycle.Location()
	now := time.Now().In(loc)
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.In(loc)
	}

	// --no-lock also skips the per-cycle lock, for databases without job_locks.
	cfg.Lifecycle.CycleLock = !noLock
	comps, err := app.Build(ctx, cfg, pool, scheduler.FixedClock{T: now}, logger)
	if err != nil {
		return scheduler.CycleReport{}, fmt.Errorf("wiring engine: %w", err)
	}
	defer comps.Close()
	if payload.Task == scheduler.TaskStockAlerts && !comps.DurableCooldown {
		logger.Warn("cooldowns are local to this run, products still cooling down elsewhere will alert again",
			"cooldown_store", cfg.Lifecycle.CooldownStore,
		)
	}

	taskStr := string(payload.Task)
	var jobID int64
	history := db.NewJobHistoryRepository(pool)
	if !noLock {
		workerID := "job-runner-" + comps.WorkerID
		lockID := fmt.Sprintf("%s:%s", payload.Task, now.UTC().Truncate(time.Hour).Format("2006-01-02T15"))
		locks := db.NewJobLockRepository(pool)
		acquired, err := locks.Acquire(ctx, lockID, workerID, lockTTL)
		if err != nil {
			return scheduler.CycleReport{}, fmt.Errorf("acquiring job lock %s: %w", lockID, err)
		}
		if !acquired {
			return scheduler.CycleReport{}, fmt.Errorf("lock %s held by another worker (use --no-lock to override)", lockID)
		}
		logger.Info("job lock acquired", "lock_id", lockID)
		// Manual runs release on exit so a rerun in the same hour is possible.
		defer func() {
			if err := locks.Release(context.WithoutCancel(ctx), lockID, workerID); err != nil {
				logger.Warn("failed to release job lock", "lock_id", lockID, "error", err)
			}
		}()

		if jobID, err = history.Start(ctx, taskStr); err != nil {
			logger.Warn("failed to record job start (continuing anyway)", "error", err)
			jobID = 0
		}
	}

	logger.Info("executing task", "task", taskStr, "reference_time", now.Format(time.RFC3339))
	report, execErr := comps.Engine.RunOnce(ctx, payload.Task)

	if jobID != 0 {
		histErr := execErr
		if histErr == nil {
			histErr = report.Err()
		}
		if err := history.Finish(ctx, jobID, db.JobStatus(execErr, report.Err()), report.Items(), histErr); err != nil {
			logger.Error("failed to record job completion", "job_id", jobID, "error", err)
		}
	}
	return report, execErr
}

func printAvailableTasks(w io.Writer) {
	fmt.Fprintf(w, "Available task types:\n\n")
	for _, t := range scheduler.AllTasks {
		fmt.Fprintf(w, "  %-16s  %s\n", string(t), taskDescriptions[t])
	}
	fmt.Fprintln(w)
}

func printPayload(w io.Writer, payload scheduler.LifecyclePayload) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
