package app

import (
	"context"
	"log/slog"
	"time"

	"storefront/internal/scheduler"
)

// CycleLockID is the job_locks key held while a cycle of task runs. It has
// no time window: it exists only for the length of one cycle.
func CycleLockID(task scheduler.TaskType) string {
	return string(task) + ":running"
}

type jobLocks interface {
	Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, lockID string, workerID string) error
}

// lockGuard is a scheduler.CycleGuard over the job_locks table. The TTL
// bounds how long a crashed holder blocks the task.
type lockGuard struct {
	locks    jobLocks
	workerID string
	ttl      time.Duration
	logger   *slog.Logger
}

var _ scheduler.CycleGuard = (*lockGuard)(nil)

func (g *lockGuard) Acquire(ctx context.Context, task scheduler.TaskType) (func(), bool, error) {
	id := CycleLockID(task)
	ok, err := g.locks.Acquire(ctx, id, g.workerID, g.ttl)
	if err != nil || !ok {
		return nil, false, err
	}
	return func() {
		if err := g.locks.Release(context.WithoutCancel(ctx), id, g.workerID); err != nil {
			g.logger.WarnContext(ctx, "failed to release cycle lock, it expires on its own",
				"lock_id", id,
				"ttl", g.ttl.String(),
				"error", err,
			)
		}
	}, true, nil
}
