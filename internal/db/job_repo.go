package db

import (
	"context"
	"time"

	"storefront/internal/types"
)

// JobLockRepository provides distributed locking via the job_locks table so
// that only one invocation runs a lifecycle task for a given window when the
// engine is driven by an external trigger instead of the in-process runtime.
type JobLockRepository struct {
	db DBTX
}

// NewJobLockRepository creates a new JobLockRepository.
func NewJobLockRepository(db DBTX) *JobLockRepository {
	return &JobLockRepository{db: db}
}

// Acquire attempts to take the lock named lockID for ttl. It returns true when
// the lock was inserted or an expired holder was replaced, and false when a
// live holder exists. lockID is typically "task:window", e.g.
// "order_lifecycle:2026-03-01T04".
//
// locked_at and expires_at are computed in Go; Go duration strings are not
// valid PostgreSQL intervals.
func (r *JobLockRepository) Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	tag, err := r.db.Exec(ctx,
		`INSERT INTO job_locks (id, worker_id, locked_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		   SET worker_id = EXCLUDED.worker_id,
		       locked_at = EXCLUDED.locked_at,
		       expires_at = EXCLUDED.expires_at
		   WHERE job_locks.expires_at < $3`,
		lockID,
		workerID,
		now,
		expiresAt,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to acquire job lock", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Release drops lockID if workerID still holds it. A lock taken over after
// expiry by another worker is left alone.
func (r *JobLockRepository) Release(ctx context.Context, lockID string, workerID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM job_locks WHERE id = $1 AND worker_id = $2`,
		lockID,
		workerID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to release job lock", err)
	}
	return nil
}

// Job history statuses. Partial means the cycle ran to completion but some
// entities or notifications failed and will be retried by a later cycle.
// Skipped means another cycle of the task was already running.
const (
	JobRunning = "running"
	JobSuccess = "success"
	JobPartial = "partial"
	JobFailed  = "failed"
	JobSkipped = "skipped"
)

// JobStatus derives the history status from a cycle's outcome: execErr is a
// failure to run at all, cycleErr a per-entity failure summary.
func JobStatus(execErr, cycleErr error) string {
	switch {
	case types.CodeOf(execErr) == types.ErrCodeConflictTaskRunning:
		return JobSkipped
	case execErr != nil:
		return JobFailed
	case cycleErr != nil:
		return JobPartial
	default:
		return JobSuccess
	}
}

// JobHistoryRepository records each lifecycle cycle in the job_history
// table for operational visibility.
type JobHistoryRepository struct {
	db DBTX
}

// NewJobHistoryRepository creates a new JobHistoryRepository.
func NewJobHistoryRepository(db DBTX) *JobHistoryRepository {
	return &JobHistoryRepository{db: db}
}

// Start inserts a 'running' row for jobType and returns its id.
func (r *JobHistoryRepository) Start(ctx context.Context, jobType string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO job_history (job_type, started_at, status)
		 VALUES ($1, NOW(), $2)
		 RETURNING id`,
		jobType,
		JobRunning,
	).Scan(&id)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to start job history entry", err)
	}
	return id, nil
}

// Finish closes the row with one of the Job* statuses, the number of
// entities transitioned or notified, and jobErr's message when non-nil.
func (r *JobHistoryRepository) Finish(ctx context.Context, id int64, status string, items int, jobErr error) error {
	var errMsg *string
	if jobErr != nil {
		s := jobErr.Error()
		errMsg = &s
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE job_history
		 SET finished_at = NOW(), status = $2, items_count = $3, error = $4
		 WHERE id = $1`,
		id,
		status,
		items,
		errMsg,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to finish job history entry", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "job history entry not found", nil)
	}
	return nil
}
