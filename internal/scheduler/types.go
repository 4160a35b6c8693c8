// Package scheduler implements the storefront lifecycle engine: three
// periodic tasks that advance orders through delivery, move sales between
// their scheduled, active and completed states, and alert on low stock.
//
// Each task runs on its own Runtime line. A cycle reads the full entity set
// through a repository interface, decides transitions with a pure function,
// applies them one entity at a time and reports what it did in a CycleReport.
// No error raised inside a cycle escapes it.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/types"
)

// TaskType identifies a lifecycle task. The same identifiers are used as
// job-lock and job-history keys and in the one-shot invocation payload.
type TaskType string

const (
	TaskOrderLifecycle TaskType = "order_lifecycle"
	TaskSaleLifecycle  TaskType = "sale_lifecycle"
	TaskStockAlerts    TaskType = "stock_alerts"
)

// AllTasks lists the lifecycle tasks in registration order.
var AllTasks = []TaskType{TaskOrderLifecycle, TaskSaleLifecycle, TaskStockAlerts}

// LifecyclePayload is the JSON payload accepted by one-shot invocations
// (EventBridge or the job-runner CLI).
//
//	{
//	  "task": "order_lifecycle",
//	  "reference_time": "2026-03-01T00:00:00Z"  // optional
//	}
type LifecyclePayload struct {
	Task TaskType `json:"task"`
	// ReferenceTime overrides "now" for deterministic replays. If nil, the
	// engine clock is used.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}

// OrderRepository is the order persistence surface used by the OrderAdvancer.
type OrderRepository interface {
	GetAll(ctx context.Context) ([]types.Order, error)
	UpdateStatus(ctx context.Context, orderID int64, status types.OrderStatus) error
	UpdateDeliveryEstimate(ctx context.Context, orderID int64, estimate time.Time) error
}

// SaleRepository is the sale persistence surface used by the SaleAdvancer.
// UpdateStatus keeps is_active in sync with the status it writes.
type SaleRepository interface {
	GetAll(ctx context.Context) ([]types.Sale, error)
	GetActive(ctx context.Context) ([]types.Sale, error)
	UpdateStatus(ctx context.Context, saleID int64, status types.SaleStatus) error
}

// ProductRepository is read by the StockMonitor.
type ProductRepository interface {
	GetAll(ctx context.Context) ([]types.Product, error)
}

// UserRepository resolves order owners and administrators.
type UserRepository interface {
	GetByID(ctx context.Context, userID int64) (*types.User, error)
	GetAdmins(ctx context.Context) ([]types.User, error)
}

// WishlistRepository resolves the users interested in a product.
type WishlistRepository interface {
	GetUsersWithProductInWishlist(ctx context.Context, productID int64) ([]types.User, error)
}

// CycleGuard keeps cycles of one task from overlapping across processes.
// Acquire reports ok=false when another holder is running task; release
// must be called once the cycle returns.
type CycleGuard interface {
	Acquire(ctx context.Context, task TaskType) (release func(), ok bool, err error)
}

// Notifier delivers lifecycle messages. Implementations resolve audiences
// themselves; SendLowStockAlert returns how many admins were notified.
type Notifier interface {
	SendToUser(ctx context.Context, user types.User, msg types.Message) error
	SendOrderStatusChanged(ctx context.Context, user types.User, order types.Order, status types.OrderStatus) error
	SendSaleStartingBroadcast(ctx context.Context, saleName string, isToday bool) error
	SendSaleEndingBroadcast(ctx context.Context, saleName string, discountPercent float64) error
	SendLowStockAlert(ctx context.Context, product types.Product) (int, error)
}

// CycleReport summarizes one cycle of a task.
type CycleReport struct {
	Task      TaskType
	StartedAt time.Time
	Duration  time.Duration

	// Scanned counts entities examined.
	Scanned int
	// Transitioned counts persisted state changes (status writes, or alert
	// bursts for the stock monitor).
	Transitioned int
	// Skipped counts entities left alone on purpose: missing data, terminal
	// status, or an active cooldown.
	Skipped int
	// Failed counts entities whose processing hit a repository error.
	Failed int
	// Notified counts delivered messages.
	Notified int
	// NotifyFailed counts messages that could not be delivered.
	NotifyFailed int
	// Cancelled is set when the cycle stopped early because the runtime
	// was stopping.
	Cancelled bool
}

// Items returns the number of side effects the cycle produced.
func (r CycleReport) Items() int {
	return r.Transitioned + r.Notified
}

// Err summarizes the cycle's failures, or returns nil for a clean cycle.
func (r CycleReport) Err() error {
	if r.Failed == 0 && r.NotifyFailed == 0 {
		return nil
	}
	return fmt.Errorf("%s: %d entities failed, %d notifications failed", r.Task, r.Failed, r.NotifyFailed)
}

// CycleRecorder receives every CycleReport, typically to export metrics.
type CycleRecorder interface {
	RecordCycle(ctx context.Context, report CycleReport)
}

type nopRecorder struct{}

func (nopRecorder) RecordCycle(context.Context, CycleReport) {}
