package scheduler

import (
	"context"
	"log/slog"
	"math"
	"time"

	"storefront/internal/types"
)

// DefaultDeliveryDays is the offset from order date to delivery estimate.
const DefaultDeliveryDays = 7

// OrderPeriod is the cadence of the order lifecycle task. Its first run is
// at the next local midnight.
const OrderPeriod = 24 * time.Hour

// OrderDecision is what one cycle should do to one order.
type OrderDecision struct {
	// SkipReason is non-empty when the order must be left alone.
	SkipReason string
	// Estimate is set when the delivery estimate is missing and must be
	// written.
	Estimate *time.Time
	// Next is the status to move to, or empty for no transition.
	Next types.OrderStatus
}

// DecideOrder computes the delivery estimate backfill and the single status
// transition allowed for order at now. A transition fires only from the
// status its elapsed-day band expects, so an order advances at most one
// state per cycle and never skips a state:
//
//	days <= 1       PENDING          -> CONFIRMED
//	1 < days <= 2   CONFIRMED        -> SHIPPED
//	2 < days <= 4   SHIPPED          -> OUT_FOR_DELIVERY
//	days > 4        OUT_FOR_DELIVERY -> DELIVERED
func DecideOrder(now time.Time, order types.Order, deliveryDays int) OrderDecision {
	switch {
	case order.OrderDate == nil:
		return OrderDecision{SkipReason: "missing order date"}
	case order.Status == "":
		return OrderDecision{SkipReason: "missing status"}
	case order.Status.IsTerminal():
		return OrderDecision{SkipReason: "terminal status"}
	}

	var d OrderDecision
	if order.DeliveryEstimate == nil {
		est := order.OrderDate.AddDate(0, 0, deliveryDays)
		d.Estimate = &est
	}

	days := daysSince(*order.OrderDate, now)
	switch {
	case days <= 1 && order.Status == types.OrderPending:
		d.Next = types.OrderConfirmed
	case days > 1 && days <= 2 && order.Status == types.OrderConfirmed:
		d.Next = types.OrderShipped
	case days > 2 && days <= 4 && order.Status == types.OrderShipped:
		d.Next = types.OrderOutForDelivery
	case days > 4 && order.Status == types.OrderOutForDelivery:
		d.Next = types.OrderDelivered
	}
	return d
}

// daysSince returns the whole days elapsed from t to now, rounded down.
func daysSince(t, now time.Time) int {
	return int(math.Floor(now.Sub(t).Hours() / 24))
}

// OrderAdvancerConfig wires an OrderAdvancer.
type OrderAdvancerConfig struct {
	Orders   OrderRepository
	Users    UserRepository
	Notifier Notifier
	Clock    Clock
	Recorder CycleRecorder
	Logger   *slog.Logger

	// DeliveryDays defaults to DefaultDeliveryDays.
	DeliveryDays int
	// StopGrace defaults to DefaultStopGrace.
	StopGrace time.Duration
	// Guard, when set, is taken around every timer and TryRunCycle cycle.
	Guard CycleGuard
}

// OrderAdvancer moves orders along PENDING, CONFIRMED, SHIPPED,
// OUT_FOR_DELIVERY and DELIVERED as time passes since the order date, and
// tells the owner about every transition.
type OrderAdvancer struct {
	orders       OrderRepository
	users        UserRepository
	notifier     Notifier
	clock        Clock
	recorder     CycleRecorder
	logger       *slog.Logger
	deliveryDays int
	line         *taskLine
}

// NewOrderAdvancer creates an OrderAdvancer. Start must be called to begin
// its daily cycle.
func NewOrderAdvancer(cfg OrderAdvancerConfig) *OrderAdvancer {
	a := &OrderAdvancer{
		orders:       cfg.Orders,
		users:        cfg.Users,
		notifier:     cfg.Notifier,
		clock:        cfg.Clock,
		recorder:     cfg.Recorder,
		logger:       cfg.Logger,
		deliveryDays: cfg.DeliveryDays,
	}
	if a.clock == nil {
		a.clock = NewSystemClock(time.UTC)
	}
	if a.recorder == nil {
		a.recorder = nopRecorder{}
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.deliveryDays <= 0 {
		a.deliveryDays = DefaultDeliveryDays
	}
	a.line = newTaskLine(TaskOrderLifecycle, lineConfig{
		logger: a.logger,
		loc:    locationOf(a.clock),
		grace:  cfg.StopGrace,
		guard:  cfg.Guard,
		cycle:  a.runCycle,
		delay:  func() time.Duration { return UntilNextMidnight(a.clock) },
		period: OrderPeriod,
	})
	return a
}

// Start schedules the first cycle for the next local midnight, then one
// every 24 hours. It is idempotent.
func (a *OrderAdvancer) Start() error { return a.line.start() }

// Stop halts the cycle, waiting up to the grace period for a running cycle.
// It is idempotent.
func (a *OrderAdvancer) Stop() bool { return a.line.stop() }

// RunCycle runs one pass over every order, waiting first for a cycle
// already running in this process.
func (a *OrderAdvancer) RunCycle(ctx context.Context) CycleReport { return a.line.run(ctx) }

// TryRunCycle runs one pass unless the task is already running, in which
// case it returns a conflict_task_running error.
func (a *OrderAdvancer) TryRunCycle(ctx context.Context) (CycleReport, error) {
	return a.line.tryRun(ctx)
}

func (a *OrderAdvancer) runCycle(ctx context.Context) (report CycleReport) {
	now := a.clock.Now()
	report = CycleReport{Task: TaskOrderLifecycle, StartedAt: now}
	started := time.Now()
	defer func() {
		report.Duration = time.Since(started)
		a.finish(ctx, report)
	}()

	orders, err := a.orders.GetAll(ctx)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to list orders", "error", err)
		report.Failed++
		return report
	}

	for _, order := range orders {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}
		report.Scanned++
		// The entity in progress finishes even if a stop arrives mid-way.
		a.advance(context.WithoutCancel(ctx), now, order, &report)
	}
	return report
}

func (a *OrderAdvancer) advance(ctx context.Context, now time.Time, order types.Order, report *CycleReport) {
	d := DecideOrder(now, order, a.deliveryDays)
	if d.SkipReason != "" {
		if !order.Status.IsTerminal() {
			a.logger.InfoContext(ctx, "skipping order", "order_id", order.ID, "reason", d.SkipReason)
		}
		report.Skipped++
		return
	}

	failed := false
	if d.Estimate != nil {
		if err := a.orders.UpdateDeliveryEstimate(ctx, order.ID, *d.Estimate); err != nil {
			a.logger.ErrorContext(ctx, "failed to set delivery estimate",
				"order_id", order.ID,
				"error", err,
			)
			failed = true
		} else {
			order.DeliveryEstimate = d.Estimate
		}
	}

	if d.Next != "" {
		if err := a.orders.UpdateStatus(ctx, order.ID, d.Next); err != nil {
			a.logger.ErrorContext(ctx, "failed to update order status",
				"order_id", order.ID,
				"from", order.Status,
				"to", d.Next,
				"error", err,
			)
			failed = true
		} else {
			a.logger.InfoContext(ctx, "order advanced",
				"order_id", order.ID,
				"from", order.Status,
				"to", d.Next,
			)
			report.Transitioned++
			order.Status = d.Next
			a.notify(ctx, order, report)
		}
	}

	if failed {
		report.Failed++
	}
}

// notify tells the owner about a transition that is already persisted.
func (a *OrderAdvancer) notify(ctx context.Context, order types.Order, report *CycleReport) {
	user, err := a.users.GetByID(ctx, order.UserID)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to load order owner",
			"order_id", order.ID,
			"user_id", order.UserID,
			"error", err,
		)
		report.NotifyFailed++
		return
	}
	if err := a.notifier.SendOrderStatusChanged(ctx, *user, order, order.Status); err != nil {
		a.logger.ErrorContext(ctx, "failed to send order status notification",
			"order_id", order.ID,
			"user_id", order.UserID,
			"error", err,
		)
		report.NotifyFailed++
		return
	}
	report.Notified++
}

func (a *OrderAdvancer) finish(ctx context.Context, report CycleReport) {
	logCycle(ctx, a.logger, report)
	a.recorder.RecordCycle(context.WithoutCancel(ctx), report)
}

// logCycle writes the cycle summary.
func logCycle(ctx context.Context, logger *slog.Logger, r CycleReport) {
	logger.InfoContext(ctx, "cycle complete",
		"task", string(r.Task),
		"duration_ms", r.Duration.Milliseconds(),
		"scanned", r.Scanned,
		"transitioned", r.Transitioned,
		"skipped", r.Skipped,
		"failed", r.Failed,
		"notified", r.Notified,
		"notify_failed", r.NotifyFailed,
		"cancelled", r.Cancelled,
	)
}
