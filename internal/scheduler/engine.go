package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"storefront/internal/types"
)

// Engine groups the three lifecycle components. Each keeps its own timer
// line; the Engine only starts, stops and dispatches them together.
type Engine struct {
	Orders *OrderAdvancer
	Sales  *SaleAdvancer
	Stock  *StockMonitor
}

// Start starts every component. If one fails to register, the ones already
// started are stopped and the error is returned.
func (e *Engine) Start() error {
	starters := []struct {
		task  TaskType
		start func() error
		stop  func() bool
	}{
		{TaskOrderLifecycle, e.Orders.Start, e.Orders.Stop},
		{TaskSaleLifecycle, e.Sales.Start, e.Sales.Stop},
		{TaskStockAlerts, e.Stock.Start, e.Stock.Stop},
	}
	for i, s := range starters {
		if err := s.start(); err != nil {
			for _, prev := range starters[:i] {
				prev.stop()
			}
			return fmt.Errorf("start %s: %w", s.task, err)
		}
	}
	return nil
}

// Stop stops all components in parallel and reports whether every
// in-flight cycle finished within its grace period.
func (e *Engine) Stop() bool {
	var g errgroup.Group
	stoppers := []struct {
		task TaskType
		stop func() bool
	}{
		{TaskOrderLifecycle, e.Orders.Stop},
		{TaskSaleLifecycle, e.Sales.Stop},
		{TaskStockAlerts, e.Stock.Stop},
	}
	for _, s := range stoppers {
		s := s
		g.Go(func() error {
			if !s.stop() {
				return fmt.Errorf("%s: in-flight cycle abandoned", s.task)
			}
			return nil
		})
	}
	return g.Wait() == nil
}

// RunOnce runs a single cycle of task outside the timers. It shares each
// task's gate with the timer, so a task that is already running yields a
// conflict_task_running error instead of a second, overlapping cycle.
func (e *Engine) RunOnce(ctx context.Context, task TaskType) (CycleReport, error) {
	switch task {
	case TaskOrderLifecycle:
		return e.Orders.TryRunCycle(ctx)
	case TaskSaleLifecycle:
		return e.Sales.TryRunCycle(ctx)
	case TaskStockAlerts:
		return e.Stock.TryRunCycle(ctx)
	default:
		return CycleReport{}, types.NewAppError(types.ErrCodeValidationUnknownTask, fmt.Sprintf("unknown task %q", task), nil)
	}
}

// EngineDeps carries everything NewEngine needs. Zero DeliveryDays,
// CooldownWindow and StopGrace select the component defaults, and a nil
// Cooldowns an in-memory store. LowStockThreshold is used as given: zero
// alerts only on empty stock.
type EngineDeps struct {
	Orders    OrderRepository
	Sales     SaleRepository
	Products  ProductRepository
	Users     UserRepository
	Wishlists WishlistRepository
	Notifier  Notifier
	Cooldowns CooldownStore
	Clock     Clock
	Recorder  CycleRecorder
	Logger    *slog.Logger
	// Guard, when set, keeps cycles from overlapping with other processes.
	Guard CycleGuard

	DeliveryDays      int
	LowStockThreshold int
	CooldownWindow    time.Duration
	SaleEndingDedup   bool
	StopGrace         time.Duration
}

// NewEngine builds the three components over shared dependencies.
func NewEngine(d EngineDeps) *Engine {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Engine{
		Orders: NewOrderAdvancer(OrderAdvancerConfig{
			Orders:       d.Orders,
			Users:        d.Users,
			Notifier:     d.Notifier,
			Clock:        d.Clock,
			Recorder:     d.Recorder,
			Logger:       d.Logger,
			DeliveryDays: d.DeliveryDays,
			StopGrace:    d.StopGrace,
			Guard:        d.Guard,
		}),
		Sales: NewSaleAdvancer(SaleAdvancerConfig{
			Sales:       d.Sales,
			Users:       d.Users,
			Notifier:    d.Notifier,
			Clock:       d.Clock,
			Recorder:    d.Recorder,
			Logger:      d.Logger,
			EndingDedup: d.SaleEndingDedup,
			StopGrace:   d.StopGrace,
			Guard:       d.Guard,
		}),
		Stock: NewStockMonitor(StockMonitorConfig{
			Products:  d.Products,
			Wishlists: d.Wishlists,
			Notifier:  d.Notifier,
			Cooldowns: d.Cooldowns,
			Clock:     d.Clock,
			Recorder:  d.Recorder,
			Logger:    d.Logger,
			Threshold: d.LowStockThreshold,
			Window:    d.CooldownWindow,
			StopGrace: d.StopGrace,
			Guard:     d.Guard,
		}),
	}
}
