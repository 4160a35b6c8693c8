package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront/internal/types"
)

func newTestEngine(day time.Time, clock Clock, n *fakeNotifier, opts ...func(*EngineDeps)) (*Engine, *fakeOrders, *fakeSales) {
	orders := newFakeOrders(types.Order{ID: 1, UserID: 100, OrderDate: ptr(day), Status: types.OrderPending})
	sales := newFakeSales(sale(1, day, day.AddDate(0, 0, 3), types.SaleScheduled))
	users := defaultUsers()
	users.admins = []types.User{{ID: 1, IsAdmin: true}}

	deps := EngineDeps{
		Orders:            orders,
		Sales:             sales,
		Products:          &fakeProducts{products: []types.Product{{ID: 1, Name: "Mug", Stock: 1}}},
		Users:             users,
		Wishlists:         &fakeWishlists{},
		Notifier:          n,
		Clock:             clock,
		Logger:            discardLogger(),
		LowStockThreshold: DefaultLowStockThreshold,
		StopGrace:         time.Second,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	return NewEngine(deps), orders, sales
}

func TestEngine_RunOnce(t *testing.T) {
	clock := FixedClock{T: date(2026, 3, 10).Add(6 * time.Hour)}
	n := &fakeNotifier{adminCount: 1}
	e, orders, sales := newTestEngine(date(2026, 3, 10), clock, n)
	ctx := context.Background()

	for _, task := range AllTasks {
		report, err := e.RunOnce(ctx, task)
		if err != nil {
			t.Fatalf("%s: %v", task, err)
		}
		if report.Task != task {
			t.Errorf("expected report for %s, got %s", task, report.Task)
		}
	}

	if orders.get(1).Status != types.OrderConfirmed {
		t.Errorf("expected order confirmed, got %s", orders.get(1).Status)
	}
	if sales.get(1).Status != types.SaleActive {
		t.Errorf("expected sale active, got %s", sales.get(1).Status)
	}
	if n.count("low_stock") != 1 {
		t.Errorf("expected one low stock alert, got %d", n.count("low_stock"))
	}

	if _, err := e.RunOnce(ctx, "reindex"); types.CodeOf(err) != types.ErrCodeValidationUnknownTask {
		t.Errorf("expected unknown task error, got %v", err)
	}
}

func TestEngine_StartStop(t *testing.T) {
	clock := NewSystemClock(time.UTC)
	n := &fakeNotifier{adminCount: 1}
	e, _, _ := newTestEngine(CalendarDate(clock.Now(), time.UTC), clock, n)

	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("second start: %v", err)
	}

	// Sale and stock tasks fire immediately; the order task waits for midnight.
	waitFor(t, 2*time.Second, func() bool {
		return n.count("low_stock") == 1 && n.count("sale_starting") == 1
	})

	if !e.Stop() {
		t.Error("expected a clean stop")
	}
	e.Stop()
}

func TestEngine_RunOnceDoesNotOverlapTimerCycle(t *testing.T) {
	clock := NewSystemClock(time.UTC)
	n := &fakeNotifier{adminCount: 1, holdLow: make(chan struct{})}
	e, _, _ := newTestEngine(CalendarDate(clock.Now(), time.UTC), clock, n)
	ctx := context.Background()

	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer e.Stop()

	// The timer-fired stock cycle is parked inside the admin alert.
	waitFor(t, 2*time.Second, func() bool { return n.lowStockCalls() == 1 })

	report, err := e.RunOnce(ctx, TaskStockAlerts)
	if types.CodeOf(err) != types.ErrCodeConflictTaskRunning {
		t.Fatalf("expected conflict while the timer cycle runs, got %v", err)
	}
	if report.Task != TaskStockAlerts || report.Scanned != 0 {
		t.Errorf("expected an empty stock report, got %+v", report)
	}

	close(n.holdLow)
	waitFor(t, 2*time.Second, func() bool { return n.count("low_stock") == 1 })

	// Once the timer cycle has recorded the cooldown, a manual cycle runs
	// and finds the product cooling down.
	var second CycleReport
	waitFor(t, 2*time.Second, func() bool {
		second, err = e.RunOnce(ctx, TaskStockAlerts)
		return err == nil
	})
	if second.Skipped != 1 {
		t.Errorf("expected the product to be skipped, got %+v", second)
	}
	if got := n.count("low_stock"); got != 1 {
		t.Errorf("expected one low stock burst within the window, got %d", got)
	}
}

func TestEngine_RunOnceConsultsGuard(t *testing.T) {
	clock := FixedClock{T: date(2026, 3, 10).Add(6 * time.Hour)}
	ctx := context.Background()

	t.Run("held elsewhere", func(t *testing.T) {
		n := &fakeNotifier{adminCount: 1}
		guard := &fakeGuard{ok: false}
		e, orders, _ := newTestEngine(date(2026, 3, 10), clock, n, func(d *EngineDeps) { d.Guard = guard })

		_, err := e.RunOnce(ctx, TaskOrderLifecycle)
		if types.CodeOf(err) != types.ErrCodeConflictTaskRunning {
			t.Fatalf("expected conflict, got %v", err)
		}
		if orders.get(1).Status != types.OrderPending {
			t.Errorf("expected order untouched, got %s", orders.get(1).Status)
		}
	})

	t.Run("guard error", func(t *testing.T) {
		n := &fakeNotifier{adminCount: 1}
		boom := errors.New("lock table unavailable")
		guard := &fakeGuard{err: boom}
		e, _, _ := newTestEngine(date(2026, 3, 10), clock, n, func(d *EngineDeps) { d.Guard = guard })

		if _, err := e.RunOnce(ctx, TaskStockAlerts); !errors.Is(err, boom) {
			t.Fatalf("expected guard error, got %v", err)
		}
		if n.total() != 0 {
			t.Errorf("expected no notifications, got %d", n.total())
		}
	})

	t.Run("acquired", func(t *testing.T) {
		n := &fakeNotifier{adminCount: 1}
		guard := &fakeGuard{ok: true}
		e, _, sales := newTestEngine(date(2026, 3, 10), clock, n, func(d *EngineDeps) { d.Guard = guard })

		if _, err := e.RunOnce(ctx, TaskSaleLifecycle); err != nil {
			t.Fatalf("run: %v", err)
		}
		if sales.get(1).Status != types.SaleActive {
			t.Errorf("expected sale active, got %s", sales.get(1).Status)
		}
		if len(guard.acquired) != 1 || guard.acquired[0] != TaskSaleLifecycle || guard.released != 1 {
			t.Errorf("expected one acquire and release for the sale task, got %v / %d", guard.acquired, guard.released)
		}
	})
}

func TestEngine_StopReportsAbandonedCycle(t *testing.T) {
	clock := NewSystemClock(time.UTC)
	n := &fakeNotifier{adminCount: 1, holdLow: make(chan struct{})}
	defer close(n.holdLow)
	e, _, _ := newTestEngine(CalendarDate(clock.Now(), time.UTC), clock, n, func(d *EngineDeps) {
		d.StopGrace = 50 * time.Millisecond
	})

	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return n.lowStockCalls() == 1 })

	if e.Stop() {
		t.Error("expected Stop to report the stuck stock cycle")
	}
}

func TestNewEngine_ZeroThresholdIsUsedAsGiven(t *testing.T) {
	clock := FixedClock{T: date(2026, 3, 10).Add(6 * time.Hour)}
	n := &fakeNotifier{adminCount: 1}
	e := NewEngine(EngineDeps{
		Products: &fakeProducts{products: []types.Product{
			{ID: 1, Name: "Mug", Stock: 1},
			{ID: 2, Name: "Lamp", Stock: 0},
		}},
		Wishlists: &fakeWishlists{},
		Notifier:  n,
		Clock:     clock,
		Logger:    discardLogger(),
	})

	report, err := e.RunOnce(context.Background(), TaskStockAlerts)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Transitioned != 1 || n.count("low_stock") != 1 {
		t.Errorf("expected only the empty product to alert, got %+v", report)
	}
}
