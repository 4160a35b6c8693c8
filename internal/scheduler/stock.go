package scheduler

import (
	"context"
	"log/slog"
	"time"

	"storefront/internal/notifications"
	"storefront/internal/types"
)

const (
	// DefaultLowStockThreshold is the configured default stock level at or
	// below which a product counts as low.
	DefaultLowStockThreshold = 5
	// StockPeriod is the cadence of the stock alert task. Its first run is
	// immediate.
	StockPeriod = time.Hour
)

// StockMonitorConfig wires a StockMonitor.
type StockMonitorConfig struct {
	Products  ProductRepository
	Wishlists WishlistRepository
	Notifier  Notifier
	Cooldowns CooldownStore
	Clock     Clock
	Recorder  CycleRecorder
	Logger    *slog.Logger

	// Threshold is used as given; zero alerts only on empty stock.
	Threshold int
	// Window defaults to DefaultCooldownWindow.
	Window    time.Duration
	StopGrace time.Duration
	Guard     CycleGuard
}

// StockMonitor alerts admins and wishlist holders about low-stock products,
// at most once per cooldown window per product.
type StockMonitor struct {
	products  ProductRepository
	wishlists WishlistRepository
	notifier  Notifier
	cooldowns CooldownStore
	clock     Clock
	recorder  CycleRecorder
	logger    *slog.Logger
	threshold int
	window    time.Duration
	line      *taskLine
}

// NewStockMonitor creates a StockMonitor. A nil Cooldowns selects an
// in-memory store.
func NewStockMonitor(cfg StockMonitorConfig) *StockMonitor {
	m := &StockMonitor{
		products:  cfg.Products,
		wishlists: cfg.Wishlists,
		notifier:  cfg.Notifier,
		cooldowns: cfg.Cooldowns,
		clock:     cfg.Clock,
		recorder:  cfg.Recorder,
		logger:    cfg.Logger,
		threshold: cfg.Threshold,
		window:    cfg.Window,
	}
	if m.cooldowns == nil {
		m.cooldowns = NewMemoryCooldown()
	}
	if m.clock == nil {
		m.clock = NewSystemClock(time.UTC)
	}
	if m.recorder == nil {
		m.recorder = nopRecorder{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.window <= 0 {
		m.window = DefaultCooldownWindow
	}
	m.line = newTaskLine(TaskStockAlerts, lineConfig{
		logger: m.logger,
		loc:    locationOf(m.clock),
		grace:  cfg.StopGrace,
		guard:  cfg.Guard,
		cycle:  m.runCycle,
		delay:  immediately,
		period: StockPeriod,
	})
	return m
}

// Start runs the first cycle immediately, then one every hour.
func (m *StockMonitor) Start() error { return m.line.start() }

// Stop halts the cycle. It is idempotent.
func (m *StockMonitor) Stop() bool { return m.line.stop() }

// RunCycle checks every product once. Cycles never overlap, so two of them
// cannot both find a product outside its cooldown.
func (m *StockMonitor) RunCycle(ctx context.Context) CycleReport { return m.line.run(ctx) }

// TryRunCycle is RunCycle without waiting.
func (m *StockMonitor) TryRunCycle(ctx context.Context) (CycleReport, error) {
	return m.line.tryRun(ctx)
}

func (m *StockMonitor) runCycle(ctx context.Context) (report CycleReport) {
	now := m.clock.Now()
	report = CycleReport{Task: TaskStockAlerts, StartedAt: now}
	started := time.Now()
	defer func() {
		report.Duration = time.Since(started)
		logCycle(ctx, m.logger, report)
		m.recorder.RecordCycle(context.WithoutCancel(ctx), report)
	}()

	products, err := m.products.GetAll(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to list products", "error", err)
		report.Failed++
		return report
	}

	for _, product := range products {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}
		report.Scanned++
		if product.Stock > m.threshold {
			continue
		}
		m.check(context.WithoutCancel(ctx), now, product, &report)
	}
	return report
}

func (m *StockMonitor) check(ctx context.Context, now time.Time, product types.Product, report *CycleReport) {
	last, found, err := m.cooldowns.LastNotified(ctx, product.ID)
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to read cooldown", "product_id", product.ID, "error", err)
		report.Failed++
		return
	}
	if !CooldownElapsed(now, last, found, m.window) {
		report.Skipped++
		return
	}

	admins, err := m.notifier.SendLowStockAlert(ctx, product)
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to send low stock alert",
			"product_id", product.ID,
			"stock", product.Stock,
			"error", err,
		)
		report.NotifyFailed++
		return
	}
	report.Notified += admins
	report.Transitioned++

	m.notifyWishlist(ctx, product, report)

	// The admin alert alone starts the cooldown.
	if err := m.cooldowns.RecordNotified(ctx, product.ID, now); err != nil {
		m.logger.ErrorContext(ctx, "failed to record cooldown", "product_id", product.ID, "error", err)
		report.Failed++
		return
	}
	m.logger.InfoContext(ctx, "low stock alerted",
		"product_id", product.ID,
		"stock", product.Stock,
		"admins", admins,
	)
}

func (m *StockMonitor) notifyWishlist(ctx context.Context, product types.Product, report *CycleReport) {
	users, err := m.wishlists.GetUsersWithProductInWishlist(ctx, product.ID)
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to list wishlist holders", "product_id", product.ID, "error", err)
		report.NotifyFailed++
		return
	}

	msg := notifications.WishlistLowStockMessage(product)
	for _, user := range users {
		if err := m.notifier.SendToUser(ctx, user, msg); err != nil {
			m.logger.ErrorContext(ctx, "failed to notify wishlist holder",
				"product_id", product.ID,
				"user_id", user.ID,
				"error", err,
			)
			report.NotifyFailed++
			continue
		}
		report.Notified++
	}
}
