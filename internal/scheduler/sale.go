package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"storefront/internal/notifications"
	"storefront/internal/types"
)

// SalePeriod is the cadence of the sale lifecycle task. Its first run is
// immediate.
const SalePeriod = 24 * time.Hour

// SaleDecision is what the status pass should do to one sale.
type SaleDecision struct {
	// SkipReason is non-empty when the sale has no usable window.
	SkipReason string
	// Transitions are the statuses to write, in order.
	Transitions []types.SaleStatus
	// AnnounceToday is set when the sale becomes active and stays active.
	AnnounceToday bool
	// AnnounceTomorrow is set when a scheduled sale starts tomorrow.
	AnnounceTomorrow bool
}

// Final returns the status the sale ends up in.
func (d SaleDecision) Final(current types.SaleStatus) types.SaleStatus {
	if n := len(d.Transitions); n > 0 {
		return d.Transitions[n-1]
	}
	return current
}

// DecideSale evaluates the sale window against today, a civil date. The
// rules run in order on the evolving status, so a scheduled sale whose
// window has already closed goes SCHEDULED -> ACTIVE -> COMPLETED in one
// cycle. A completed sale is never reactivated.
func DecideSale(today time.Time, sale types.Sale) SaleDecision {
	if sale.StartDate == nil || sale.EndDate == nil {
		return SaleDecision{SkipReason: "missing sale dates"}
	}
	start, end := dateOf(*sale.StartDate), dateOf(*sale.EndDate)

	var d SaleDecision
	status := sale.Status
	if status == types.SaleScheduled && !today.Before(start) {
		status = types.SaleActive
		d.Transitions = append(d.Transitions, status)
	}
	if status == types.SaleActive && today.After(end) {
		status = types.SaleCompleted
		d.Transitions = append(d.Transitions, status)
	}

	d.AnnounceToday = sale.Status == types.SaleScheduled && status == types.SaleActive
	d.AnnounceTomorrow = status == types.SaleScheduled && start.Equal(today.AddDate(0, 0, 1))
	return d
}

// EndsTomorrow reports whether an active sale's last day is the day after
// today.
func EndsTomorrow(today time.Time, sale types.Sale) bool {
	return sale.EndDate != nil && dateOf(*sale.EndDate).Equal(today.AddDate(0, 0, 1))
}

// SaleAdvancerConfig wires a SaleAdvancer.
type SaleAdvancerConfig struct {
	Sales    SaleRepository
	Users    UserRepository
	Notifier Notifier
	Clock    Clock
	Recorder CycleRecorder
	Logger   *slog.Logger

	// EndingDedup limits the ending-tomorrow alert to once per sale per day.
	// Off by default: every cycle on the last-but-one day alerts again.
	EndingDedup bool
	Guard       CycleGuard
	StopGrace   time.Duration
}

// SaleAdvancer keeps each sale's status consistent with its date window and
// warns admins and shoppers the day before a sale ends.
type SaleAdvancer struct {
	sales    SaleRepository
	users    UserRepository
	notifier Notifier
	clock    Clock
	recorder CycleRecorder
	logger   *slog.Logger
	loc      *time.Location
	line     *taskLine

	dedup    bool
	mu       sync.Mutex
	lastSent map[int64]time.Time
}

// NewSaleAdvancer creates a SaleAdvancer.
func NewSaleAdvancer(cfg SaleAdvancerConfig) *SaleAdvancer {
	a := &SaleAdvancer{
		sales:    cfg.Sales,
		users:    cfg.Users,
		notifier: cfg.Notifier,
		clock:    cfg.Clock,
		recorder: cfg.Recorder,
		logger:   cfg.Logger,
		dedup:    cfg.EndingDedup,
		lastSent: make(map[int64]time.Time),
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
	a.loc = locationOf(a.clock)
	a.line = newTaskLine(TaskSaleLifecycle, lineConfig{
		logger: a.logger,
		loc:    a.loc,
		grace:  cfg.StopGrace,
		guard:  cfg.Guard,
		cycle:  a.runCycle,
		delay:  immediately,
		period: SalePeriod,
	})
	return a
}

// Start runs the first cycle immediately, then one every 24 hours.
func (a *SaleAdvancer) Start() error { return a.line.start() }

// Stop halts the cycle. It is idempotent.
func (a *SaleAdvancer) Stop() bool { return a.line.stop() }

// RunCycle runs the status pass over all sales, then the ending-tomorrow
// pass over active sales. A failure in one pass does not prevent the other.
func (a *SaleAdvancer) RunCycle(ctx context.Context) CycleReport { return a.line.run(ctx) }

// TryRunCycle is RunCycle without waiting: a busy task yields a
// conflict_task_running error.
func (a *SaleAdvancer) TryRunCycle(ctx context.Context) (CycleReport, error) {
	return a.line.tryRun(ctx)
}

func (a *SaleAdvancer) runCycle(ctx context.Context) (report CycleReport) {
	now := a.clock.Now()
	report = CycleReport{Task: TaskSaleLifecycle, StartedAt: now}
	started := time.Now()
	defer func() {
		report.Duration = time.Since(started)
		logCycle(ctx, a.logger, report)
		a.recorder.RecordCycle(context.WithoutCancel(ctx), report)
	}()

	today := CalendarDate(now, a.loc)
	a.transitionPass(ctx, today, &report)
	if !report.Cancelled {
		a.endingPass(ctx, today, &report)
	}
	return report
}

func (a *SaleAdvancer) transitionPass(ctx context.Context, today time.Time, report *CycleReport) {
	sales, err := a.sales.GetAll(ctx)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to list sales", "error", err)
		report.Failed++
		return
	}

	for _, sale := range sales {
		if ctx.Err() != nil {
			report.Cancelled = true
			return
		}
		report.Scanned++
		a.transition(context.WithoutCancel(ctx), today, sale, report)
	}
}

func (a *SaleAdvancer) transition(ctx context.Context, today time.Time, sale types.Sale, report *CycleReport) {
	d := DecideSale(today, sale)
	if d.SkipReason != "" {
		a.logger.InfoContext(ctx, "skipping sale", "sale_id", sale.ID, "reason", d.SkipReason)
		report.Skipped++
		return
	}

	from := sale.Status
	for _, next := range d.Transitions {
		if err := a.sales.UpdateStatus(ctx, sale.ID, next); err != nil {
			a.logger.ErrorContext(ctx, "failed to update sale status",
				"sale_id", sale.ID,
				"from", from,
				"to", next,
				"error", err,
			)
			report.Failed++
			return
		}
		a.logger.InfoContext(ctx, "sale advanced", "sale_id", sale.ID, "from", from, "to", next)
		report.Transitioned++
		from = next
	}

	switch {
	case d.AnnounceToday:
		a.broadcastStarting(ctx, sale, true, report)
	case d.AnnounceTomorrow:
		a.broadcastStarting(ctx, sale, false, report)
	}
}

func (a *SaleAdvancer) broadcastStarting(ctx context.Context, sale types.Sale, isToday bool, report *CycleReport) {
	if err := a.notifier.SendSaleStartingBroadcast(ctx, sale.Name, isToday); err != nil {
		a.logger.ErrorContext(ctx, "failed to broadcast sale start",
			"sale_id", sale.ID,
			"is_today", isToday,
			"error", err,
		)
		report.NotifyFailed++
		return
	}
	report.Notified++
}

func (a *SaleAdvancer) endingPass(ctx context.Context, today time.Time, report *CycleReport) {
	active, err := a.sales.GetActive(ctx)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to list active sales", "error", err)
		report.Failed++
		return
	}

	var (
		admins      []types.User
		adminsReady bool
	)
	for _, sale := range active {
		if ctx.Err() != nil {
			report.Cancelled = true
			return
		}
		if !EndsTomorrow(today, sale) || a.alreadyAlerted(sale.ID, today) {
			continue
		}

		itemCtx := context.WithoutCancel(ctx)
		if !adminsReady {
			admins, err = a.users.GetAdmins(itemCtx)
			if err != nil {
				a.logger.ErrorContext(itemCtx, "failed to list admins", "sale_id", sale.ID, "error", err)
				report.NotifyFailed++
			} else {
				adminsReady = true
			}
		}
		a.alertEnding(itemCtx, today, sale, admins, report)
	}
}

func (a *SaleAdvancer) alertEnding(ctx context.Context, today time.Time, sale types.Sale, admins []types.User, report *CycleReport) {
	msg := notifications.SaleEndingAdminMessage(sale.Name, sale.DiscountPercent)
	for _, admin := range admins {
		if err := a.notifier.SendToUser(ctx, admin, msg); err != nil {
			a.logger.ErrorContext(ctx, "failed to alert admin about ending sale",
				"sale_id", sale.ID,
				"user_id", admin.ID,
				"error", err,
			)
			report.NotifyFailed++
			continue
		}
		report.Notified++
	}

	if err := a.notifier.SendSaleEndingBroadcast(ctx, sale.Name, sale.DiscountPercent); err != nil {
		a.logger.ErrorContext(ctx, "failed to broadcast sale ending", "sale_id", sale.ID, "error", err)
		report.NotifyFailed++
		return
	}
	report.Notified++
	a.markAlerted(sale.ID, today)
}

func (a *SaleAdvancer) alreadyAlerted(saleID int64, today time.Time) bool {
	if !a.dedup {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	last, ok := a.lastSent[saleID]
	return ok && last.Equal(today)
}

func (a *SaleAdvancer) markAlerted(saleID int64, today time.Time) {
	if !a.dedup {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastSent[saleID] = today
}
