package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"storefront/internal/types"
)

// ============================================================
// Fakes
// ============================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr[T any](v T) *T { return &v }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// manualClock is a settable Clock.
type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeOrders is an in-memory OrderRepository that counts writes.
type fakeOrders struct {
	mu             sync.Mutex
	orders         map[int64]*types.Order
	listErr        error
	statusErr      map[int64]error
	estimateErr    map[int64]error
	statusWrites   int
	estimateWrites int
}

func newFakeOrders(orders ...types.Order) *fakeOrders {
	f := &fakeOrders{orders: make(map[int64]*types.Order)}
	for i := range orders {
		o := orders[i]
		f.orders[o.ID] = &o
	}
	return f
}

func (f *fakeOrders) GetAll(context.Context) ([]types.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	ids := make([]int64, 0, len(f.orders))
	for id := range f.orders {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]types.Order, 0, len(ids))
	for _, id := range ids {
		out = append(out, *f.orders[id])
	}
	return out, nil
}

func (f *fakeOrders) UpdateStatus(_ context.Context, id int64, status types.OrderStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.statusErr[id]; err != nil {
		return err
	}
	f.statusWrites++
	f.orders[id].Status = status
	return nil
}

func (f *fakeOrders) UpdateDeliveryEstimate(_ context.Context, id int64, estimate time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.estimateErr[id]; err != nil {
		return err
	}
	f.estimateWrites++
	f.orders[id].DeliveryEstimate = &estimate
	return nil
}

func (f *fakeOrders) get(id int64) types.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.orders[id]
}

// fakeSales is an in-memory SaleRepository that mirrors is_active.
type fakeSales struct {
	mu        sync.Mutex
	sales     map[int64]*types.Sale
	order     []int64
	listErr   error
	activeErr error
	updateErr map[int64]error
	writes    int
}

func newFakeSales(sales ...types.Sale) *fakeSales {
	f := &fakeSales{sales: make(map[int64]*types.Sale)}
	for i := range sales {
		s := sales[i]
		f.sales[s.ID] = &s
		f.order = append(f.order, s.ID)
	}
	return f
}

func (f *fakeSales) GetAll(context.Context) ([]types.Sale, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]types.Sale, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, *f.sales[id])
	}
	return out, nil
}

func (f *fakeSales) GetActive(context.Context) ([]types.Sale, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.activeErr != nil {
		return nil, f.activeErr
	}
	var out []types.Sale
	for _, id := range f.order {
		if s := f.sales[id]; s.Status == types.SaleActive {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSales) UpdateStatus(_ context.Context, id int64, status types.SaleStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.updateErr[id]; err != nil {
		return err
	}
	f.writes++
	f.sales[id].Status = status
	f.sales[id].IsActive = status == types.SaleActive
	return nil
}

func (f *fakeSales) get(id int64) types.Sale {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.sales[id]
}

type fakeProducts struct {
	products []types.Product
	err      error
}

func (f *fakeProducts) GetAll(context.Context) ([]types.Product, error) {
	return f.products, f.err
}

type fakeUsers struct {
	users     map[int64]types.User
	admins    []types.User
	getErr    error
	adminsErr error
	adminCall int
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (*types.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return &u, nil
}

func (f *fakeUsers) GetAdmins(context.Context) ([]types.User, error) {
	f.adminCall++
	return f.admins, f.adminsErr
}

type fakeWishlists struct {
	byProduct map[int64][]types.User
	err       map[int64]error
}

func (f *fakeWishlists) GetUsersWithProductInWishlist(_ context.Context, productID int64) ([]types.User, error) {
	if err := f.err[productID]; err != nil {
		return nil, err
	}
	return f.byProduct[productID], nil
}

// sent is one recorded notification.
type sent struct {
	kind    string
	userID  int64
	subject string
	isToday bool
	status  types.OrderStatus
}

// fakeNotifier records every call. adminCount is what SendLowStockAlert
// reports on success. A non-nil holdLow parks SendLowStockAlert until it is
// closed.
type fakeNotifier struct {
	mu         sync.Mutex
	sent       []sent
	adminCount int
	failUser   map[int64]bool
	failAll    bool
	failLow    bool
	failBcast  bool
	holdLow    chan struct{}
	lowCalls   int
}

var errDelivery = errors.New("delivery failed")

func (n *fakeNotifier) record(s sent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, s)
}

func (n *fakeNotifier) SendToUser(_ context.Context, user types.User, msg types.Message) error {
	if n.failAll || n.failUser[user.ID] {
		return errDelivery
	}
	n.record(sent{kind: string(msg.Kind), userID: user.ID, subject: msg.Body})
	return nil
}

func (n *fakeNotifier) SendOrderStatusChanged(_ context.Context, user types.User, order types.Order, status types.OrderStatus) error {
	if n.failAll || n.failUser[user.ID] {
		return errDelivery
	}
	n.record(sent{kind: "order_status", userID: user.ID, status: status})
	return nil
}

func (n *fakeNotifier) SendSaleStartingBroadcast(_ context.Context, name string, isToday bool) error {
	if n.failAll || n.failBcast {
		return errDelivery
	}
	n.record(sent{kind: "sale_starting", subject: name, isToday: isToday})
	return nil
}

func (n *fakeNotifier) SendSaleEndingBroadcast(_ context.Context, name string, _ float64) error {
	if n.failAll || n.failBcast {
		return errDelivery
	}
	n.record(sent{kind: "sale_ending", subject: name})
	return nil
}

func (n *fakeNotifier) SendLowStockAlert(_ context.Context, product types.Product) (int, error) {
	n.mu.Lock()
	n.lowCalls++
	n.mu.Unlock()
	if n.holdLow != nil {
		<-n.holdLow
	}
	if n.failAll || n.failLow {
		return 0, errDelivery
	}
	n.record(sent{kind: "low_stock", subject: product.Name})
	return n.adminCount, nil
}

func (n *fakeNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.sent {
		if s.kind == kind {
			c++
		}
	}
	return c
}

func (n *fakeNotifier) lowStockCalls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lowCalls
}

func (n *fakeNotifier) total() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func (n *fakeNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = nil
}

// recordingRecorder keeps every report.
type recordingRecorder struct {
	mu      sync.Mutex
	reports []CycleReport
}

func (r *recordingRecorder) RecordCycle(_ context.Context, report CycleReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
}

// fakeGuard is a CycleGuard with a fixed answer that counts releases.
type fakeGuard struct {
	mu       sync.Mutex
	ok       bool
	err      error
	acquired []TaskType
	released int
}

func (g *fakeGuard) Acquire(_ context.Context, task TaskType) (func(), bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, false, g.err
	}
	if !g.ok {
		return nil, false, nil
	}
	g.acquired = append(g.acquired, task)
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.released++
	}, true, nil
}
