package core

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/scheduler"
	"storefront/internal/types"
)

type mockHealthProbe struct {
	name     string
	checkErr error
	delay    time.Duration
	called   atomic.Bool
}

func (m *mockHealthProbe) Name() string { return m.name }

func (m *mockHealthProbe) Check(ctx context.Context) error {
	m.called.Store(true)
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.checkErr
}

type mockRunner struct {
	report scheduler.CycleReport
	err    error
	got    scheduler.TaskType
	ctxErr error
}

func (m *mockRunner) RunOnce(ctx context.Context, task scheduler.TaskType) (scheduler.CycleReport, error) {
	m.got = task
	m.ctxErr = ctx.Err()
	return m.report, m.err
}

type fixedPinger struct{ err error }

func (p fixedPinger) Ping(context.Context) error { return p.err }

type fixedBreaker string

func (b fixedBreaker) State() string { return string(b) }

func newTestServer(t *testing.T, probes []HealthProbe, runner TaskRunner) *Server {
	t.Helper()
	srv, err := NewServer(":0", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	srv.HealthProbes = probes
	srv.Runner = runner
	srv.Metrics = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics\n"))
	})
	srv.MountRoutes()
	return srv
}

func do(srv *Server, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestNewServer_RequiresAddr(t *testing.T) {
	_, err := NewServer("", nil)
	assert.Error(t, err)
}

func TestHealth_AllHealthy(t *testing.T) {
	db := &mockHealthProbe{name: "database"}
	srv := newTestServer(t, []HealthProbe{db, DatabaseProbe{DB: fixedPinger{}}}, nil)

	rec := do(srv, http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, db.called.Load())
	var resp healthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
}

func TestHealth_NoProbes(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	rec := do(srv, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealth_FailingProbe(t *testing.T) {
	srv := newTestServer(t, []HealthProbe{
		DatabaseProbe{DB: fixedPinger{err: errors.New("connection refused")}},
		NotifierProbe{Breaker: fixedBreaker("closed")},
	}, nil)

	rec := do(srv, http.MethodGet, "/health")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp healthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "unhealthy", resp.Components["database"].Status)
	assert.Equal(t, "healthy", resp.Components["notifier"].Status)
}

func TestHealth_OpenBreaker(t *testing.T) {
	srv := newTestServer(t, []HealthProbe{NotifierProbe{Breaker: fixedBreaker("open")}}, nil)
	rec := do(srv, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealth_SlowProbeTimesOut(t *testing.T) {
	srv := newTestServer(t, []HealthProbe{&mockHealthProbe{name: "slow", delay: 10 * time.Second}}, nil)

	start := time.Now()
	rec := do(srv, http.MethodGet, "/health")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	rec := do(srv, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# metrics\n", rec.Body.String())
}

func TestListTasks(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	rec := do(srv, http.MethodGet, "/tasks")

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data []string `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, []string{"order_lifecycle", "sale_lifecycle", "stock_alerts"}, resp.Data)
}

func TestRunTask_ReturnsReport(t *testing.T) {
	runner := &mockRunner{report: scheduler.CycleReport{
		Task:         scheduler.TaskOrderLifecycle,
		Scanned:      4,
		Transitioned: 2,
		Duration:     30 * time.Millisecond,
	}}
	srv := newTestServer(t, nil, runner)

	rec := do(srv, http.MethodPost, "/tasks/order_lifecycle/run")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, scheduler.TaskOrderLifecycle, runner.got)
	assert.NoError(t, runner.ctxErr)
	var resp struct {
		Data cycleResponse `json:"data"`
		Meta *ResponseMeta `json:"meta"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 4, resp.Data.Scanned)
	assert.Equal(t, 2, resp.Data.Transitioned)
	assert.Equal(t, int64(30), resp.Data.DurationMS)
	assert.Nil(t, resp.Meta)
}

func TestRunTask_PartialFailureIsWarning(t *testing.T) {
	runner := &mockRunner{report: scheduler.CycleReport{Task: scheduler.TaskStockAlerts, Failed: 1}}
	srv := newTestServer(t, nil, runner)

	rec := do(srv, http.MethodPost, "/tasks/stock_alerts/run")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"warnings"`)
}

func TestRunTask_UnknownTask(t *testing.T) {
	runner := &mockRunner{err: types.NewAppError(types.ErrCodeValidationUnknownTask, "unknown task", nil)}
	srv := newTestServer(t, nil, runner)

	rec := do(srv, http.MethodPost, "/tasks/nope/run")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp APIErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, string(types.ErrCodeValidationUnknownTask), resp.Error.Code)
	assert.NotEmpty(t, resp.Error.RequestID)
}

func TestRunTask_NotMountedWithoutRunner(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	rec := do(srv, http.MethodPost, "/tasks/order_lifecycle/run")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecoverer(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	srv.router.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("kaboom") })

	rec := do(srv, http.MethodGet, "/boom")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), string(types.ErrCodeInternalUnexpected)))
}

func TestError_StatusMapping(t *testing.T) {
	cases := map[types.ErrorCode]int{
		types.ErrCodeNotFoundOrder:            http.StatusNotFound,
		types.ErrCodeValidationSchedule:       http.StatusBadRequest,
		types.ErrCodeInternalDB:               http.StatusServiceUnavailable,
		types.ErrCodeUpstreamNotificationOpen: http.StatusServiceUnavailable,
		types.ErrCodeUpstreamNotification:     http.StatusBadGateway,
		types.ErrCodeInternalUnexpected:       http.StatusInternalServerError,
		types.ErrCodeInternalCooldownStore:    http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, statusFor(code), code)
	}

	rec := httptest.NewRecorder()
	Error(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("secret detail"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret detail")
}

func TestRunTask_AlreadyRunningIsConflict(t *testing.T) {
	runner := &mockRunner{
		report: scheduler.CycleReport{Task: scheduler.TaskStockAlerts},
		err:    types.NewAppError(types.ErrCodeConflictTaskRunning, "stock_alerts cycle already running", nil),
	}
	srv := newTestServer(t, nil, runner)

	rec := do(srv, http.MethodPost, "/tasks/stock_alerts/run")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), string(types.ErrCodeConflictTaskRunning))
}
