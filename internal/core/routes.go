package core

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"storefront/internal/scheduler"
	"storefront/internal/types"
)

// MountRoutes registers the middleware stack and every ops endpoint.
// Recoverer sits directly under RequestID so panic responses carry the id.
func (s *Server) MountRoutes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(s.Recoverer)
	r.Use(RequestLogger(s.Logger))

	r.Get("/health", s.HandleHealth)
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics)
	}
	r.Get("/tasks", s.handleListTasks)
	if s.Runner != nil {
		r.Post("/tasks/{task}/run", s.handleRunTask)
	}
}

type cycleResponse struct {
	Task         string    `json:"task"`
	StartedAt    time.Time `json:"started_at"`
	DurationMS   int64     `json:"duration_ms"`
	Scanned      int       `json:"scanned"`
	Transitioned int       `json:"transitioned"`
	Skipped      int       `json:"skipped"`
	Failed       int       `json:"failed"`
	Notified     int       `json:"notified"`
	NotifyFailed int       `json:"notify_failed"`
	Cancelled    bool      `json:"cancelled"`
}

func toCycleResponse(r scheduler.CycleReport) cycleResponse {
	return cycleResponse{
		Task:         string(r.Task),
		StartedAt:    r.StartedAt,
		DurationMS:   r.Duration.Milliseconds(),
		Scanned:      r.Scanned,
		Transitioned: r.Transitioned,
		Skipped:      r.Skipped,
		Failed:       r.Failed,
		Notified:     r.Notified,
		NotifyFailed: r.NotifyFailed,
		Cancelled:    r.Cancelled,
	}
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(scheduler.AllTasks))
	for _, t := range scheduler.AllTasks {
		names = append(names, string(t))
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: names})
}

// handleRunTask runs one cycle synchronously and returns its report. The
// cycle is detached from the request context so a client disconnect does
// not cut a cycle short halfway through an entity.
func (s *Server) handleRunTask(w http.ResponseWriter, r *http.Request) {
	task := scheduler.TaskType(chi.URLParam(r, "task"))
	ctx := r.Context()

	report, err := s.Runner.RunOnce(detach(ctx), task)
	if err != nil {
		Error(w, r, err)
		return
	}
	s.Logger.InfoContext(ctx, "manual cycle completed",
		"task", string(task),
		"request_id", middleware.GetReqID(ctx),
		"items", report.Items(),
	)
	if report.Err() != nil {
		JSON(w, r, http.StatusOK, APIResponse{
			Data: toCycleResponse(report),
			Meta: &ResponseMeta{Warnings: []string{report.Err().Error()}},
		})
		return
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: toCycleResponse(report)})
}

// statusFor maps an error code to an HTTP status.
func statusFor(code types.ErrorCode) int {
	switch {
	case code.IsNotFound():
		return http.StatusNotFound
	case strings.HasPrefix(string(code), "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(string(code), "conflict_"):
		return http.StatusConflict
	case code == types.ErrCodeInternalDB, code == types.ErrCodeUpstreamNotificationOpen:
		return http.StatusServiceUnavailable
	case strings.HasPrefix(string(code), "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
