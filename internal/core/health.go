package core

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// healthCheckTimeout bounds the whole probe round; a probe still running at
// the deadline is reported unhealthy.
const healthCheckTimeout = 2 * time.Second

// HealthProbe checks one dependency the engine cannot work without.
type HealthProbe interface {
	Name() string
	// Check must respect the context deadline.
	Check(ctx context.Context) error
}

// componentStatus is one probe's outcome.
type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth runs every probe concurrently and answers 200 when all pass,
// 503 otherwise. Mounted at GET /health.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{Status: "healthy"}
	if len(s.HealthProbes) == 0 {
		JSON(w, r, http.StatusOK, resp)
		return
	}

	type probeResult struct {
		name string
		err  error
	}
	// Buffered so probes that finish after the deadline never block.
	results := make(chan probeResult, len(s.HealthProbes))
	for _, p := range s.HealthProbes {
		go func(p HealthProbe) {
			res := probeResult{name: p.Name()}
			defer func() {
				if rvr := recover(); rvr != nil {
					res.err = fmt.Errorf("probe panicked: %v", rvr)
				}
				results <- res
			}()
			res.err = p.Check(ctx)
		}(p)
	}

	resp.Components = make(map[string]componentStatus, len(s.HealthProbes))
	for _, p := range s.HealthProbes {
		resp.Components[p.Name()] = componentStatus{Status: "unhealthy", Message: "health check timed out"}
	}

collect:
	for range s.HealthProbes {
		select {
		case res := <-results:
			if res.err != nil {
				resp.Components[res.name] = componentStatus{Status: "unhealthy", Message: res.err.Error()}
			} else {
				resp.Components[res.name] = componentStatus{Status: "healthy"}
			}
		case <-ctx.Done():
			break collect
		}
	}

	status := http.StatusOK
	for _, c := range resp.Components {
		if c.Status != "healthy" {
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			break
		}
	}
	JSON(w, r, status, resp)
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabaseProbe checks that the order/sale/product store answers.
type DatabaseProbe struct {
	DB Pinger
}

func (DatabaseProbe) Name() string { return "database" }

func (p DatabaseProbe) Check(ctx context.Context) error {
	return p.DB.Ping(ctx)
}

// BreakerState is satisfied by notifications.BreakerPublisher.
type BreakerState interface {
	State() string
}

// NotifierProbe reports the notification transport unhealthy while its
// circuit breaker is open.
type NotifierProbe struct {
	Breaker BreakerState
}

func (NotifierProbe) Name() string { return "notifier" }

func (p NotifierProbe) Check(context.Context) error {
	if st := p.Breaker.State(); st == gobreaker.StateOpen.String() {
		return fmt.Errorf("circuit breaker %s", st)
	}
	return nil
}
