package notifications

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"storefront/internal/types"
)

// BreakerSettings configures BreakerPublisher.
type BreakerSettings struct {
	Name string
	// MaxFailures is the number of consecutive failures that opens the
	// breaker.
	MaxFailures uint32
	// Cooldown is how long the breaker stays open before a probe.
	Cooldown time.Duration
}

// BreakerPublisher guards a Publisher with a circuit breaker. While the
// breaker is open every publish fails immediately with
// upstream_notification_circuit_open.
type BreakerPublisher struct {
	next    Publisher
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewBreakerPublisher wraps next.
func NewBreakerPublisher(next Publisher, s BreakerSettings, logger *slog.Logger) *BreakerPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	if s.Name == "" {
		s.Name = "notifications"
	}
	if s.MaxFailures == 0 {
		s.MaxFailures = 5
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	maxFailures := s.MaxFailures

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     s.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("notification breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return &BreakerPublisher{next: next, breaker: cb}
}

func (p *BreakerPublisher) Publish(ctx context.Context, env Envelope) error {
	_, err := p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.next.Publish(ctx, env)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewAppError(types.ErrCodeUpstreamNotificationOpen, "notification transport unavailable", err)
	}
	return types.NewAppError(types.ErrCodeUpstreamNotification, "failed to publish notification", err)
}

// State returns the breaker state name, for health reporting.
func (p *BreakerPublisher) State() string {
	return p.breaker.State().String()
}
