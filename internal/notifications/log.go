package notifications

import (
	"context"
	"log/slog"
)

// LogPublisher writes envelopes to the logger instead of a transport. It is
// the local development transport.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, env Envelope) error {
	p.logger.InfoContext(ctx, "notification",
		"envelope_id", env.ID,
		"kind", string(env.Kind),
		"audience", string(env.Audience),
		"user_id", env.UserID,
		"title", env.Title,
		"body", env.Body,
	)
	return nil
}
