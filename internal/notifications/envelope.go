// Package notifications renders lifecycle messages and publishes them as
// JSON envelopes to a queue (SQS or Kafka) for downstream delivery. The
// engine never talks to a mail server directly; consumers of the queue own
// email rendering and retries.
package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"

	"storefront/internal/types"
)

// Envelope is the wire format published for every notification.
// UserID and Email are set only for the user audience.
type Envelope struct {
	ID        string            `json:"id"`
	Kind      types.MessageKind `json:"kind"`
	Audience  types.Audience    `json:"audience"`
	UserID    int64             `json:"user_id,omitempty"`
	Email     string            `json:"email,omitempty"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	CreatedAt time.Time         `json:"created_at"`
}

// Key returns the partition key for the envelope: the recipient id for
// direct messages, the audience otherwise.
func (e Envelope) Key() string {
	if e.Audience == types.AudienceUser {
		return "user:" + formatID(e.UserID)
	}
	return string(e.Audience)
}

func newEnvelope(audience types.Audience, msg types.Message, now time.Time) Envelope {
	return Envelope{
		ID:        uuid.NewString(),
		Kind:      msg.Kind,
		Audience:  audience,
		Title:     msg.Title,
		Body:      msg.Body,
		CreatedAt: now.UTC(),
	}
}

func directEnvelope(user types.User, msg types.Message, now time.Time) Envelope {
	env := newEnvelope(types.AudienceUser, msg, now)
	env.UserID = user.ID
	env.Email = user.Email
	return env
}

// Publisher sends one envelope to the delivery transport.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}
