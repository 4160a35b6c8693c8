package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/types"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher_KeysByRecipient(t *testing.T) {
	w := &fakeWriter{}
	pub := NewKafkaPublisherWithWriter(w)

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	env := directEnvelope(types.User{ID: 9}, WishlistLowStockMessage(types.Product{ID: 1, Name: "Mug", Stock: 2}), now)
	require.NoError(t, pub.Publish(context.Background(), env))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "user:9", string(msg.Key))
	assert.Equal(t, now, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, string(types.KindWishlistLowStock), string(msg.Headers[0].Value))

	var decoded Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, env.ID, decoded.ID)

	require.NoError(t, pub.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	pub := NewKafkaPublisherWithWriter(&fakeWriter{err: errors.New("leader not available")})

	err := pub.Publish(context.Background(), newEnvelope(types.AudienceAll, types.Message{}, time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
}
