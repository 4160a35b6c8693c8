package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher publishes envelopes to the notification queue. The envelope
// kind and audience travel as message attributes so consumers can filter
// without decoding the body.
type SQSPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewSQSPublisher creates an SQSPublisher targeting queueURL.
func NewSQSPublisher(client SQSSender, queueURL string, logger *slog.Logger) *SQSPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQSPublisher{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// Publish serializes env and sends it to the queue.
func (p *SQSPublisher) Publish(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("sqs publisher: failed to marshal envelope: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(env.Kind)),
			},
			"audience": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(env.Audience)),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("sqs publisher: failed to send message to %s: %w", p.queueURL, err)
	}

	p.logger.DebugContext(ctx, "notification published",
		"envelope_id", env.ID,
		"kind", string(env.Kind),
		"audience", string(env.Audience),
	)
	return nil
}
