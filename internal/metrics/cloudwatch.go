package metrics

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"storefront/internal/scheduler"
	"storefront/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchRecorder implements scheduler.CycleRecorder by emitting one
// PutMetricData call per cycle, every datum carrying the Task dimension.
//
// Metrics emitted:
//   - LifecycleCycleRuns, LifecycleCycleDuration (ms)
//   - LifecycleEntitiesScanned, LifecycleTransitions, LifecycleEntitiesSkipped,
//     LifecycleEntitiesFailed
//   - LifecycleNotificationsSent, LifecycleNotificationFailures
type CloudWatchRecorder struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

var _ scheduler.CycleRecorder = (*CloudWatchRecorder)(nil)

// NewCloudWatchRecorder creates a recorder publishing to namespace, or to
// types.MetricNamespace when namespace is empty.
func NewCloudWatchRecorder(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchRecorder {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchRecorder{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordCycle publishes the report. Failures are logged, never returned: a
// metrics outage must not affect the cycle.
func (m *CloudWatchRecorder) RecordCycle(ctx context.Context, report scheduler.CycleReport) {
	dims := []cwtypes.Dimension{
		{
			Name:  aws.String(types.DimTask),
			Value: aws.String(string(report.Task)),
		},
	}
	ts := aws.Time(report.StartedAt)
	count := func(name string, v int) cwtypes.MetricDatum {
		return cwtypes.MetricDatum{
			MetricName: aws.String(name),
			Value:      aws.Float64(float64(v)),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
			Timestamp:  ts,
		}
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			count(types.MetricCycleRuns, 1),
			{
				MetricName: aws.String(types.MetricCycleDuration),
				Value:      aws.Float64(float64(report.Duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: dims,
				Timestamp:  ts,
			},
			count(types.MetricEntitiesScanned, report.Scanned),
			count(types.MetricTransitions, report.Transitioned),
			count(types.MetricEntitiesSkipped, report.Skipped),
			count(types.MetricEntitiesFailed, report.Failed),
			count(types.MetricNotificationsSent, report.Notified),
			count(types.MetricNotifyFailures, report.NotifyFailed),
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to record cycle metrics",
			"task", string(report.Task),
			"error", types.NewAppError(types.ErrCodeUpstreamMetricsUnavailable, "cloudwatch put failed", err),
		)
	}
}

// Nop discards reports.
type Nop struct{}

func (Nop) RecordCycle(context.Context, scheduler.CycleReport) {}
