package types

// Telemetry metric names shared by the Prometheus and CloudWatch recorders.
const (
	MetricCycleRuns         = "LifecycleCycleRuns"
	MetricCycleDuration     = "LifecycleCycleDuration"
	MetricEntitiesScanned   = "LifecycleEntitiesScanned"
	MetricTransitions       = "LifecycleTransitions"
	MetricEntitiesSkipped   = "LifecycleEntitiesSkipped"
	MetricEntitiesFailed    = "LifecycleEntitiesFailed"
	MetricNotificationsSent = "LifecycleNotificationsSent"
	MetricNotifyFailures    = "LifecycleNotificationFailures"

	// Dimension Keys
	DimTask = "Task"

	// Metric Namespace
	MetricNamespace = "Storefront"
)
