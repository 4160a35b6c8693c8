// Package config defines the configuration structure for the storefront
// lifecycle engine. Configuration is loaded once at process start and is
// immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> struct tag defaults (Lowest)
//
// Any missing required value or invalid format causes startup to fail fast.
package config

import (
	"time"

	"storefront/internal/types"
)

// SecretString is an alias for types.SecretString so callers can keep
// credentials redacted without importing types.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"OTEL_SERVICE_NAME" default:"storefront-lifecycle"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Database      DatabaseConfig
	AWS           AWSConfig
	Notify        NotifyConfig
	Lifecycle     LifecycleConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int32         `envconfig:"DB_MAX_CONNS" default:"10" validate:"gte=1"`
	MinConns          int32         `envconfig:"DB_MIN_CONNS" default:"2" validate:"gte=0"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS regional configuration shared by the SQS publisher
// and the CloudWatch recorder.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// NotifyConfig selects and tunes the notification transport.
type NotifyConfig struct {
	Transport         string   `envconfig:"NOTIFY_TRANSPORT" default:"sqs" validate:"oneof=sqs kafka log"`
	NotificationQueue string   `envconfig:"SQS_NOTIFICATIONS" validate:"omitempty,url"`
	KafkaBrokers      []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic        string   `envconfig:"KAFKA_TOPIC" default:"storefront.notifications"`

	// BreakerFailures is the number of consecutive publish failures that
	// opens the circuit.
	BreakerFailures uint32        `envconfig:"NOTIFY_BREAKER_FAILURES" default:"5" validate:"gte=1"`
	BreakerCooldown time.Duration `envconfig:"NOTIFY_BREAKER_COOLDOWN" default:"30s"`
}

// LifecycleConfig holds the tunables of the three periodic jobs.
type LifecycleConfig struct {
	LowStockThreshold int           `envconfig:"LOW_STOCK_THRESHOLD" default:"5" validate:"gte=0"`
	CooldownWindow    time.Duration `envconfig:"COOLDOWN_WINDOW" default:"24h" validate:"gt=0"`
	Timezone          string        `envconfig:"LIFECYCLE_TIMEZONE" default:"UTC" validate:"timezone"`
	StopGracePeriod   time.Duration `envconfig:"LIFECYCLE_STOP_GRACE" default:"5s" validate:"gt=0"`
	DeliveryDays      int           `envconfig:"LIFECYCLE_DELIVERY_DAYS" default:"7" validate:"gte=1"`

	// CooldownStore selects where low-stock cooldowns live. "local" keeps
	// them in this process: in memory, or in Pebble when CooldownPath is set.
	// "postgres" shares them through the database and is the only choice
	// that survives Lambda cold starts.
	CooldownStore string `envconfig:"LIFECYCLE_COOLDOWN_STORE" default:"local" validate:"oneof=local postgres"`

	// CooldownPath enables the Pebble-backed cooldown store. Empty keeps
	// cooldowns in memory, so a restart re-notifies for low stock.
	CooldownPath string `envconfig:"LIFECYCLE_COOLDOWN_PATH"`

	// CycleLock takes a job_locks row around every cycle so the host
	// process, the Lambda and the job-runner never run the same task at once.
	CycleLock    bool          `envconfig:"LIFECYCLE_CYCLE_LOCK" default:"true"`
	CycleLockTTL time.Duration `envconfig:"LIFECYCLE_CYCLE_LOCK_TTL" default:"30m" validate:"gt=0"`

	// SaleEndingDedup limits the ending-tomorrow alert to once per sale per day.
	SaleEndingDedup bool `envconfig:"LIFECYCLE_SALE_ENDING_DEDUP" default:"false"`
}

// Location resolves Timezone. The validator has already checked the name,
// so the UTC fallback only covers zero-value configs built in tests.
func (c LifecycleConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil || c.Timezone == "" {
		return time.UTC
	}
	return loc
}

// ObservabilityConfig holds metrics and ops-server settings.
type ObservabilityConfig struct {
	MetricsBackend  string `envconfig:"METRICS_BACKEND" default:"prometheus" validate:"oneof=prometheus cloudwatch none"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Storefront"`
	OpsAddr         string `envconfig:"OPS_ADDR" default:":9090"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	// ErrDotenv indicates an explicitly requested dotenv file could not be read.
	ErrDotenv ConfigErrorType = "DOTENV_FAILED"
)
