// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC as the process timezone. Business-local time comes from
//     LIFECYCLE_TIMEZONE instead of the host setting.
//  2. Load dotenv files via godotenv (the default .env is optional).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Populate BuildInfo from linker-injected variables.
//  5. Validate the struct using go-playground/validator.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is a diagnostic error type returned by LoadConfig.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// LoadConfig loads and validates the configuration. With no arguments the
// working directory's .env is loaded if present. Explicit files must exist.
// godotenv never overrides variables already set in the environment.
func LoadConfig(envFiles ...string) (*Config, error) {
	time.Local = time.UTC

	if len(envFiles) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, &ConfigError{Type: ErrDotenv, Message: "failed to parse .env", Err: err}
		}
	} else if err := godotenv.Load(envFiles...); err != nil {
		return nil, &ConfigError{Type: ErrDotenv, Message: fmt.Sprintf("failed to load %v", envFiles), Err: err}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.Build = NewBuildInfo()

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs the struct validation rules. It is exported so that
// programmatically built configs (tests, the job-runner) get the same checks.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}
	if cfg.Database.MinConns > cfg.Database.MaxConns {
		return &ConfigError{
			Type:    ErrValidation,
			Message: fmt.Sprintf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", cfg.Database.MinConns, cfg.Database.MaxConns),
		}
	}
	switch {
	case cfg.Notify.Transport == "sqs" && cfg.Notify.NotificationQueue == "":
		return &ConfigError{Type: ErrValidation, Message: "SQS_NOTIFICATIONS is required when NOTIFY_TRANSPORT=sqs"}
	case cfg.Notify.Transport == "kafka" && len(cfg.Notify.KafkaBrokers) == 0:
		return &ConfigError{Type: ErrValidation, Message: "KAFKA_BROKERS is required when NOTIFY_TRANSPORT=kafka"}
	case cfg.Lifecycle.CooldownStore == "postgres" && cfg.Lifecycle.CooldownPath != "":
		return &ConfigError{Type: ErrValidation, Message: "LIFECYCLE_COOLDOWN_PATH cannot be combined with LIFECYCLE_COOLDOWN_STORE=postgres"}
	}
	return nil
}
