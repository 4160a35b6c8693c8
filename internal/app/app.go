// Package app assembles the engine from configuration. The host process,
// the Lambda and the job-runner share this wiring so that all three run
// cycles against the same stack.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/metrics"
	"storefront/internal/notifications"
	"storefront/internal/scheduler"
	"storefront/internal/state"
)

// NewLogger creates a JSON slog.Logger at the given level.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// NewPool opens and pings the Postgres pool.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}
	pcfg.MaxConns = cfg.MaxConns
	pcfg.MinConns = cfg.MinConns
	pcfg.MaxConnLifetime = cfg.MaxConnLifetime
	pcfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("creating database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// Components is a wired engine plus the pieces the host process exposes.
type Components struct {
	Engine  *scheduler.Engine
	Breaker *notifications.BreakerPublisher
	// MetricsHandler is nil unless the Prometheus backend is selected.
	MetricsHandler http.Handler
	// DurableCooldown is set when cooldowns are shared through the database
	// and so outlive this process.
	DurableCooldown bool
	// WorkerID identifies this process in job_locks.
	WorkerID string

	closers []func() error
}

// Close releases the publisher and cooldown store, in reverse order of
// creation. The pool belongs to the caller.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build wires repositories, the notification stack, the recorder and the
// cooldown store into an Engine. A nil clock uses the system clock in the
// configured timezone.
func Build(ctx context.Context, cfg *config.Config, pool db.DBTX, clock scheduler.Clock, logger *slog.Logger) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = scheduler.NewSystemClock(cfg.Lifecycle.Location())
	}
	c := &Components{WorkerID: uuid.New().String()}

	var awsCfg *aws.Config
	loadAWS := func() (aws.Config, error) {
		if awsCfg != nil {
			return *awsCfg, nil
		}
		loaded, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return aws.Config{}, fmt.Errorf("loading AWS SDK config: %w", err)
		}
		awsCfg = &loaded
		return loaded, nil
	}

	pub, err := newPublisher(cfg, loadAWS, c, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Breaker = notifications.NewBreakerPublisher(pub, notifications.BreakerSettings{
		Name:        "notifications-" + cfg.Notify.Transport,
		MaxFailures: cfg.Notify.BreakerFailures,
		Cooldown:    cfg.Notify.BreakerCooldown,
	}, logger)

	recorder, err := newRecorder(cfg, loadAWS, c, logger)
	if err != nil {
		c.Close()
		return nil, err
	}

	var cooldowns scheduler.CooldownStore
	switch {
	case cfg.Lifecycle.CooldownStore == "postgres":
		if pool == nil {
			c.Close()
			return nil, errors.New("postgres cooldown store needs a database")
		}
		repo := db.NewCooldownRepository(pool)
		if n, err := repo.Prune(ctx, clock.Now(), cfg.Lifecycle.CooldownWindow); err != nil {
			logger.WarnContext(ctx, "failed to prune cooldown table", "error", err)
		} else if n > 0 {
			logger.InfoContext(ctx, "pruned expired cooldowns", "count", n)
		}
		cooldowns = repo
		c.DurableCooldown = true
	case cfg.Lifecycle.CooldownPath != "":
		path := cfg.Lifecycle.CooldownPath
		store, err := state.OpenPebbleCooldownStore(path)
		if err != nil {
			c.Close()
			return nil, err
		}
		if n, err := store.Prune(clock.Now(), cfg.Lifecycle.CooldownWindow); err != nil {
			logger.WarnContext(ctx, "failed to prune cooldown store", "error", err)
		} else if n > 0 {
			logger.InfoContext(ctx, "pruned expired cooldowns", "count", n)
		}
		c.closers = append(c.closers, store.Close)
		cooldowns = store
		logger.InfoContext(ctx, "using persistent cooldown store", "path", path)
	}

	var guard scheduler.CycleGuard
	if cfg.Lifecycle.CycleLock && pool != nil {
		guard = &lockGuard{
			locks:    db.NewJobLockRepository(pool),
			workerID: c.WorkerID,
			ttl:      cfg.Lifecycle.CycleLockTTL,
			logger:   logger,
		}
	}

	users := db.NewUserRepository(pool)
	gateway := notifications.NewGateway(c.Breaker, users, logger)

	c.Engine = scheduler.NewEngine(scheduler.EngineDeps{
		Orders:            db.NewOrderRepository(pool),
		Sales:             db.NewSaleRepository(pool),
		Products:          db.NewProductRepository(pool),
		Users:             users,
		Wishlists:         db.NewWishlistRepository(pool),
		Notifier:          gateway,
		Cooldowns:         cooldowns,
		Clock:             clock,
		Recorder:          recorder,
		Logger:            logger,
		Guard:             guard,
		DeliveryDays:      cfg.Lifecycle.DeliveryDays,
		LowStockThreshold: cfg.Lifecycle.LowStockThreshold,
		CooldownWindow:    cfg.Lifecycle.CooldownWindow,
		SaleEndingDedup:   cfg.Lifecycle.SaleEndingDedup,
		StopGrace:         cfg.Lifecycle.StopGracePeriod,
	})
	return c, nil
}

func newPublisher(cfg *config.Config, loadAWS func() (aws.Config, error), c *Components, logger *slog.Logger) (notifications.Publisher, error) {
	switch cfg.Notify.Transport {
	case "sqs":
		awsCfg, err := loadAWS()
		if err != nil {
			return nil, err
		}
		client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		return notifications.NewSQSPublisher(client, cfg.Notify.NotificationQueue, logger), nil
	case "kafka":
		kp := notifications.NewKafkaPublisher(cfg.Notify.KafkaBrokers, cfg.Notify.KafkaTopic)
		c.closers = append(c.closers, kp.Close)
		return kp, nil
	case "log":
		return notifications.NewLogPublisher(logger), nil
	default:
		return nil, fmt.Errorf("unknown notification transport %q", cfg.Notify.Transport)
	}
}

func newRecorder(cfg *config.Config, loadAWS func() (aws.Config, error), c *Components, logger *slog.Logger) (scheduler.CycleRecorder, error) {
	switch cfg.Observability.MetricsBackend {
	case "prometheus":
		p := metrics.NewPrometheusRecorder()
		c.MetricsHandler = p.Handler()
		return p, nil
	case "cloudwatch":
		awsCfg, err := loadAWS()
		if err != nil {
			return nil, err
		}
		client := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		return metrics.NewCloudWatchRecorder(client, cfg.Observability.MetricNamespace, logger), nil
	default:
		return metrics.Nop{}, nil
	}
}
