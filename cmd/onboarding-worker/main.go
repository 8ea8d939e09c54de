package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/onboarding-enforcer/api"
	"github.com/angelmondragon/onboarding-enforcer/api/controllers"
	"github.com/angelmondragon/onboarding-enforcer/api/routes"
	"github.com/angelmondragon/onboarding-enforcer/internal/candidates"
	"github.com/angelmondragon/onboarding-enforcer/internal/deadlines"
	"github.com/angelmondragon/onboarding-enforcer/internal/matches"
	"github.com/angelmondragon/onboarding-enforcer/internal/monitoring"
	"github.com/angelmondragon/onboarding-enforcer/internal/notifications"
	"github.com/angelmondragon/onboarding-enforcer/internal/reassignment"
	"github.com/angelmondragon/onboarding-enforcer/internal/sweep"
	"github.com/angelmondragon/onboarding-enforcer/pkg/businessdays"
	"github.com/angelmondragon/onboarding-enforcer/pkg/config"
	"github.com/angelmondragon/onboarding-enforcer/pkg/db"
	"github.com/angelmondragon/onboarding-enforcer/pkg/instance"
	"github.com/angelmondragon/onboarding-enforcer/pkg/logger"
	"github.com/angelmondragon/onboarding-enforcer/pkg/metrics"
	"github.com/angelmondragon/onboarding-enforcer/pkg/migrate"
	"github.com/angelmondragon/onboarding-enforcer/pkg/pubsub"
	"github.com/angelmondragon/onboarding-enforcer/pkg/redis"
)

const (
	serviceName     = "onboarding-worker"
	lockKeyFormat   = "onb:sweep:lock:%s"
	shutdownTimeout = 30 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "onboarding worker stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	instanceID := instance.GetID()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance_id": instanceID,
	})

	loc, err := cfg.Onboarding.Location()
	if err != nil {
		return err
	}
	calendar, err := businessdays.LoadCalendar(cfg.Onboarding.Holidays, cfg.Onboarding.HolidaysFile)
	if err != nil {
		return fmt.Errorf("load holiday calendar: %w", err)
	}
	calc, err := deadlines.NewCalculator(deadlines.Params{
		Calendar:        calendar,
		ApplicationDays: cfg.Onboarding.ApplicationWindowBusinessDays,
		OnboardingDays:  cfg.Onboarding.OnboardingWindowBusinessDays,
		ApproachingDays: cfg.Onboarding.ApproachingWindowBusinessDays,
		Location:        loc,
	})
	if err != nil {
		return fmt.Errorf("deadline calculator: %w", err)
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("run dev migrations: %w", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return fmt.Errorf("bootstrap redis: %w", err)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
	} else {
		logg.Warn(ctx, "redis not configured; deadline warnings de-duplicate per instance only")
	}

	sweepMetrics := metrics.NewSweepMetrics(prometheus.DefaultRegisterer)

	sender, closeSender, err := newSender(ctx, cfg, logg)
	if err != nil {
		return err
	}
	defer closeSender()

	templates, err := notifications.NewTemplateStore(loc, nil)
	if err != nil {
		return fmt.Errorf("notification templates: %w", err)
	}
	dispatcher, err := notifications.NewDispatcher(notifications.DispatcherParams{
		Logger:    logg,
		Templates: templates,
		Sender:    sender,
		Metrics:   sweepMetrics,
		QueueSize: cfg.Notifications.QueueSize,
		Workers:   cfg.Notifications.Workers,
	})
	if err != nil {
		return fmt.Errorf("notification dispatcher: %w", err)
	}
	dispatcher.Start()
	// Runs after the scheduler stops so in-flight sweeps can still enqueue.
	defer dispatcher.Close()

	repo := matches.NewRepository(dbClient.DB())
	matchService, err := matches.NewService(matches.ServiceParams{
		Logger:     logg,
		DB:         dbClient,
		Repo:       repo,
		Calculator: calc,
	})
	if err != nil {
		return fmt.Errorf("match service: %w", err)
	}

	engine, err := reassignment.NewEngine(reassignment.EngineParams{
		Logger:     logg,
		DB:         dbClient,
		Repo:       repo,
		Pool:       candidates.NewPool(dbClient.DB()),
		Notifier:   dispatcher,
		Calculator: calc,
		InstanceID: instanceID,
	})
	if err != nil {
		return fmt.Errorf("reassignment engine: %w", err)
	}

	// keep a nil *redis.Client from becoming a non-nil store
	var deduper *notifications.Deduper
	if redisClient != nil {
		deduper = notifications.NewDeduper(redisClient, cfg.Onboarding.WarningCooldown)
	} else {
		deduper = notifications.NewDeduper(nil, cfg.Onboarding.WarningCooldown)
	}

	var lock sweep.Lock
	if cfg.FeatureFlags.SingleSweeper {
		if redisClient == nil {
			return errors.New("single sweeper mode requires redis")
		}
		lock, err = sweep.NewRedisLock(redisClient, lockKey(cfg.App.Env), instanceID, 0)
		if err != nil {
			return fmt.Errorf("sweep lock: %w", err)
		}
	}

	scheduler, err := sweep.NewScheduler(sweep.Params{
		Logger:            logg,
		Store:             repo,
		Engine:            engine,
		Calculator:        calc,
		Notifier:          dispatcher,
		Deduper:           deduper,
		Metrics:           sweepMetrics,
		Lock:              lock,
		Interval:          cfg.Onboarding.SweepInterval(),
		StaleClaimTimeout: cfg.Onboarding.StaleClaimTimeout(),
		Concurrency:       cfg.Onboarding.SweepConcurrency,
		Warnings:          cfg.FeatureFlags.Warnings,
	})
	if err != nil {
		return fmt.Errorf("sweep scheduler: %w", err)
	}

	monitor, err := monitoring.NewService(monitoring.Params{Store: repo, Calculator: calc})
	if err != nil {
		return fmt.Errorf("monitoring service: %w", err)
	}

	var redisPinger controllers.Pinger
	if redisClient != nil {
		redisPinger = redisClient
	}
	router := routes.NewRouter(routes.RouterParams{
		Config:  cfg,
		Logger:  logg,
		DB:      dbClient,
		Redis:   redisPinger,
		Sweeper: scheduler,
		Monitor: monitor,
		Matches: matchService,
	})
	server := api.NewServer(cfg, router)

	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer scheduler.Stop()

	serverErr := make(chan error, 1)
	go func() {
		logg.Info(logg.WithField(ctx, "addr", server.Addr), "http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	logg.Info(ctx, "onboarding worker started")

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	logg.Info(ctx, "onboarding worker shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "http server shutdown", err)
	}
	return nil
}

// newSender publishes to Pub/Sub when a topic is configured and logs
// notifications otherwise.
func newSender(ctx context.Context, cfg *config.Config, logg *logger.Logger) (notifications.Sender, func(), error) {
	if !cfg.PubSub.Enabled() {
		logg.Warn(ctx, "no notification topic configured; notifications are logged only")
		return notifications.NewLogSender(logg), func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap pubsub: %w", err)
	}
	publisher := client.NotificationPublisher()
	sender, err := notifications.NewPubSubSender(publisher, logg)
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("pubsub sender: %w", err)
	}
	return sender, func() {
		// flushes anything still batched
		publisher.Stop()
		if err := client.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}, nil
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
