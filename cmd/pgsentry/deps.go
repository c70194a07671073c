package main

import (
	"context"
	"fmt"
	"log/slog"

	"pgsentry/internal/alerting"
	"pgsentry/internal/api"
	"pgsentry/internal/auth"
	"pgsentry/internal/catalog"
	"pgsentry/internal/config"
	"pgsentry/internal/engine"
	"pgsentry/internal/executor"
	"pgsentry/internal/notification"
	"pgsentry/internal/queue"
	kafkaqueue "pgsentry/internal/queue/kafka"
	memoryqueue "pgsentry/internal/queue/memory"
	"pgsentry/internal/store"
	memorystor "pgsentry/internal/store/memory"
	postgresstor "pgsentry/internal/store/postgres"
	redisstor "pgsentry/internal/store/redis"
	"pgsentry/internal/target"
)

// dependencies holds the long-running services.
type dependencies struct {
	server *api.Server

	// worker is nil when notifications are disabled.
	worker *notification.Worker
}

// initDependencies creates and wires all services based on config.
// Returns the dependencies and a cleanup function.
func initDependencies(ctx context.Context, cfg *config.Config, cat *catalog.Catalog, logger *slog.Logger) (*dependencies, func(), error) {
	var (
		alertRepo    store.AlertRepository
		alertCache   store.AlertCache
		producer     queue.Producer
		consumer     queue.Consumer
		healthChecks = map[string]api.Pinger{}
		cleanupFuncs []func()
	)

	cleanup := func() {
		for i := len(cleanupFuncs) - 1; i >= 0; i-- {
			cleanupFuncs[i]()
		}
	}

	if cfg.Storage.UseMemory() {
		logger.Info("initializing in-memory storage")

		alertRepo = memorystor.NewAlertRepository()
		memCache := memorystor.NewAlertCache()
		alertCache = memCache
		cleanupFuncs = append(cleanupFuncs, func() { _ = memCache.Close() })

		if cfg.Notifications.Enabled {
			memQueue := memoryqueue.NewQueue(1000, logger)
			producer = memQueue
			consumer = memQueue
			cleanupFuncs = append(cleanupFuncs, func() { _ = memQueue.Close() })
		}
	} else {
		logger.Info("initializing production storage (PostgreSQL, Redis, Kafka)")

		db, err := postgresstor.NewDB(ctx, &cfg.Postgres)
		if err != nil {
			return nil, cleanup, err
		}
		cleanupFuncs = append(cleanupFuncs, db.Close)
		healthChecks["postgres"] = db

		if err := db.RunMigrations(ctx); err != nil {
			return nil, cleanup, err
		}
		logger.Info("database migrations completed")
		alertRepo = postgresstor.NewAlertRepository(db)

		redisCache, err := redisstor.NewAlertCache(&cfg.Redis)
		if err != nil {
			return nil, cleanup, err
		}
		alertCache = redisCache
		healthChecks["redis"] = redisCache
		cleanupFuncs = append(cleanupFuncs, func() { _ = redisCache.Close() })

		if cfg.Notifications.Enabled {
			kafkaProducer := kafkaqueue.NewProducer(&cfg.Kafka)
			producer = kafkaProducer
			cleanupFuncs = append(cleanupFuncs, func() { _ = kafkaProducer.Close() })

			kafkaConsumer := kafkaqueue.NewConsumer(&cfg.Kafka, logger)
			consumer = kafkaConsumer
			cleanupFuncs = append(cleanupFuncs, func() { _ = kafkaConsumer.Close() })
		}
	}

	registry := target.NewRegistry(cfg.TargetList())

	sshRunner, err := executor.NewSSHRunner(executor.SSHConfig{
		Timeout:             cfg.Execution.SSHTimeout,
		KnownHostsFile:      cfg.Execution.KnownHostsFile,
		ExposeTargetSecrets: cfg.Execution.ExposeTargetSecrets,
		TemplateVars:        cfg.Execution.TemplateVars,
	}, logger)
	if err != nil {
		return nil, cleanup, err
	}
	exec := executor.New(logger,
		executor.NewSQLRunner(cfg.Execution.SQLTimeout, logger),
		sshRunner,
	)

	actions := engine.NewActionEngine(cat, registry, exec, logger)
	views := engine.NewViewEngine(cat, registry, exec, logger)

	var (
		notifier alerting.Notifier
		worker   *notification.Worker
	)
	if cfg.Notifications.Enabled {
		sender, err := notification.NewSender(&cfg.Notifications, logger)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to create notification sender: %w", err)
		}
		notifier = notification.NewDispatcher(producer, cfg.Notifications.Severities, logger)
		worker = notification.NewWorker(consumer, sender, cfg.Notifications.From, logger)
	}

	tracker := alerting.NewTracker(alertRepo, alertCache, cat, registry, notifier, logger)

	server := api.NewServer(api.ServerDeps{
		Config:        &cfg.Server,
		Logger:        logger,
		Auth:          auth.NewAuthenticator(&cfg.Auth),
		HealthHandler: api.NewHealthHandler(healthChecks, logger),
		TargetHandler: api.NewTargetHandler(registry),
		ActionHandler: api.NewActionHandler(actions, logger),
		ViewHandler:   api.NewViewHandler(views, logger),
		AlertHandler:  api.NewAlertHandler(tracker, logger),
	})

	return &dependencies{server: server, worker: worker}, cleanup, nil
}
