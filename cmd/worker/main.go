package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"opsdesk/internal/cache"
	"opsdesk/internal/config"
	"opsdesk/internal/database"
	"opsdesk/internal/log"
	"opsdesk/internal/queue"
	"opsdesk/internal/repository"
	"opsdesk/internal/storage"
	"opsdesk/internal/tasks"
)

func main() {
	cfg, err := config.LoadWorker()
	if err != nil {
		panic(err)
	}

	logger := log.NewWithLevel(cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer dbPool.Close()

	client, err := cache.NewRedisClient(ctx, config.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}

	processor := tasks.NewProcessor(
		repository.NewAuditRepository(dbPool),
		objectStore,
		client,
		tasks.Options{
			Stream:        cfg.Audit.Stream,
			ArchiveBucket: cfg.Audit.ArchiveBucket,
			StreamMaxAge:  cfg.Queues.StreamMaxAge,
		},
		logger,
	)
	consumer := queue.NewConsumer(
		client,
		cfg.Audit.Stream,
		cfg.Redis.Group,
		cfg.Redis.Consumer,
		cfg.Queues.ClaimInterval,
		logger,
		processor,
	)

	done := make(chan error, 1)
	go func() {
		done <- consumer.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			logger.Warn().Msg("consumer did not stop in time")
		}
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("consumer stopped unexpectedly")
		}
	}
}
