package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"opsdesk/internal/audit"
	"opsdesk/internal/cache"
	"opsdesk/internal/config"
	"opsdesk/internal/database"
	"opsdesk/internal/handlers"
	"opsdesk/internal/jobs"
	"opsdesk/internal/log"
	"opsdesk/internal/ratelimit"
	"opsdesk/internal/repository"
	"opsdesk/internal/server"
	"opsdesk/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)

	ctx := context.Background()

	if cfg.Postgres.AutoMigrate {
		if err := database.Migrate(ctx, cfg.Postgres.DSN); err != nil {
			logger.Fatal().Err(err).Msg("failed to apply migrations")
		}
	}

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	var recorder audit.Recorder
	if cfg.Audit.Stream != "" {
		recorder = audit.NewStreamRecorder(redisClient, cfg.Audit.Stream, logger)
	} else {
		recorder = audit.NewStoreRecorder(repository.NewAuditRepository(dbPool), logger)
	}

	authService := service.NewAuthService(
		repository.NewUserRepository(dbPool),
		repository.NewSessionRepository(dbPool),
		cache.NewChallengeStore(redisClient),
		ratelimit.NewLimiter(redisClient, cfg.RateLimit.Window, cfg.RateLimit.MaxAttempts),
		recorder,
		cfg,
		logger,
	)
	shareService := service.NewShareLinkService(
		repository.NewShareLinkRepository(dbPool),
		recorder,
		cfg,
		logger,
	)

	handlerSet := handlers.NewHandlerSet(logger, cfg, authService, shareService,
		handlers.HealthCheck{Name: "postgres", Ping: dbPool.Ping},
		handlers.HealthCheck{Name: "redis", Ping: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}},
	)
	httpServer, err := server.NewHTTPServer(cfg, logger, handlerSet)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build http server")
	}

	scheduler := jobs.NewScheduler(redisClient, cfg.Audit.Stream, cfg.Audit.ArchiveCron, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, dbPool, redisClient)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	scheduler.Stop(shutdownCtx)

	db.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
