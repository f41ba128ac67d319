package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"momofeed/internal/cache"
	"momofeed/internal/config"
	"momofeed/internal/devserver"
	"momofeed/internal/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)
	boot := log.Component(logger, "devserver")

	ctx := context.Background()

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		boot.Fatal().Err(err).Msg("failed to connect redis")
	}

	var (
		backend devserver.Backend
		mem     *devserver.MemoryBackend
	)
	switch cfg.Storage.Driver {
	case "minio":
		minioBackend, err := devserver.NewMinioBackend(cfg.Storage, cfg.Moderation.SlotTTL)
		if err != nil {
			boot.Fatal().Err(err).Msg("failed to init minio backend")
		}
		if err := minioBackend.EnsureBucket(ctx); err != nil {
			boot.Warn().Err(err).Msg("ensure bucket failed")
		}
		backend = minioBackend
	case "memory":
		mem = devserver.NewMemoryBackend(cfg.Storage.PublicBaseURL, cfg.Moderation.SlotTTL, cfg.Moderation.AutoDelay, logger)
		backend = mem
	default:
		boot.Fatal().Str("driver", cfg.Storage.Driver).Msg("unknown storage driver")
	}

	statusCache := devserver.NewStatusCache(redisClient, logger)
	handlerSet := devserver.NewHandlerSet(logger, cfg, backend, statusCache)
	httpServer := devserver.NewHTTPServer(cfg, logger, handlerSet, mem)

	sweeper := devserver.NewSweeper(mem, logger)
	if err := sweeper.Start(); err != nil {
		boot.Error().Err(err).Msg("sweeper start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			boot.Fatal().Err(err).Msg("devserver failed")
		}
	}()

	waitForShutdown(boot, httpServer, sweeper, redisClient)
}

func waitForShutdown(logger zerolog.Logger, srv *devserver.HTTPServer, sweeper *devserver.Sweeper, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	sweeper.Stop()

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("redis close error")
		}
	}

	logger.Info().Msg("devserver exited cleanly")
}
