package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/coldbell/walletrank/backend/internal/apiserver"
	"github.com/coldbell/walletrank/backend/internal/cache"
	"github.com/coldbell/walletrank/backend/internal/config"
	"github.com/coldbell/walletrank/backend/internal/logging"
	"github.com/coldbell/walletrank/backend/internal/storage"
	_ "github.com/joho/godotenv/autoload"
)

func main() {
	bootstrapLogger := logging.Bootstrap(logging.ServiceAPIServer)

	cfg, err := config.LoadAPIServerConfig()
	if err != nil {
		bootstrapLogger.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger, closeLogger, err := logging.New(logging.ServiceAPIServer, cfg.Log)
	if err != nil {
		bootstrapLogger.Error("failed to initialize logger", "err", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := closeLogger(); closeErr != nil {
			bootstrapLogger.Error("failed to close logger", "err", closeErr)
		}
	}()

	if source, sourceErr := config.CurrentConfigSource(); sourceErr == nil {
		logger.Info("configuration loaded", "phase", source.Phase, "path", source.Path, "loaded", source.Loaded)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("api-server exited with error", "err", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.APIServerConfig, logger *slog.Logger) error {
	store, err := cache.Open(ctx, cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close cache", "err", err)
		}
	}()

	var archive apiserver.Archive
	if cfg.DBDSN != "" {
		db, err := storage.NewStore(ctx, cfg.DBDSN)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				logger.Error("failed to close archive", "err", err)
			}
		}()
		archive = db
	}

	svc, err := apiserver.New(cfg, store, archive, logger)
	if err != nil {
		return fmt.Errorf("init api-server: %w", err)
	}
	return svc.Run(ctx)
}
