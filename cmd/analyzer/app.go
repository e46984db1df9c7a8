package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/coldbell/walletrank/backend/internal/cache"
	"github.com/coldbell/walletrank/backend/internal/config"
	"github.com/coldbell/walletrank/backend/internal/events"
	"github.com/coldbell/walletrank/backend/internal/ingestion"
	"github.com/coldbell/walletrank/backend/internal/logging"
	"github.com/coldbell/walletrank/backend/internal/metrics"
	"github.com/coldbell/walletrank/backend/internal/pipeline"
	"github.com/coldbell/walletrank/backend/internal/storage"
)

// app holds the dependencies shared by the analyzer commands. Close releases
// them in reverse order of acquisition.
type app struct {
	cfg     config.AnalyzerConfig
	logger  *slog.Logger
	cache   *cache.Store
	closers []func() error
}

func newApp(ctx context.Context) (*app, error) {
	bootstrapLogger := logging.Bootstrap(logging.ServiceAnalyzer)

	cfg, err := config.LoadAnalyzerConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, closeLogger, err := logging.New(logging.ServiceAnalyzer, cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, closeLogger)

	if source, sourceErr := config.CurrentConfigSource(); sourceErr == nil {
		logger.Info("configuration loaded", "phase", source.Phase, "path", source.Path, "loaded", source.Loaded)
	} else {
		bootstrapLogger.Warn("configuration source unavailable", "err", sourceErr)
	}

	store, err := cache.Open(ctx, cfg.Redis, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open cache: %w", err)
	}
	a.cache = store
	a.closers = append(a.closers, store.Close)
	return a, nil
}

// newPipeline wires the orchestrator. The archive and publisher are attached only
// when configured.
func (a *app) newPipeline(ctx context.Context, collector *metrics.Collector) (*pipeline.Service, error) {
	extractor, err := ingestion.NewSolanaExtractor(a.cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("init extractor: %w", err)
	}

	opts := []pipeline.Option{pipeline.WithMetrics(collector)}
	if a.cfg.DBDSN != "" {
		archive, err := storage.NewStore(ctx, a.cfg.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("open archive: %w", err)
		}
		a.closers = append(a.closers, archive.Close)
		opts = append(opts, pipeline.WithArchive(archive))
	}
	if len(a.cfg.KafkaBrokers) > 0 {
		publisher := events.NewKafkaPublisher(a.cfg.KafkaBrokers, a.cfg.KafkaTopic)
		a.closers = append(a.closers, publisher.Close)
		opts = append(opts, pipeline.WithPublisher(publisher))
	}

	return pipeline.New(a.cfg, extractor, a.cache, a.logger, opts...), nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.logger != nil {
			a.logger.Error("close failed", "err", err)
		}
	}
	a.closers = nil
}
