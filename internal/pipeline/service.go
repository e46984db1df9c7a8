package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/coldbell/walletrank/backend/internal/analysis"
	"github.com/coldbell/walletrank/backend/internal/config"
	"github.com/coldbell/walletrank/backend/internal/ingestion"
	"github.com/coldbell/walletrank/backend/internal/logging"
	"github.com/coldbell/walletrank/backend/internal/metrics"
	"github.com/coldbell/walletrank/backend/internal/model"
	"github.com/coldbell/walletrank/backend/internal/storage"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// SnapshotStore is where snapshots and the leaderboard are published.
type SnapshotStore interface {
	PutSnapshot(ctx context.Context, m model.WalletMetrics) error
	PutRankedList(ctx context.Context, ranked []model.WalletMetrics) error
}

// Archive keeps a durable copy of each batch.
type Archive interface {
	SaveBatch(ctx context.Context, run storage.BatchRun, snapshots []model.WalletMetrics) error
	SaveSnapshot(ctx context.Context, batchID string, m model.WalletMetrics) error
}

// Publisher announces each new leaderboard.
type Publisher interface {
	PublishLeaderboard(ctx context.Context, batchID string, ranked []model.WalletMetrics) error
}

// BatchResult describes one ProcessBatch call.
type BatchResult struct {
	ID                  string
	Processed           int
	Trades              int
	Wallets             int
	Aggregated          int
	AggregationFailures int
	StoreFailures       int
	Ranked              int
	Duration            time.Duration
}

type Option func(*Service)

func WithArchive(archive Archive) Option {
	return func(s *Service) { s.archive = archive }
}

func WithPublisher(publisher Publisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

func WithMetrics(collector *metrics.Collector) Option {
	return func(s *Service) { s.metrics = collector }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service runs the fetch, aggregate, rank and persist cycle.
type Service struct {
	cfg       config.AnalyzerConfig
	extractor ingestion.Extractor
	store     SnapshotStore
	archive   Archive
	publisher Publisher
	metrics   *metrics.Collector
	logger    *slog.Logger
	now       func() time.Time
	phase     atomic.Int32
}

func New(cfg config.AnalyzerConfig, extractor ingestion.Extractor, store SnapshotStore, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		cfg:       cfg,
		extractor: extractor,
		store:     store,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	s.metrics.SetPhase("", PhaseIdle.String())
	return s
}

func (s *Service) Phase() Phase {
	return Phase(s.phase.Load())
}

func (s *Service) setPhase(next Phase) {
	previous := Phase(s.phase.Swap(int32(next)))
	s.metrics.SetPhase(previous.String(), next.String())
}

// Run processes batches until ctx is cancelled. A failed batch is retried after
// RetryBackoff; a successful one waits UpdateInterval.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("analyzer started",
		"batch_size", s.cfg.BatchSize,
		"update_interval", s.cfg.UpdateInterval.String(),
		"leaderboard_cap", s.cfg.LeaderboardCap,
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("analyzer stopped")
			return nil
		case <-timer.C:
		}

		result, err := s.ProcessBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			s.logger.Error("batch failed", "batch_id", result.ID, "retry_in", s.cfg.RetryBackoff.String(), "err", err)
			timer.Reset(s.cfg.RetryBackoff)
			continue
		}
		timer.Reset(s.cfg.UpdateInterval)
	}
}

// ProcessBatch runs one cycle. Only extraction failures abort the batch; per
// wallet failures are logged, counted and leave the wallet out.
func (s *Service) ProcessBatch(ctx context.Context) (BatchResult, error) {
	started := s.now()
	result := BatchResult{ID: uuid.NewString()}
	log := logging.ForBatch(s.logger, result.ID)
	defer s.setPhase(PhaseIdle)

	s.setPhase(PhaseFetching)
	txs, err := s.extractor.FetchRecentTransactions(ctx, s.cfg.BatchSize)
	if err != nil {
		s.metrics.BatchFailures.Inc()
		if !errors.Is(err, model.ErrExtraction) {
			err = fmt.Errorf("%w: %w", model.ErrExtraction, err)
		}
		return result, err
	}
	result.Processed = len(txs)
	s.metrics.Transactions.Add(float64(len(txs)))

	s.setPhase(PhaseGrouping)
	groups := groupTrades(txs, s.extractor.DecodeTrade)
	result.Trades = groups.trades
	result.Wallets = len(groups.order)
	s.metrics.Trades.Add(float64(groups.trades))

	s.setPhase(PhaseAggregating)
	snapshots, failures := s.aggregate(groups, started)
	result.Aggregated = len(snapshots)
	result.AggregationFailures = failures
	s.metrics.WalletsAggregated.Add(float64(len(snapshots)))
	s.metrics.AggregationFailures.Add(float64(failures))

	s.setPhase(PhaseRanking)
	ranked := analysis.Rank(snapshots)

	s.setPhase(PhasePersisting)
	stored, storeFailures := s.persistSnapshots(ctx, ranked)
	result.StoreFailures = storeFailures

	// An empty batch keeps the previous leaderboard; its snapshots are still live.
	leaderboard := analysis.Top(stored, s.cfg.LeaderboardCap)
	if len(leaderboard) == 0 {
		log.Info("no snapshots stored, keeping previous leaderboard")
	} else if err := s.store.PutRankedList(ctx, leaderboard); err != nil {
		result.StoreFailures++
		s.metrics.WriteFailures.WithLabelValues(metrics.FailureRankedList).Inc()
		log.Error("ranked list write failed", "err", err)
	} else {
		result.Ranked = len(leaderboard)
		s.publish(ctx, result.ID, leaderboard)
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	result.Duration = s.now().Sub(started)
	s.archiveBatch(ctx, result, started, groups.maxSlot, stored)

	s.metrics.Batches.Inc()
	s.metrics.ObserveBatch(result.Duration)
	log.Info("batch processed",
		"transactions", result.Processed,
		"trades", result.Trades,
		"wallets", result.Wallets,
		"aggregated", result.Aggregated,
		"aggregation_failures", result.AggregationFailures,
		"store_failures", result.StoreFailures,
		"ranked", result.Ranked,
		"duration", result.Duration.String(),
	)
	return result, nil
}

// RefreshWallet recomputes one wallet from its own history and stores the snapshot.
func (s *Service) RefreshWallet(ctx context.Context, address string) (model.WalletMetrics, error) {
	txs, err := s.extractor.FetchWalletTransactions(ctx, address, s.cfg.WalletHistoryLimit)
	if err != nil {
		if !errors.Is(err, model.ErrExtraction) {
			err = fmt.Errorf("%w: %w", model.ErrExtraction, err)
		}
		return model.WalletMetrics{}, err
	}

	trades := make([]model.TradeRecord, 0, len(txs))
	for _, tx := range txs {
		trade, ok := s.extractor.DecodeTrade(tx)
		// history includes transactions where the wallet was not the fee payer
		if !ok || trade.WalletAddress != address {
			continue
		}
		trades = append(trades, trade)
	}

	snapshot, err := analysis.Aggregate(address, trades, s.now())
	if err != nil {
		return model.WalletMetrics{}, fmt.Errorf("%w: %w", model.ErrAggregation, err)
	}

	if err := s.store.PutSnapshot(ctx, snapshot); err != nil {
		s.metrics.WriteFailures.WithLabelValues(metrics.FailureSnapshot).Inc()
		return snapshot, err
	}

	if s.archive != nil {
		if err := s.archive.SaveSnapshot(ctx, "refresh", snapshot); err != nil {
			s.metrics.WriteFailures.WithLabelValues(metrics.FailureArchive).Inc()
			s.logger.Warn("archive snapshot failed", "address", address, "err", err)
		}
	}

	s.logger.Info("wallet refreshed", "address", address, "trades", len(trades), "total_profit_loss", snapshot.TotalProfitLoss)
	return snapshot, nil
}

func (s *Service) aggregate(groups tradeGroups, computedAt time.Time) ([]model.WalletMetrics, int) {
	results := make([]*model.WalletMetrics, len(groups.order))
	var failures atomic.Int64

	var g errgroup.Group
	g.SetLimit(max(s.cfg.AggregationWorkers, 1))
	for i, address := range groups.order {
		trades := groups.byWallet[address]
		g.Go(func() error {
			snapshot, err := analysis.Aggregate(address, trades, computedAt)
			if err != nil {
				failures.Add(1)
				s.logger.Warn("skip wallet", "address", address, "err", fmt.Errorf("%w: %w", model.ErrAggregation, err))
				return nil
			}
			results[i] = &snapshot
			return nil
		})
	}
	_ = g.Wait()

	snapshots := make([]model.WalletMetrics, 0, len(results))
	for _, snapshot := range results {
		if snapshot != nil {
			snapshots = append(snapshots, *snapshot)
		}
	}
	return snapshots, int(failures.Load())
}

// persistSnapshots writes ranked snapshots chunk by chunk. It returns the
// snapshots that were stored, still in rank order.
func (s *Service) persistSnapshots(ctx context.Context, ranked []model.WalletMetrics) ([]model.WalletMetrics, int) {
	chunkSize := max(s.cfg.ChunkSize, 1)
	written := make([]bool, len(ranked))
	failures := 0

	for start := 0; start < len(ranked); start += chunkSize {
		end := min(start+chunkSize, len(ranked))

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				if err := s.store.PutSnapshot(ctx, ranked[i]); err != nil {
					s.logger.Warn("snapshot write failed", "address", ranked[i].Address, "err", err)
					return nil
				}
				written[i] = true
				return nil
			})
		}
		_ = g.Wait()
	}

	stored := make([]model.WalletMetrics, 0, len(ranked))
	for i, ok := range written {
		if !ok {
			failures++
			continue
		}
		stored = append(stored, ranked[i])
	}
	if failures > 0 {
		s.metrics.WriteFailures.WithLabelValues(metrics.FailureSnapshot).Add(float64(failures))
	}
	return stored, failures
}

func (s *Service) publish(ctx context.Context, batchID string, leaderboard []model.WalletMetrics) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishLeaderboard(ctx, batchID, leaderboard); err != nil {
		s.metrics.WriteFailures.WithLabelValues(metrics.FailurePublish).Inc()
		s.logger.Warn("leaderboard publish failed", "batch_id", batchID, "err", err)
	}
}

func (s *Service) archiveBatch(ctx context.Context, result BatchResult, started time.Time, maxSlot uint64, stored []model.WalletMetrics) {
	if s.archive == nil {
		return
	}
	run := storage.BatchRun{
		ID:                  result.ID,
		StartedAt:           started.Unix(),
		FinishedAt:          started.Add(result.Duration).Unix(),
		Transactions:        result.Processed,
		Trades:              result.Trades,
		Wallets:             result.Wallets,
		Aggregated:          result.Aggregated,
		AggregationFailures: result.AggregationFailures,
		StoreFailures:       result.StoreFailures,
		Ranked:              result.Ranked,
		MaxSlot:             maxSlot,
	}
	if err := s.archive.SaveBatch(ctx, run, stored); err != nil {
		s.metrics.WriteFailures.WithLabelValues(metrics.FailureArchive).Inc()
		s.logger.Warn("archive batch failed", "batch_id", result.ID, "err", err)
	}
}
