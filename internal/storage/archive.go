package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/coldbell/walletrank/backend/internal/model"
)

// BatchRun summarises one orchestrator batch.
type BatchRun struct {
	ID                  string `json:"id"`
	StartedAt           int64  `json:"started_at"`
	FinishedAt          int64  `json:"finished_at"`
	Transactions        int    `json:"transactions"`
	Trades              int    `json:"trades"`
	Wallets             int    `json:"wallets"`
	Aggregated          int    `json:"aggregated"`
	AggregationFailures int    `json:"aggregation_failures"`
	StoreFailures       int    `json:"store_failures"`
	Ranked              int    `json:"ranked"`
	MaxSlot             uint64 `json:"max_slot"`
}

// SaveBatch records the run and upserts every stored snapshot in one transaction.
func (s *Store) SaveBatch(ctx context.Context, run BatchRun, snapshots []model.WalletMetrics) error {
	err := s.WithTx(ctx, func(tx *Tx) error {
		if err := upsertSnapshotsTx(ctx, tx, run.ID, snapshots); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO batch_runs (
				id, started_at, finished_at, transactions, trades, wallets,
				aggregated, aggregation_failures, store_failures, ranked, max_slot
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, run.ID, run.StartedAt, run.FinishedAt, run.Transactions, run.Trades, run.Wallets,
			run.Aggregated, run.AggregationFailures, run.StoreFailures, run.Ranked, int64(run.MaxSlot)); err != nil {
			return fmt.Errorf("insert batch run: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sync_state (id, last_slot, last_batch_id, updated_at)
			VALUES (1, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				last_slot = GREATEST(sync_state.last_slot, excluded.last_slot),
				last_batch_id = excluded.last_batch_id,
				updated_at = excluded.updated_at
		`, int64(run.MaxSlot), run.ID, run.FinishedAt); err != nil {
			return fmt.Errorf("upsert sync state: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: save batch %s: %w", model.ErrStore, run.ID, err)
	}
	return nil
}

// SaveSnapshot upserts a single wallet outside of a batch.
func (s *Store) SaveSnapshot(ctx context.Context, batchID string, m model.WalletMetrics) error {
	err := s.WithTx(ctx, func(tx *Tx) error {
		return upsertSnapshotsTx(ctx, tx, batchID, []model.WalletMetrics{m})
	})
	if err != nil {
		return fmt.Errorf("%w: save snapshot %s: %w", model.ErrStore, m.Address, err)
	}
	return nil
}

func upsertSnapshotsTx(ctx context.Context, tx *Tx, batchID string, snapshots []model.WalletMetrics) error {
	if len(snapshots) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO wallet_metrics (
			address, total_profit_loss, win_rate, avg_trade_size, trade_count, last_updated, batch_id
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			total_profit_loss = excluded.total_profit_loss,
			win_rate = excluded.win_rate,
			avg_trade_size = excluded.avg_trade_size,
			trade_count = excluded.trade_count,
			last_updated = excluded.last_updated,
			batch_id = excluded.batch_id
		WHERE excluded.last_updated >= wallet_metrics.last_updated
	`)
	if err != nil {
		return fmt.Errorf("prepare snapshot upsert: %w", err)
	}
	defer stmt.Close()

	for _, m := range snapshots {
		if _, err := stmt.ExecContext(ctx,
			m.Address, m.TotalProfitLoss, m.WinRate, m.AvgTradeSize, int64(m.TradeCount), m.LastUpdated, batchID,
		); err != nil {
			return fmt.Errorf("upsert snapshot %s: %w", m.Address, err)
		}
	}
	return nil
}

// TopWallets returns archived snapshots updated at or after since, in leaderboard order.
func (s *Store) TopWallets(ctx context.Context, limit int, since int64) ([]model.WalletMetrics, error) {
	if limit <= 0 {
		return []model.WalletMetrics{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT address, total_profit_loss, win_rate, avg_trade_size, trade_count, last_updated
		FROM wallet_metrics
		WHERE last_updated >= ?
		ORDER BY total_profit_loss DESC, win_rate DESC, trade_count DESC, address ASC
		LIMIT ?
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query top wallets: %w", model.ErrStore, err)
	}
	defer rows.Close()

	out := make([]model.WalletMetrics, 0, limit)
	for rows.Next() {
		m, err := scanWalletMetrics(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan wallet: %w", model.ErrStore, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate top wallets: %w", model.ErrStore, err)
	}
	return out, nil
}

func (s *Store) GetWallet(ctx context.Context, address string) (model.WalletMetrics, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT address, total_profit_loss, win_rate, avg_trade_size, trade_count, last_updated
		FROM wallet_metrics
		WHERE address = ?
	`, address)

	m, err := scanWalletMetrics(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.WalletMetrics{}, model.ErrNotFound
	}
	if err != nil {
		return model.WalletMetrics{}, fmt.Errorf("%w: get wallet %s: %w", model.ErrStore, address, err)
	}
	return m, nil
}

func (s *Store) LatestBatchRun(ctx context.Context) (BatchRun, error) {
	var (
		run     BatchRun
		maxSlot int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, transactions, trades, wallets,
			aggregated, aggregation_failures, store_failures, ranked, max_slot
		FROM batch_runs
		ORDER BY finished_at DESC
		LIMIT 1
	`).Scan(
		&run.ID, &run.StartedAt, &run.FinishedAt, &run.Transactions, &run.Trades, &run.Wallets,
		&run.Aggregated, &run.AggregationFailures, &run.StoreFailures, &run.Ranked, &maxSlot,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return BatchRun{}, model.ErrNotFound
	}
	if err != nil {
		return BatchRun{}, fmt.Errorf("%w: latest batch run: %w", model.ErrStore, err)
	}
	run.MaxSlot = uint64(maxSlot)
	return run, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWalletMetrics(row rowScanner) (model.WalletMetrics, error) {
	var (
		m          model.WalletMetrics
		tradeCount int64
	)
	if err := row.Scan(&m.Address, &m.TotalProfitLoss, &m.WinRate, &m.AvgTradeSize, &tradeCount, &m.LastUpdated); err != nil {
		return model.WalletMetrics{}, err
	}
	m.TradeCount = uint64(tradeCount)
	return m, nil
}
