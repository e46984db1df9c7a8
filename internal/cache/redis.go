package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/coldbell/walletrank/backend/internal/config"
	"github.com/coldbell/walletrank/backend/internal/model"
	"github.com/redis/go-redis/v9"
)

const (
	snapshotKeyPrefix = "wallet:"
	rankedListKey     = "top_wallets"
	// rankIndexKey scores members by rank position, so ZRANGE returns leaderboard order.
	rankIndexKey = "wallet_rankings"
	// scoreIndexKey scores members by total profit/loss.
	scoreIndexKey = "wallet_scores"

	DefaultSnapshotTTL = time.Hour
)

// Store keeps wallet snapshots and the ranked leaderboard in Redis. Every key
// expires SnapshotTTL after its last write.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

func NewStore(client *redis.Client, ttl time.Duration, prefix string, logger *slog.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &Store{
		client: client,
		ttl:    ttl,
		prefix: prefix,
		logger: logger,
	}
}

// Open connects to cfg.URL and verifies the connection with PING.
func Open(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*Store, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: ping redis: %w", model.ErrStore, err)
	}

	return NewStore(client, cfg.SnapshotTTL, cfg.KeyPrefix, logger), nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %w", model.ErrStore, err)
	}
	return nil
}

// PutSnapshot overwrites the wallet's snapshot and its score-index entry in one transaction.
func (s *Store) PutSnapshot(ctx context.Context, m model.WalletMetrics) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("%w: encode snapshot %s: %w", model.ErrSerialization, m.Address, err)
	}

	scoreKey := s.key(scoreIndexKey)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.snapshotKey(m.Address), payload, s.ttl)
		pipe.ZAdd(ctx, scoreKey, redis.Z{Score: m.TotalProfitLoss, Member: m.Address})
		pipe.Expire(ctx, scoreKey, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: put snapshot %s: %w", model.ErrStore, m.Address, err)
	}
	return nil
}

// PutRankedList replaces the leaderboard blob and the rank index atomically.
func (s *Store) PutRankedList(ctx context.Context, ranked []model.WalletMetrics) error {
	if ranked == nil {
		ranked = []model.WalletMetrics{}
	}
	payload, err := json.Marshal(ranked)
	if err != nil {
		return fmt.Errorf("%w: encode ranked list: %w", model.ErrSerialization, err)
	}

	members := make([]redis.Z, 0, len(ranked))
	for i, m := range ranked {
		members = append(members, redis.Z{Score: float64(i), Member: m.Address})
	}

	rankKey := s.key(rankIndexKey)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(rankedListKey), payload, s.ttl)
		pipe.Del(ctx, rankKey)
		if len(members) > 0 {
			pipe.ZAdd(ctx, rankKey, members...)
			pipe.Expire(ctx, rankKey, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: put ranked list: %w", model.ErrStore, err)
	}
	return nil
}

// GetRankedList returns up to limit leaderboard entries. When the blob is gone
// or unreadable the list is rebuilt from the rank index, then from the score
// index, skipping wallets whose snapshot has expired.
func (s *Store) GetRankedList(ctx context.Context, limit int) ([]model.WalletMetrics, error) {
	if limit <= 0 {
		return []model.WalletMetrics{}, nil
	}

	raw, err := s.client.Get(ctx, s.key(rankedListKey)).Bytes()
	switch {
	case err == nil:
		var ranked []model.WalletMetrics
		decodeErr := json.Unmarshal(raw, &ranked)
		if decodeErr == nil {
			if ranked == nil {
				ranked = []model.WalletMetrics{}
			}
			if len(ranked) > limit {
				ranked = ranked[:limit]
			}
			return ranked, nil
		}
		s.logger.Debug("ranked list payload unreadable, rebuilding from index", "err", decodeErr)
	case errors.Is(err, redis.Nil):
	default:
		return nil, fmt.Errorf("%w: get ranked list: %w", model.ErrStore, err)
	}

	stop := int64(limit - 1)
	addresses, err := s.client.ZRange(ctx, s.key(rankIndexKey), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: read rank index: %w", model.ErrStore, err)
	}
	if len(addresses) == 0 {
		addresses, err = s.client.ZRevRange(ctx, s.key(scoreIndexKey), 0, stop).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: read score index: %w", model.ErrStore, err)
		}
	}

	return s.loadSnapshots(ctx, addresses)
}

// GetSnapshot reports false for absent, expired or unreadable snapshots.
func (s *Store) GetSnapshot(ctx context.Context, address string) (model.WalletMetrics, bool, error) {
	raw, err := s.client.Get(ctx, s.snapshotKey(address)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.WalletMetrics{}, false, nil
	}
	if err != nil {
		return model.WalletMetrics{}, false, fmt.Errorf("%w: get snapshot %s: %w", model.ErrStore, address, err)
	}

	m, ok := s.decodeSnapshot(address, raw)
	return m, ok, nil
}

func (s *Store) loadSnapshots(ctx context.Context, addresses []string) ([]model.WalletMetrics, error) {
	if len(addresses) == 0 {
		return []model.WalletMetrics{}, nil
	}

	cmds := make([]*redis.StringCmd, len(addresses))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, address := range addresses {
			cmds[i] = pipe.Get(ctx, s.snapshotKey(address))
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: load snapshots: %w", model.ErrStore, err)
	}

	out := make([]model.WalletMetrics, 0, len(addresses))
	for i, cmd := range cmds {
		raw, err := cmd.Bytes()
		if err != nil {
			continue
		}
		if m, ok := s.decodeSnapshot(addresses[i], raw); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) decodeSnapshot(address string, raw []byte) (model.WalletMetrics, bool) {
	var m model.WalletMetrics
	if err := json.Unmarshal(raw, &m); err != nil {
		s.logger.Debug("snapshot payload unreadable", "address", address, "err", err)
		return model.WalletMetrics{}, false
	}
	if m.Address != address {
		s.logger.Debug("snapshot payload address mismatch", "address", address, "payload_address", m.Address)
		return model.WalletMetrics{}, false
	}
	return m, true
}

func (s *Store) snapshotKey(address string) string {
	return s.key(snapshotKeyPrefix + address)
}

func (s *Store) key(name string) string {
	return s.prefix + name
}
