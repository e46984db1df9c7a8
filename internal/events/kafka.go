package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coldbell/walletrank/backend/internal/model"
	"github.com/segmentio/kafka-go"
)

const LeaderboardUpdated = "leaderboard.updated"

// LeaderboardEvent is published once per batch after the ranked list is stored.
type LeaderboardEvent struct {
	Type        string                `json:"type"`
	BatchID     string                `json:"batch_id"`
	GeneratedAt int64                 `json:"generated_at"`
	Wallets     []model.WalletMetrics `json:"wallets"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
	now    func() time.Time
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return newKafkaPublisher(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	})
}

func newKafkaPublisher(writer messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, now: time.Now}
}

func (p *KafkaPublisher) PublishLeaderboard(ctx context.Context, batchID string, ranked []model.WalletMetrics) error {
	if ranked == nil {
		ranked = []model.WalletMetrics{}
	}
	now := p.now()
	payload, err := json.Marshal(LeaderboardEvent{
		Type:        LeaderboardUpdated,
		BatchID:     batchID,
		GeneratedAt: now.Unix(),
		Wallets:     ranked,
	})
	if err != nil {
		return fmt.Errorf("%w: encode leaderboard event: %w", model.ErrSerialization, err)
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(batchID),
		Value: payload,
		Time:  now,
	}); err != nil {
		return fmt.Errorf("publish leaderboard event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
