package repository

import (
	"context"
	"fmt"

	"CorrPull/internal/domain/models"
	domrepo "CorrPull/internal/domain/repository"
	pkgkafka "CorrPull/pkg/kafka"
)

// KafkaResultPublisher publishes one message per primary entity, keyed by symbol
// so every entity's history stays on one partition.
type KafkaResultPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

var _ domrepo.ResultPublisher = (*KafkaResultPublisher)(nil)

func NewKafkaResultPublisher(p *pkgkafka.Producer, topic string) *KafkaResultPublisher {
	return &KafkaResultPublisher{producer: p, topic: topic}
}

func (k *KafkaResultPublisher) PublishRankings(ctx context.Context, msgs []models.RankingMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	batch := make([]pkgkafka.Message, 0, len(msgs))
	for _, m := range msgs {
		batch = append(batch, pkgkafka.Message{
			Key:     []byte(m.Symbol),
			Value:   m,
			Headers: map[string]string{"run_id": m.RunID, "kind": string(m.Kind)},
		})
	}
	if err := k.producer.PublishBatch(ctx, k.topic, batch); err != nil {
		return fmt.Errorf("publish rankings: %w", err)
	}
	return nil
}

// Close is a no-op: the producer is shared with the log digest and closed by its owner.
func (k *KafkaResultPublisher) Close() error {
	return nil
}
