package repository

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CorrPull/internal/domain/models"
	pkgkafka "CorrPull/pkg/kafka"
)

type captureWriter struct {
	msgs []kafka.Message
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error { return nil }

func TestKafkaResultPublisherKeysBySymbol(t *testing.T) {
	w := &captureWriter{}
	pub := NewKafkaResultPublisher(pkgkafka.NewProducerWithWriter(w, "none"), "correlations.ranked")

	msgs := []models.RankingMessage{
		{RunID: "r1", Symbol: "SPY", Kind: models.KindSecurity, Positive: map[string][]models.CorrelatedCandidate{"2023": {{Symbol: "QQQ", Correlation: 0.9}}}},
		{RunID: "r1", Symbol: "GDP", Kind: models.KindFredSeries},
	}
	require.NoError(t, pub.PublishRankings(context.Background(), msgs))
	require.Len(t, w.msgs, 2)

	assert.Equal(t, "correlations.ranked", w.msgs[0].Topic)
	assert.Equal(t, []byte("SPY"), w.msgs[0].Key)
	assert.Equal(t, []byte("GDP"), w.msgs[1].Key)

	headers := map[string]string{}
	for _, h := range w.msgs[1].Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, map[string]string{"run_id": "r1", "kind": string(models.KindFredSeries)}, headers)

	var decoded models.RankingMessage
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, "QQQ", decoded.Positive["2023"][0].Symbol)
}

func TestKafkaResultPublisherEmptyBatch(t *testing.T) {
	w := &captureWriter{}
	pub := NewKafkaResultPublisher(pkgkafka.NewProducerWithWriter(w, "none"), "t")
	require.NoError(t, pub.PublishRankings(context.Background(), nil))
	assert.Empty(t, w.msgs)
	assert.NoError(t, pub.Close())
}
