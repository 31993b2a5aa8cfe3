package logger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topics  []string
	batches [][]DigestEntry
}

func (p *capturePublisher) Publish(_ context.Context, topic string, _ []byte, value any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.batches = append(p.batches, value.([]DigestEntry))
	return nil
}

func TestCollectorFoldsDuplicateWarnings(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 10,
		Topic:          "log-digest",
		Publisher:      pub,
	})

	fields := map[string]any{"symbol": "XOM"}
	for i := 0; i < 5; i++ {
		c.AddLog("warn", "skipping pair", fields, "engine.go:10")
	}
	c.AddLog("warn", "other", nil, "engine.go:20")
	c.Close()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.batches, 1)
	assert.Equal(t, "log-digest", pub.topics[0])
	require.Len(t, pub.batches[0], 2)
	assert.Equal(t, 5, pub.batches[0][0].Count)
	assert.Equal(t, "skipping pair", pub.batches[0][0].Message)
}

func TestCollectorFlushesAtThreshold(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 2,
		Publisher:      pub,
	})

	c.AddLog("warn", "a", nil, "x:1")
	c.AddLog("warn", "b", nil, "x:2")
	c.AddLog("warn", "c", nil, "x:3")
	c.Close()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.batches, 2)
	assert.Len(t, pub.batches[0], 2)
	assert.Len(t, pub.batches[1], 1)
}

func TestLoggerWarnFeedsCollector(t *testing.T) {
	pub := &capturePublisher{}
	l := NewNop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Publisher: pub})

	for i := 0; i < 2; i++ {
		l.Warn("incompatible series", String("symbol", "AAPL"))
	}
	l.Info("not collected")
	l.RemoveCollector()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.batches, 1)
	require.Len(t, pub.batches[0], 1)
	assert.Equal(t, 2, pub.batches[0][0].Count)
	assert.Equal(t, "AAPL", pub.batches[0][0].Fields["symbol"])
}

func TestDigestKeyIgnoresFieldOrder(t *testing.T) {
	a := digestKey("warn", "m", map[string]any{"a": 1, "b": "x"}, "f:1")
	b := digestKey("warn", "m", map[string]any{"b": "x", "a": 1}, "f:1")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, digestKey("error", "m", map[string]any{"a": 1, "b": "x"}, "f:1"))
}

func TestCollectorCloseIsIdempotent(t *testing.T) {
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour})
	c.AddLog("warn", "x", nil, "f:1")
	c.Close()
	c.Close()
}
