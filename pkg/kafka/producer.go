package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Message is one record to publish. Value is sent as is when it is a string
// or []byte and JSON-encoded otherwise.
type Message struct {
	Key     []byte
	Value   any
	Headers map[string]string
}

// Producer publishes JSON records and reports per-topic metrics.
type Producer struct {
	writer  MessageWriter
	codec   string
	metrics *producerMetrics
	now     func() time.Time
}

func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := defaultProducerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka producer: brokers are required")
	}

	var bal kafka.Balancer = &kafka.LeastBytes{}
	if cfg.HashByKey {
		bal = &kafka.Hash{}
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     bal,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  compressionCodec(cfg.Compression),
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		BatchSize:    cfg.BatchSize,
		BatchBytes:   int64(cfg.BatchBytes),
		BatchTimeout: cfg.BatchTimeout,
	}
	return NewProducerWithWriter(w, cfg.Compression), nil
}

// NewProducerWithWriter builds a producer on any MessageWriter.
func NewProducerWithWriter(w MessageWriter, codec string) *Producer {
	return &Producer{writer: w, codec: codec, metrics: sharedProducerMetrics(), now: time.Now}
}

// Publish sends a single record.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value any) error {
	return p.PublishBatch(ctx, topic, []Message{{Key: key, Value: value}})
}

// PublishBatch encodes every message first and writes them in one call, so an
// encoding failure publishes nothing.
func (p *Producer) PublishBatch(ctx context.Context, topic string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}

	start := p.now()
	out := make([]kafka.Message, len(messages))
	var size int
	for i, m := range messages {
		v, err := encodeValue(m.Value)
		if err != nil {
			return err
		}
		out[i] = kafka.Message{Topic: topic, Key: m.Key, Value: v, Time: start, Headers: headers(m.Headers)}
		size += len(v)
	}

	err := p.writer.WriteMessages(ctx, out...)
	p.metrics.observe(topic, p.codec, size, len(out), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("kafka write %s: %w", topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func headers(h map[string]string) []kafka.Header {
	if len(h) == 0 {
		return nil
	}
	out := make([]kafka.Header, 0, len(h))
	for k, v := range h {
		out = append(out, kafka.Header{Key: k, Value: []byte(v)})
	}
	return out
}

func encodeValue(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		b, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal value: %w", err)
		}
		return b, nil
	}
}

func compressionCodec(name string) kafka.Compression {
	switch name {
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Gzip
	}
}

type producerMetrics struct {
	messages *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// promauto registers globally, so every producer shares one set of collectors.
var sharedProducerMetrics = sync.OnceValue(func() *producerMetrics {
	return &producerMetrics{
		messages: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "corrpull_kafka_producer_messages_total",
			Help: "Messages written to Kafka by result.",
		}, []string{"topic", "compression", "result"}),
		bytes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "corrpull_kafka_producer_bytes_total",
			Help: "Encoded payload bytes written to Kafka.",
		}, []string{"topic", "compression"}),
		latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "corrpull_kafka_producer_publish_seconds",
			Help:    "Latency of one batch write.",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"}),
	}
})

func (m *producerMetrics) observe(topic, codec string, size, count int, dur time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.messages.WithLabelValues(topic, codec, result).Add(float64(count))
	m.bytes.WithLabelValues(topic, codec).Add(float64(size))
	m.latency.WithLabelValues(topic).Observe(dur.Seconds())
}
