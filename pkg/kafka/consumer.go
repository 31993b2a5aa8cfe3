package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	applogger "CorrPull/pkg/logger"
)

// MessageHandler handles the messages of one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

type ConsumerOption func(*ConsumerConfig)

type ConsumerConfig struct {
	Brokers []string
	GroupID string
	// Workers bounds how many messages are handled at once across all topics.
	Workers    int
	RetryMax   int
	BackoffMin time.Duration
	BackoffMax time.Duration
	DLQTopic   string
	MinBytes   int
	MaxBytes   int
	Logger     *applogger.Logger
}

func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) { c.Brokers = brokers }
}

func WithConsumerGroupID(groupID string) ConsumerOption {
	return func(c *ConsumerConfig) { c.GroupID = groupID }
}

func WithConsumerWorkers(n int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if n > 0 {
			c.Workers = n
		}
	}
}

// WithConsumerRetry sets how many times a failed message is retried and the
// jittered exponential backoff range between attempts.
func WithConsumerRetry(retries int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.RetryMax = retries
		c.BackoffMin = backoffMin
		c.BackoffMax = backoffMax
	}
}

// WithConsumerDLQ routes exhausted messages to topic.
func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *ConsumerConfig) { c.DLQTopic = topic }
}

func WithConsumerFetch(minBytes, maxBytes int) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.MinBytes = minBytes
		c.MaxBytes = maxBytes
	}
}

func WithConsumerLogger(l *applogger.Logger) ConsumerOption {
	return func(c *ConsumerConfig) { c.Logger = l }
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads handler topics as one consumer group. An offset is committed
// once its message is handled or dead-lettered; a message interrupted by Stop
// stays uncommitted and is redelivered.
type Consumer struct {
	cfg       *ConsumerConfig
	l         *applogger.Logger
	handlers  map[string]MessageHandler
	readers   map[string]messageReader
	newReader func(topic string) messageReader
	dlq       MessageWriter
	hook      ConsumerHook
	metrics   *consumerMetrics
	sem       chan struct{}

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:    "corrpull",
		Workers:    1,
		RetryMax:   1,
		BackoffMin: 200 * time.Millisecond,
		BackoffMax: 5 * time.Second,
		MinBytes:   1,
		MaxBytes:   10e6,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka consumer: brokers are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = applogger.NewNop()
	}

	c := &Consumer{
		cfg:      cfg,
		l:        cfg.Logger,
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]messageReader),
		hook:     NoopHook{},
		metrics:  sharedConsumerMetrics(),
		sem:      make(chan struct{}, cfg.Workers),
	}
	c.newReader = func(topic string) messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    topic,
			GroupID:  cfg.GroupID,
			MinBytes: cfg.MinBytes,
			MaxBytes: cfg.MaxBytes,
		})
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Topic: cfg.DLQTopic, Balancer: &kafka.LeastBytes{}}
	}
	return c, nil
}

// RegisterHandler adds a handler; a second handler for the same topic is ignored.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	topic := h.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.l.Warn("kafka handler already registered", applogger.String("topic", topic))
		return
	}
	c.handlers[topic] = h
}

// WithConsumerHook replaces the lifecycle hook.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// Start opens one reader per registered topic and begins fetching.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return errors.New("kafka consumer: no handlers registered")
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	for topic := range c.handlers {
		r := c.newReader(topic)
		c.readers[topic] = r
		c.wg.Add(1)
		go c.fetchLoop(ctx, topic, r)
	}
	c.l.Info("kafka consumer started",
		applogger.Int("topics", len(c.handlers)),
		applogger.Int("workers", c.cfg.Workers),
		applogger.String("group_id", c.cfg.GroupID),
	)
	return nil
}

// Stop cancels fetching and in-flight handlers, then waits for them until ctx ends.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("kafka consumer stop: %w", ctx.Err())
		}

		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.l.Warn("kafka reader close failed", applogger.String("topic", topic), applogger.Error(cerr))
			}
		}
		if c.dlq != nil {
			if cerr := c.dlq.Close(); cerr != nil {
				c.l.Warn("kafka dlq close failed", applogger.Error(cerr))
			}
		}
		c.l.Info("kafka consumer stopped")
	})
	return err
}

func (c *Consumer) fetchLoop(ctx context.Context, topic string, r messageReader) {
	defer c.wg.Done()
	for {
		km, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.l.Error("kafka fetch failed", applogger.String("topic", topic), applogger.Error(err))
			if !sleepCtx(ctx, c.cfg.BackoffMax) {
				return
			}
			continue
		}

		select {
		case c.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		c.wg.Add(1)
		go func() {
			defer func() {
				<-c.sem
				c.wg.Done()
			}()
			c.process(ctx, topic, km)
		}()
	}
}

// process handles km with retries and settles its offset.
func (c *Consumer) process(ctx context.Context, topic string, km kafka.Message) {
	h, ok := c.handlers[topic]
	if !ok {
		return
	}
	start := time.Now()
	c.metrics.inFlight.WithLabelValues(topic).Inc()
	defer c.metrics.inFlight.WithLabelValues(topic).Dec()

	attempts, err := c.handleWithRetry(ctx, topic, h, km)
	result := "ok"
	switch {
	case err != nil && ctx.Err() != nil:
		c.metrics.observe(topic, "cancelled", time.Since(start))
		return
	case err != nil:
		result = "failed"
		c.l.Error("kafka message failed",
			applogger.String("topic", topic),
			applogger.Int("attempts", attempts),
			applogger.Error(err),
		)
		if !c.deadLetter(topic, km, err) {
			// leave uncommitted for redelivery
			c.metrics.observe(topic, result, time.Since(start))
			return
		}
		result = "dead_lettered"
	}

	c.commit(topic, km)
	c.metrics.observe(topic, result, time.Since(start))
}

func (c *Consumer) handleWithRetry(ctx context.Context, topic string, h MessageHandler, km kafka.Message) (attempts int, err error) {
	for attempts = 1; ; attempts++ {
		err = c.handleOnce(ctx, topic, h, km)
		if err == nil || attempts > c.cfg.RetryMax || ctx.Err() != nil {
			return attempts, err
		}
		var he *HookError
		if errors.As(err, &he) {
			// rejections are deterministic
			return attempts, err
		}
		if !sleepCtx(ctx, backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempts)) {
			return attempts, err
		}
	}
}

func (c *Consumer) handleOnce(ctx context.Context, topic string, h MessageHandler, km kafka.Message) (err error) {
	hctx, hmsg, data, err := c.hook.BeforeHandle(ctx, topic, km, km.Value)
	if err != nil {
		c.hook.OnError(ctx, topic, km, km.Value, err)
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
		c.hook.AfterHandle(hctx, topic, hmsg, data, err)
		if err != nil {
			c.hook.OnError(hctx, topic, hmsg, data, err)
		}
	}()
	return h.Handle(hctx, data)
}

// deadLetter reports whether km is safe to commit.
func (c *Consumer) deadLetter(topic string, km kafka.Message, cause error) bool {
	if c.dlq == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Topic: c.cfg.DLQTopic,
		Key:   km.Key,
		Value: km.Value,
		Time:  time.Now(),
		Headers: slices.Concat([]kafka.Header{
			{Key: "source_topic", Value: []byte(topic)},
			{Key: "error", Value: []byte(cause.Error())},
		}, km.Headers),
	})
	if err != nil {
		c.l.Error("kafka dlq write failed", applogger.String("dlq_topic", c.cfg.DLQTopic), applogger.Error(err))
		return false
	}
	return true
}

func (c *Consumer) commit(topic string, km kafka.Message) {
	r := c.readers[topic]
	if r == nil {
		return
	}
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = r.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.l.Error("kafka commit failed", applogger.String("topic", topic), applogger.Error(err))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// backoffWithJitter doubles from lo per attempt, caps at hi and removes up to half as jitter.
func backoffWithJitter(lo, hi time.Duration, attempt int) time.Duration {
	if lo <= 0 {
		lo = 50 * time.Millisecond
	}
	if hi < lo {
		hi = lo
	}
	d := hi
	if attempt < 31 {
		if exp := lo << (attempt - 1); exp > 0 && exp < hi {
			d = exp
		}
	}
	return d - rand.N(d/2+1)
}

type consumerMetrics struct {
	handled  *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
}

var sharedConsumerMetrics = sync.OnceValue(func() *consumerMetrics {
	return &consumerMetrics{
		handled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "corrpull_kafka_consumer_messages_total",
			Help: "Consumed messages by outcome.",
		}, []string{"topic", "result"}),
		latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "corrpull_kafka_consumer_handle_seconds",
			Help:    "Time from first attempt to settlement, retries included.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800},
		}, []string{"topic"}),
		inFlight: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "corrpull_kafka_consumer_in_flight",
			Help: "Messages currently being handled.",
		}, []string{"topic"}),
	}
})

func (m *consumerMetrics) observe(topic, result string, d time.Duration) {
	m.handled.WithLabelValues(topic, result).Inc()
	m.latency.WithLabelValues(topic).Observe(d.Seconds())
}
