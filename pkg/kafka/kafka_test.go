package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memWriter) Close() error { return nil }

type memReader struct {
	in        chan kafka.Message
	mu        sync.Mutex
	committed []kafka.Message
}

func (r *memReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case km := <-r.in:
		return km, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *memReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

func (r *memReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *memReader) Close() error { return nil }

type countingHandler struct {
	topic string
	fails int
	calls int
	last  []byte
}

func (h *countingHandler) Topic() string { return h.topic }

func (h *countingHandler) Handle(_ context.Context, b []byte) error {
	h.calls++
	h.last = b
	if h.calls <= h.fails {
		return errors.New("transient")
	}
	return nil
}

// blockingHandler runs until its context ends.
type blockingHandler struct{ started chan struct{} }

func (h *blockingHandler) Topic() string { return "jobs" }

func (h *blockingHandler) Handle(ctx context.Context, _ []byte) error {
	close(h.started)
	<-ctx.Done()
	return ctx.Err()
}

func TestProducerEncodesJSONAndBatches(t *testing.T) {
	w := &memWriter{}
	p := NewProducerWithWriter(w, "gzip")

	require.NoError(t, p.Publish(context.Background(), "rankings", []byte("AAPL"), map[string]int{"n": 1}))
	require.NoError(t, p.PublishBatch(context.Background(), "rankings", []Message{
		{Key: []byte("A"), Value: "raw"},
		{Key: []byte("B"), Value: []byte("bytes")},
	}))

	require.Len(t, w.msgs, 3)
	var decoded map[string]int
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, 1, decoded["n"])
	assert.Equal(t, "rankings", w.msgs[0].Topic)
	assert.Equal(t, "raw", string(w.msgs[1].Value))
	assert.Equal(t, "bytes", string(w.msgs[2].Value))
}

func TestProducerSurfacesWriteError(t *testing.T) {
	p := NewProducerWithWriter(&memWriter{err: errors.New("broker down")}, "gzip")
	assert.Error(t, p.Publish(context.Background(), "t", nil, "x"))
}

func newTestConsumer(t *testing.T, h MessageHandler, dlq *memWriter) (*Consumer, *memReader) {
	t.Helper()
	c, err := NewConsumer(
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(2, time.Millisecond, 2*time.Millisecond),
	)
	require.NoError(t, err)
	c.RegisterHandler(h)
	r := &memReader{in: make(chan kafka.Message, 4)}
	c.readers[h.Topic()] = r
	c.newReader = func(string) messageReader { return r }
	if dlq != nil {
		c.dlq = dlq
		c.cfg.DLQTopic = "jobs.dlq"
	}
	return c, r
}

func TestConsumerRetriesThenCommits(t *testing.T) {
	h := &countingHandler{topic: "jobs", fails: 2}
	c, r := newTestConsumer(t, h, nil)

	c.process(context.Background(), "jobs", kafka.Message{Value: []byte(`{}`), Offset: 7})

	assert.Equal(t, 3, h.calls)
	require.Len(t, r.committed, 1)
	assert.Equal(t, int64(7), r.committed[0].Offset)
}

func TestConsumerExhaustedGoesToDLQ(t *testing.T) {
	h := &countingHandler{topic: "jobs", fails: 100}
	dlq := &memWriter{}
	c, r := newTestConsumer(t, h, dlq)

	c.process(context.Background(), "jobs", kafka.Message{Value: []byte("bad"), Offset: 3})

	assert.Equal(t, 3, h.calls)
	require.Len(t, dlq.msgs, 1)
	assert.Equal(t, "jobs.dlq", dlq.msgs[0].Topic)
	assert.Equal(t, "source_topic", dlq.msgs[0].Headers[0].Key)
	assert.Equal(t, "jobs", string(dlq.msgs[0].Headers[0].Value))
	assert.Len(t, r.committed, 1)
}

// rejectingHandler refuses every message as invalid.
type rejectingHandler struct{ calls int }

func (h *rejectingHandler) Topic() string { return "jobs" }

func (h *rejectingHandler) Handle(context.Context, []byte) error {
	h.calls++
	return &HookError{Code: "ERR_VALIDATION", Err: errors.New("no primaries")}
}

func TestConsumerRejectedMessageSkipsRetries(t *testing.T) {
	h := &rejectingHandler{}
	dlq := &memWriter{}
	c, r := newTestConsumer(t, h, dlq)

	c.process(context.Background(), "jobs", kafka.Message{Value: []byte(`{}`), Offset: 11})

	assert.Equal(t, 1, h.calls)
	require.Len(t, dlq.msgs, 1)
	require.Len(t, r.committed, 1)
	assert.Equal(t, int64(11), r.committed[0].Offset)
}

func TestConsumerFetchLoopCommitsHandledMessages(t *testing.T) {
	h := &countingHandler{topic: "jobs"}
	c, r := newTestConsumer(t, h, nil)
	require.NoError(t, c.Start())

	r.in <- kafka.Message{Value: []byte(`{"a":1}`), Offset: 1}
	r.in <- kafka.Message{Value: []byte(`{"a":2}`), Offset: 2}

	assert.Eventually(t, func() bool { return r.commits() == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop(context.Background()))
}

func TestConsumerStopLeavesCancelledJobUncommitted(t *testing.T) {
	h := &blockingHandler{started: make(chan struct{})}
	dlq := &memWriter{}
	c, r := newTestConsumer(t, h, dlq)
	require.NoError(t, c.Start())

	r.in <- kafka.Message{Value: []byte("job"), Offset: 9}
	<-h.started

	require.NoError(t, c.Stop(context.Background()))
	assert.Zero(t, r.commits())
	assert.Empty(t, dlq.msgs)
}

func TestConsumerWithoutDLQDoesNotCommitFailures(t *testing.T) {
	h := &countingHandler{topic: "jobs", fails: 100}
	c, r := newTestConsumer(t, h, nil)

	c.process(context.Background(), "jobs", kafka.Message{Value: []byte("bad")})
	assert.Empty(t, r.committed)
}

func TestHookChainRejectsEmptyPayload(t *testing.T) {
	h := &countingHandler{topic: "jobs"}
	c, _ := newTestConsumer(t, h, nil)
	var seen []error
	c.WithConsumerHook(NewHookChain(
		TraceHook(),
		RejectEmptyHook(),
		HookFuncs{Err: func(_ context.Context, _ string, _ kafka.Message, _ []byte, err error) { seen = append(seen, err) }},
	))

	c.process(context.Background(), "jobs", kafka.Message{})

	assert.Zero(t, h.calls)
	require.NotEmpty(t, seen)
	var he *HookError
	assert.True(t, errors.As(seen[0], &he))
	assert.Equal(t, "ERR_VALIDATION", he.Code)
}

func TestTraceHookPropagatesHeader(t *testing.T) {
	km := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc")}}}
	ctx, _, _, err := TraceHook().BeforeHandle(context.Background(), "jobs", km, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "abc", TraceIDFromContext(ctx))
}

func TestHookChainRecoversPanics(t *testing.T) {
	chain := NewHookChain(HookFuncs{
		Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
			panic("boom")
		},
	})
	_, _, _, err := chain.BeforeHandle(context.Background(), "jobs", kafka.Message{}, []byte("x"))
	var he *HookError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, "ERR_PANIC", he.Code)
}

func TestBackoffWithJitterBounds(t *testing.T) {
	for attempt := 1; attempt < 10; attempt++ {
		d := backoffWithJitter(10*time.Millisecond, 80*time.Millisecond, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 80*time.Millisecond)
	}
}

func TestRejectEmptyHookRejectsNonJSON(t *testing.T) {
	_, _, _, err := RejectEmptyHook().BeforeHandle(context.Background(), "jobs", kafka.Message{Offset: 4}, []byte("not json"))
	var he *HookError
	require.True(t, errors.As(err, &he))
	assert.Contains(t, he.Error(), "offset 4")

	_, _, _, err = RejectEmptyHook().BeforeHandle(context.Background(), "jobs", kafka.Message{}, []byte(`{"primary_symbols":["AAPL"]}`))
	assert.NoError(t, err)
}

func TestHeaderSkipsEmptyValues(t *testing.T) {
	km := kafka.Message{Headers: []kafka.Header{{Key: "kind", Value: nil}, {Key: "kind", Value: []byte("run")}}}
	assert.Equal(t, "run", Header(km, "kind"))
	assert.Empty(t, Header(km, "missing"))
}
