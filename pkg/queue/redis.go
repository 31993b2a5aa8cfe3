package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"CorrPull/pkg/logger"
)

type outcome int

const (
	outcomeDone outcome = iota
	outcomeRetry
	outcomeDead
	outcomeInterrupted
)

// promoteDue moves retries whose score is at or before ARGV[1] onto the main
// list. The move is atomic so several instances can share one queue.
var promoteDue = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, m in ipairs(due) do
	redis.call('ZREM', KEYS[1], m)
	redis.call('LPUSH', KEYS[2], m)
end
return #due
`)

// RedisQueue is a list-backed work queue. Failed messages wait in a sorted set
// until their retry time, exhausted ones land on a dead-letter list, and a
// message interrupted by Stop is pushed back to be picked up first.
type RedisQueue struct {
	l      *logger.Logger
	cfg    Config
	client redis.UniversalClient
	prefix string
	now    func() time.Time

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix namespaces every key the queue touches.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// NewRedisQueue creates a queue on client. Jobs must be registered before Start.
func NewRedisQueue(l *logger.Logger, cfg *Config, client redis.UniversalClient, opts ...RedisQueueOption) *RedisQueue {
	if l == nil {
		l = logger.NewNop()
	}
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 10 * time.Second
	}
	if c.StatusTTL <= 0 {
		c.StatusTTL = 24 * time.Hour
	}

	r := &RedisQueue{
		l:      l,
		cfg:    c,
		client: client,
		prefix: "corrpull:queue",
		now:    time.Now,
		jobs:   make(map[string]Job),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterJob adds job; a second job for the same type is ignored.
func (r *RedisQueue) RegisterJob(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.Type()]; ok {
		r.l.Warn("queue job already registered", logger.String("type", job.Type()))
		return
	}
	r.jobs[job.Type()] = job
}

// Start pings Redis and launches the workers and the retry promoter.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("queue already running")
	}

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := r.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.running = true

	for i := range r.cfg.Workers {
		r.wg.Add(1)
		go r.worker(ctx, i)
	}
	r.wg.Add(1)
	go r.promoter(ctx)

	r.l.Info("redis queue started",
		logger.Int("workers", r.cfg.Workers),
		logger.String("prefix", r.prefix),
	)
	return nil
}

// Stop cancels the workers and waits for them until ctx ends. Messages that
// were being handled are requeued.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.l.Info("redis queue stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue stop: %w", ctx.Err())
	}
}

// Enqueue stores payload as a new message of msgType and returns its ID.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload any) (string, error) {
	r.mu.RLock()
	running := r.running
	_, known := r.jobs[msgType]
	r.mu.RUnlock()
	if !running {
		return "", ErrNotRunning
	}
	if !known {
		return "", fmt.Errorf("no job registered for type %q", msgType)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := Message{ID: uuid.NewString(), Type: msgType, Payload: raw, EnqueuedAt: r.now().UTC()}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		r.writeStatus(ctx, p, msg, StateQueued, nil)
		p.LPush(ctx, r.queueKey(), data)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}
	return msg.ID, nil
}

// Status returns the last recorded state of message id.
func (r *RedisQueue) Status(ctx context.Context, id string) (*Status, error) {
	fields, err := r.client.HGetAll(ctx, r.statusKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("read status: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrUnknownMessage
	}
	return parseStatus(id, fields), nil
}

func parseStatus(id string, fields map[string]string) *Status {
	st := &Status{
		ID:    id,
		Type:  fields["type"],
		State: State(fields["state"]),
		Error: fields["error"],
	}
	st.Attempts, _ = strconv.Atoi(fields["attempts"])
	if ms, err := strconv.ParseInt(fields["updated_at"], 10, 64); err == nil {
		st.UpdatedAt = time.UnixMilli(ms).UTC()
	}
	return st
}

func (r *RedisQueue) writeStatus(ctx context.Context, c redis.Cmdable, msg Message, state State, cause error) {
	key := r.statusKey(msg.ID)
	errText := ""
	if cause != nil {
		errText = cause.Error()
	}
	c.HSet(ctx, key,
		"type", msg.Type,
		"state", string(state),
		"attempts", msg.Attempts,
		"error", errText,
		"updated_at", r.now().UnixMilli(),
	)
	c.Expire(ctx, key, r.cfg.StatusTTL)
}

func (r *RedisQueue) worker(ctx context.Context, id int) {
	defer r.wg.Done()
	r.l.Debug("queue worker started", logger.Int("worker_id", id))
	for ctx.Err() == nil {
		msg, ok := r.next(ctx)
		if !ok {
			continue
		}
		o, err := r.process(ctx, msg)
		r.settle(msg, o, err)
	}
}

func (r *RedisQueue) next(ctx context.Context) (Message, bool) {
	res, err := r.client.BRPop(ctx, time.Second, r.queueKey()).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			r.l.Error("queue pop failed", logger.Error(err))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}
		}
		return Message{}, false
	}
	if len(res) < 2 {
		return Message{}, false
	}

	var msg Message
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		r.l.Error("queue message undecodable, dropped", logger.Error(err))
		return Message{}, false
	}
	r.writeStatus(ctx, r.client, msg, StateRunning, nil)
	return msg, true
}

// process runs the job for msg and classifies the result.
func (r *RedisQueue) process(ctx context.Context, msg Message) (outcome, error) {
	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		return outcomeDead, fmt.Errorf("no job registered for type %q", msg.Type)
	}

	start := r.now()
	err := job.Handle(ctx, msg.Payload)
	switch {
	case err == nil:
		r.l.Info("queue message done",
			logger.String("id", msg.ID),
			logger.String("type", msg.Type),
			logger.Duration("elapsed_ms", r.now().Sub(start)),
		)
		return outcomeDone, nil
	case ctx.Err() != nil:
		return outcomeInterrupted, err
	}

	r.l.Error("queue message failed",
		logger.String("id", msg.ID),
		logger.String("type", msg.Type),
		logger.Int("attempt", msg.Attempts+1),
		logger.Error(err),
	)
	if msg.Attempts < r.cfg.RetryLimit {
		return outcomeRetry, err
	}
	return outcomeDead, err
}

// settle records the outcome. It runs on a fresh context so a stopping
// queue can still requeue its in-flight message.
func (r *RedisQueue) settle(msg Message, o outcome, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		switch o {
		case outcomeDone:
			r.writeStatus(ctx, p, msg, StateDone, nil)
			return nil
		case outcomeRetry:
			msg.Attempts++
			r.writeStatus(ctx, p, msg, StateRetrying, cause)
		case outcomeDead:
			msg.Attempts++
			r.writeStatus(ctx, p, msg, StateDead, cause)
		case outcomeInterrupted:
			r.writeStatus(ctx, p, msg, StateQueued, nil)
		}

		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		switch o {
		case outcomeRetry:
			at := r.now().Add(r.cfg.RetryDelay).UnixMilli()
			p.ZAdd(ctx, r.retryKey(), redis.Z{Score: float64(at), Member: data})
		case outcomeDead:
			p.LPush(ctx, r.deadLetterKey(), data)
		case outcomeInterrupted:
			p.RPush(ctx, r.queueKey(), data)
		}
		return nil
	})
	if err != nil {
		r.l.Error("queue settle failed",
			logger.String("id", msg.ID),
			logger.Int("outcome", int(o)),
			logger.Error(err),
		)
	}
}

func (r *RedisQueue) promoter(ctx context.Context) {
	defer r.wg.Done()
	interval := max(min(r.cfg.RetryDelay/2, 5*time.Second), 100*time.Millisecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.promote(ctx)
		}
	}
}

func (r *RedisQueue) promote(ctx context.Context) {
	now := strconv.FormatInt(r.now().UnixMilli(), 10)
	n, err := promoteDue.Run(ctx, r.client, []string{r.retryKey(), r.queueKey()}, now, 100).Int()
	if err != nil {
		if ctx.Err() == nil {
			r.l.Error("promote retries failed", logger.Error(err))
		}
		return
	}
	if n > 0 {
		r.l.Debug("retries promoted", logger.Int("count", n))
	}
}

func (r *RedisQueue) queueKey() string           { return r.prefix + ":messages" }
func (r *RedisQueue) retryKey() string           { return r.prefix + ":retry" }
func (r *RedisQueue) deadLetterKey() string      { return r.prefix + ":dlq" }
func (r *RedisQueue) statusKey(id string) string { return r.prefix + ":status:" + id }
