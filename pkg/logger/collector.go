package logger

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"
)

// Publisher ships digests; *kafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value any) error
}

type CollectionConfig struct {
	TimeInterval time.Duration
	// CountThreshold is the number of distinct entries that forces an early flush.
	CountThreshold int
	Topic          string
	Publisher      Publisher
}

// DigestEntry counts identical warn or error events between two flushes.
type DigestEntry struct {
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	Caller    string         `json:"caller"`
	Count     int            `json:"count"`
	FirstSeen time.Time      `json:"first_seen"`
	LastSeen  time.Time      `json:"last_seen"`
}

// LogCollector folds repeated events so a run that skips thousands of pairs
// ships one entry per distinct cause. A single goroutine publishes batches in
// order; batches that find the send buffer full are dropped.
type LogCollector struct {
	cfg     CollectionConfig
	now     func() time.Time
	mu      sync.Mutex
	entries map[string]*DigestEntry
	batches chan []DigestEntry
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

func NewLogCollector(cfg *CollectionConfig) *LogCollector {
	c := &LogCollector{
		cfg:     *cfg,
		now:     time.Now,
		entries: make(map[string]*DigestEntry),
		batches: make(chan []DigestEntry, 4),
		done:    make(chan struct{}),
	}
	if c.cfg.TimeInterval <= 0 {
		c.cfg.TimeInterval = 30 * time.Second
	}
	if c.cfg.CountThreshold <= 0 {
		c.cfg.CountThreshold = 100
	}
	c.wg.Add(1)
	go c.run()
	return c
}

func (c *LogCollector) AddLog(level, message string, fields map[string]any, caller string) {
	now := c.now()
	key := digestKey(level, message, fields, caller)

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		e.Count++
		e.LastSeen = now
		return
	}
	c.entries[key] = &DigestEntry{
		Level:     level,
		Message:   message,
		Fields:    fields,
		Caller:    caller,
		Count:     1,
		FirstSeen: now,
		LastSeen:  now,
	}
	if len(c.entries) >= c.cfg.CountThreshold {
		c.flushLocked()
	}
}

func digestKey(level, message string, fields map[string]any, caller string) string {
	var b strings.Builder
	b.WriteString(level)
	b.WriteByte(0)
	b.WriteString(caller)
	b.WriteByte(0)
	b.WriteString(message)
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		fmt.Fprintf(&b, "\x00%s=%v", k, fields[k])
	}
	return b.String()
}

func (c *LogCollector) flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked()
}

func (c *LogCollector) flushLocked() {
	if len(c.entries) == 0 {
		return
	}
	batch := make([]DigestEntry, 0, len(c.entries))
	for _, e := range c.entries {
		batch = append(batch, *e)
	}
	clear(c.entries)
	slices.SortFunc(batch, func(a, b DigestEntry) int {
		if n := cmp.Compare(b.Count, a.Count); n != 0 {
			return n
		}
		return cmp.Compare(a.Message, b.Message)
	})

	select {
	case c.batches <- batch:
	default:
		fmt.Fprintf(os.Stderr, "log digest dropped: %d entries\n", len(batch))
	}
}

func (c *LogCollector) run() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.TimeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.flush()
		case batch := <-c.batches:
			c.publish(batch)
		case <-c.done:
			c.flush()
			for {
				select {
				case batch := <-c.batches:
					c.publish(batch)
				default:
					return
				}
			}
		}
	}
}

func (c *LogCollector) publish(batch []DigestEntry) {
	if c.cfg.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.cfg.Publisher.Publish(ctx, c.cfg.Topic, []byte("log_digest"), batch); err != nil {
		fmt.Fprintf(os.Stderr, "log digest publish failed: %v\n", err)
	}
}

// Close flushes pending entries and waits until every queued batch is published.
func (c *LogCollector) Close() {
	c.once.Do(func() { close(c.done) })
	c.wg.Wait()
}
