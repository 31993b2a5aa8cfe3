package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotRunning     = errors.New("queue not running")
	ErrUnknownMessage = errors.New("unknown queue message")
)

// Config contains the worker and retry settings of a queue.
type Config struct {
	Workers    int
	RetryLimit int // retries after the first attempt
	RetryDelay time.Duration
	StatusTTL  time.Duration // how long a message's status stays readable
}

// Message is the envelope stored in Redis.
type Message struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// State is the lifecycle position of a message.
type State string

const (
	StateQueued   State = "queued"
	StateRunning  State = "running"
	StateRetrying State = "retrying"
	StateDone     State = "done"
	StateDead     State = "dead"
)

// Status is the last recorded state of a message.
type Status struct {
	ID        string
	Type      string
	State     State
	Attempts  int
	Error     string
	UpdatedAt time.Time
}

// Decode unmarshals a message payload into T.
func Decode[T any](payload []byte) (*T, error) {
	if len(payload) == 0 {
		return nil, errors.New("empty payload")
	}
	var out T
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &out, nil
}
