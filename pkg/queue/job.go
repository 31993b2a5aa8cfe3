package queue

import "context"

// Job handles one message type pulled from the queue.
type Job interface {
	// Type returns the message type the job handles.
	Type() string

	// Handle processes the raw JSON payload of one message.
	Handle(ctx context.Context, payload []byte) error
}
