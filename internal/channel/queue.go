// Package channel implements the two bounded FIFO queues the whole
// runtime communicates through (input, output) and the local textual
// ingest/egress task that reads and writes them.
package channel

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fieldmind/core/internal/message"
)

// EnqueueTimeout bounds how long a blocking send waits before the
// caller gives up and drops the message with a log line — scheduler
// and poller pushes must never block the agent.
const EnqueueTimeout = 100 * time.Millisecond

// Queue is a fixed-capacity FIFO of Messages. Overflow policy is
// drop-newest: a full queue logs and discards rather than blocking.
type Queue struct {
	ch     chan message.Message
	logger *zap.Logger
	name   string
}

func NewQueue(name string, capacity int, logger *zap.Logger) *Queue {
	return &Queue{ch: make(chan message.Message, capacity), logger: logger, name: name}
}

// TrySend attempts to enqueue within EnqueueTimeout; on timeout or a
// full buffer it drops the message and logs, returning false.
func (q *Queue) TrySend(ctx context.Context, m message.Message) bool {
	select {
	case q.ch <- m:
		return true
	default:
	}

	timer := time.NewTimer(EnqueueTimeout)
	defer timer.Stop()
	select {
	case q.ch <- m:
		return true
	case <-timer.C:
		q.logger.Warn("queue full, dropping message", zap.String("queue", q.name), zap.Uint64("seq", m.Seq))
		return false
	case <-ctx.Done():
		return false
	}
}

// Receive blocks until a message is available or ctx is done.
func (q *Queue) Receive(ctx context.Context) (message.Message, bool) {
	select {
	case m := <-q.ch:
		return m, true
	case <-ctx.Done():
		return message.Message{}, false
	}
}
