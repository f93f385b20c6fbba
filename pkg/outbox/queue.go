// Package outbox buffers messages that could not be handed to a connected
// transport. Entries live in memory only: a process restart while
// disconnected drops them, matching the documented reload behavior.
package outbox

import (
	"chatsync/pkg/logger"
	"chatsync/pkg/models"
)

// Queue is an unbounded FIFO of pending sends. It is owned by a single
// session loop and does no locking of its own. Entries are never
// reordered and never deduplicated against each other.
type Queue struct {
	pending []models.Message
}

// NewQueue returns an empty outbound queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends a pending send.
func (q *Queue) Enqueue(m models.Message) {
	q.pending = append(q.pending, m)
	logger.Debug("outbox_enqueued", "room", m.Room, "msg_id", m.ID, "depth", len(q.pending))
}

// Len returns the number of pending sends.
func (q *Queue) Len() int { return len(q.pending) }

// DrainInto replays pending entries left-to-right through send. It stops
// at the first failure, leaving the failed entry and everything after it
// at the front of the queue for the next connected transition. The number
// of successfully replayed entries is returned.
func (q *Queue) DrainInto(send func(models.Message) error) (int, error) {
	var n int
	for len(q.pending) > 0 {
		m := q.pending[0]
		if err := send(m); err != nil {
			logger.Warn("outbox_drain_stalled", "room", m.Room, "msg_id", m.ID, "replayed", n, "error", err)
			return n, err
		}
		q.pending = q.pending[1:]
		n++
	}
	if n > 0 {
		q.pending = nil
		logger.Info("outbox_drained", "replayed", n)
	}
	return n, nil
}
