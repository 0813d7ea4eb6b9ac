// Package events journals what happened to the generated world so the host
// can forward it to subscribers once per tick.
package events

import (
	"sync"
	"time"

	"orefield/internal/world"
)

type Type string

const (
	TypeSpawned        Type = "spawned"
	TypeDestroyed      Type = "destroyed"
	TypeLevelStarted   Type = "levelStarted"
	TypeLevelCompleted Type = "levelCompleted"
	TypeLevelCancelled Type = "levelCancelled"
	TypeLevelFailed    Type = "levelFailed"
)

type Event struct {
	Seq      uint64         `json:"seq"`
	Type     Type           `json:"type"`
	Level    int            `json:"level"`
	Object   world.ObjectID `json:"object,omitempty"`
	Template string         `json:"template,omitempty"`
	Position *world.Vec3    `json:"position,omitempty"`
	Message  string         `json:"message,omitempty"`
	Time     time.Time      `json:"time"`
}

// Queue is a bounded FIFO of events. When full, the oldest events are
// dropped.
type Queue struct {
	mu      sync.Mutex
	pending []Event
	limit   int
	seq     uint64
	dropped uint64
	now     func() time.Time
}

// NewQueue creates a queue holding at most limit events; limit <= 0 means
// unbounded.
func NewQueue(limit int) *Queue {
	return &Queue{limit: limit, now: time.Now}
}

// Publish stamps the event with the next sequence number and the current time.
func (q *Queue) Publish(ev Event) Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	ev.Seq = q.seq
	if ev.Time.IsZero() {
		ev.Time = q.now()
	}
	q.pending = append(q.pending, ev)
	if q.limit > 0 && len(q.pending) > q.limit {
		over := len(q.pending) - q.limit
		q.pending = append([]Event(nil), q.pending[over:]...)
		q.dropped += uint64(over)
	}
	return ev
}

// Drain removes and returns up to max events; max <= 0 drains everything.
func (q *Queue) Drain(max int) []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	if max <= 0 || max >= len(q.pending) {
		batch := q.pending
		q.pending = nil
		return batch
	}
	batch := append([]Event(nil), q.pending[:max]...)
	q.pending = q.pending[max:]
	return batch
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Dropped reports how many events were discarded because the queue was full.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
