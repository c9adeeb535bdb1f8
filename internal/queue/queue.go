// Package queue holds the bounded ring of decoded frames that decouples
// decode cadence from presentation cadence.
package queue

import (
	"fmt"
	"sync"

	"github.com/zsiec/reel/internal/media"
)

// Stats counts queue traffic.
type Stats struct {
	Capacity int   `json:"capacity"`
	Len      int   `json:"len"`
	Pushed   int64 `json:"pushed"`
	Popped   int64 `json:"popped"`
	Dropped  int64 `json:"dropped"`
}

// FrameQueue is a ring of n slots holding at most n-1 frames; head == tail
// means empty. Frames are copied into slot-owned storage on Push, so the
// producer's handle may be overwritten right after.
type FrameQueue struct {
	mu      sync.Mutex
	slots   []media.VideoFrame
	out     media.VideoFrame
	head    int
	tail    int
	pushed  int64
	popped  int64
	dropped int64
}

// New creates a queue with n slots.
func New(n int) (*FrameQueue, error) {
	if n < 1 {
		return nil, fmt.Errorf("queue: depth %d must be at least 1", n)
	}
	return &FrameQueue{slots: make([]media.VideoFrame, n)}, nil
}

// Push copies f into the tail slot. It returns false and counts a drop
// when the queue is full.
func (q *FrameQueue) Push(f media.VideoFrame) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	next := (q.tail + 1) % len(q.slots)
	if next == q.head {
		q.dropped++
		return false
	}
	f.CopyInto(&q.slots[q.tail])
	q.tail = next
	q.pushed++
	return true
}

// Pop removes the head frame. The returned frame's plane is valid until
// the next Pop.
func (q *FrameQueue) Pop() (media.VideoFrame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == q.tail {
		return media.VideoFrame{}, false
	}
	// Swap storage so the slot inherits the previous output buffer.
	q.slots[q.head], q.out = q.out, q.slots[q.head]
	q.head = (q.head + 1) % len(q.slots)
	q.popped++
	return q.out, true
}

// Len returns the number of queued frames.
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

func (q *FrameQueue) lenLocked() int {
	return (q.tail - q.head + len(q.slots)) % len(q.slots)
}

// Cap returns the number of usable slots, one less than the ring size.
func (q *FrameQueue) Cap() int { return len(q.slots) - 1 }

// Full reports whether the next Push would be dropped.
func (q *FrameQueue) Full() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return (q.tail+1)%len(q.slots) == q.head
}

// Reset empties the queue, keeping slot storage for reuse.
func (q *FrameQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.head, q.tail = 0, 0
}

// Dropped returns the number of frames rejected because the queue was full.
func (q *FrameQueue) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Stats returns a snapshot of queue counters.
func (q *FrameQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Capacity: len(q.slots) - 1,
		Len:      q.lenLocked(),
		Pushed:   q.pushed,
		Popped:   q.popped,
		Dropped:  q.dropped,
	}
}
