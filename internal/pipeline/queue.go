package pipeline

import (
	"sync"
	"time"

	"skywatch/internal/source"
)

// FrameQueue is the bounded handoff between the capture and processing
// goroutines. When the consumer falls behind, Push overwrites the oldest
// buffered frame instead of blocking, so capture always runs at source
// rate and the consumer always sees the freshest frames. Overwritten
// frames are counted as drops.
type FrameQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frames []*source.Frame
	depth  int
	drops  uint64
	closed bool
}

// NewFrameQueue creates a queue holding at most depth frames. Depth below
// one is clamped to the single-slot default.
func NewFrameQueue(depth int) *FrameQueue {
	if depth < 1 {
		depth = 1
	}
	q := &FrameQueue{depth: depth}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push stores a frame without blocking. If the queue is full the oldest
// frame is discarded and counted as dropped. Push reports whether a frame
// was dropped to make room. Pushing to a closed queue is a no-op.
func (q *FrameQueue) Push(f *source.Frame) (dropped bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if len(q.frames) >= q.depth {
		copy(q.frames, q.frames[1:])
		q.frames = q.frames[:len(q.frames)-1]
		q.drops++
		dropped = true
	}
	q.frames = append(q.frames, f)
	q.cond.Broadcast()
	return dropped
}

// Pop removes and returns the oldest buffered frame, blocking until one is
// available, the timeout elapses, or the queue is closed. A non-positive
// timeout blocks until a frame arrives or the queue closes. With the
// default depth of one the returned frame is always the newest pushed.
func (q *FrameQueue) Pop(timeout time.Duration) (*source.Frame, bool) {
	var deadline time.Time
	var timer *time.Timer
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
		timer = time.AfterFunc(timeout, q.cond.Broadcast)
		defer timer.Stop()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.frames) == 0 {
		if q.closed {
			return nil, false
		}
		if timeout > 0 && !time.Now().Before(deadline) {
			return nil, false
		}
		q.cond.Wait()
	}

	f := q.frames[0]
	copy(q.frames, q.frames[1:])
	q.frames = q.frames[:len(q.frames)-1]
	return f, true
}

// Drops returns the number of frames overwritten before being consumed.
func (q *FrameQueue) Drops() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.drops
}

// Len returns the number of buffered frames.
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Closed reports whether the queue has been closed.
func (q *FrameQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close wakes all blocked consumers. Buffered frames remain poppable;
// subsequent pushes are discarded silently.
func (q *FrameQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}
