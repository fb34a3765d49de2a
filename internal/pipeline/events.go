package pipeline

import (
	"sync"
	"time"

	"skywatch/internal/detect"
	"skywatch/internal/stats"
	"skywatch/internal/track"
)

// Result is everything the pipeline produced for one frame: the candidate
// detections after fusion, the confirmed track snapshots, any lifecycle
// events the tracker emitted, and the timing sample.
type Result struct {
	ID         string                  `json:"id"`
	Seq        uint64                  `json:"seq"`
	Timestamp  time.Time               `json:"timestamp"`
	Learning   bool                    `json:"learning"`
	Suppressed bool                    `json:"suppressed"`
	Detections []detect.Detection      `json:"detections"`
	Tracks     []track.Snapshot        `json:"tracks"`
	Events     []track.Event           `json:"-"`
	Thumbnails map[int64][]byte        `json:"-"`
	Sample     stats.PerformanceSample `json:"sample"`
}

// ResultHandler receives pipeline output synchronously, in frame order.
type ResultHandler interface {
	OnResult(*Result)
}

// LifecycleKind classifies pipeline lifecycle events.
type LifecycleKind string

const (
	LifecycleStarted     LifecycleKind = "started"
	LifecycleStopped     LifecycleKind = "stopped"
	LifecycleSourceError LifecycleKind = "source_error"
)

// LifecycleEvent announces a pipeline start, stop, or source failure.
type LifecycleEvent struct {
	Kind LifecycleKind
	Err  error
	Time time.Time
}

type busSubscription struct {
	channel   chan *Result
	handler   ResultHandler
	lifecycle func(LifecycleEvent)
}

// EventBus fans pipeline output out to subscribers. Handlers are invoked
// synchronously so results arrive in frame order; channel subscribers get
// non-blocking delivery and lose results when their buffer is full. It
// also retains the latest result for poll-style consumers.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[*busSubscription]bool
	latest      *Result
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[*busSubscription]bool)}
}

// Subscribe registers a synchronous handler. Returns an unsubscribe func.
func (b *EventBus) Subscribe(handler ResultHandler) func() {
	sub := &busSubscription{handler: handler}
	return b.add(sub)
}

// SubscribeChannel returns a buffered channel of results and an
// unsubscribe func. Results are dropped rather than blocking the pipeline
// when the buffer is full.
func (b *EventBus) SubscribeChannel(bufferSize int) (<-chan *Result, func()) {
	if bufferSize <= 0 {
		bufferSize = 10
	}
	ch := make(chan *Result, bufferSize)
	sub := &busSubscription{channel: ch}

	b.mu.Lock()
	b.subscribers[sub] = true
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		if _, ok := b.subscribers[sub]; ok {
			delete(b.subscribers, sub)
			close(ch)
		}
		b.mu.Unlock()
	}
}

// SubscribeLifecycle registers a callback for start, stop, and source
// failure events. Returns an unsubscribe func.
func (b *EventBus) SubscribeLifecycle(fn func(LifecycleEvent)) func() {
	sub := &busSubscription{lifecycle: fn}
	return b.add(sub)
}

func (b *EventBus) add(sub *busSubscription) func() {
	b.mu.Lock()
	b.subscribers[sub] = true
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.subscribers, sub)
		b.mu.Unlock()
	}
}

// PublishResult delivers a result to all subscribers and retains it for
// Latest.
func (b *EventBus) PublishResult(r *Result) {
	if r == nil {
		return
	}

	b.mu.Lock()
	b.latest = r
	b.mu.Unlock()

	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		switch {
		case sub.handler != nil:
			sub.handler.OnResult(r)
		case sub.channel != nil:
			select {
			case sub.channel <- r:
			default:
				// Slow subscriber, skip this result
			}
		}
	}
}

// PublishLifecycle notifies lifecycle subscribers.
func (b *EventBus) PublishLifecycle(ev LifecycleEvent) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		if sub.lifecycle != nil {
			sub.lifecycle(ev)
		}
	}
}

// Latest returns the most recent result, or nil before the first frame.
func (b *EventBus) Latest() *Result {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.latest
}

// SubscriberCount returns the number of active subscriptions.
func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close drops all subscriptions and closes channel subscribers.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subscribers {
		if sub.channel != nil {
			close(sub.channel)
		}
		delete(b.subscribers, sub)
	}
}
