package progress

import (
	"context"
	"sync"

	"github.com/flowgrid/flowgrid/common/logger"
	"github.com/flowgrid/flowgrid/common/models"
)

// subscriberBuffer bounds how many snapshots a slow subscriber may lag
// behind before emits are dropped for it
const subscriberBuffer = 64

// Sink receives a copy of every emitted snapshot, regardless of
// execution id. Used to mirror progress onto external transports.
type Sink interface {
	Publish(ctx context.Context, p *models.ExecutionProgress) error
}

// Subscription is one registered listener for a single execution
type Subscription struct {
	executionID string
	ch          chan *models.ExecutionProgress
	closeOnce   sync.Once
}

// Events returns the snapshot channel. It is closed on Unsubscribe.
func (s *Subscription) Events() <-chan *models.ExecutionProgress {
	return s.ch
}

func (s *Subscription) close() {
	s.closeOnce.Do(func() {
		close(s.ch)
	})
}

// Bus fans out execution progress snapshots to any number of
// subscribers keyed by execution id. It is process-local; a single Bus
// is created at engine start and shared by all executions.
type Bus struct {
	mu    sync.RWMutex
	subs  map[string][]*Subscription
	sinks []Sink
	log   *logger.Logger
}

// NewBus creates a new progress bus
func NewBus(log *logger.Logger) *Bus {
	return &Bus{
		subs: make(map[string][]*Subscription),
		log:  log,
	}
}

// AttachSink registers a mirror sink. Call before the engine starts
// accepting executions; sinks are not guarded after that.
func (b *Bus) AttachSink(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

// Subscribe registers a listener for one execution id
func (b *Bus) Subscribe(executionID string) *Subscription {
	sub := &Subscription{
		executionID: executionID,
		ch:          make(chan *models.ExecutionProgress, subscriberBuffer),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs[executionID] = append(b.subs[executionID], sub)
	b.log.Debug("progress subscriber registered",
		"execution_id", executionID,
		"subscriber_count", len(b.subs[executionID]))

	return sub
}

// Unsubscribe removes a listener and closes its channel. When the last
// subscriber for an execution id is removed the entry is dropped.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	subs := b.subs[sub.executionID]
	for i, s := range subs {
		if s == sub {
			b.subs[sub.executionID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[sub.executionID]) == 0 {
		delete(b.subs, sub.executionID)
	}
	b.mu.Unlock()

	sub.close()
}

// Emit delivers a snapshot to every subscriber of its execution id, in
// emit order. A subscriber that cannot keep up is logged and skipped
// for this emit; it never halts delivery to the others.
func (b *Bus) Emit(ctx context.Context, p *models.ExecutionProgress) {
	snapshot := p.Clone()

	b.mu.RLock()
	subs := make([]*Subscription, len(b.subs[p.ExecutionID]))
	copy(subs, b.subs[p.ExecutionID])
	sinks := b.sinks
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.ch <- snapshot:
		default:
			b.log.Warn("progress subscriber buffer full, dropping snapshot",
				"execution_id", p.ExecutionID)
		}
	}

	for _, sink := range sinks {
		if err := sink.Publish(ctx, snapshot); err != nil {
			b.log.Warn("progress sink publish failed",
				"execution_id", p.ExecutionID,
				"error", err)
		}
	}
}

// SubscriberCount returns the number of active subscribers for an
// execution id
func (b *Bus) SubscriberCount(executionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[executionID])
}
