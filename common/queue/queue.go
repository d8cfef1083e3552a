package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/flowgrid/flowgrid/common/logger"
)

// ErrQueueFull indicates the topic buffer is at capacity. Publishers
// must surface this; a silently dropped run request would strand its
// execution row in pending.
var ErrQueueFull = errors.New("queue full")

// Queue interface for message passing between the CRUD surface and the
// execution consumers
type Queue interface {
	Publish(ctx context.Context, topic string, key string, message []byte) error
	Subscribe(ctx context.Context, topic string, handler MessageHandler) error
	Close() error
}

// MessageHandler processes messages
type MessageHandler func(ctx context.Context, key string, value []byte) error

// MemoryQueue is an in-process queue. The engine is single-instance by
// design, so run requests never leave the process.
type MemoryQueue struct {
	topics  map[string]chan *Message
	bufSize int
	mu      sync.RWMutex
	log     *logger.Logger
}

// Message represents a queue message
type Message struct {
	Topic string
	Key   string
	Value []byte
}

// NewMemoryQueue creates a new in-memory queue
func NewMemoryQueue(bufSize int, log *logger.Logger) *MemoryQueue {
	if bufSize <= 0 {
		bufSize = 1000
	}
	return &MemoryQueue{
		topics:  make(map[string]chan *Message),
		bufSize: bufSize,
		log:     log,
	}
}

func (q *MemoryQueue) topic(name string) chan *Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch, exists := q.topics[name]
	if !exists {
		ch = make(chan *Message, q.bufSize)
		q.topics[name] = ch
	}
	return ch
}

// Publish publishes a message to a topic
func (q *MemoryQueue) Publish(ctx context.Context, topic string, key string, message []byte) error {
	ch := q.topic(topic)

	msg := &Message{
		Topic: topic,
		Key:   key,
		Value: message,
	}

	select {
	case ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		q.log.Warn("queue full, rejecting message", "topic", topic, "key", key)
		return fmt.Errorf("topic %s: %w", topic, ErrQueueFull)
	}
}

// Subscribe subscribes to a topic and processes messages until ctx ends
func (q *MemoryQueue) Subscribe(ctx context.Context, topic string, handler MessageHandler) error {
	ch := q.topic(topic)

	q.log.Info("subscribing to topic", "topic", topic)

	go func() {
		for {
			select {
			case <-ctx.Done():
				q.log.Info("subscription cancelled", "topic", topic)
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if err := handler(ctx, msg.Key, msg.Value); err != nil {
					q.log.Error("message handler error", "topic", topic, "key", msg.Key, "error", err)
				}
			}
		}
	}()

	return nil
}

// Close closes the queue
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for topic, ch := range q.topics {
		close(ch)
		q.log.Info("closed topic", "topic", topic)
	}
	q.topics = make(map[string]chan *Message)

	return nil
}
