package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgrid/flowgrid/common/logger"
)

func testLogger() *logger.Logger {
	return logger.New("error", "text")
}

func TestMemoryQueue_PublishAndSubscribe(t *testing.T) {
	q := NewMemoryQueue(8, testLogger())
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan string, 1)
	require.NoError(t, q.Subscribe(ctx, "topic-a", func(ctx context.Context, key string, value []byte) error {
		received <- string(value)
		return nil
	}))

	require.NoError(t, q.Publish(ctx, "topic-a", "k1", []byte("payload")))

	select {
	case got := <-received:
		assert.Equal(t, "payload", got)
	case <-time.After(time.Second):
		t.Fatal("message never delivered")
	}
}

func TestMemoryQueue_PublishFullBufferReturnsError(t *testing.T) {
	q := NewMemoryQueue(1, testLogger())
	defer q.Close()

	ctx := context.Background()

	// No subscriber: the single-slot buffer fills on the first publish
	require.NoError(t, q.Publish(ctx, "topic-b", "k1", []byte("first")))

	err := q.Publish(ctx, "topic-b", "k2", []byte("second"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQueueFull)
}
