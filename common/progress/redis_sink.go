package progress

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flowgrid/flowgrid/common/models"
	rediswrap "github.com/flowgrid/flowgrid/common/redis"
)

// RedisSink mirrors progress snapshots onto Redis pub/sub so an
// external fanout tier can relay them. Channel scheme:
// workflow:events:<executionId>.
type RedisSink struct {
	redis *rediswrap.Client
}

// NewRedisSink creates a Redis-backed progress mirror
func NewRedisSink(client *rediswrap.Client) *RedisSink {
	return &RedisSink{redis: client}
}

// Publish implements Sink
func (s *RedisSink) Publish(ctx context.Context, p *models.ExecutionProgress) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal progress snapshot: %w", err)
	}
	channel := fmt.Sprintf("workflow:events:%s", p.ExecutionID)
	return s.redis.PublishEvent(ctx, channel, string(payload))
}
