// Package events emits the engine's logical events to downstream
// collaborators (notifications, payments, video-room provisioning). The
// engine never awaits a subscriber: publishing is fire-and-forget and is
// always sequenced after the owning transaction has committed.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Channel is the Redis pub/sub channel collaborators subscribe to.
const Channel = "scheduling.events"

// Publisher emits one logical event. Implementations must not block the
// caller on subscriber processing.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload map[string]any)
}

type envelope struct {
	Type       string         `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type redisPublisher struct {
	client *redis.Client
	log    *zap.SugaredLogger
}

// NewRedisPublisher publishes events on the shared Redis channel. Publish
// failures are logged and dropped: a slow or absent subscriber must never
// fail a booking that has already committed.
func NewRedisPublisher(client *redis.Client, log *zap.SugaredLogger) Publisher {
	return &redisPublisher{client: client, log: log}
}

func (p *redisPublisher) Publish(ctx context.Context, eventType string, payload map[string]any) {
	env := envelope{
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}

	data, err := json.Marshal(env)
	if err != nil {
		p.log.Errorw("marshal event", "type", eventType, "err", err)
		return
	}

	if err := p.client.Publish(ctx, Channel, data).Err(); err != nil {
		p.log.Errorw("publish event", "type", eventType, "err", fmt.Errorf("redis publish: %w", err))
	}
}

// Nop discards every event. Used in tests and in commands that have no
// subscriber side.
type Nop struct{}

func (Nop) Publish(context.Context, string, map[string]any) {}
