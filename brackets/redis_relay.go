package brackets

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	relayChannelPrefix  = "train:"
	relayChannelPattern = relayChannelPrefix + "*"
)

// RedisRelay publishes train events through Redis so that every node's hub
// sees them, not only the node that produced the event.
type RedisRelay struct {
	client *redis.Client
	hub    *Hub
	logger *slog.Logger
}

func NewRedisRelay(client *redis.Client, hub *Hub, logger *slog.Logger) *RedisRelay {
	return &RedisRelay{client: client, hub: hub, logger: logger}
}

// Publish sends msg to the cluster. The local hub receives it back through Run.
func (r *RedisRelay) Publish(ctx context.Context, msg WebSocketMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", msg.Type, err)
	}
	if err := r.client.Publish(ctx, relayChannelPrefix+msg.TrainID.String(), data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Run relays messages from Redis into the local hub until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.PSubscribe(ctx, relayChannelPattern)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed so that startup errors surface here.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis psubscribe %s: %w", relayChannelPattern, err)
	}
	r.logger.Info("redis relay subscribed", slog.String("pattern", relayChannelPattern))

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			trainID := strings.TrimPrefix(msg.Channel, relayChannelPrefix)
			if trainID == "" || msg.Payload == "" {
				r.logger.Warn("ignoring malformed relay message", slog.String("channel", msg.Channel))
				continue
			}
			r.hub.BroadcastToRoom(roomPrefix+trainID, []byte(msg.Payload))
		case <-ctx.Done():
			return nil
		}
	}
}
