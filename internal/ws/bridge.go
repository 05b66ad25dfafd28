package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"detective_game/internal/logger"

	redis "github.com/redis/go-redis/v9"
)

// DefaultTopic is the Redis channel events are relayed on.
const DefaultTopic = "detective:events"

// RedisBridge publishes events to the local hub and relays them through
// Redis pub/sub to the hubs of every other instance.
type RedisBridge struct {
	rdb    *redis.Client
	hub    *Hub
	topic  string
	origin string
}

func NewRedisBridge(rdb *redis.Client, hub *Hub, topic, origin string) *RedisBridge {
	if topic == "" {
		topic = DefaultTopic
	}
	return &RedisBridge{rdb: rdb, hub: hub, topic: topic, origin: origin}
}

// Publish delivers locally first, so local clients are served even when
// Redis is down.
func (b *RedisBridge) Publish(ctx context.Context, channel, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	env := Envelope{Type: MsgEvent, Channel: channel, Event: eventType, Data: data}
	local, err := json.Marshal(env)
	if err != nil {
		return err
	}
	b.hub.Deliver(channel, local)

	env.Origin = b.origin
	relay, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, b.topic, relay).Err(); err != nil {
		return fmt.Errorf("relay %s: %w", eventType, err)
	}
	return nil
}

// Run relays events from other instances into the local hub until ctx is
// done.
func (b *RedisBridge) Run(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, b.topic)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.topic, err)
	}
	logger.Component("relay").Info("subscribed", "topic", b.topic, "instance", b.origin)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.relay(msg.Payload)
		}
	}
}

func (b *RedisBridge) relay(raw string) {
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		logger.Component("relay").Warn("dropping malformed frame", "error", err)
		return
	}
	if env.Origin == b.origin || env.Channel == "" {
		return
	}
	env.Origin = ""
	frame, err := json.Marshal(env)
	if err != nil {
		return
	}
	b.hub.Deliver(env.Channel, frame)
}
