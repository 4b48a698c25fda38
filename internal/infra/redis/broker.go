package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
	"samaquiz-service/internal/domain"
)

const (
	channelPrefix  = "quiz:session:"
	channelSuffix  = ":events"
	channelPattern = channelPrefix + "*" + channelSuffix
)

// Dispatcher delivers events to the sockets connected to this instance.
type Dispatcher interface {
	Dispatch(event domain.SessionEvent)
}

// Broker relays session events through Redis pub/sub so every instance can
// fan them out to its own sockets. It replaces in-process dispatch when more
// than one instance serves the same sessions.
type Broker struct {
	client *redis.Client
}

func NewBroker(client *redis.Client) *Broker {
	return &Broker{client: client}
}

func (b *Broker) Publish(ctx context.Context, event domain.SessionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode session event: %w", err)
	}
	if err := b.client.Publish(ctx, channelFor(event.SessionID), payload).Err(); err != nil {
		return fmt.Errorf("publish session event: %w", err)
	}
	return nil
}

// Subscribe registers the pattern subscription and waits for Redis to confirm it.
func (b *Broker) Subscribe(ctx context.Context) (*redis.PubSub, error) {
	sub := b.client.PSubscribe(ctx, channelPattern)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channelPattern, err)
	}
	return sub, nil
}

// Consume dispatches messages from sub until ctx is done or sub is closed.
func (b *Broker) Consume(ctx context.Context, sub *redis.PubSub, dispatcher Dispatcher) {
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event domain.SessionEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				slog.Warn("discarding malformed session event", "channel", msg.Channel, "error", err)
				continue
			}
			if event.SessionID == "" {
				event.SessionID = sessionFromChannel(msg.Channel)
			}
			dispatcher.Dispatch(event)
		}
	}
}

// Run subscribes and consumes until ctx is done.
func (b *Broker) Run(ctx context.Context, dispatcher Dispatcher) error {
	sub, err := b.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()
	b.Consume(ctx, sub, dispatcher)
	return nil
}

func channelFor(sessionID string) string {
	return channelPrefix + sessionID + channelSuffix
}

func sessionFromChannel(channel string) string {
	return strings.TrimSuffix(strings.TrimPrefix(channel, channelPrefix), channelSuffix)
}
