package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel used between API instances.
const DefaultChannel = "chat:events"

type relayMessage struct {
	UserID  string          `json:"userId"`
	Payload json.RawMessage `json:"payload"`
}

// RedisBroker fans events out to every API instance over Redis pub/sub.
type RedisBroker struct {
	client  *redis.Client
	channel string
	logger  *log.Logger
}

var _ Broker = (*RedisBroker)(nil)

// NewRedisBroker connects to the Redis server at url and verifies it responds.
func NewRedisBroker(ctx context.Context, url, channel string) (*RedisBroker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewRedisBrokerFromClient(client, channel), nil
}

// NewRedisBrokerFromClient wraps an existing client.
func NewRedisBrokerFromClient(client *redis.Client, channel string) *RedisBroker {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBroker{
		client:  client,
		channel: channel,
		logger:  log.Default().WithPrefix("redis"),
	}
}

// Publish sends payload for userID to all instances, including this one.
func (b *RedisBroker) Publish(ctx context.Context, userID string, payload []byte) error {
	data, err := json.Marshal(relayMessage{UserID: userID, Payload: payload})
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, data).Err()
}

// Run subscribes to the channel and hands each message to deliver until ctx
// is cancelled.
func (b *RedisBroker) Run(ctx context.Context, deliver func(userID string, payload []byte) int) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.logger.Info("relay subscribed", "channel", b.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var relay relayMessage
			if err := json.Unmarshal([]byte(msg.Payload), &relay); err != nil {
				b.logger.Warn("dropping malformed relay message", "err", err)
				continue
			}
			deliver(relay.UserID, relay.Payload)
		}
	}
}

// Close releases the underlying client.
func (b *RedisBroker) Close() error {
	return b.client.Close()
}
