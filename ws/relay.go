package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RelayKind says how a receiving instance handles a relayed message.
type RelayKind string

const (
	// RelayTopic delivers Op/Data to the local subscribers of Topic.
	RelayTopic RelayKind = "topic"
	// RelayPresence asks for a fresh snapshot of Topic to be pushed.
	RelayPresence RelayKind = "presence"
	// RelayUser delivers Op/Data to the local connections of UserID.
	RelayUser RelayKind = "user"
)

// RelayMessage crosses instance boundaries. Origin is the sending hub's
// instance id; hubs ignore their own messages.
type RelayMessage struct {
	Origin string          `json:"origin"`
	Kind   RelayKind       `json:"kind"`
	Topic  string          `json:"topic,omitempty"`
	UserID string          `json:"user_id,omitempty"`
	Op     string          `json:"op,omitempty"`
	Data   json.RawMessage `json:"d,omitempty"`
}

// Relay fans locally originated frames out to other instances.
type Relay interface {
	Publish(ctx context.Context, msg RelayMessage) error
	// Listen blocks, passing every received message to deliver, until ctx
	// is done.
	Listen(ctx context.Context, deliver func(RelayMessage)) error
	Close() error
}

// NopRelay is used by single instance deployments.
type NopRelay struct{}

func (NopRelay) Publish(context.Context, RelayMessage) error { return nil }

func (NopRelay) Listen(ctx context.Context, _ func(RelayMessage)) error {
	<-ctx.Done()
	return nil
}

func (NopRelay) Close() error { return nil }

// RedisRelay relays over one Redis pub/sub channel.
type RedisRelay struct {
	client  redis.UniversalClient
	channel string
	log     *zap.Logger
}

func NewRedisRelay(client redis.UniversalClient, prefix string, log *zap.Logger) *RedisRelay {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisRelay{
		client:  client,
		channel: prefix + ":relay",
		log:     log.Named("relay"),
	}
}

func (r *RedisRelay) Publish(ctx context.Context, msg RelayMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode relay message: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, body).Err(); err != nil {
		return fmt.Errorf("failed to publish relay message: %w", err)
	}
	return nil
}

func (r *RedisRelay) Listen(ctx context.Context, deliver func(RelayMessage)) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe relay channel: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg RelayMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				r.log.Warn("dropping malformed relay message", zap.Error(err))
				continue
			}
			deliver(msg)
		}
	}
}

func (r *RedisRelay) Close() error { return nil }
