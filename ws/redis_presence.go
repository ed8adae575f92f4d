package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/akinalp/tradechat/pubsub"
)

// RedisPresenceStore shares presence between instances. Each topic is a
// hash at <prefix>:presence:<topic> whose fields are "<key>/<ref>" and
// whose values are JSON entries.
//
// TODO: entries of an instance that dies without untracking survive until
// the hash TTL; reap them with a per-instance heartbeat key.
type RedisPresenceStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisPresenceStore returns a store; ttl bounds how long an idle topic
// hash lives (0 means 24h).
func NewRedisPresenceStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisPresenceStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisPresenceStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisPresenceStore) topicKey(topic string) string {
	return fmt.Sprintf("%s:presence:%s", s.prefix, topic)
}

func presenceField(key, ref string) string {
	return key + "/" + ref
}

func (s *RedisPresenceStore) Track(ctx context.Context, topic, key string, entry pubsub.PresenceEntry) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode presence entry: %w", err)
	}

	hkey := s.topicKey(topic)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, hkey, presenceField(key, entry.Ref), value)
	pipe.Expire(ctx, hkey, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to track presence: %w", err)
	}
	return nil
}

func (s *RedisPresenceStore) Untrack(ctx context.Context, topic, key, ref string) error {
	if err := s.client.HDel(ctx, s.topicKey(topic), presenceField(key, ref)).Err(); err != nil {
		return fmt.Errorf("failed to untrack presence: %w", err)
	}
	return nil
}

func (s *RedisPresenceStore) State(ctx context.Context, topic string) (pubsub.PresenceState, error) {
	fields, err := s.client.HGetAll(ctx, s.topicKey(topic)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read presence: %w", err)
	}

	state := make(pubsub.PresenceState)
	for field, value := range fields {
		i := strings.LastIndex(field, "/")
		if i <= 0 {
			continue
		}
		var entry pubsub.PresenceEntry
		if err := json.Unmarshal([]byte(value), &entry); err != nil {
			continue
		}
		key := field[:i]
		state[key] = append(state[key], entry)
	}
	for key := range state {
		sortEntries(state[key])
	}
	return state, nil
}
