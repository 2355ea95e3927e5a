package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	redispkg "homework-helper/backend/pkg/redis"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps a conversation in a Redis list so several relay instances
// share it. Concurrent writers interleave; the last write wins.
type RedisStore struct {
	client  *redis.Client
	key     string
	channel string
}

// NewRedisStore creates a store for one conversation id
func NewRedisStore(client *redispkg.Client, conversationID string) *RedisStore {
	key := client.Key("conversation:" + conversationID)
	return &RedisStore{
		client:  client.Client,
		key:     key,
		channel: key + ":events",
	}
}

// Append pushes msg onto the list and announces it
func (s *RedisStore) Append(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	event, err := json.Marshal(Event{Type: EventAppended, Message: &msg})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, s.key, data)
		pipe.Publish(ctx, s.channel, event)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis append: %w", err)
	}
	return nil
}

// All reads the whole list, oldest first
func (s *RedisStore) All(ctx context.Context) ([]Message, error) {
	raw, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis range: %w", err)
	}

	out := make([]Message, 0, len(raw))
	for _, item := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		out = append(out, msg)
	}
	return out, nil
}

// Clear deletes the list
func (s *RedisStore) Clear(ctx context.Context) error {
	event, _ := json.Marshal(Event{Type: EventCleared})

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		pipe.Publish(ctx, s.channel, event)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis clear: %w", err)
	}
	return nil
}

// Subscribe listens on the conversation's pub/sub channel
func (s *RedisStore) Subscribe(ctx context.Context) (<-chan Event, func(), error) {
	pubsub := s.client.Subscribe(ctx, s.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan Event, subscriberBuffer)
	var once sync.Once
	cancel := func() {
		once.Do(func() { pubsub.Close() })
	}

	go func() {
		defer close(out)
		defer cancel()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					continue
				}
				select {
				case out <- ev:
				default:
				}
			}
		}
	}()

	return out, cancel, nil
}
