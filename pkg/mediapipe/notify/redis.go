package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisChannelPrefix = "media:progress:"

// Redis publishes progress events over Redis pub/sub, reusing the same
// Redis the job queue runs on so small deployments need no extra broker.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis-backed notifier.
func NewRedis(client *redis.Client) *Redis { return &Redis{client: client} }

// ConnectRedis dials Redis and verifies the connection.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Redis{client: client}, nil
}

// Publish implements Notifier.
func (r *Redis) Publish(ctx context.Context, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, redisChannelPrefix+ev.SubjectID, b).Err()
}

// Subscribe implements Subscriber.
func (r *Redis) Subscribe(ctx context.Context, subjectID string) (<-chan Event, func(), error) {
	pubsub := r.client.Subscribe(ctx, redisChannelPrefix+subjectID)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", subjectID, err)
	}

	ch := make(chan Event, 16)
	go func() {
		for msg := range pubsub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			select {
			case ch <- ev:
			default:
			}
		}
		close(ch)
	}()

	cancel := func() { _ = pubsub.Close() }
	return ch, cancel, nil
}

// Close releases the underlying client.
func (r *Redis) Close() error { return r.client.Close() }
