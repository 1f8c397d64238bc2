package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisNotifier pushes start requests onto a Redis list that workers pop from.
type RedisNotifier struct {
	client *redis.Client
	queue  string
}

// StartRequest is the message workers receive.
type StartRequest struct {
	Kind        string `json:"kind"`
	CallbackURL string `json:"callback_url"`
}

func NewRedisNotifier(client *redis.Client, queue string) *RedisNotifier {
	return &RedisNotifier{client: client, queue: queue}
}

func (n *RedisNotifier) StartJob(ctx context.Context, kind, callbackURL string) error {
	payload, err := json.Marshal(StartRequest{Kind: kind, CallbackURL: callbackURL})
	if err != nil {
		return fmt.Errorf("encoding start request: %w", err)
	}
	if err := n.client.LPush(ctx, n.queue, payload).Err(); err != nil {
		return classifyError(err)
	}
	return nil
}

var _ Notifier = (*RedisNotifier)(nil)
