// Package redispub publishes events over Redis pub/sub, the channel the
// reader's SSE bridge subscribes to.
package redispub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Publisher publishes JSON payloads to Redis channels.
type Publisher struct {
	client *redis.Client
}

// New creates a Publisher from a Redis URL.
func New(url string) (*Publisher, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Publisher{client: redis.NewClient(opts)}, nil
}

// NewWithClient wraps an existing client (primarily for testing).
func NewWithClient(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// Publish marshals the payload to JSON and publishes it on channel. The
// returned id is the subscriber count, which Redis reports for PUBLISH.
func (p *Publisher) Publish(ctx context.Context, channel string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	n, err := p.client.Publish(ctx, channel, data).Result()
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", channel, err)
	}
	return fmt.Sprintf("%d", n), nil
}

// Close releases the underlying client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
