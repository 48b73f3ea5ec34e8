package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/redis/go-redis/v9"
)

// ErrForwarderNotStarted is returned when publishing before Start.
var ErrForwarderNotStarted = errors.New("redis forwarder not started")

// RedisForwarder republishes CloudEvents as structured JSON on a Redis
// pub/sub channel per event type, so other services can follow task
// activity without sharing the database.
type RedisForwarder struct {
	client        *redis.Client
	channelPrefix string
	mu            sync.RWMutex
	started       bool
}

// NewRedisForwarder parses url and prepares a client. Start verifies it.
func NewRedisForwarder(url, channelPrefix string) (*RedisForwarder, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	return &RedisForwarder{client: redis.NewClient(opts), channelPrefix: channelPrefix}, nil
}

// Start checks connectivity.
func (f *RedisForwarder) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return nil
	}
	if _, err := f.client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	f.started = true
	return nil
}

// Stop closes the client.
func (f *RedisForwarder) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.started {
		return nil
	}
	f.started = false
	if err := f.client.Close(); err != nil {
		return fmt.Errorf("error closing Redis client: %w", err)
	}
	return nil
}

// Channel returns the channel an event type is published on.
func (f *RedisForwarder) Channel(eventType string) string {
	return f.channelPrefix + eventType
}

// Forward publishes the event.
func (f *RedisForwarder) Forward(ctx context.Context, event cloudevents.Event) error {
	f.mu.RLock()
	started := f.started
	f.mu.RUnlock()
	if !started {
		return ErrForwarderNotStarted
	}
	payload, err := event.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}
	if err := f.client.Publish(ctx, f.Channel(event.Type()), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to Redis: %w", err)
	}
	return nil
}
