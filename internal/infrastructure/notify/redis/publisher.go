// Package redis provides the Redis pub/sub notification publisher.
package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unifiedui/message-warehouse/internal/core/notify"
)

// Config holds Redis connection configuration.
type Config struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Publisher implements the notify.Publisher interface for Redis.
type Publisher struct {
	client *redis.Client
}

// NewPublisher creates a new Redis publisher and verifies the connection.
func NewPublisher(cfg Config) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Publisher{client: client}, nil
}

// Publish sends payload on the channel named topic.
func (p *Publisher) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := p.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish on %s: %w", topic, err)
	}
	return nil
}

// Subscribe subscribes to the channel named topic.
// The subscription is confirmed before it is returned.
func (p *Publisher) Subscribe(ctx context.Context, topic string) (notify.Subscription, error) {
	pubsub := p.client.Subscribe(ctx, topic)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	sub := &subscription{
		pubsub:  pubsub,
		events:  make(chan notify.Event, 100),
		closeCh: make(chan struct{}),
	}
	sub.wg.Add(1)
	go sub.run()

	return sub, nil
}

// Ping checks if the Redis connection is alive.
func (p *Publisher) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (p *Publisher) Close() error {
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis connection: %w", err)
	}
	return nil
}

// GetClient returns the underlying Redis client (for testing purposes).
func (p *Publisher) GetClient() *redis.Client {
	return p.client
}

type subscription struct {
	pubsub    *redis.PubSub
	events    chan notify.Event
	closeCh   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func (s *subscription) run() {
	defer s.wg.Done()
	defer close(s.events)

	ch := s.pubsub.Channel()
	for {
		select {
		case <-s.closeCh:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			event := notify.Event{Topic: msg.Channel, Payload: []byte(msg.Payload)}
			select {
			case s.events <- event:
			case <-s.closeCh:
				return
			}
		}
	}
}

func (s *subscription) Events() <-chan notify.Event {
	return s.events
}

func (s *subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closeCh)
		err = s.pubsub.Close()
		s.wg.Wait()
	})
	if err != nil {
		return fmt.Errorf("failed to close subscription: %w", err)
	}
	return nil
}
