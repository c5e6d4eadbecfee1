// Package notify defines the notification publisher interface.
package notify

import (
	"context"
	"errors"
)

// ErrSubscribeUnsupported is returned by publishers that cannot deliver events back.
var ErrSubscribeUnsupported = errors.New("subscribe is not supported by this publisher")

// Event is a single notification received on a topic.
type Event struct {
	Topic   string
	Payload []byte
}

// Subscription delivers events published on a topic.
type Subscription interface {
	// Events returns the channel events are delivered on.
	// The channel is closed when the subscription is closed.
	Events() <-chan Event

	// Close stops the subscription.
	Close() error
}

// Publisher defines the interface for publishing notifications.
type Publisher interface {
	// Publish sends payload on topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe starts receiving events published on topic.
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Ping checks if the publisher connection is alive.
	Ping(ctx context.Context) error

	// Close closes the publisher connection.
	Close() error
}
