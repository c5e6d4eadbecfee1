package notify

import "context"

// NoopPublisher discards every notification.
type NoopPublisher struct{}

// NewNoopPublisher creates a publisher that drops all events.
func NewNoopPublisher() *NoopPublisher {
	return &NoopPublisher{}
}

// Publish drops the event.
func (p *NoopPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	return nil
}

// Subscribe always fails with ErrSubscribeUnsupported.
func (p *NoopPublisher) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	return nil, ErrSubscribeUnsupported
}

// Ping always succeeds.
func (p *NoopPublisher) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (p *NoopPublisher) Close() error {
	return nil
}
