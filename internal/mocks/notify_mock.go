package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/unifiedui/message-warehouse/internal/core/notify"
)

// MockPublisher is a mock implementation of notify.Publisher.
type MockPublisher struct {
	mock.Mock
}

// Publish sends a payload on a topic.
func (m *MockPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	args := m.Called(ctx, topic, payload)
	return args.Error(0)
}

// Subscribe starts receiving events on a topic.
func (m *MockPublisher) Subscribe(ctx context.Context, topic string) (notify.Subscription, error) {
	args := m.Called(ctx, topic)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(notify.Subscription), args.Error(1)
}

// Ping checks the publisher connection.
func (m *MockPublisher) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Close closes the publisher connection.
func (m *MockPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockSubscription is a subscription fed by the test through Send.
type MockSubscription struct {
	mock.Mock
	events chan notify.Event
	once   sync.Once
}

// NewMockSubscription creates a subscription with a buffered event channel.
func NewMockSubscription(buffer int) *MockSubscription {
	return &MockSubscription{events: make(chan notify.Event, buffer)}
}

// Send delivers an event to the subscriber.
func (m *MockSubscription) Send(event notify.Event) {
	m.events <- event
}

// Events returns the event channel.
func (m *MockSubscription) Events() <-chan notify.Event {
	return m.events
}

// Close closes the event channel. Repeated calls are recorded but close it once.
func (m *MockSubscription) Close() error {
	args := m.Called()
	m.once.Do(func() { close(m.events) })
	return args.Error(0)
}
