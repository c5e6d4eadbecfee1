// Package notify provides the publisher type constants.
package notify

// Type represents the type of notification publisher.
type Type string

const (
	// TypeRedis publishes over Redis pub/sub.
	TypeRedis Type = "redis"
	// TypeNone discards notifications.
	TypeNone Type = "none"
)
