// Package mongodb provides MongoDB client implementation.
package mongodb

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/unifiedui/message-warehouse/internal/core/docdb"
)

const (
	// DefaultConnectTimeout bounds how long NewClient keeps retrying.
	DefaultConnectTimeout = 300 * time.Second

	// attemptTimeout bounds a single connection attempt.
	attemptTimeout = 5 * time.Second
)

// Client implements the docdb.Client interface for MongoDB.
type Client struct {
	client *mongo.Client
}

// ClientConfig holds MongoDB connection configuration.
// URI takes precedence over Host and Port.
type ClientConfig struct {
	URI            string
	Host           string
	Port           int
	Username       string
	Password       string
	AuthSource     string
	ConnectTimeout time.Duration
}

// BuildURI returns the connection string for the configuration.
func BuildURI(config *ClientConfig) string {
	if config.URI != "" {
		return config.URI
	}

	var uri strings.Builder
	uri.WriteString("mongodb://")

	if config.Username != "" {
		uri.WriteString(url.QueryEscape(config.Username))
		if config.Password != "" {
			uri.WriteString(":")
			uri.WriteString(url.QueryEscape(config.Password))
		}
		uri.WriteString("@")
	}

	uri.WriteString(config.Host)
	if config.Port != 0 {
		uri.WriteString(fmt.Sprintf(":%d", config.Port))
	}
	uri.WriteString("/")

	if config.AuthSource != "" && config.AuthSource != "admin" {
		params := url.Values{}
		params.Add("authSource", config.AuthSource)
		uri.WriteString("?")
		uri.WriteString(params.Encode())
	}

	return uri.String()
}

// NewClient creates a new MongoDB client. Connection attempts are retried
// with exponential backoff until ConnectTimeout elapses.
func NewClient(ctx context.Context, config *ClientConfig) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.URI == "" && config.Host == "" {
		return nil, fmt.Errorf("mongodb URI or host is required")
	}

	timeout := config.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	perAttempt := attemptTimeout
	if timeout < perAttempt {
		perAttempt = timeout
	}

	clientOpts := options.Client().
		ApplyURI(BuildURI(config)).
		SetConnectTimeout(perAttempt).
		SetServerSelectionTimeout(perAttempt)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = timeout

	attempt := 0
	ping := func() error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, perAttempt)
		defer cancel()
		return client.Ping(pingCtx, nil)
	}
	notify := func(err error, wait time.Duration) {
		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msg("mongodb not reachable yet")
	}

	// Verify connection
	if err := backoff.RetryNotify(ping, backoff.WithContext(policy, ctx), notify); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb within %s: %w", timeout, err)
	}

	return &Client{client: client}, nil
}

// Database returns the database with the given name.
func (c *Client) Database(name string) docdb.Database {
	return NewDatabase(c.client.Database(name))
}

// Ping verifies the connection to MongoDB.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("mongodb ping failed: %w", err)
	}
	return nil
}

// Close closes the MongoDB connection.
func (c *Client) Close(ctx context.Context) error {
	if err := c.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from mongodb: %w", err)
	}
	return nil
}
