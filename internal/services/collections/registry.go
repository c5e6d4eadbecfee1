// Package collections keeps the message collections served over the API open.
package collections

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/unifiedui/message-warehouse/internal/core/docdb"
	"github.com/unifiedui/message-warehouse/internal/core/notify"
	"github.com/unifiedui/message-warehouse/internal/pkg/metrics"
	"github.com/unifiedui/message-warehouse/internal/warehouse"
)

// StructCollection is a collection of schemaless JSON-like messages.
type StructCollection = warehouse.MessageCollection[*structpb.Struct]

// Registry hands out one StructCollection per database.collection. All
// handles share the registry's client and publisher.
type Registry struct {
	client    docdb.Client
	publisher notify.Publisher
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	codec     *warehouse.ProtoCodec[*structpb.Struct]

	handles map[string]*StructCollection
	mu      sync.RWMutex
}

// Config holds the dependencies of a Registry.
type Config struct {
	Client    docdb.Client
	Publisher notify.Publisher
	Metrics   *metrics.Metrics
	Logger    *zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg *Config) (*Registry, error) {
	if cfg == nil || cfg.Client == nil {
		return nil, fmt.Errorf("docdb client is required")
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = notify.NewNoopPublisher()
	}

	return &Registry{
		client:    cfg.Client,
		publisher: publisher,
		metrics:   cfg.Metrics,
		logger:    logger,
		codec:     warehouse.NewProtoCodec[*structpb.Struct](),
		handles:   make(map[string]*StructCollection),
	}, nil
}

// Get returns the handle of database.collection, opening it on first use.
func (r *Registry) Get(ctx context.Context, database, collection string) (*StructCollection, error) {
	if err := warehouse.ValidateNames(database, collection); err != nil {
		return nil, err
	}
	key := database + "." + collection

	r.mu.RLock()
	handle, ok := r.handles[key]
	r.mu.RUnlock()
	if ok {
		return handle, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if handle, ok := r.handles[key]; ok {
		return handle, nil
	}

	handle, err := warehouse.New[*structpb.Struct](ctx, r.client, r.codec, warehouse.Options{
		Database:   database,
		Collection: collection,
		Publisher:  r.publisher,
		Logger:     &r.logger,
		Metrics:    r.metrics,
	})
	if err != nil {
		return nil, err
	}

	r.handles[key] = handle
	r.logger.Info().Str("collection", key).Bool("md5sum_matches", handle.MD5SumMatches()).Msg("message collection opened")
	return handle, nil
}

// Schemas lists the registered message collections of database.
func (r *Registry) Schemas(ctx context.Context, database string) ([]warehouse.SchemaEntry, error) {
	if err := warehouse.ValidateNames(database, "_"); err != nil {
		return nil, err
	}
	return warehouse.ListSchemas(ctx, r.client.Database(database))
}

// Publisher returns the publisher insert notifications are sent through.
func (r *Registry) Publisher() notify.Publisher {
	return r.publisher
}

// Open lists the namespaces with an open handle.
func (r *Registry) Open() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.handles))
	for key := range r.handles {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Close forgets every handle. The shared client is owned by the caller.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, handle := range r.handles {
		if err := handle.Close(ctx); err != nil {
			r.logger.Warn().Err(err).Str("collection", key).Msg("failed to close message collection")
		}
	}
	r.handles = make(map[string]*StructCollection)
	return nil
}
