// Package warehouse stores typed messages in a document database.
//
// A MessageCollection keeps each message as a serialized blob in the
// database's large-object bucket and a metadata document in a regular
// collection. The metadata document carries the caller's key/values plus
// a generated _id, creation_time and the blob reference, and is what
// queries run against.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/unifiedui/message-warehouse/internal/config"
	"github.com/unifiedui/message-warehouse/internal/core/docdb"
	"github.com/unifiedui/message-warehouse/internal/core/notify"
	domainerrors "github.com/unifiedui/message-warehouse/internal/domain/errors"
	"github.com/unifiedui/message-warehouse/internal/domain/models"
	"github.com/unifiedui/message-warehouse/internal/infrastructure/docdb/mongodb"
	"github.com/unifiedui/message-warehouse/internal/pkg/metrics"
)

// InsertionTopic is the topic inserts into database.collection are announced on.
func InsertionTopic(database, collection string) string {
	return fmt.Sprintf("warehouse/%s/%s/inserts", database, collection)
}

// ValidateNames checks that database and collection can name a MongoDB
// namespace holding messages.
func ValidateNames(database, collection string) error {
	switch {
	case database == "" || collection == "":
		return domainerrors.NewValidationError("database and collection names are required", "")
	case strings.ContainsAny(database, "/\\. \"$\x00"):
		return domainerrors.NewValidationError("invalid database name", database)
	case strings.ContainsAny(collection, "$\x00") || strings.HasPrefix(collection, "system."):
		return domainerrors.NewValidationError("invalid collection name", collection)
	case collection == SchemaCollection:
		return domainerrors.NewValidationError("collection name is reserved", collection)
	}
	return nil
}

// Options selects the target collection and its collaborators.
type Options struct {
	Database   string
	Collection string

	// Publisher receives insertion notifications. Nil discards them.
	Publisher notify.Publisher
	// Logger defaults to the global zerolog logger.
	Logger *zerolog.Logger
	// Metrics is optional.
	Metrics *metrics.Metrics
}

// ConnectionConfig describes how Open reaches the database. Empty Host and
// zero Port fall back to the WAREHOUSE_HOST and WAREHOUSE_PORT settings.
type ConnectionConfig struct {
	URI     string
	Host    string
	Port    int
	Timeout time.Duration
}

// MessageCollection is a handle on one collection of messages of type M.
type MessageCollection[M any] struct {
	client     docdb.Client
	ownsClient bool

	coll      docdb.Collection
	bucket    docdb.Bucket
	codec     Codec[M]
	publisher notify.Publisher
	logger    zerolog.Logger
	metrics   *metrics.Metrics

	database      string
	name          string
	namespace     string
	topic         string
	schema        SchemaEntry
	md5sumMatches bool

	now func() time.Time
}

// Connect returns a client for conn. Connecting is retried until
// conn.Timeout (default 300s).
func Connect(ctx context.Context, conn ConnectionConfig) (docdb.Client, error) {
	clientCfg := &mongodb.ClientConfig{
		URI:            conn.URI,
		Host:           conn.Host,
		Port:           conn.Port,
		ConnectTimeout: conn.Timeout,
	}
	if clientCfg.URI == "" && (clientCfg.Host == "" || clientCfg.Port == 0) {
		host, port := config.LookupWarehouseAddress()
		if clientCfg.Host == "" {
			clientCfg.Host = host
		}
		if clientCfg.Port == 0 {
			clientCfg.Port = port
		}
	}

	client, err := mongodb.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, domainerrors.NewConnectError(mongodb.BuildURI(clientCfg), err)
	}
	return client, nil
}

// Open connects to the database and returns a handle that owns the
// connection.
func Open[M any](ctx context.Context, conn ConnectionConfig, codec Codec[M], opts Options) (*MessageCollection[M], error) {
	client, err := Connect(ctx, conn)
	if err != nil {
		return nil, err
	}

	c, err := New(ctx, client, codec, opts)
	if err != nil {
		_ = client.Close(context.Background())
		return nil, err
	}
	c.ownsClient = true
	return c, nil
}

// New binds a handle to an existing client. It ensures the creation_time
// index and checks the codec digest against the schema registry.
func New[M any](ctx context.Context, client docdb.Client, codec Codec[M], opts Options) (*MessageCollection[M], error) {
	if client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}
	if codec == nil {
		return nil, fmt.Errorf("codec cannot be nil")
	}
	if err := ValidateNames(opts.Database, opts.Collection); err != nil {
		return nil, err
	}

	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	publisher := opts.Publisher
	if publisher == nil {
		publisher = notify.NewNoopPublisher()
	}

	db := client.Database(opts.Database)
	bucket, err := db.Bucket()
	if err != nil {
		return nil, fmt.Errorf("failed to open large-object bucket: %w", err)
	}

	namespace := opts.Database + "." + opts.Collection
	c := &MessageCollection[M]{
		client:    client,
		coll:      db.Collection(opts.Collection),
		bucket:    bucket,
		codec:     codec,
		publisher: publisher,
		metrics:   opts.Metrics,
		database:  opts.Database,
		name:      opts.Collection,
		namespace: namespace,
		topic:     InsertionTopic(opts.Database, opts.Collection),
		logger: logger.With().
			Str("component", "warehouse").
			Str("collection", namespace).
			Logger(),
		now: time.Now,
	}

	if _, err := c.coll.CreateIndex(ctx, []docdb.IndexField{{Field: models.FieldCreationTime}}); err != nil {
		return nil, err
	}

	entry := SchemaEntry{Name: opts.Collection, Type: codec.TypeName(), MD5Sum: codec.Digest()}
	stored, matches, err := checkSchema(ctx, db.Collection(SchemaCollection), entry)
	if err != nil {
		return nil, err
	}
	c.schema = stored
	c.md5sumMatches = matches
	if !matches {
		c.metrics.SchemaMismatch(namespace)
		c.logger.Error().
			Str("stored_type", stored.Type).
			Str("stored_md5sum", stored.MD5Sum).
			Str("type", entry.Type).
			Str("md5sum", entry.MD5Sum).
			Msg("message type differs from the one stored in this collection")
	}

	return c, nil
}

// Namespace returns "database.collection".
func (c *MessageCollection[M]) Namespace() string {
	return c.namespace
}

// InsertionTopic returns the topic inserts are announced on.
func (c *MessageCollection[M]) InsertionTopic() string {
	return c.topic
}

// Schema returns the registry entry stored for the collection.
func (c *MessageCollection[M]) Schema() SchemaEntry {
	return c.schema
}

// MD5SumMatches reports whether messages previously stored in the
// collection have the same digest as the codec.
func (c *MessageCollection[M]) MD5SumMatches() bool {
	return c.md5sumMatches
}

// Insert stores msg with metadata and announces it on InsertionTopic.
// The _id and creation_time fields are generated.
func (c *MessageCollection[M]) Insert(ctx context.Context, msg M, metadata models.Metadata) (id primitive.ObjectID, err error) {
	defer c.observe("insert", time.Now(), &err)

	if err := metadata.Validate(); err != nil {
		return primitive.NilObjectID, err
	}

	data, err := c.codec.Marshal(msg)
	if err != nil {
		return primitive.NilObjectID, domainerrors.NewBadRequestError("message cannot be serialized", err.Error())
	}

	id = primitive.NewObjectID()
	blobID, err := c.bucket.Upload(ctx, id.Hex(), data)
	if err != nil {
		return primitive.NilObjectID, domainerrors.FromContext("insert", err)
	}
	c.metrics.AddBlobBytes(c.namespace, "write", len(data))

	record := models.MessageRecord{
		ID:           id,
		CreationTime: c.now().UTC().Truncate(time.Millisecond),
		BlobID:       blobID,
		Metadata:     metadata,
	}
	doc := record.Document()

	if _, err := c.coll.InsertOne(ctx, doc); err != nil {
		if delErr := c.bucket.Delete(context.WithoutCancel(ctx), blobID); delErr != nil {
			c.logger.Warn().Err(delErr).Str("blob_id", fmt.Sprint(blobID)).Msg("failed to remove blob of rejected insert")
		}
		return primitive.NilObjectID, domainerrors.FromContext("insert", err)
	}

	c.announce(ctx, doc)

	c.logger.Debug().Str("id", id.Hex()).Int("bytes", len(data)).Msg("message inserted")
	return id, nil
}

// announce publishes the inserted metadata document. Failures are logged
// and do not undo the insert.
func (c *MessageCollection[M]) announce(ctx context.Context, doc bson.D) {
	payload, err := bson.MarshalExtJSON(doc, false, false)
	if err == nil {
		err = c.publisher.Publish(ctx, c.topic, payload)
	}
	c.metrics.ObserveNotification(c.namespace, err)
	if err != nil {
		c.logger.Warn().Err(err).Str("topic", c.topic).Msg("failed to publish insert notification")
	}
}

// QueryResults returns an iterator over the messages matching query.
// A nil query matches every message.
func (c *MessageCollection[M]) QueryResults(ctx context.Context, query *models.Query, opts *models.QueryOptions) (results *QueryResults[M], err error) {
	defer c.observe("query", time.Now(), &err)

	if err := query.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	findOpts := &docdb.FindOptions{}
	if sort := opts.SortDocument(); sort != nil {
		findOpts.Sort = sort
	}
	metadataOnly := false
	if opts != nil {
		findOpts.Limit = opts.Limit
		metadataOnly = opts.MetadataOnly
	}

	cursor, err := c.coll.Find(ctx, query.Filter(), findOpts)
	if err != nil {
		return nil, domainerrors.FromContext("query", err)
	}

	onRead := func(n int) { c.metrics.AddBlobBytes(c.namespace, "read", n) }
	return newQueryResults(cursor, c.bucket, c.codec, metadataOnly, onRead), nil
}

// PullAllResults returns every message matching query.
func (c *MessageCollection[M]) PullAllResults(ctx context.Context, query *models.Query, opts *models.QueryOptions) ([]*MessageWithMetadata[M], error) {
	results, err := c.QueryResults(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	return results.All(ctx)
}

// FindOne returns a single message matching query, or a no-matching-message
// error when there is none.
func (c *MessageCollection[M]) FindOne(ctx context.Context, query *models.Query, metadataOnly bool) (*MessageWithMetadata[M], error) {
	results, err := c.QueryResults(ctx, query, &models.QueryOptions{MetadataOnly: metadataOnly, Limit: 1})
	if err != nil {
		return nil, err
	}
	defer results.Close(ctx)

	if results.Next(ctx) {
		return results.Result(), nil
	}
	if err := results.Err(); err != nil {
		return nil, err
	}
	return nil, domainerrors.NewNoMatchingMessageError(c.namespace)
}

// RemoveMessages deletes every message matching query, metadata and blob,
// and returns how many were removed.
func (c *MessageCollection[M]) RemoveMessages(ctx context.Context, query *models.Query) (removed int64, err error) {
	defer c.observe("remove", time.Now(), &err)

	if err := query.Validate(); err != nil {
		return 0, err
	}

	cursor, err := c.coll.Find(ctx, query.Filter(), &docdb.FindOptions{
		Projection: bson.D{{Key: models.FieldID, Value: 1}, {Key: models.FieldBlobID, Value: 1}},
	})
	if err != nil {
		return 0, domainerrors.FromContext("remove", err)
	}

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return 0, fmt.Errorf("failed to read messages to remove: %w", err)
	}
	if len(docs) == 0 {
		return 0, nil
	}

	ids := make(bson.A, 0, len(docs))
	blobs := make([]interface{}, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc[models.FieldID])
		if blobID, ok := doc[models.FieldBlobID]; ok && blobID != nil {
			blobs = append(blobs, blobID)
		}
	}

	result, err := c.coll.DeleteMany(ctx, bson.D{{Key: models.FieldID, Value: bson.D{{Key: "$in", Value: ids}}}})
	if err != nil {
		return 0, domainerrors.FromContext("remove", err)
	}

	// Blobs are deleted after their records; a failure leaves orphan blobs only.
	var blobErr error
	for _, blobID := range blobs {
		if err := c.bucket.Delete(ctx, blobID); err != nil && !errors.Is(err, docdb.ErrFileNotFound) {
			c.logger.Warn().Err(err).Str("blob_id", fmt.Sprint(blobID)).Msg("failed to delete blob of removed message")
			if blobErr == nil {
				blobErr = err
			}
		}
	}

	c.logger.Debug().Int64("removed", result.DeletedCount).Msg("messages removed")
	if blobErr != nil {
		return result.DeletedCount, fmt.Errorf("messages removed but blobs remain: %w", blobErr)
	}
	return result.DeletedCount, nil
}

// EnsureIndex creates an ascending index on field. Indexes on _id and
// creation_time always exist.
func (c *MessageCollection[M]) EnsureIndex(ctx context.Context, field string) (err error) {
	defer c.observe("ensure_index", time.Now(), &err)

	if field == "" {
		return domainerrors.NewValidationError("index field cannot be empty", "")
	}
	if _, err := c.coll.CreateIndex(ctx, []docdb.IndexField{{Field: field}}); err != nil {
		return domainerrors.FromContext("ensure index", err)
	}
	return nil
}

// ModifyMetadata merges metadata into the first message matching query.
// Keys absent from metadata keep their values; generated fields cannot be
// changed.
func (c *MessageCollection[M]) ModifyMetadata(ctx context.Context, query *models.Query, metadata models.Metadata) (err error) {
	defer c.observe("modify_metadata", time.Now(), &err)

	if err := query.Validate(); err != nil {
		return err
	}
	if err := metadata.Validate(); err != nil {
		return err
	}

	if len(metadata) == 0 {
		var doc bson.M
		err := c.coll.FindOne(ctx, query.Filter()).Decode(&doc)
		if errors.Is(err, docdb.ErrNoDocuments) {
			return domainerrors.NewNoMatchingMessageError(c.namespace)
		}
		return domainerrors.FromContext("modify metadata", err)
	}

	update := bson.D{{Key: "$set", Value: metadata.ToBSON()}}
	result, err := c.coll.UpdateOne(ctx, query.Filter(), update)
	if err != nil {
		return domainerrors.FromContext("modify metadata", err)
	}
	if result.MatchedCount == 0 {
		return domainerrors.NewNoMatchingMessageError(c.namespace)
	}
	return nil
}

// Count returns the number of messages in the collection.
func (c *MessageCollection[M]) Count(ctx context.Context) (count int64, err error) {
	defer c.observe("count", time.Now(), &err)

	count, err = c.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, domainerrors.FromContext("count", err)
	}
	return count, nil
}

// Close releases the connection if the handle was created by Open.
func (c *MessageCollection[M]) Close(ctx context.Context) error {
	if !c.ownsClient {
		return nil
	}
	return c.client.Close(ctx)
}

func (c *MessageCollection[M]) observe(operation string, start time.Time, err *error) {
	c.metrics.ObserveOperation(c.namespace, operation, start, *err)
}
