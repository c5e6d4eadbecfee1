package warehouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/unifiedui/message-warehouse/internal/core/docdb"
	"github.com/unifiedui/message-warehouse/internal/domain/models"
)

// MessageWithMetadata is a stored message together with its metadata.
type MessageWithMetadata[M any] struct {
	Message      M
	ID           primitive.ObjectID
	CreationTime time.Time
	Metadata     models.Metadata
}

// QueryResults iterates over the messages matching a query. Payloads are
// fetched one at a time as the iterator advances.
//
//	results, err := coll.QueryResults(ctx, query, nil)
//	if err != nil { ... }
//	defer results.Close(ctx)
//	for results.Next(ctx) {
//	    m := results.Result()
//	}
//	if err := results.Err(); err != nil { ... }
type QueryResults[M any] struct {
	cursor       docdb.Cursor
	bucket       docdb.Bucket
	codec        Codec[M]
	metadataOnly bool
	onRead       func(n int)

	current *MessageWithMetadata[M]
	err     error
}

func newQueryResults[M any](cursor docdb.Cursor, bucket docdb.Bucket, codec Codec[M], metadataOnly bool, onRead func(int)) *QueryResults[M] {
	return &QueryResults[M]{
		cursor:       cursor,
		bucket:       bucket,
		codec:        codec,
		metadataOnly: metadataOnly,
		onRead:       onRead,
	}
}

// Next advances to the next result. It returns false when the results are
// exhausted or an error occurred; check Err afterwards.
func (r *QueryResults[M]) Next(ctx context.Context) bool {
	r.current = nil
	if r.err != nil {
		return false
	}
	if !r.cursor.Next(ctx) {
		return false
	}

	var doc bson.M
	if err := r.cursor.Decode(&doc); err != nil {
		r.err = fmt.Errorf("failed to decode metadata document: %w", err)
		return false
	}

	record := models.RecordFromDocument(doc)
	result := &MessageWithMetadata[M]{
		ID:           record.ID,
		CreationTime: record.CreationTime,
		Metadata:     record.Metadata,
	}

	if r.metadataOnly {
		result.Message = r.codec.New()
		r.current = result
		return true
	}

	msg, err := r.load(ctx, record)
	if err != nil {
		r.err = err
		return false
	}
	result.Message = msg
	r.current = result
	return true
}

func (r *QueryResults[M]) load(ctx context.Context, record models.MessageRecord) (M, error) {
	var zero M
	if record.BlobID == nil {
		return zero, fmt.Errorf("message %s has no blob reference", record.ID.Hex())
	}

	data, err := r.bucket.Download(ctx, record.BlobID)
	if err != nil {
		if errors.Is(err, docdb.ErrFileNotFound) {
			return zero, fmt.Errorf("blob of message %s is missing: %w", record.ID.Hex(), err)
		}
		return zero, fmt.Errorf("failed to load message %s: %w", record.ID.Hex(), err)
	}
	if r.onRead != nil {
		r.onRead(len(data))
	}

	msg, err := r.codec.Unmarshal(data)
	if err != nil {
		return zero, fmt.Errorf("failed to deserialize message %s: %w", record.ID.Hex(), err)
	}
	return msg, nil
}

// Result returns the result Next advanced to.
func (r *QueryResults[M]) Result() *MessageWithMetadata[M] {
	return r.current
}

// Err returns the first error met while iterating.
func (r *QueryResults[M]) Err() error {
	if r.err != nil {
		return r.err
	}
	if err := r.cursor.Err(); err != nil {
		return fmt.Errorf("cursor failed: %w", err)
	}
	return nil
}

// Close releases the underlying cursor.
func (r *QueryResults[M]) Close(ctx context.Context) error {
	return r.cursor.Close(ctx)
}

// All drains the remaining results and closes the iterator.
func (r *QueryResults[M]) All(ctx context.Context) ([]*MessageWithMetadata[M], error) {
	defer r.Close(ctx)

	results := make([]*MessageWithMetadata[M], 0)
	for r.Next(ctx) {
		results = append(results, r.Result())
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
