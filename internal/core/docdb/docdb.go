// Package docdb defines the document database interface.
package docdb

import (
	"context"
	"errors"
)

// ErrNoDocuments is returned by SingleResult when no document matched the filter.
var ErrNoDocuments = errors.New("no documents in result")

// ErrDuplicateKey is returned when a write violates a unique index.
var ErrDuplicateKey = errors.New("duplicate key")

// ErrFileNotFound is returned by Bucket when the requested blob does not exist.
var ErrFileNotFound = errors.New("file not found")

// SingleResult represents the result of a FindOne operation.
type SingleResult interface {
	// Decode decodes the result into the provided interface.
	Decode(v interface{}) error
	// Err returns any error from the operation.
	Err() error
}

// Cursor represents a cursor for iterating over query results.
type Cursor interface {
	// Next advances the cursor to the next document.
	Next(ctx context.Context) bool
	// Decode decodes the current document.
	Decode(v interface{}) error
	// All decodes all remaining documents.
	All(ctx context.Context, results interface{}) error
	// Err returns any cursor error.
	Err() error
	// Close closes the cursor.
	Close(ctx context.Context) error
}

// FindOptions represents options for Find operations.
type FindOptions struct {
	Limit      int64
	Skip       int64
	Sort       interface{}
	Projection interface{}
}

// UpdateResult represents the result of an update operation.
type UpdateResult struct {
	MatchedCount  int64
	ModifiedCount int64
	UpsertedCount int64
	UpsertedID    interface{}
}

// DeleteResult represents the result of a delete operation.
type DeleteResult struct {
	DeletedCount int64
}

// IndexField describes one key of an index.
type IndexField struct {
	Field      string
	Descending bool
}

// Collection defines the interface for document collection operations.
type Collection interface {
	// Name returns the collection name.
	Name() string

	// InsertOne inserts a single document.
	InsertOne(ctx context.Context, document interface{}) (interface{}, error)

	// FindOne finds a single document.
	FindOne(ctx context.Context, filter interface{}) SingleResult

	// Find finds multiple documents.
	Find(ctx context.Context, filter interface{}, opts *FindOptions) (Cursor, error)

	// UpdateOne updates a single document.
	UpdateOne(ctx context.Context, filter interface{}, update interface{}) (*UpdateResult, error)

	// DeleteOne deletes a single document.
	DeleteOne(ctx context.Context, filter interface{}) (*DeleteResult, error)

	// DeleteMany deletes multiple documents.
	DeleteMany(ctx context.Context, filter interface{}) (*DeleteResult, error)

	// CountDocuments counts documents matching the filter.
	CountDocuments(ctx context.Context, filter interface{}) (int64, error)

	// CreateIndex creates an index over the given keys if it does not exist
	// and returns its name.
	CreateIndex(ctx context.Context, keys []IndexField) (string, error)

	// CreateUniqueIndex is CreateIndex with a uniqueness constraint. Inserts
	// that would duplicate an indexed value fail with ErrDuplicateKey.
	CreateUniqueIndex(ctx context.Context, keys []IndexField) (string, error)
}

// Bucket stores binary payloads that exceed ordinary document size limits.
type Bucket interface {
	// Upload stores data under filename and returns the generated file id.
	Upload(ctx context.Context, filename string, data []byte) (interface{}, error)

	// Download returns the content of the file with the given id.
	// Returns ErrFileNotFound if no such file exists.
	Download(ctx context.Context, fileID interface{}) ([]byte, error)

	// Delete removes the file with the given id.
	// Returns ErrFileNotFound if no such file exists.
	Delete(ctx context.Context, fileID interface{}) error
}

// Database defines the interface for database operations.
type Database interface {
	// Name returns the database name.
	Name() string

	// Collection returns a collection by name.
	Collection(name string) Collection

	// Bucket returns the large-object bucket of the database.
	Bucket() (Bucket, error)

	// ListCollectionNames lists all collection names.
	ListCollectionNames(ctx context.Context) ([]string, error)
}
