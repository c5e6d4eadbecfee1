// Package mongodb provides the GridFS bucket implementation.
package mongodb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"

	"github.com/unifiedui/message-warehouse/internal/core/docdb"
)

// Bucket implements the docdb.Bucket interface on top of GridFS.
//
// GridFS buckets carry their deadlines as state, so a fresh bucket is
// opened for every operation and given the deadline of its context.
type Bucket struct {
	database *mongo.Database
}

// NewBucket creates a new GridFS bucket wrapper for the database.
func NewBucket(database *mongo.Database) (*Bucket, error) {
	if database == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}
	return &Bucket{database: database}, nil
}

func (b *Bucket) open(ctx context.Context) (*gridfs.Bucket, error) {
	bucket, err := gridfs.NewBucket(b.database)
	if err != nil {
		return nil, fmt.Errorf("failed to open gridfs bucket: %w", err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := bucket.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set gridfs read deadline: %w", err)
	}
	if err := bucket.SetWriteDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set gridfs write deadline: %w", err)
	}
	return bucket, nil
}

// Upload stores data as a new GridFS file.
func (b *Bucket) Upload(ctx context.Context, filename string, data []byte) (interface{}, error) {
	bucket, err := b.open(ctx)
	if err != nil {
		return nil, err
	}

	id, err := bucket.UploadFromStream(filename, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", filename, err)
	}
	return id, nil
}

// Download reads the whole GridFS file with the given id.
func (b *Bucket) Download(ctx context.Context, fileID interface{}) ([]byte, error) {
	bucket, err := b.open(ctx)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := bucket.DownloadToStream(fileID, &buf); err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, docdb.ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to download file %v: %w", fileID, err)
	}
	return buf.Bytes(), nil
}

// Delete removes the GridFS file and its chunks.
func (b *Bucket) Delete(ctx context.Context, fileID interface{}) error {
	bucket, err := b.open(ctx)
	if err != nil {
		return err
	}

	if err := bucket.Delete(fileID); err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return docdb.ErrFileNotFound
		}
		return fmt.Errorf("failed to delete file %v: %w", fileID, err)
	}
	return nil
}
