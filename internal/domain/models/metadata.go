// Package models contains domain models for the message warehouse.
package models

import (
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	domainerrors "github.com/unifiedui/message-warehouse/internal/domain/errors"
)

// Generated fields present on every stored record.
const (
	FieldID           = "_id"
	FieldCreationTime = "creation_time"
	FieldBlobID       = "blob_id"
)

// Metadata holds the user-defined key/value annotations of a stored message.
type Metadata map[string]interface{}

// IsReservedField reports whether key is generated by the warehouse and
// therefore cannot be set by callers.
func IsReservedField(key string) bool {
	switch key {
	case FieldID, FieldCreationTime, FieldBlobID:
		return true
	}
	return false
}

// Validate checks that every key can be stored as a top-level field.
func (m Metadata) Validate() error {
	for key := range m {
		switch {
		case key == "":
			return domainerrors.NewValidationError("metadata key cannot be empty", "")
		case IsReservedField(key):
			return domainerrors.NewValidationError("metadata key is reserved", key)
		case strings.HasPrefix(key, "$"):
			return domainerrors.NewValidationError("metadata key cannot start with '$'", key)
		case strings.Contains(key, "."):
			return domainerrors.NewValidationError("metadata key cannot contain '.'", key)
		}
	}
	return nil
}

// Keys returns the metadata keys in sorted order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// ToBSON returns the metadata as an ordered document with sorted keys.
func (m Metadata) ToBSON() bson.D {
	doc := make(bson.D, 0, len(m))
	for _, key := range m.Keys() {
		doc = append(doc, bson.E{Key: key, Value: m[key]})
	}
	return doc
}

// MetadataFromDocument extracts the user metadata of a stored document,
// dropping generated fields and converting driver types to plain Go values.
func MetadataFromDocument(doc bson.M) Metadata {
	m := make(Metadata, len(doc))
	for key, value := range doc {
		if IsReservedField(key) {
			continue
		}
		m[key] = normalizeValue(value)
	}
	return m
}

func normalizeValue(value interface{}) interface{} {
	switch v := value.(type) {
	case primitive.DateTime:
		return v.Time().UTC()
	case primitive.A:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = normalizeValue(item)
		}
		return out
	case bson.M:
		out := make(map[string]interface{}, len(v))
		for key, item := range v {
			out[key] = normalizeValue(item)
		}
		return out
	case bson.D:
		out := make(map[string]interface{}, len(v))
		for _, e := range v {
			out[e.Key] = normalizeValue(e.Value)
		}
		return out
	default:
		return v
	}
}

// MessageRecord is the metadata document stored next to every blob.
type MessageRecord struct {
	ID           primitive.ObjectID
	CreationTime time.Time
	BlobID       interface{}
	Metadata     Metadata
}

// RecordFromDocument splits a stored document into generated fields and metadata.
func RecordFromDocument(doc bson.M) MessageRecord {
	record := MessageRecord{
		BlobID:   doc[FieldBlobID],
		Metadata: MetadataFromDocument(doc),
	}
	if id, ok := doc[FieldID].(primitive.ObjectID); ok {
		record.ID = id
	}
	switch ct := doc[FieldCreationTime].(type) {
	case primitive.DateTime:
		record.CreationTime = ct.Time().UTC()
	case time.Time:
		record.CreationTime = ct.UTC()
	}
	return record
}

// Document builds the stored form of the record: generated fields first,
// then metadata in key order.
func (r MessageRecord) Document() bson.D {
	doc := bson.D{
		{Key: FieldID, Value: r.ID},
		{Key: FieldCreationTime, Value: r.CreationTime},
		{Key: FieldBlobID, Value: r.BlobID},
	}
	return append(doc, r.Metadata.ToBSON()...)
}
