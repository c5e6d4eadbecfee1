package warehouse

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/unifiedui/message-warehouse/internal/core/docdb"
)

// SchemaCollection records the message type stored in every collection of
// a database.
const SchemaCollection = "message_collections"

// SchemaEntry is the registry document of one collection.
type SchemaEntry struct {
	Name   string `bson:"name" json:"name"`
	Type   string `bson:"type" json:"type"`
	MD5Sum string `bson:"md5sum" json:"md5sum"`
}

// checkSchema registers entry on first use of the collection, otherwise
// compares it with the stored one. It returns the stored entry and
// whether the digests match.
func checkSchema(ctx context.Context, registry docdb.Collection, entry SchemaEntry) (SchemaEntry, bool, error) {
	if _, err := registry.CreateUniqueIndex(ctx, []docdb.IndexField{{Field: "name"}}); err != nil {
		return SchemaEntry{}, false, fmt.Errorf("failed to index %s: %w", SchemaCollection, err)
	}

	stored, err := readSchema(ctx, registry, entry.Name)
	if errors.Is(err, docdb.ErrNoDocuments) {
		_, err = registry.InsertOne(ctx, entry)
		if err == nil {
			return entry, true, nil
		}
		if !errors.Is(err, docdb.ErrDuplicateKey) {
			return SchemaEntry{}, false, fmt.Errorf("failed to register schema of %s: %w", entry.Name, err)
		}
		// Another process registered the collection first.
		stored, err = readSchema(ctx, registry, entry.Name)
	}
	if err != nil {
		return SchemaEntry{}, false, fmt.Errorf("failed to read schema of %s: %w", entry.Name, err)
	}

	return stored, stored.MD5Sum == entry.MD5Sum, nil
}

func readSchema(ctx context.Context, registry docdb.Collection, name string) (SchemaEntry, error) {
	var stored SchemaEntry
	err := registry.FindOne(ctx, bson.D{{Key: "name", Value: name}}).Decode(&stored)
	return stored, err
}

// ListSchemas returns the registry entries of every message collection in
// db, ordered by name.
func ListSchemas(ctx context.Context, db docdb.Database) ([]SchemaEntry, error) {
	cursor, err := db.Collection(SchemaCollection).Find(ctx, bson.D{}, &docdb.FindOptions{
		Sort: bson.D{{Key: "name", Value: 1}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list collections of %s: %w", db.Name(), err)
	}

	entries := make([]SchemaEntry, 0)
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode schema entries: %w", err)
	}
	return entries, nil
}
