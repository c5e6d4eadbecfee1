package mongodb_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/unifiedui/message-warehouse/internal/core/docdb"
	"github.com/unifiedui/message-warehouse/internal/infrastructure/docdb/mongodb"
)

func TestCollection_MockDeployment(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("insert one returns id", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		coll := mongodb.NewCollection(mt.Coll)

		id, err := coll.InsertOne(ctx, bson.D{{Key: "_id", Value: "rec-1"}, {Key: "x", Value: 1}})

		require.NoError(t, err)
		assert.Equal(t, "rec-1", id)
	})

	mt.Run("insert one surfaces write errors", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key error",
		}))
		coll := mongodb.NewCollection(mt.Coll)

		_, err := coll.InsertOne(ctx, bson.D{{Key: "_id", Value: "rec-1"}})

		assert.ErrorIs(t, err, docdb.ErrDuplicateKey)
	})

	mt.Run("find one without match maps to ErrNoDocuments", func(mt *mtest.T) {
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))
		coll := mongodb.NewCollection(mt.Coll)

		var out bson.M
		err := coll.FindOne(ctx, bson.D{{Key: "name", Value: "missing"}}).Decode(&out)

		assert.ErrorIs(t, err, docdb.ErrNoDocuments)
	})

	mt.Run("find one decodes document", func(mt *mtest.T) {
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "rec-1"},
			{Key: "name", Value: "pose"},
		}))
		coll := mongodb.NewCollection(mt.Coll)

		var out bson.M
		err := coll.FindOne(ctx, bson.D{{Key: "name", Value: "pose"}}).Decode(&out)

		require.NoError(t, err)
		assert.Equal(t, "pose", out["name"])
	})

	mt.Run("find iterates all documents", func(mt *mtest.T) {
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "a"}},
			bson.D{{Key: "_id", Value: "b"}},
		))
		coll := mongodb.NewCollection(mt.Coll)

		cursor, err := coll.Find(ctx, bson.D{}, &docdb.FindOptions{
			Limit:      10,
			Sort:       bson.D{{Key: "creation_time", Value: 1}},
			Projection: bson.D{{Key: "_id", Value: 1}},
		})
		require.NoError(t, err)
		defer cursor.Close(ctx)

		var docs []bson.M
		require.NoError(t, cursor.All(ctx, &docs))
		assert.Len(t, docs, 2)
	})

	mt.Run("find without sort or projection", func(mt *mtest.T) {
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "a"}},
		))
		coll := mongodb.NewCollection(mt.Coll)

		var sort bson.D
		cursor, err := coll.Find(ctx, bson.D{}, &docdb.FindOptions{Limit: 1, Sort: sort, Projection: bson.D{}})
		require.NoError(t, err)
		defer cursor.Close(ctx)

		var docs []bson.M
		require.NoError(t, cursor.All(ctx, &docs))
		assert.Len(t, docs, 1)
	})

	mt.Run("update one reports counts", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))
		coll := mongodb.NewCollection(mt.Coll)

		result, err := coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: "a"}}, bson.D{{Key: "$set", Value: bson.D{{Key: "k", Value: "v"}}}})

		require.NoError(t, err)
		assert.Equal(t, int64(1), result.MatchedCount)
		assert.Equal(t, int64(1), result.ModifiedCount)
	})

	mt.Run("delete many reports count", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 2}))
		coll := mongodb.NewCollection(mt.Coll)

		result, err := coll.DeleteMany(ctx, bson.D{{Key: "robot", Value: "r2"}})

		require.NoError(t, err)
		assert.Equal(t, int64(2), result.DeletedCount)
	})

	mt.Run("count documents", func(mt *mtest.T) {
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{{Key: "n", Value: int32(3)}}))
		coll := mongodb.NewCollection(mt.Coll)

		count, err := coll.CountDocuments(ctx, bson.D{})

		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
	})

	mt.Run("create index names the index after its keys", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		coll := mongodb.NewCollection(mt.Coll)

		name, err := coll.CreateIndex(ctx, []docdb.IndexField{{Field: "creation_time"}})

		require.NoError(t, err)
		assert.Equal(t, "idx_creation_time_1", name)
	})

	mt.Run("create unique index", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		coll := mongodb.NewCollection(mt.Coll)

		name, err := coll.CreateUniqueIndex(ctx, []docdb.IndexField{{Field: "name"}})

		require.NoError(t, err)
		assert.Equal(t, "idx_name_1", name)
	})

	mt.Run("create index requires keys", func(mt *mtest.T) {
		coll := mongodb.NewCollection(mt.Coll)

		_, err := coll.CreateIndex(ctx, nil)

		assert.Error(t, err)
	})
}
