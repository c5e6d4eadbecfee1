package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	domainerrors "github.com/unifiedui/message-warehouse/internal/domain/errors"
	"github.com/unifiedui/message-warehouse/internal/domain/models"
)

func TestQuery_NilMatchesEverything(t *testing.T) {
	var q *models.Query

	assert.Equal(t, bson.D{}, q.Filter())
	assert.NoError(t, q.Validate())
	assert.Nil(t, q.Conditions())
}

func TestQuery_Filter(t *testing.T) {
	q := models.NewQuery().
		Eq("robot", "r2").
		Gte("x", 1).
		Lt("x", 5).
		In("label", "a", "b")

	assert.Equal(t, bson.D{
		{Key: "robot", Value: bson.D{{Key: "$eq", Value: "r2"}}},
		{Key: "x", Value: bson.D{{Key: "$gte", Value: 1}, {Key: "$lt", Value: 5}}},
		{Key: "label", Value: bson.D{{Key: "$in", Value: []interface{}{"a", "b"}}}},
	}, q.Filter())
}

func TestQuery_EmptyOperatorMeansEq(t *testing.T) {
	q := models.NewQuery(models.Condition{Field: "robot", Value: "r2"})

	assert.NoError(t, q.Validate())
	assert.Equal(t, bson.D{{Key: "robot", Value: bson.D{{Key: "$eq", Value: "r2"}}}}, q.Filter())
}

func TestQuery_Validate(t *testing.T) {
	tests := []struct {
		name string
		cond models.Condition
	}{
		{"empty field", models.Condition{Operator: models.OpEq, Value: 1}},
		{"unknown operator", models.Condition{Field: "x", Operator: "regex", Value: "a"}},
		{"in with scalar", models.Condition{Field: "x", Operator: models.OpIn, Value: 1}},
		{"malformed id", models.Condition{Field: "_id", Value: "mine"}},
		{"malformed id in list", models.Condition{Field: "_id", Operator: models.OpIn, Value: []interface{}{"65f0c0ffee0000000000abcd", "x"}}},
		{"malformed creation time", models.Condition{Field: "creation_time", Operator: models.OpGt, Value: "yesterday"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := models.NewQuery(tt.cond).Validate()
			assert.True(t, domainerrors.IsValidationError(err))
		})
	}
}

func TestQuery_GeneratedFields(t *testing.T) {
	id, err := primitive.ObjectIDFromHex("65f0c0ffee0000000000abcd")
	require.NoError(t, err)
	since := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	q := models.NewQuery().
		Eq("_id", id.Hex()).
		Gte("creation_time", "2024-03-01T13:00:00+01:00").
		In("_id", id.Hex())

	assert.NoError(t, q.Validate())
	assert.Equal(t, bson.D{
		{Key: "_id", Value: bson.D{
			{Key: "$eq", Value: id},
			{Key: "$in", Value: []interface{}{id}},
		}},
		{Key: "creation_time", Value: bson.D{{Key: "$gte", Value: since}}},
	}, q.Filter())
}

func TestQuery_GeneratedFieldsKeepTypedValues(t *testing.T) {
	id := primitive.NewObjectID()
	now := time.Now().UTC()

	q := models.NewQuery().Eq("_id", id).Lt("creation_time", now)

	assert.Equal(t, bson.D{
		{Key: "_id", Value: bson.D{{Key: "$eq", Value: id}}},
		{Key: "creation_time", Value: bson.D{{Key: "$lt", Value: now}}},
	}, q.Filter())
}

func TestQuery_ConditionsIsACopy(t *testing.T) {
	q := models.NewQuery().Eq("a", 1)

	conds := q.Conditions()
	conds[0].Field = "changed"

	assert.Equal(t, "a", q.Conditions()[0].Field)
}

func TestQueryOptions_SortDocument(t *testing.T) {
	var none *models.QueryOptions
	assert.Nil(t, none.SortDocument())
	assert.Nil(t, (&models.QueryOptions{}).SortDocument())

	asc := &models.QueryOptions{SortBy: "creation_time"}
	assert.Equal(t, bson.D{{Key: "creation_time", Value: 1}}, asc.SortDocument())

	desc := &models.QueryOptions{SortBy: "x", Order: models.SortOrderDesc}
	assert.Equal(t, bson.D{{Key: "x", Value: -1}}, desc.SortDocument())
}

func TestQueryOptions_Validate(t *testing.T) {
	assert.NoError(t, (*models.QueryOptions)(nil).Validate())
	assert.NoError(t, (&models.QueryOptions{Order: models.SortOrderDesc}).Validate())
	assert.Error(t, (&models.QueryOptions{Order: "sideways"}).Validate())
	assert.Error(t, (&models.QueryOptions{Limit: -1}).Validate())
}
