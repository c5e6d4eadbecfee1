package dto_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/unifiedui/message-warehouse/internal/api/dto"
	"github.com/unifiedui/message-warehouse/internal/domain/models"
)

func TestNormalizeJSON(t *testing.T) {
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(`{"n": 3, "f": 2.5, "list": [1, 1.5], "nested": {"k": 10}, "s": "x"}`), &decoded))

	m := dto.ToMetadata(decoded)

	assert.Equal(t, int64(3), m["n"])
	assert.Equal(t, 2.5, m["f"])
	assert.Equal(t, []interface{}{int64(1), 1.5}, m["list"])
	assert.Equal(t, map[string]interface{}{"k": int64(10)}, m["nested"])
	assert.Equal(t, "x", m["s"])
}

func TestToMetadata_Nil(t *testing.T) {
	m := dto.ToMetadata(nil)

	assert.NotNil(t, m)
	assert.Empty(t, m)
}

func TestToQuery(t *testing.T) {
	q := dto.ToQuery([]models.Condition{
		{Field: "n", Operator: models.OpGt, Value: 2.0},
		{Field: "room", Value: "hall"},
	})

	require.NoError(t, q.Validate())
	assert.Equal(t, bson.D{
		{Key: "n", Value: bson.D{{Key: "$gt", Value: int64(2)}}},
		{Key: "room", Value: bson.D{{Key: "$eq", Value: "hall"}}},
	}, q.Filter())
}
