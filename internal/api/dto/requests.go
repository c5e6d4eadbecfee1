// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"encoding/json"
	"math"

	"github.com/unifiedui/message-warehouse/internal/domain/models"
)

// InsertMessageRequest represents the request body for storing a message.
type InsertMessageRequest struct {
	// Message is any JSON object; it is stored as a google.protobuf.Struct.
	Message  json.RawMessage        `json:"message" binding:"required"`
	Metadata map[string]interface{} `json:"metadata"`
}

// QueryRequest represents a metadata query.
type QueryRequest struct {
	Conditions   []models.Condition `json:"conditions" binding:"omitempty,dive"`
	SortBy       string             `json:"sortBy"`
	Order        models.SortOrder   `json:"order" binding:"omitempty,oneof=asc desc"`
	Limit        int64              `json:"limit" binding:"omitempty,min=0,max=10000"`
	MetadataOnly bool               `json:"metadataOnly"`
}

// FindOneRequest represents a single-result metadata query.
type FindOneRequest struct {
	Conditions   []models.Condition `json:"conditions" binding:"omitempty,dive"`
	MetadataOnly bool               `json:"metadataOnly"`
}

// RemoveMessagesRequest selects the messages to delete.
type RemoveMessagesRequest struct {
	Conditions []models.Condition `json:"conditions" binding:"omitempty,dive"`
}

// ModifyMetadataRequest represents a metadata update of the first matching message.
type ModifyMetadataRequest struct {
	Conditions []models.Condition     `json:"conditions" binding:"omitempty,dive"`
	Metadata   map[string]interface{} `json:"metadata" binding:"required"`
}

// EnsureIndexRequest names the metadata field to index.
type EnsureIndexRequest struct {
	Field string `json:"field" binding:"required"`
}

// ToMetadata converts decoded JSON metadata into stored metadata.
// Integral numbers are kept as integers.
func ToMetadata(values map[string]interface{}) models.Metadata {
	if values == nil {
		return models.Metadata{}
	}
	m := make(models.Metadata, len(values))
	for key, value := range values {
		m[key] = NormalizeJSON(value)
	}
	return m
}

// ToQuery converts request conditions into a query.
func ToQuery(conditions []models.Condition) *models.Query {
	normalized := make([]models.Condition, len(conditions))
	for i, c := range conditions {
		c.Value = NormalizeJSON(c.Value)
		normalized[i] = c
	}
	return models.NewQuery(normalized...)
}

// NormalizeJSON turns whole float64 numbers produced by encoding/json into
// int64, recursively.
func NormalizeJSON(value interface{}) interface{} {
	switch v := value.(type) {
	case float64:
		if v == math.Trunc(v) && v >= math.MinInt64 && v < math.MaxInt64 {
			return int64(v)
		}
		return v
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = NormalizeJSON(item)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, item := range v {
			out[key] = NormalizeJSON(item)
		}
		return out
	default:
		return v
	}
}
