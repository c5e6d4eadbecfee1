// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"encoding/json"
	"time"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

// MessageResponse represents a stored message in API responses.
type MessageResponse struct {
	ID           string                 `json:"id"`
	CreationTime time.Time              `json:"creationTime"`
	Metadata     map[string]interface{} `json:"metadata"`
	Message      json.RawMessage        `json:"message,omitempty"`
}

// InsertMessageResponse represents the response for storing a message.
type InsertMessageResponse struct {
	ID    string `json:"id"`
	Topic string `json:"topic"`
}

// QueryResponse represents the response of a metadata query.
type QueryResponse struct {
	Messages []*MessageResponse `json:"messages"`
	Count    int                `json:"count"`
}

// RemoveMessagesResponse reports how many messages were deleted.
type RemoveMessagesResponse struct {
	Removed int64 `json:"removed"`
}

// CountResponse reports the number of messages in a collection.
type CountResponse struct {
	Count int64 `json:"count"`
}

// EnsureIndexResponse confirms an index.
type EnsureIndexResponse struct {
	Field string `json:"field"`
}

// SchemaResponse describes the message type stored in a collection.
type SchemaResponse struct {
	Namespace     string `json:"namespace"`
	Topic         string `json:"topic"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	MD5Sum        string `json:"md5sum"`
	MD5SumMatches bool   `json:"md5sumMatches"`
}

// CollectionResponse is one entry of the schema registry.
type CollectionResponse struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	MD5Sum string `json:"md5sum"`
}

// ListCollectionsResponse lists the message collections of a database.
type ListCollectionsResponse struct {
	Database    string                `json:"database"`
	Collections []*CollectionResponse `json:"collections"`
}
