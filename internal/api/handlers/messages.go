package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/unifiedui/message-warehouse/internal/api/dto"
	"github.com/unifiedui/message-warehouse/internal/api/middleware"
	"github.com/unifiedui/message-warehouse/internal/domain/errors"
	"github.com/unifiedui/message-warehouse/internal/domain/models"
	"github.com/unifiedui/message-warehouse/internal/services/collections"
	"github.com/unifiedui/message-warehouse/internal/warehouse"
)

// MessagesHandler handles message storage and retrieval endpoints.
type MessagesHandler struct {
	registry *collections.Registry
}

// NewMessagesHandler creates a new MessagesHandler.
func NewMessagesHandler(registry *collections.Registry) *MessagesHandler {
	return &MessagesHandler{
		registry: registry,
	}
}

// collection resolves the :database and :collection path parameters.
func (h *MessagesHandler) collection(c *gin.Context) (*collections.StructCollection, bool) {
	coll, err := h.registry.Get(c.Request.Context(), c.Param("database"), c.Param("collection"))
	if err != nil {
		middleware.HandleError(c, err)
		return nil, false
	}
	return coll, true
}

// InsertMessage handles POST /databases/{database}/collections/{collection}/messages
// @Summary Store a message
// @Description Stores a JSON object as a message together with its metadata and announces the insert
// @Tags Messages
// @Accept json
// @Produce json
// @Param database path string true "Database name"
// @Param collection path string true "Collection name"
// @Param request body dto.InsertMessageRequest true "Message and metadata"
// @Success 201 {object} dto.InsertMessageResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /api/v1/warehouse/databases/{database}/collections/{collection}/messages [post]
func (h *MessagesHandler) InsertMessage(c *gin.Context) {
	var req dto.InsertMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}

	msg := &structpb.Struct{}
	if err := protojson.Unmarshal(req.Message, msg); err != nil {
		middleware.HandleError(c, errors.NewBadRequestError("message must be a JSON object", err.Error()))
		return
	}

	coll, ok := h.collection(c)
	if !ok {
		return
	}

	id, err := coll.Insert(c.Request.Context(), msg, dto.ToMetadata(req.Metadata))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.InsertMessageResponse{
		ID:    id.Hex(),
		Topic: coll.InsertionTopic(),
	})
}

// QueryMessages handles POST /databases/{database}/collections/{collection}/messages/query
// @Summary Query messages
// @Description Returns every message whose metadata matches all conditions
// @Tags Messages
// @Accept json
// @Produce json
// @Param database path string true "Database name"
// @Param collection path string true "Collection name"
// @Param request body dto.QueryRequest false "Conditions and options"
// @Success 200 {object} dto.QueryResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /api/v1/warehouse/databases/{database}/collections/{collection}/messages/query [post]
func (h *MessagesHandler) QueryMessages(c *gin.Context) {
	var req dto.QueryRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	coll, ok := h.collection(c)
	if !ok {
		return
	}

	results, err := coll.PullAllResults(c.Request.Context(), dto.ToQuery(req.Conditions), &models.QueryOptions{
		MetadataOnly: req.MetadataOnly,
		SortBy:       req.SortBy,
		Order:        req.Order,
		Limit:        req.Limit,
	})
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	messages := make([]*dto.MessageResponse, 0, len(results))
	for _, result := range results {
		resp, err := toMessageResponse(result, req.MetadataOnly)
		if err != nil {
			middleware.HandleError(c, errors.NewInternalError("failed to encode message", err))
			return
		}
		messages = append(messages, resp)
	}

	c.JSON(http.StatusOK, dto.QueryResponse{
		Messages: messages,
		Count:    len(messages),
	})
}

// FindMessage handles POST /databases/{database}/collections/{collection}/messages/find-one
// @Summary Find one message
// @Description Returns a single message whose metadata matches all conditions
// @Tags Messages
// @Accept json
// @Produce json
// @Param database path string true "Database name"
// @Param collection path string true "Collection name"
// @Param request body dto.FindOneRequest false "Conditions"
// @Success 200 {object} dto.MessageResponse
// @Failure 404 {object} dto.ErrorResponse "No matching message"
// @Failure 500 {object} dto.ErrorResponse
// @Router /api/v1/warehouse/databases/{database}/collections/{collection}/messages/find-one [post]
func (h *MessagesHandler) FindMessage(c *gin.Context) {
	var req dto.FindOneRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	coll, ok := h.collection(c)
	if !ok {
		return
	}

	result, err := coll.FindOne(c.Request.Context(), dto.ToQuery(req.Conditions), req.MetadataOnly)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	resp, err := toMessageResponse(result, req.MetadataOnly)
	if err != nil {
		middleware.HandleError(c, errors.NewInternalError("failed to encode message", err))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RemoveMessages handles POST /databases/{database}/collections/{collection}/messages/remove
// @Summary Remove messages
// @Description Deletes every message whose metadata matches all conditions
// @Tags Messages
// @Accept json
// @Produce json
// @Param database path string true "Database name"
// @Param collection path string true "Collection name"
// @Param request body dto.RemoveMessagesRequest false "Conditions"
// @Success 200 {object} dto.RemoveMessagesResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /api/v1/warehouse/databases/{database}/collections/{collection}/messages/remove [post]
func (h *MessagesHandler) RemoveMessages(c *gin.Context) {
	var req dto.RemoveMessagesRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	coll, ok := h.collection(c)
	if !ok {
		return
	}

	removed, err := coll.RemoveMessages(c.Request.Context(), dto.ToQuery(req.Conditions))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.RemoveMessagesResponse{Removed: removed})
}

// ModifyMetadata handles PATCH /databases/{database}/collections/{collection}/messages/metadata
// @Summary Modify metadata
// @Description Merges metadata into the first message matching all conditions
// @Tags Messages
// @Accept json
// @Param database path string true "Database name"
// @Param collection path string true "Collection name"
// @Param request body dto.ModifyMetadataRequest true "Conditions and new metadata"
// @Success 204 "Metadata updated"
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse "No matching message"
// @Failure 500 {object} dto.ErrorResponse
// @Router /api/v1/warehouse/databases/{database}/collections/{collection}/messages/metadata [patch]
func (h *MessagesHandler) ModifyMetadata(c *gin.Context) {
	var req dto.ModifyMetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}

	coll, ok := h.collection(c)
	if !ok {
		return
	}

	if err := coll.ModifyMetadata(c.Request.Context(), dto.ToQuery(req.Conditions), dto.ToMetadata(req.Metadata)); err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// bindOptionalJSON binds the request body when there is one. An empty body
// leaves v zeroed, which selects every message.
func bindOptionalJSON(c *gin.Context, v interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid request body", err.Error()))
		return false
	}
	return true
}

func toMessageResponse(result *warehouse.MessageWithMetadata[*structpb.Struct], metadataOnly bool) (*dto.MessageResponse, error) {
	resp := &dto.MessageResponse{
		ID:           result.ID.Hex(),
		CreationTime: result.CreationTime,
		Metadata:     result.Metadata,
	}
	if resp.Metadata == nil {
		resp.Metadata = map[string]interface{}{}
	}
	if metadataOnly {
		return resp, nil
	}

	data, err := protojson.Marshal(result.Message)
	if err != nil {
		return nil, err
	}
	resp.Message = json.RawMessage(data)
	return resp, nil
}
