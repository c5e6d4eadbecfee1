package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/unifiedui/message-warehouse/internal/api/dto"
	"github.com/unifiedui/message-warehouse/internal/api/middleware"
	"github.com/unifiedui/message-warehouse/internal/domain/errors"
	"github.com/unifiedui/message-warehouse/internal/services/collections"
)

// CollectionsHandler handles collection-level endpoints.
type CollectionsHandler struct {
	registry *collections.Registry
}

// NewCollectionsHandler creates a new CollectionsHandler.
func NewCollectionsHandler(registry *collections.Registry) *CollectionsHandler {
	return &CollectionsHandler{
		registry: registry,
	}
}

// ListCollections handles GET /databases/{database}/collections
// @Summary List message collections
// @Description Lists the collections of a database together with their stored message type
// @Tags Collections
// @Produce json
// @Param database path string true "Database name"
// @Success 200 {object} dto.ListCollectionsResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /api/v1/warehouse/databases/{database}/collections [get]
func (h *CollectionsHandler) ListCollections(c *gin.Context) {
	database := c.Param("database")

	entries, err := h.registry.Schemas(c.Request.Context(), database)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	resp := dto.ListCollectionsResponse{
		Database:    database,
		Collections: make([]*dto.CollectionResponse, 0, len(entries)),
	}
	for _, entry := range entries {
		resp.Collections = append(resp.Collections, &dto.CollectionResponse{
			Name:   entry.Name,
			Type:   entry.Type,
			MD5Sum: entry.MD5Sum,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// Count handles GET /databases/{database}/collections/{collection}/count
// @Summary Count messages
// @Tags Collections
// @Produce json
// @Param database path string true "Database name"
// @Param collection path string true "Collection name"
// @Success 200 {object} dto.CountResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /api/v1/warehouse/databases/{database}/collections/{collection}/count [get]
func (h *CollectionsHandler) Count(c *gin.Context) {
	coll, err := h.registry.Get(c.Request.Context(), c.Param("database"), c.Param("collection"))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	count, err := coll.Count(c.Request.Context())
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.CountResponse{Count: count})
}

// EnsureIndex handles POST /databases/{database}/collections/{collection}/indexes
// @Summary Index a metadata field
// @Description Creates an ascending index on a metadata field if it does not exist
// @Tags Collections
// @Accept json
// @Produce json
// @Param database path string true "Database name"
// @Param collection path string true "Collection name"
// @Param request body dto.EnsureIndexRequest true "Field to index"
// @Success 201 {object} dto.EnsureIndexResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /api/v1/warehouse/databases/{database}/collections/{collection}/indexes [post]
func (h *CollectionsHandler) EnsureIndex(c *gin.Context) {
	var req dto.EnsureIndexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}

	coll, err := h.registry.Get(c.Request.Context(), c.Param("database"), c.Param("collection"))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	if err := coll.EnsureIndex(c.Request.Context(), req.Field); err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.EnsureIndexResponse{Field: req.Field})
}

// Schema handles GET /databases/{database}/collections/{collection}/schema
// @Summary Stored message type
// @Description Reports the message type registered for the collection and whether it matches the service's
// @Tags Collections
// @Produce json
// @Param database path string true "Database name"
// @Param collection path string true "Collection name"
// @Success 200 {object} dto.SchemaResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /api/v1/warehouse/databases/{database}/collections/{collection}/schema [get]
func (h *CollectionsHandler) Schema(c *gin.Context) {
	coll, err := h.registry.Get(c.Request.Context(), c.Param("database"), c.Param("collection"))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	schema := coll.Schema()
	c.JSON(http.StatusOK, dto.SchemaResponse{
		Namespace:     coll.Namespace(),
		Topic:         coll.InsertionTopic(),
		Name:          schema.Name,
		Type:          schema.Type,
		MD5Sum:        schema.MD5Sum,
		MD5SumMatches: coll.MD5SumMatches(),
	})
}
