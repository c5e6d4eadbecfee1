package handlers

import (
	stderrors "errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/unifiedui/message-warehouse/internal/api/middleware"
	"github.com/unifiedui/message-warehouse/internal/api/sse"
	"github.com/unifiedui/message-warehouse/internal/core/notify"
	"github.com/unifiedui/message-warehouse/internal/domain/errors"
	"github.com/unifiedui/message-warehouse/internal/warehouse"
)

// EventsHandler streams insert notifications.
type EventsHandler struct {
	publisher notify.Publisher
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(publisher notify.Publisher) *EventsHandler {
	return &EventsHandler{
		publisher: publisher,
	}
}

// StreamInserts handles GET /databases/{database}/collections/{collection}/events
// @Summary Stream inserts
// @Description Streams the metadata of every message inserted into the collection as Server-Sent Events
// @Tags Events
// @Produce text/event-stream
// @Param database path string true "Database name"
// @Param collection path string true "Collection name"
// @Param max query int false "Stop after this many events"
// @Success 200 {string} string "SSE stream"
// @Failure 400 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse "Notifications disabled"
// @Router /api/v1/warehouse/databases/{database}/collections/{collection}/events [get]
func (h *EventsHandler) StreamInserts(c *gin.Context) {
	ctx := c.Request.Context()
	database, collection := c.Param("database"), c.Param("collection")
	if err := warehouse.ValidateNames(database, collection); err != nil {
		middleware.HandleError(c, err)
		return
	}

	limit := 0
	if raw := c.Query("max"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			middleware.HandleError(c, errors.NewValidationError("max must be a non-negative integer", raw))
			return
		}
		limit = n
	}

	topic := warehouse.InsertionTopic(database, collection)
	sub, err := h.publisher.Subscribe(ctx, topic)
	if err != nil {
		if stderrors.Is(err, notify.ErrSubscribeUnsupported) {
			middleware.HandleError(c, errors.NewServiceUnavailableError("insert notifications", err))
			return
		}
		middleware.HandleError(c, errors.NewInternalError("failed to subscribe", err))
		return
	}
	defer sub.Close()

	writer, err := sse.NewWriter(c.Writer)
	if err != nil {
		middleware.HandleError(c, errors.NewInternalError("streaming not supported", err))
		return
	}

	logger := middleware.GetRequestLogger(c)
	if err := writer.WriteReady(topic); err != nil {
		return
	}

	sent := 0
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				_ = writer.WriteError(errors.ErrCodeServiceUnavailable, "subscription closed", topic)
				return
			}
			if err := writer.WriteInsert(insertedID(event.Payload), event.Payload); err != nil {
				logger.Debug().Err(err).Str("topic", topic).Msg("client went away")
				return
			}
			sent++
			if limit > 0 && sent >= limit {
				_ = writer.WriteDone()
				return
			}
		}
	}
}

// insertedID extracts the _id of an insert notification payload.
func insertedID(payload []byte) string {
	var doc struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := bson.UnmarshalExtJSON(payload, false, &doc); err != nil || doc.ID.IsZero() {
		return ""
	}
	return doc.ID.Hex()
}
