package handlers_test

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/unifiedui/message-warehouse/internal/api/dto"
	"github.com/unifiedui/message-warehouse/internal/api/handlers"
	"github.com/unifiedui/message-warehouse/internal/api/routes"
	"github.com/unifiedui/message-warehouse/internal/core/notify"
	domainerrors "github.com/unifiedui/message-warehouse/internal/domain/errors"
	"github.com/unifiedui/message-warehouse/internal/mocks"
	"github.com/unifiedui/message-warehouse/internal/pkg/metrics"
	"github.com/unifiedui/message-warehouse/internal/services/collections"
	"github.com/unifiedui/message-warehouse/internal/testutils"
	"github.com/unifiedui/message-warehouse/internal/testutils/memdb"
)

const posesPath = "/api/v1/warehouse/databases/db/collections/poses"

func newTestRouter(t *testing.T, publisher notify.Publisher) *gin.Engine {
	t.Helper()

	client := memdb.NewClient()
	reg := prometheus.NewRegistry()
	nop := zerolog.Nop()

	registry, err := collections.NewRegistry(&collections.Config{
		Client:    client,
		Publisher: publisher,
		Metrics:   metrics.New(reg),
		Logger:    &nop,
	})
	require.NoError(t, err)

	router := testutils.SetupTestRouter()
	routes.Setup(router, &routes.Config{
		HealthHandler:      handlers.NewHealthHandler(registry.Publisher(), client),
		MessagesHandler:    handlers.NewMessagesHandler(registry),
		CollectionsHandler: handlers.NewCollectionsHandler(registry),
		EventsHandler:      handlers.NewEventsHandler(registry.Publisher()),
		MetricsPath:        "/metrics",
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	return router
}

func insertMessage(t *testing.T, router *gin.Engine, message, metadata map[string]interface{}) string {
	t.Helper()

	w := testutils.PerformRequest(router, http.MethodPost, posesPath+"/messages", map[string]interface{}{
		"message":  message,
		"metadata": metadata,
	}, nil)
	testutils.AssertStatusCode(t, http.StatusCreated, w)

	var response dto.InsertMessageResponse
	testutils.ParseJSONResponse(t, w, &response)
	return response.ID
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var response dto.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &response))
	return response.Code
}

func TestMessagesHandler_InsertAndQuery(t *testing.T) {
	router := newTestRouter(t, nil)

	id := insertMessage(t, router,
		map[string]interface{}{"x": 1, "label": "door"},
		map[string]interface{}{"room": "hall", "n": 3})
	assert.Len(t, id, 24)
	insertMessage(t, router, map[string]interface{}{"x": 2}, map[string]interface{}{"room": "kitchen", "n": 7})

	w := testutils.PerformRequest(router, http.MethodPost, posesPath+"/messages/query", map[string]interface{}{
		"conditions": []map[string]interface{}{{"field": "room", "op": "eq", "value": "hall"}},
	}, nil)
	testutils.AssertStatusCode(t, http.StatusOK, w)

	var response dto.QueryResponse
	testutils.ParseJSONResponse(t, w, &response)
	require.Equal(t, 1, response.Count)
	msg := response.Messages[0]
	assert.Equal(t, id, msg.ID)
	assert.Equal(t, "hall", msg.Metadata["room"])
	assert.Equal(t, 3.0, msg.Metadata["n"])
	assert.False(t, msg.CreationTime.IsZero())

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Message, &payload))
	assert.Equal(t, map[string]interface{}{"x": 1.0, "label": "door"}, payload)
}

func TestMessagesHandler_QueryOptions(t *testing.T) {
	router := newTestRouter(t, nil)
	for i := 1; i <= 4; i++ {
		insertMessage(t, router, map[string]interface{}{"i": i}, map[string]interface{}{"n": i})
	}

	w := testutils.PerformRequest(router, http.MethodPost, posesPath+"/messages/query", map[string]interface{}{
		"conditions":   []map[string]interface{}{{"field": "n", "op": "gt", "value": 1}},
		"sortBy":       "n",
		"order":        "desc",
		"limit":        2,
		"metadataOnly": true,
	}, nil)
	testutils.AssertStatusCode(t, http.StatusOK, w)

	var response dto.QueryResponse
	testutils.ParseJSONResponse(t, w, &response)
	require.Len(t, response.Messages, 2)
	assert.Equal(t, 4.0, response.Messages[0].Metadata["n"])
	assert.Equal(t, 3.0, response.Messages[1].Metadata["n"])
	assert.Empty(t, response.Messages[0].Message)

	// An empty body selects everything
	w = testutils.PerformRequest(router, http.MethodPost, posesPath+"/messages/query", nil, nil)
	testutils.AssertStatusCode(t, http.StatusOK, w)
	testutils.ParseJSONResponse(t, w, &response)
	assert.Equal(t, 4, response.Count)
}

func TestMessagesHandler_QueryGeneratedFields(t *testing.T) {
	router := newTestRouter(t, nil)
	id := insertMessage(t, router, map[string]interface{}{"x": 1}, map[string]interface{}{"room": "hall"})
	other := insertMessage(t, router, map[string]interface{}{"x": 2}, map[string]interface{}{"room": "hall"})

	query := func(conditions ...map[string]interface{}) dto.QueryResponse {
		t.Helper()
		w := testutils.PerformRequest(router, http.MethodPost, posesPath+"/messages/query", map[string]interface{}{
			"conditions":   conditions,
			"metadataOnly": true,
		}, nil)
		testutils.AssertStatusCode(t, http.StatusOK, w)
		var response dto.QueryResponse
		testutils.ParseJSONResponse(t, w, &response)
		return response
	}

	byID := query(map[string]interface{}{"field": "_id", "value": id})
	require.Equal(t, 1, byID.Count)
	assert.Equal(t, id, byID.Messages[0].ID)

	inIDs := query(map[string]interface{}{"field": "_id", "op": "in", "value": []string{id, other}})
	assert.Equal(t, 2, inIDs.Count)

	since := query(map[string]interface{}{"field": "creation_time", "op": "gt", "value": "2000-01-01T00:00:00Z"})
	assert.Equal(t, 2, since.Count)

	before := query(map[string]interface{}{"field": "creation_time", "op": "lt", "value": "2000-01-01T00:00:00Z"})
	assert.Equal(t, 0, before.Count)

	w := testutils.PerformRequest(router, http.MethodPost, posesPath+"/messages/remove", map[string]interface{}{
		"conditions": []map[string]interface{}{{"field": "_id", "value": id}},
	}, nil)
	testutils.AssertStatusCode(t, http.StatusOK, w)
	var removed dto.RemoveMessagesResponse
	testutils.ParseJSONResponse(t, w, &removed)
	assert.Equal(t, int64(1), removed.Removed)

	w = testutils.PerformRequest(router, http.MethodPost, posesPath+"/messages/query", map[string]interface{}{
		"conditions": []map[string]interface{}{{"field": "_id", "value": "mine"}},
	}, nil)
	testutils.AssertStatusCode(t, http.StatusBadRequest, w)
	assert.Equal(t, domainerrors.ErrCodeValidation, errorCode(t, w.Body.Bytes()))
}

func TestMessagesHandler_QueryValidation(t *testing.T) {
	router := newTestRouter(t, nil)

	tests := []struct {
		name string
		body interface{}
	}{
		{name: "unknown operator", body: map[string]interface{}{
			"conditions": []map[string]interface{}{{"field": "n", "op": "regex", "value": "x"}},
		}},
		{name: "in without list", body: map[string]interface{}{
			"conditions": []map[string]interface{}{{"field": "n", "op": "in", "value": 1}},
		}},
		{name: "missing field", body: map[string]interface{}{
			"conditions": []map[string]interface{}{{"op": "eq", "value": 1}},
		}},
		{name: "bad order", body: map[string]interface{}{"order": "random"}},
		{name: "malformed json", body: `{"conditions": [`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := testutils.PerformRequest(router, http.MethodPost, posesPath+"/messages/query", tt.body, nil)

			testutils.AssertStatusCode(t, http.StatusBadRequest, w)
			assert.Equal(t, domainerrors.ErrCodeValidation, errorCode(t, w.Body.Bytes()))
		})
	}
}

func TestMessagesHandler_InsertValidation(t *testing.T) {
	router := newTestRouter(t, nil)

	w := testutils.PerformRequest(router, http.MethodPost, posesPath+"/messages", map[string]interface{}{
		"metadata": map[string]interface{}{"room": "hall"},
	}, nil)
	testutils.AssertStatusCode(t, http.StatusBadRequest, w)
	assert.Equal(t, domainerrors.ErrCodeValidation, errorCode(t, w.Body.Bytes()))

	w = testutils.PerformRequest(router, http.MethodPost, posesPath+"/messages", `{"message": [1, 2]}`, nil)
	testutils.AssertStatusCode(t, http.StatusBadRequest, w)
	assert.Equal(t, domainerrors.ErrCodeBadRequest, errorCode(t, w.Body.Bytes()))

	w = testutils.PerformRequest(router, http.MethodPost, posesPath+"/messages", map[string]interface{}{
		"message":  map[string]interface{}{},
		"metadata": map[string]interface{}{"_id": "mine"},
	}, nil)
	testutils.AssertStatusCode(t, http.StatusBadRequest, w)
	assert.Equal(t, domainerrors.ErrCodeValidation, errorCode(t, w.Body.Bytes()))

	w = testutils.PerformRequest(router, http.MethodPost,
		"/api/v1/warehouse/databases/db/collections/message_collections/messages",
		map[string]interface{}{"message": map[string]interface{}{}}, nil)
	testutils.AssertStatusCode(t, http.StatusBadRequest, w)
}

func TestMessagesHandler_FindOne(t *testing.T) {
	router := newTestRouter(t, nil)
	id := insertMessage(t, router, map[string]interface{}{"x": 1}, map[string]interface{}{"room": "hall"})

	w := testutils.PerformRequest(router, http.MethodPost, posesPath+"/messages/find-one", map[string]interface{}{
		"conditions": []map[string]interface{}{{"field": "room", "value": "hall"}},
	}, nil)
	testutils.AssertStatusCode(t, http.StatusOK, w)

	var response dto.MessageResponse
	testutils.ParseJSONResponse(t, w, &response)
	assert.Equal(t, id, response.ID)
	assert.JSONEq(t, `{"x": 1}`, string(response.Message))

	w = testutils.PerformRequest(router, http.MethodPost, posesPath+"/messages/find-one", map[string]interface{}{
		"conditions": []map[string]interface{}{{"field": "room", "value": "attic"}},
	}, nil)
	testutils.AssertStatusCode(t, http.StatusNotFound, w)
	assert.Equal(t, domainerrors.ErrCodeNoMatchingMessage, errorCode(t, w.Body.Bytes()))
}

func TestMessagesHandler_RemoveAndCount(t *testing.T) {
	router := newTestRouter(t, nil)
	for _, room := range []string{"hall", "hall", "kitchen"} {
		insertMessage(t, router, map[string]interface{}{}, map[string]interface{}{"room": room})
	}

	w := testutils.PerformRequest(router, http.MethodPost, posesPath+"/messages/remove", map[string]interface{}{
		"conditions": []map[string]interface{}{{"field": "room", "op": "in", "value": []string{"hall", "attic"}}},
	}, nil)
	testutils.AssertStatusCode(t, http.StatusOK, w)

	var removed dto.RemoveMessagesResponse
	testutils.ParseJSONResponse(t, w, &removed)
	assert.Equal(t, int64(2), removed.Removed)

	w = testutils.PerformRequest(router, http.MethodGet, posesPath+"/count", nil, nil)
	testutils.AssertStatusCode(t, http.StatusOK, w)

	var count dto.CountResponse
	testutils.ParseJSONResponse(t, w, &count)
	assert.Equal(t, int64(1), count.Count)
}

func TestMessagesHandler_ModifyMetadata(t *testing.T) {
	router := newTestRouter(t, nil)
	insertMessage(t, router, map[string]interface{}{}, map[string]interface{}{"room": "hall", "status": "new"})

	w := testutils.PerformRequest(router, http.MethodPatch, posesPath+"/messages/metadata", map[string]interface{}{
		"conditions": []map[string]interface{}{{"field": "room", "value": "hall"}},
		"metadata":   map[string]interface{}{"status": "done"},
	}, nil)
	testutils.AssertStatusCode(t, http.StatusNoContent, w)

	w = testutils.PerformRequest(router, http.MethodPost, posesPath+"/messages/find-one", map[string]interface{}{
		"conditions":   []map[string]interface{}{{"field": "status", "value": "done"}},
		"metadataOnly": true,
	}, nil)
	testutils.AssertStatusCode(t, http.StatusOK, w)

	var response dto.MessageResponse
	testutils.ParseJSONResponse(t, w, &response)
	assert.Equal(t, "hall", response.Metadata["room"])

	w = testutils.PerformRequest(router, http.MethodPatch, posesPath+"/messages/metadata", map[string]interface{}{
		"conditions": []map[string]interface{}{{"field": "room", "value": "attic"}},
		"metadata":   map[string]interface{}{"status": "done"},
	}, nil)
	testutils.AssertStatusCode(t, http.StatusNotFound, w)

	w = testutils.PerformRequest(router, http.MethodPatch, posesPath+"/messages/metadata", map[string]interface{}{
		"conditions": []map[string]interface{}{{"field": "room", "value": "hall"}},
	}, nil)
	testutils.AssertStatusCode(t, http.StatusBadRequest, w)
}

func TestCollectionsHandler_IndexSchemaList(t *testing.T) {
	router := newTestRouter(t, nil)

	w := testutils.PerformRequest(router, http.MethodPost, posesPath+"/indexes", map[string]interface{}{"field": "room"}, nil)
	testutils.AssertStatusCode(t, http.StatusCreated, w)

	w = testutils.PerformRequest(router, http.MethodPost, posesPath+"/indexes", map[string]interface{}{}, nil)
	testutils.AssertStatusCode(t, http.StatusBadRequest, w)

	w = testutils.PerformRequest(router, http.MethodGet, posesPath+"/schema", nil, nil)
	testutils.AssertStatusCode(t, http.StatusOK, w)

	var schema dto.SchemaResponse
	testutils.ParseJSONResponse(t, w, &schema)
	assert.Equal(t, "db.poses", schema.Namespace)
	assert.Equal(t, "warehouse/db/poses/inserts", schema.Topic)
	assert.Equal(t, "google.protobuf.Struct", schema.Type)
	assert.Len(t, schema.MD5Sum, 32)
	assert.True(t, schema.MD5SumMatches)

	w = testutils.PerformRequest(router, http.MethodGet, "/api/v1/warehouse/databases/db/collections", nil, nil)
	testutils.AssertStatusCode(t, http.StatusOK, w)

	var list dto.ListCollectionsResponse
	testutils.ParseJSONResponse(t, w, &list)
	assert.Equal(t, "db", list.Database)
	require.Len(t, list.Collections, 1)
	assert.Equal(t, "poses", list.Collections[0].Name)
}

func TestRoutes_MetricsAndNotFound(t *testing.T) {
	router := newTestRouter(t, nil)
	insertMessage(t, router, map[string]interface{}{}, nil)

	w := testutils.PerformRequest(router, http.MethodGet, "/metrics", nil, nil)
	testutils.AssertStatusCode(t, http.StatusOK, w)
	assert.Contains(t, w.Body.String(), `warehouse_operations_total{collection="db.poses",operation="insert",status="success"} 1`)

	w = testutils.PerformRequest(router, http.MethodGet, "/nowhere", nil, nil)
	testutils.AssertStatusCode(t, http.StatusNotFound, w)
}

func TestEventsHandler_StreamInserts(t *testing.T) {
	sub := mocks.NewMockSubscription(4)
	sub.On("Close").Return(nil)
	publisher := new(mocks.MockPublisher)
	publisher.On("Subscribe", mock.Anything, "warehouse/db/poses/inserts").Return(sub, nil)

	router := newTestRouter(t, publisher)

	sub.Send(notify.Event{
		Topic:   "warehouse/db/poses/inserts",
		Payload: []byte(`{"_id":{"$oid":"65f0c0ffee0000000000abcd"},"room":"hall"}`),
	})
	sub.Send(notify.Event{Topic: "warehouse/db/poses/inserts", Payload: []byte(`{"room":"kitchen"}`)})

	w := testutils.PerformRequest(router, http.MethodGet, posesPath+"/events?max=2", nil, nil)

	testutils.AssertStatusCode(t, http.StatusOK, w)
	body := w.Body.String()
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(body, "event: ready\n"))
	assert.Contains(t, body, "id: 65f0c0ffee0000000000abcd\nevent: insert\n")
	assert.Contains(t, body, "event: insert\ndata: {\"room\":\"kitchen\"}\n\n")
	assert.True(t, strings.HasSuffix(body, "event: done\ndata: stream completed\n\n"))
	publisher.AssertExpectations(t)
	sub.AssertExpectations(t)
}

func TestEventsHandler_SubscriptionClosed(t *testing.T) {
	sub := mocks.NewMockSubscription(1)
	sub.On("Close").Return(nil)
	publisher := new(mocks.MockPublisher)
	publisher.On("Subscribe", mock.Anything, mock.Anything).Return(sub, nil)

	router := newTestRouter(t, publisher)
	require.NoError(t, sub.Close())

	w := testutils.PerformRequest(router, http.MethodGet, posesPath+"/events", nil, nil)

	testutils.AssertStatusCode(t, http.StatusOK, w)
	assert.Contains(t, w.Body.String(), "event: error\n")
}

func TestEventsHandler_NotificationsDisabled(t *testing.T) {
	router := newTestRouter(t, nil)

	w := testutils.PerformRequest(router, http.MethodGet, posesPath+"/events", nil, nil)

	testutils.AssertStatusCode(t, http.StatusServiceUnavailable, w)
	assert.Equal(t, domainerrors.ErrCodeServiceUnavailable, errorCode(t, w.Body.Bytes()))

	w = testutils.PerformRequest(router, http.MethodGet, posesPath+"/events?max=-1", nil, nil)
	testutils.AssertStatusCode(t, http.StatusBadRequest, w)
}
