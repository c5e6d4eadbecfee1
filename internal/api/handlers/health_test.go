package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/unifiedui/message-warehouse/internal/api/dto"
	"github.com/unifiedui/message-warehouse/internal/api/handlers"
	"github.com/unifiedui/message-warehouse/internal/mocks"
	"github.com/unifiedui/message-warehouse/internal/testutils"
)

func TestHealthHandler_Health_AllHealthy(t *testing.T) {
	// Setup
	mockPublisher := new(mocks.MockPublisher)
	mockDocDB := new(mocks.MockDocDBClient)

	mockPublisher.On("Ping", mock.Anything).Return(nil)
	mockDocDB.On("Ping", mock.Anything).Return(nil)

	handler := handlers.NewHealthHandler(mockPublisher, mockDocDB)

	router := testutils.SetupTestRouter()
	router.GET("/health", handler.Health)

	// Execute
	w := testutils.PerformRequest(router, "GET", "/health", nil, nil)

	// Assert
	testutils.AssertStatusCode(t, http.StatusOK, w)

	var response dto.HealthResponse
	testutils.ParseJSONResponse(t, w, &response)

	assert.Equal(t, "healthy", response.Status)
	assert.Equal(t, "healthy", response.Components["notify"])
	assert.Equal(t, "healthy", response.Components["docdb"])

	mockPublisher.AssertExpectations(t)
	mockDocDB.AssertExpectations(t)
}

func TestHealthHandler_Health_NotifyUnhealthy(t *testing.T) {
	// Setup
	mockPublisher := new(mocks.MockPublisher)
	mockDocDB := new(mocks.MockDocDBClient)

	mockPublisher.On("Ping", mock.Anything).Return(assert.AnError)
	mockDocDB.On("Ping", mock.Anything).Return(nil)

	handler := handlers.NewHealthHandler(mockPublisher, mockDocDB)

	router := testutils.SetupTestRouter()
	router.GET("/health", handler.Health)

	// Execute
	w := testutils.PerformRequest(router, "GET", "/health", nil, nil)

	// Assert
	testutils.AssertStatusCode(t, http.StatusServiceUnavailable, w)

	var response dto.HealthResponse
	testutils.ParseJSONResponse(t, w, &response)

	assert.Equal(t, "unhealthy", response.Status)
	assert.Equal(t, "unhealthy", response.Components["notify"])
	assert.Equal(t, "healthy", response.Components["docdb"])
}

func TestHealthHandler_Ready(t *testing.T) {
	tests := []struct {
		name     string
		pingErr  error
		expected int
	}{
		{name: "docdb reachable", pingErr: nil, expected: http.StatusOK},
		{name: "docdb unreachable", pingErr: assert.AnError, expected: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockDocDB := new(mocks.MockDocDBClient)
			mockDocDB.On("Ping", mock.Anything).Return(tt.pingErr)

			handler := handlers.NewHealthHandler(new(mocks.MockPublisher), mockDocDB)

			router := testutils.SetupTestRouter()
			router.GET("/ready", handler.Ready)

			w := testutils.PerformRequest(router, "GET", "/ready", nil, nil)

			testutils.AssertStatusCode(t, tt.expected, w)
			mockDocDB.AssertExpectations(t)
		})
	}
}

func TestHealthHandler_Live(t *testing.T) {
	handler := handlers.NewHealthHandler(new(mocks.MockPublisher), new(mocks.MockDocDBClient))

	router := testutils.SetupTestRouter()
	router.GET("/live", handler.Live)

	w := testutils.PerformRequest(router, "GET", "/live", nil, nil)

	testutils.AssertStatusCode(t, http.StatusOK, w)

	var response map[string]string
	testutils.ParseJSONResponse(t, w, &response)
	assert.Equal(t, "alive", response["status"])
}
