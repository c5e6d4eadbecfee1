package sse_test

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unifiedui/message-warehouse/internal/api/sse"
)

func TestNewWriter_SetsHeaders(t *testing.T) {
	w := httptest.NewRecorder()

	_, err := sse.NewWriter(w)

	require.NoError(t, err)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
}

func TestWriter_Events(t *testing.T) {
	w := httptest.NewRecorder()
	writer, err := sse.NewWriter(w)
	require.NoError(t, err)

	require.NoError(t, writer.WriteReady("warehouse/db/poses/inserts"))
	require.NoError(t, writer.WriteInsert("65f0c0ffee", []byte(`{"name":"a"}`)))
	require.NoError(t, writer.WriteInsert("", []byte(`{}`)))
	require.NoError(t, writer.WriteError("SERVICE_UNAVAILABLE", "subscription lost", ""))
	require.NoError(t, writer.WriteDone())

	expected := "event: ready\ndata: {\"topic\":\"warehouse/db/poses/inserts\"}\n\n" +
		"id: 65f0c0ffee\nevent: insert\ndata: {\"name\":\"a\"}\n\n" +
		"event: insert\ndata: {}\n\n" +
		"event: error\ndata: {\"code\":\"SERVICE_UNAVAILABLE\",\"message\":\"subscription lost\"}\n\n" +
		"event: done\ndata: stream completed\n\n"
	assert.Equal(t, expected, w.Body.String())
	assert.True(t, w.Flushed)
}
