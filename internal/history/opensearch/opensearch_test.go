package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/servcur/internal/history"
)

func TestOpenSearchSink_Send(t *testing.T) {
	var receivedBody []byte
	var receivedPath, receivedMethod, receivedType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedMethod = r.Method
		receivedPath = r.URL.Path
		receivedType = r.Header.Get("Content-Type")
		receivedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}))
	defer server.Close()

	sink := New(server.URL+"/", "executions")
	event := history.Event{
		Type:       history.EventFinished,
		OccurredAt: time.Now().UTC(),
		Record:     history.Record{ID: "exec-1", Project: "app", Branch: "dev", Steps: 1, ExitStatus: 2},
	}
	require.NoError(t, sink.Send(context.Background(), event))

	assert.Equal(t, http.MethodPost, receivedMethod)
	assert.Equal(t, "/executions/_doc", receivedPath)
	assert.Equal(t, "application/json", receivedType)

	var got map[string]any
	require.NoError(t, json.Unmarshal(receivedBody, &got))
	assert.Equal(t, string(history.EventFinished), got["type"])
	record, ok := got["record"].(map[string]any)
	require.True(t, ok, "record missing: %v", got)
	assert.Equal(t, "app", record["project"])
	assert.Equal(t, "dev", record["branch"])
	assert.Equal(t, float64(2), record["exit_status"])
	assert.Equal(t, false, record["success"])
}

func TestOpenSearchSink_SendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	err := New(server.URL, "executions").Send(context.Background(), history.Event{Type: history.EventStarted})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "opensearch sink status 400"), err.Error())
}

func TestOpenSearchSink_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, New(server.URL, "executions").Send(ctx, history.Event{}))
}
