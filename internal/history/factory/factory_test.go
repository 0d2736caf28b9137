package factory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/servcur/internal/history"
	"github.com/loykin/servcur/internal/history/opensearch"
	"github.com/loykin/servcur/internal/history/sqlite"
)

func TestNewSinkFromDSN_SQLite(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
	}{
		{"explicit prefix", "sqlite://" + filepath.Join(t.TempDir(), "a.db")},
		{"plain path", filepath.Join(t.TempDir(), "b.db")},
		{"memory", "sqlite://:memory:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink, err := NewSinkFromDSN(tt.dsn)
			require.NoError(t, err)
			s, ok := sink.(*sqlite.Sink)
			require.True(t, ok, "expected sqlite sink, got %T", sink)
			defer func() { _ = s.Close() }()
			ev := history.Event{Type: history.EventStarted, OccurredAt: time.Now(), Record: history.Record{ID: "x", Project: "p", Branch: "b"}}
			assert.NoError(t, sink.Send(context.Background(), ev))
		})
	}
}

func TestNewSinkFromDSN_OpenSearch(t *testing.T) {
	sink, err := NewSinkFromDSN("opensearch://localhost:9200/deploys")
	require.NoError(t, err)
	_, ok := sink.(*opensearch.Sink)
	assert.True(t, ok, "expected opensearch sink, got %T", sink)

	_, err = NewSinkFromDSN("opensearch:///nohost")
	assert.Error(t, err)
}

func TestNewSinkFromDSN_Errors(t *testing.T) {
	for _, dsn := range []string{"", "   ", "mysql://user@host/db"} {
		_, err := NewSinkFromDSN(dsn)
		assert.Error(t, err, "dsn %q", dsn)
	}
}
