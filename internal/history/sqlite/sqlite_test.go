package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/servcur/internal/history"
)

func event(typ history.EventType, id string) history.Event {
	return history.Event{
		Type:       typ,
		OccurredAt: time.Now().UTC(),
		Record: history.Record{
			ID:         id,
			Project:    "app",
			Branch:     "main",
			Tag:        "build_step",
			Steps:      2,
			ExitStatus: 0,
			Success:    true,
			Duration:   1500 * time.Millisecond,
		},
	}
}

func TestSQLiteSink_SendAndCount(t *testing.T) {
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "history.db")
	sink, err := New(dsn)
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	require.NoError(t, sink.Send(ctx, event(history.EventStarted, "exec-1")))
	require.NoError(t, sink.Send(ctx, event(history.EventFinished, "exec-1")))
	require.NoError(t, sink.Send(ctx, event(history.EventStarted, "exec-2")))

	n, err := sink.Count(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = sink.Count(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSQLiteSink_InMemory(t *testing.T) {
	sink, err := New(":memory:")
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	require.NoError(t, sink.Send(ctx, event(history.EventFinished, "exec-3")))
	n, err := sink.Count(ctx, "exec-3")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteSink_EmptyDSN(t *testing.T) {
	_, err := New("  ")
	assert.Error(t, err)
}

func TestSQLiteSink_SchemaIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "again.db")
	first, err := New(path)
	require.NoError(t, err)
	require.NoError(t, first.Send(context.Background(), event(history.EventStarted, "exec-4")))
	require.NoError(t, first.Close())

	second, err := New(path)
	require.NoError(t, err)
	defer func() { _ = second.Close() }()
	n, err := second.Count(context.Background(), "exec-4")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
