package logstore

import (
	"encoding/json"
	"testing"

	"github.com/loykin/servcur/internal/domain"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*Store, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	s, err := New(fsys, "/data/logs")
	require.NoError(t, err)
	return s, fsys
}

func TestWriteReadRoundTrip(t *testing.T) {
	s, _ := newStore(t)
	ids := domain.NewIDSource()
	id := ids.Next()
	project := domain.BaseProject{Name: "demo", Branch: "main"}
	log := domain.Nest([]domain.IoLog{
		{ExitStatus: 0, Project: project, Tag: "build_step", Stdout: "Step 1/2\nStep 2/2\n", Stderr: ""},
		{ExitStatus: 125, Project: project, Stdout: "", Stderr: "conflict\n"},
	})

	path, err := s.Write(id, log)
	require.NoError(t, err)
	assert.Equal(t, "/data/logs/"+id.String()+".json", path)

	got, err := s.Read(id)
	require.NoError(t, err)
	assert.Equal(t, log, got)
}

func TestWriteIsPrettyJSON(t *testing.T) {
	s, fsys := newStore(t)
	id := domain.NewIDSource().Next()
	_, err := s.Write(id, &domain.IoLog{Project: domain.BaseProject{Name: "a", Branch: "b"}, Stdout: "hello\n"})
	require.NoError(t, err)

	raw, err := afero.ReadFile(fsys, "/data/logs/"+id.String()+".json")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n  \"exit_status\": 0")
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "hello\n", m["stdout"])
	assert.NotContains(t, m, "child")
}

func TestReadMissingIsNotFound(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.ReadRaw(domain.NewIDSource().Next())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReadRejectsTraversal(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.ReadRaw(domain.ExecutionID("../store/store"))
	assert.ErrorIs(t, err, domain.ErrInvalid)
}

func TestListSkipsForeignFilesAndSorts(t *testing.T) {
	s, fsys := newStore(t)
	src := domain.NewIDSource()
	first, second := src.Next(), src.Next()
	_, err := s.Write(second, &domain.IoLog{})
	require.NoError(t, err)
	_, err = s.Write(first, &domain.IoLog{})
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fsys, "/data/logs/notes.txt", []byte("x"), 0o600))
	require.NoError(t, afero.WriteFile(fsys, "/data/logs/garbage.json", []byte("{}"), 0o600))

	entries, err := s.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, first, entries[0].ID)
	assert.Equal(t, second, entries[1].ID)
}
