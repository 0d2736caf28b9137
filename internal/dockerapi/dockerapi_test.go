package dockerapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/docker/docker/pkg/stdcopy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/servcur/internal/domain"
)

const apiVersion = "1.45"

// fakeEngine answers the handful of Engine API routes the client uses.
type fakeEngine struct {
	mu       sync.Mutex
	requests []string
}

func (f *fakeEngine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery)
	f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/v"+apiVersion)
	w.Header().Set("Content-Type", "application/json")
	switch {
	case path == "/_ping":
		w.Header().Set("Api-Version", apiVersion)
		_, _ = w.Write([]byte("OK"))
	case r.Method == http.MethodGet && path == "/info":
		writeJSON(w, map[string]any{"ID": "abc", "Name": "host1", "ServerVersion": "27.3.1", "NCPU": 4, "Containers": 3, "ContainersRunning": 1, "Images": 7})
	case r.Method == http.MethodGet && path == "/containers/json":
		writeJSON(w, []map[string]any{{"Id": "c1", "Names": []string{"/demo-main-1"}, "Image": "demo-main:1", "State": "running", "Status": "Up 1 minute", "Created": 1700000000}})
	case r.Method == http.MethodGet && path == "/images/json":
		writeJSON(w, []map[string]any{{"Id": "sha256:1", "RepoTags": []string{"demo-main:1"}, "Size": 1024, "Created": 1700000000}})
	case r.Method == http.MethodGet && path == "/volumes":
		writeJSON(w, map[string]any{"Volumes": []map[string]any{{"Name": "data", "Driver": "local", "Mountpoint": "/var/lib/docker/volumes/data"}}})
	case r.Method == http.MethodGet && path == "/networks":
		writeJSON(w, []map[string]any{{"Id": "n1", "Name": "bridge", "Driver": "bridge", "Scope": "local"}})
	case r.Method == http.MethodGet && path == "/containers/c1/json":
		writeJSON(w, map[string]any{"Id": "c1", "Name": "/demo-main-1", "Config": map[string]any{"Tty": false}})
	case r.Method == http.MethodGet && path == "/containers/c1/logs":
		w.Header().Set("Content-Type", "application/vnd.docker.multiplexed-stream")
		_, _ = stdcopy.NewStdWriter(w, stdcopy.Stdout).Write([]byte("2026-01-02T03:04:05.000000000Z listening on :8080\n"))
		_, _ = stdcopy.NewStdWriter(w, stdcopy.Stderr).Write([]byte("2026-01-02T03:04:06.000000000Z warn: cache cold\n"))
	case r.Method == http.MethodDelete && strings.HasSuffix(path, "/missing"):
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]string{"message": "No such object: missing"})
	case r.Method == http.MethodDelete && strings.HasPrefix(path, "/images/"):
		writeJSON(w, []map[string]string{{"Deleted": "sha256:1"}})
	case r.Method == http.MethodDelete:
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]string{"message": "unexpected " + r.Method + " " + path})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	_ = json.NewEncoder(w).Encode(v)
}

func newClient(t *testing.T) (*Client, *fakeEngine) {
	t.Helper()
	engine := &fakeEngine{}
	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	c, err := New("tcp://"+strings.TrimPrefix(srv.URL, "http://"), apiVersion)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, engine
}

func TestListResources(t *testing.T) {
	c, _ := newClient(t)
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))

	info, err := c.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "host1", info.Name)
	assert.Equal(t, 4, info.NCPU)
	assert.Equal(t, 1, info.ContainersRunning)

	containers, err := c.Containers(ctx)
	require.NoError(t, err)
	require.Len(t, containers, 1)
	assert.Equal(t, "c1", containers[0].ID)
	assert.Equal(t, []string{"/demo-main-1"}, containers[0].Names)

	images, err := c.Images(ctx)
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, []string{"demo-main:1"}, images[0].RepoTags)

	volumes, err := c.Volumes(ctx)
	require.NoError(t, err)
	require.Len(t, volumes, 1)
	assert.Equal(t, "data", volumes[0].Name)

	networks, err := c.Networks(ctx)
	require.NoError(t, err)
	require.Len(t, networks, 1)
	assert.Equal(t, "bridge", networks[0].Name)
}

func TestRemoveResources(t *testing.T) {
	c, engine := newClient(t)
	ctx := context.Background()

	require.NoError(t, c.RemoveContainer(ctx, "c1", true))
	require.NoError(t, c.RemoveImage(ctx, "sha256:1", false))
	require.NoError(t, c.RemoveVolume(ctx, "data", false))
	require.NoError(t, c.RemoveNetwork(ctx, "n1"))

	engine.mu.Lock()
	defer engine.mu.Unlock()
	require.Len(t, engine.requests, 4)
	assert.True(t, strings.HasPrefix(engine.requests[0], "DELETE /v"+apiVersion+"/containers/c1?"))
	assert.Contains(t, engine.requests[0], "force=1")
}

func TestRemoveMissingMapsToNotFound(t *testing.T) {
	c, _ := newClient(t)
	err := c.RemoveContainer(context.Background(), "missing", false)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	err = c.RemoveNetwork(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNilClientIsUnavailable(t *testing.T) {
	var c *Client
	ctx := context.Background()
	assert.ErrorIs(t, c.Ping(ctx), ErrUnavailable)
	_, err := c.Containers(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = c.Info(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, c.RemoveVolume(ctx, "x", false), ErrUnavailable)
	assert.NoError(t, c.Close())
}

func TestUnreachableDaemonIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	c, err := New("tcp://"+addr, apiVersion)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()
	_, err = c.Containers(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestContainerLogsDemuxed(t *testing.T) {
	c, engine := newClient(t)
	rc, err := c.ContainerLogs(context.Background(), "c1", 1767323045)
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "2026-01-02T03:04:05.000000000Z listening on :8080\n2026-01-02T03:04:06.000000000Z warn: cache cold\n", string(b))

	engine.mu.Lock()
	defer engine.mu.Unlock()
	last := engine.requests[len(engine.requests)-1]
	assert.True(t, strings.HasPrefix(last, "GET /v"+apiVersion+"/containers/c1/logs?"), last)
	for _, q := range []string{"follow=1", "timestamps=1", "stdout=1", "stderr=1", "since=1767323045"} {
		assert.Contains(t, last, q)
	}
}

func TestContainerLogsMissing(t *testing.T) {
	c, _ := newClient(t)
	_, err := c.ContainerLogs(context.Background(), "missing", 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	var nilClient *Client
	_, err = nilClient.ContainerLogs(context.Background(), "c1", 0)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestDemuxCloseStopsCopy(t *testing.T) {
	pr, pw := io.Pipe()
	rc := Demux(pr, false)
	go func() {
		_, _ = stdcopy.NewStdWriter(pw, stdcopy.Stdout).Write([]byte("first\n"))
	}()
	buf := make([]byte, len("first\n"))
	_, err := io.ReadFull(rc, buf)
	require.NoError(t, err)
	assert.Equal(t, "first\n", string(buf))

	require.NoError(t, rc.Close())
	_, err = pw.Write([]byte("x"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)

	tty := io.NopCloser(strings.NewReader("raw\n"))
	assert.Equal(t, tty, Demux(tty, true))
}
