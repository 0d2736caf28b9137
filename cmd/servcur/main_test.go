package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/loykin/servcur"
	"github.com/loykin/servcur/internal/auth"
)

func startDaemon(t *testing.T, mods ...func(*servcur.Config)) string {
	t.Helper()
	dir := t.TempDir()
	cfg := servcur.DefaultConfig()
	cfg.DataDir = dir
	cfg.Executor.LogDir = filepath.Join(dir, "logs")
	cfg.Projects.Root = filepath.Join(dir, "projects")
	cfg.Projects.ScriptDir = filepath.Join(dir, "scripts")
	cfg.Projects.StoreFile = filepath.Join(dir, "store.json")
	cfg.Docker.Enabled = false
	cfg.Metrics.Enabled = false
	for _, mod := range mods {
		mod(&cfg)
	}

	app, err := servcur.New(cfg, servcur.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = app.Close(context.Background())
	})
	return srv.URL + cfg.Server.BasePath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := buildRoot()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestClientCommandsAgainstDaemon(t *testing.T) {
	api := startDaemon(t)

	out, err := run(t, "project", "list", "--api-url", api)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, out)

	out, err = run(t, "running", "--api-url", api)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, out)

	_, err = run(t, "logs", "list", "--api-url", api)
	require.NoError(t, err)

	_, err = run(t, "project", "get", "demo", "main", "--api-url", api)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	_, err = run(t, "project", "create", "demo", "main", "--url", "http://example.com/demo.git", "--api-url", api)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")

	_, err = run(t, "action", "demo", "main", "start", "--kind", "Custom", "--api-url", api)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	_, err = run(t, "attach", "01J9Z3M5Q8S7T4V2W1X0Y9Z8A7", "--api-url", api)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not running")
}

func TestCommandArgs(t *testing.T) {
	_, err := run(t, "project", "get", "only-name")
	assert.Error(t, err)
	_, err = run(t, "project", "create", "demo", "main")
	assert.Error(t, err, "--url is required")
	_, err = run(t, "action", "demo", "main")
	assert.Error(t, err)
}

func TestCreateRequest(t *testing.T) {
	req, err := createRequest("job", "main", CreateFlags{URL: "https://x/job.git", Kind: "Custom", StartCmd: "make run", Env: []string{"A=1"}})
	require.NoError(t, err)
	assert.Equal(t, "make run", req.Kind.Start)
	assert.Equal(t, []string{"A=1"}, req.Env)

	_, err = createRequest("job", "main", CreateFlags{URL: "https://x/job.git", Kind: "custom"})
	assert.Error(t, err, "custom needs --start")

	_, err = createRequest("web", "main", CreateFlags{URL: "https://x/web.git", Kind: "DockerFile", StopCmd: "x"})
	assert.Error(t, err, "scripts only apply to custom")

	req, err = createRequest("web", "main", CreateFlags{URL: "https://x/web.git", Kind: "DockerCompose", Redeploy: true})
	require.NoError(t, err)
	assert.Equal(t, "DockerCompose", req.Kind.Type)
	assert.Empty(t, req.Kind.Start)
	assert.True(t, req.RedeployOnPush)
}

func TestContainerLogsCommandDockerDisabled(t *testing.T) {
	api := startDaemon(t)
	_, err := run(t, "logs", "container", "web", "--since", "1767323045", "--api-url", api)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestHashPasswordCommand(t *testing.T) {
	out, err := run(t, "hash-password", "hunter2")
	require.NoError(t, err)
	h := strings.TrimSpace(out)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(h), []byte("hunter2")))

	root := buildRoot()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetIn(strings.NewReader("fromstdin\n"))
	root.SetArgs([]string{"hash-password"})
	require.NoError(t, root.Execute())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(strings.TrimSpace(buf.String())), []byte("fromstdin")))
}

func TestLoginAgainstAuthDaemon(t *testing.T) {
	h, err := auth.HashPassword("pw")
	require.NoError(t, err)
	api := startDaemon(t, func(c *servcur.Config) {
		c.Server.Auth = auth.Config{Enabled: true, Users: []auth.User{{Username: "eye", PasswordHash: h, Roles: []string{auth.RoleViewer}}}}
	})

	_, err = run(t, "project", "list", "--api-url", api)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	_, err = run(t, "login", "--api-url", api)
	assert.Error(t, err, "--user is required")

	out, err := run(t, "login", "--api-url", api, "--user", "eye", "--password", "pw")
	require.NoError(t, err)
	token := strings.TrimSpace(out)
	require.NotEmpty(t, token)

	out, err = run(t, "project", "list", "--api-url", api, "--token", token)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, out)

	_, err = run(t, "project", "remove", "demo", "main", "--api-url", api, "--user", "eye", "--password", "pw")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestRunServeBadConfig(t *testing.T) {
	err := runServe(context.Background(), filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[executor]\ninbox_size = -1\n"), 0o644))
	err = runServe(context.Background(), bad)
	assert.Error(t, err)
}
