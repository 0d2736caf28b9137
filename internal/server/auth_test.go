package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/loykin/servcur/internal/auth"
)

func withAuth(t *testing.T) func(*Options) {
	t.Helper()
	users := []auth.User{}
	for name, role := range map[string]string{"root": auth.RoleAdmin, "eye": auth.RoleViewer} {
		h, err := bcrypt.GenerateFromPassword([]byte(name+"pw"), bcrypt.MinCost)
		require.NoError(t, err)
		users = append(users, auth.User{Username: name, PasswordHash: string(h), Roles: []string{role}})
	}
	svc, err := auth.New(auth.Config{JWTSecret: "k", Users: users})
	require.NoError(t, err)
	return func(o *Options) { o.Auth = svc }
}

func authedReq(h http.Handler, method, path, user, pass, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	switch {
	case token != "":
		req.Header.Set("Authorization", "Bearer "+token)
	case user != "":
		req.SetBasicAuth(user, pass)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLoginDisabled(t *testing.T) {
	hs := newHarness(t, "/api", false)
	rec := doReq(t, hs.h, http.MethodPost, "/api/auth/login", auth.LoginRequest{Username: "a", Password: "b"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthGuardsRoutes(t *testing.T) {
	hs := newHarness(t, "/api", true, withAuth(t))

	// open routes
	assert.Equal(t, http.StatusOK, doReq(t, hs.h, http.MethodGet, "/api/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, doReq(t, hs.h, http.MethodGet, "/api/metrics", nil).Code)
	assert.Equal(t, http.StatusOK, doReq(t, hs.h, http.MethodPost, "/api/webhook/nope/main", nil).Code)

	rec := doReq(t, hs.h, http.MethodGet, "/api/projects", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "authentication required", errorOf(t, rec))

	rec = doReq(t, hs.h, http.MethodPost, "/api/auth/login", auth.LoginRequest{Username: "eye", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doReq(t, hs.h, http.MethodPost, "/api/auth/login", auth.LoginRequest{Username: "eye", Password: "eyepw"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res auth.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.NotNil(t, res.Token)

	assert.Equal(t, http.StatusOK, authedReq(hs.h, http.MethodGet, "/api/projects", "", "", res.Token.Value).Code)
	assert.Equal(t, http.StatusOK, authedReq(hs.h, http.MethodGet, "/api/containers", "", "", res.Token.Value).Code)
	assert.Equal(t, http.StatusForbidden, authedReq(hs.h, http.MethodDelete, "/api/containers/abc", "", "", res.Token.Value).Code)
	assert.Equal(t, http.StatusUnauthorized, authedReq(hs.h, http.MethodGet, "/api/logs", "", "", "garbage").Code)

	assert.Equal(t, http.StatusOK, authedReq(hs.h, http.MethodDelete, "/api/containers/abc", "root", "rootpw", "").Code)
	assert.Equal(t, []string{"abc force=false"}, hs.docker.removed)
}

func TestLoginRejectsBadBody(t *testing.T) {
	hs := newHarness(t, "", false, withAuth(t))
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	hs.h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnonymousWebhookCannotRedeploy(t *testing.T) {
	hs := newHarness(t, "", false, withAuth(t))
	body := map[string]any{
		"name":         "demo",
		"branch":       "main",
		"https_url":    "https://example.com/demo.git",
		"project_kind": map[string]any{"type": "Custom", "start": "echo hello"},
	}
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/projects", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth("root", "rootpw")
	rec := httptest.NewRecorder()
	hs.h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	push := map[string]string{"before": "a1", "after": "b2"}
	rec = doReq(t, hs.h, http.MethodPost, "/webhook/demo/main?redeploy=1", push)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"pulled":true}`, rec.Body.String())
	assert.Empty(t, hs.exec.plans)
}
