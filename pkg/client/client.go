// Package client talks to a running servcur daemon over its HTTP API.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Client provides HTTP client functionality to communicate with the servcur daemon
type Client struct {
	baseURL string
	client  *http.Client
	tls     *tls.Config
	logger  *slog.Logger
	creds   credentials
}

type credentials struct {
	token    string
	username string
	password string
}

// Config holds client configuration
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	Logger   *slog.Logger // Optional logger for client operations
	CACert   string       // PEM file trusted in addition to the system pool
	Insecure bool         // Skip TLS verification
	Token    string       // Bearer token from Login; wins over Username
	Username string       // Basic credentials
	Password string
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8080/api",
		Timeout: 10 * time.Second,
	}
}

// APIError is a non-2xx answer from the daemon.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// New creates a new servcur API client
func New(config Config) (*Client, error) {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	tlsConfig, err := setupClientTLS(config)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		logger:  config.Logger,
		tls:     tlsConfig,
		creds:   credentials{token: config.Token, username: config.Username, password: config.Password},
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: &http.Transport{TLSClientConfig: tlsConfig},
		},
	}, nil
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	err := c.do(ctx, http.MethodGet, "/healthz", nil, nil)
	if err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
	}
	return err == nil
}

// Login exchanges a username and password for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (Token, error) {
	var out LoginResult
	err := c.do(ctx, http.MethodPost, "/auth/login", LoginRequest{Username: username, Password: password}, &out)
	if err != nil {
		return Token{}, err
	}
	if out.Token == nil {
		return Token{}, errors.New("login answer carries no token")
	}
	return *out.Token, nil
}

func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var out []Project
	err := c.do(ctx, http.MethodGet, "/projects", nil, &out)
	return out, err
}

func (c *Client) CreateProject(ctx context.Context, req CreateProjectRequest) (Project, error) {
	c.logger.Debug("Creating project", "name", req.Name, "branch", req.Branch, "kind", req.Kind.Type)
	var out Project
	err := c.do(ctx, http.MethodPost, "/projects", req, &out)
	return out, err
}

func (c *Client) GetProject(ctx context.Context, name, branch string) (Project, error) {
	var out Project
	err := c.do(ctx, http.MethodGet, projectPath(name, branch), nil, &out)
	return out, err
}

func (c *Client) RemoveProject(ctx context.Context, name, branch string) (Project, error) {
	var out Project
	err := c.do(ctx, http.MethodDelete, projectPath(name, branch), nil, &out)
	return out, err
}

func (c *Client) Pull(ctx context.Context, name, branch string) error {
	return c.do(ctx, http.MethodPost, projectPath(name, branch)+"/pull", nil, nil)
}

// Action queues kind/command on the project and returns without waiting for
// it to run.
func (c *Client) Action(ctx context.Context, name, branch string, req ActionRequest) (ActionResult, error) {
	var out ActionResult
	err := c.do(ctx, http.MethodPost, projectPath(name, branch)+"/action", req, &out)
	return out, err
}

// Running lists live executions keyed by execution id.
func (c *Client) Running(ctx context.Context) (map[string]BaseProject, error) {
	out := map[string]BaseProject{}
	err := c.do(ctx, http.MethodGet, "/executions", nil, &out)
	return out, err
}

func (c *Client) ListLogs(ctx context.Context) ([]LogEntry, error) {
	var out []LogEntry
	err := c.do(ctx, http.MethodGet, "/logs", nil, &out)
	return out, err
}

func (c *Client) GetLog(ctx context.Context, id string) (IoLog, error) {
	var out IoLog
	err := c.do(ctx, http.MethodGet, "/logs/"+url.PathEscape(id), nil, &out)
	return out, err
}

// Attach copies one output stream (stdout or stderr) of a live execution to
// w, one line per websocket message, until the execution ends or ctx is done.
func (c *Client) Attach(ctx context.Context, id, stream string, w io.Writer) error {
	return c.follow(ctx, "attach", "/executions/"+url.PathEscape(id)+"/"+url.PathEscape(stream), w)
}

// ContainerLogs follows a container's log from since (unix seconds, 0 for
// all of it) and copies each timestamped line to w until the container's
// log ends or ctx is done.
func (c *Client) ContainerLogs(ctx context.Context, id string, since int64, w io.Writer) error {
	path := "/containers/" + url.PathEscape(id) + "/logs?since=" + strconv.FormatInt(since, 10)
	return c.follow(ctx, "container logs", path, w)
}

func (c *Client) follow(ctx context.Context, op, path string, w io.Writer) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("build %s url: %w", op, err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second, TLSClientConfig: c.tls, Proxy: http.ProxyFromEnvironment}
	header := http.Header{}
	c.creds.apply(header)
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			defer func() { _ = resp.Body.Close() }()
			return decodeError(resp)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = conn.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%s: %w", op, err)
		}
		if _, err := w.Write(append(msg, '\n')); err != nil {
			return err
		}
	}
}

func projectPath(name, branch string) string {
	return "/projects/" + url.PathEscape(name) + "/" + url.PathEscape(branch)
}

// do sends body as JSON (when non-nil) and decodes a 2xx answer into out
// (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.creds.apply(req.Header)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := decodeError(resp)
		c.logger.Debug("API request failed", "method", method, "path", path, "error", apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (cr credentials) apply(h http.Header) {
	switch {
	case cr.token != "":
		h.Set("Authorization", "Bearer "+cr.token)
	case cr.username != "":
		h.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(cr.username+":"+cr.password)))
	}
}

func decodeError(resp *http.Response) error {
	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil {
		return &APIError{Status: resp.StatusCode}
	}
	return &APIError{Status: resp.StatusCode, Message: errorResp.Error}
}

// setupClientTLS returns nil when neither a CA nor insecure mode is requested.
func setupClientTLS(config Config) (*tls.Config, error) {
	if config.CACert == "" && !config.Insecure {
		return nil, nil
	}
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if config.Insecure {
		tlsConfig.InsecureSkipVerify = true // #nosec G402 explicitly requested
		return tlsConfig, nil
	}
	if err := loadCACert(tlsConfig, config.CACert); err != nil {
		return nil, fmt.Errorf("failed to load CA certificate: %w", err)
	}
	return tlsConfig, nil
}

// loadCACert loads CA certificate from file and adds it to TLS config
func loadCACert(tlsConfig *tls.Config, caCertPath string) error {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return fmt.Errorf("failed to read CA certificate file: %w", err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(caCert) {
		return fmt.Errorf("failed to parse CA certificate")
	}
	tlsConfig.RootCAs = pool
	return nil
}
