package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/servcur/internal/auth"
	"github.com/loykin/servcur/internal/deploy"
	"github.com/loykin/servcur/internal/dockerapi"
	"github.com/loykin/servcur/internal/domain"
	"github.com/loykin/servcur/internal/logstore"
	"github.com/loykin/servcur/internal/project"
	"github.com/loykin/servcur/internal/stream"
)

// Router exposes the daemon API. Endpoints, relative to basePath:
//
//	GET    /healthz
//	POST   /auth/login                       body: auth.LoginRequest
//	GET    /projects                         list projects
//	POST   /projects                         body: deploy.NewProject
//	GET    /projects/:name/:branch
//	DELETE /projects/:name/:branch
//	POST   /projects/:name/:branch/action    body: project.ActionCommand
//	POST   /projects/:name/:branch/pull
//	POST   /webhook/:name/:branch            push payload; unauthenticated
//	GET    /executions                       live executions
//	GET    /executions/:id/:stream           websocket, stream is stdout or stderr
//	GET    /logs                             persisted logs
//	GET    /logs/:id
//	GET    /system, /containers, /images, /volumes, /networks
//	GET    /containers/:id/logs              websocket following the container log, query: since=<unix seconds>
//	DELETE /containers/:id, /images/:id, /volumes/:id, /networks/:id  query: force=1
//	GET    /metrics                          when a metrics handler is set
//
// With authentication enabled every route except /healthz, /auth/login,
// /webhook and /metrics requires credentials.
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	projects   Projects
	executions Executions
	logs       Logs
	bridge     *stream.Bridge
	docker     Docker
	metrics    http.Handler
	auth       *auth.Service
	guard      *auth.Middleware
	basePath   string
	logger     *slog.Logger
}

// Projects is the project and deployment surface, implemented by
// *deploy.Service.
type Projects interface {
	CreateProject(req deploy.NewProject) (project.Project, error)
	RemoveProject(bp domain.BaseProject) (project.Project, error)
	Get(name, branch string) (project.Project, error)
	List() []project.Project
	Pull(bp domain.BaseProject) error
	Act(ctx context.Context, bp domain.BaseProject, cmd project.ActionCommand) (deploy.ActionResult, error)
	Webhook(ctx context.Context, bp domain.BaseProject, payload deploy.WebhookPayload) (deploy.WebhookResult, error)
}

// Executions lists live executions, implemented by *executor.Executor.
type Executions interface {
	ListLive() map[domain.ExecutionID]domain.BaseProject
}

// Logs reads persisted execution logs, implemented by *logstore.Store.
type Logs interface {
	List() ([]logstore.Entry, error)
	ReadRaw(id domain.ExecutionID) ([]byte, error)
}

// Docker is the engine collaborator, implemented by *dockerapi.Client. A nil
// *dockerapi.Client answers every call with dockerapi.ErrUnavailable.
type Docker interface {
	Info(ctx context.Context) (dockerapi.SystemInfo, error)
	Containers(ctx context.Context) ([]dockerapi.Container, error)
	RemoveContainer(ctx context.Context, id string, force bool) error
	ContainerLogs(ctx context.Context, id string, since int64) (io.ReadCloser, error)
	Images(ctx context.Context) ([]dockerapi.Image, error)
	RemoveImage(ctx context.Context, id string, force bool) error
	Volumes(ctx context.Context) ([]dockerapi.Volume, error)
	RemoveVolume(ctx context.Context, name string, force bool) error
	Networks(ctx context.Context) ([]dockerapi.Network, error)
	RemoveNetwork(ctx context.Context, id string) error
}

type Options struct {
	BasePath   string
	Projects   Projects
	Executions Executions
	Logs       Logs
	Stream     *stream.Bridge
	Docker     Docker        // nil disables the docker routes (503)
	Metrics    http.Handler  // nil omits /metrics
	Auth       *auth.Service // nil disables authentication
	Logger     *slog.Logger
}

// NewRouter constructs a Router. Projects, Executions, Logs and Stream are
// required.
func NewRouter(opts Options) (*Router, error) {
	switch {
	case opts.Projects == nil:
		return nil, errors.New("router requires a project service")
	case opts.Executions == nil:
		return nil, errors.New("router requires an execution source")
	case opts.Logs == nil:
		return nil, errors.New("router requires a log store")
	case opts.Stream == nil:
		return nil, errors.New("router requires a stream bridge")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	docker := opts.Docker
	if docker == nil {
		docker = (*dockerapi.Client)(nil)
	}
	return &Router{
		projects:   opts.Projects,
		executions: opts.Executions,
		logs:       opts.Logs,
		bridge:     opts.Stream,
		docker:     docker,
		metrics:    opts.Metrics,
		auth:       opts.Auth,
		guard:      auth.NewMiddleware(opts.Auth),
		basePath:   sanitizeBase(opts.BasePath),
		logger:     logger.With("component", "http"),
	}, nil
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery(), r.accessLog)
	group := g.Group(r.basePath)
	group.GET("/healthz", func(c *gin.Context) { writeJSON(c, http.StatusOK, okResp{OK: true}) })

	group.POST("/auth/login", r.handleLogin)
	group.POST("/webhook/:name/:branch", r.handleWebhook)
	if r.metrics != nil {
		group.GET("/metrics", gin.WrapH(r.metrics))
	}

	api := group.Group("", r.guard.Authenticate())
	projects := api.Group("", r.guard.Require(auth.ResourceProjects))
	projects.GET("/projects", r.handleListProjects)
	projects.POST("/projects", r.handleCreateProject)
	projects.GET("/projects/:name/:branch", r.handleGetProject)
	projects.DELETE("/projects/:name/:branch", r.handleRemoveProject)
	projects.POST("/projects/:name/:branch/action", r.handleAction)
	projects.POST("/projects/:name/:branch/pull", r.handlePull)

	executions := api.Group("", r.guard.Require(auth.ResourceExecutions))
	executions.GET("/executions", r.handleListExecutions)
	executions.GET("/executions/:id/:stream", r.handleStream)
	executions.GET("/logs", r.handleListLogs)
	executions.GET("/logs/:id", r.handleGetLog)

	docker := api.Group("", r.guard.Require(auth.ResourceDocker))
	docker.GET("/system", r.handleSystem)
	docker.GET("/containers", r.handleContainers)
	docker.DELETE("/containers/:id", r.handleRemoveContainer)
	docker.GET("/containers/:id/logs", r.handleContainerLogs)
	docker.GET("/images", r.handleImages)
	docker.DELETE("/images/:id", r.handleRemoveImage)
	docker.GET("/volumes", r.handleVolumes)
	docker.DELETE("/volumes/:id", r.handleRemoveVolume)
	docker.GET("/networks", r.handleNetworks)
	docker.DELETE("/networks/:id", r.handleRemoveNetwork)
	return g
}

// NewServer wraps the router in an http.Server for addr. The caller starts it.
func NewServer(addr string, r *Router) *http.Server {
	// WriteTimeout stays zero: websocket streams outlive any fixed deadline.
	return &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func (r *Router) accessLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	r.logger.Debug("HTTP request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration", time.Since(start))
}

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

// statusFor maps the domain error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrClosed), errors.Is(err, dockerapi.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (r *Router) writeError(c *gin.Context, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		r.logger.Error("Request failed", "method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
	}
	writeJSON(c, code, errorResp{Error: err.Error()})
}
