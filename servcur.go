// Package servcur assembles the deployment daemon from its configuration:
// project registry, git workspace, background executor, live output
// streaming, persisted logs, optional history sinks, Docker inspection and
// the HTTP API in front of them.
package servcur

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"github.com/loykin/servcur/internal/auth"
	"github.com/loykin/servcur/internal/config"
	"github.com/loykin/servcur/internal/deploy"
	"github.com/loykin/servcur/internal/dockerapi"
	"github.com/loykin/servcur/internal/env"
	"github.com/loykin/servcur/internal/executor"
	"github.com/loykin/servcur/internal/history"
	"github.com/loykin/servcur/internal/history/factory"
	"github.com/loykin/servcur/internal/logstore"
	"github.com/loykin/servcur/internal/metrics"
	"github.com/loykin/servcur/internal/project"
	"github.com/loykin/servcur/internal/registry"
	"github.com/loykin/servcur/internal/server"
	"github.com/loykin/servcur/internal/stream"
	"github.com/loykin/servcur/internal/workspace"
)

// Config is the daemon configuration (see config.toml.example).
type Config = config.Config

// LoadConfig reads a TOML file on top of the defaults. An empty path loads
// the defaults and SERVCUR_* environment overrides only.
func LoadConfig(path string) (Config, error) { return config.Load(path) }

func DefaultConfig() Config { return config.Default() }

const dockerPingTimeout = 3 * time.Second

// App is a fully wired daemon.
type App struct {
	cfg       Config
	logger    *slog.Logger
	closers   []io.Closer
	exec      *executor.Executor
	deploy    *deploy.Service
	docker    *dockerapi.Client
	router    *server.Router
	tlsConfig *tls.Config
}

type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger replaces the logger built from the [log] section.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// New builds every component from cfg. Close releases them.
func New(cfg Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	app := &App{cfg: cfg}
	if err := app.build(o); err != nil {
		if app.exec != nil {
			_ = app.exec.Close(context.Background())
		}
		app.closeAll()
		return nil, err
	}
	return app, nil
}

func (a *App) build(o options) (err error) {
	cfg := a.cfg
	a.logger = o.logger
	if a.logger == nil {
		l, closer, lerr := cfg.Log.New(os.Stderr)
		if lerr != nil {
			return fmt.Errorf("logger: %w", lerr)
		}
		a.logger = l
		a.closers = append(a.closers, closer)
	}

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		metricsHandler = metrics.Handler()
	}

	var sink history.Sink
	if cfg.History.Enabled {
		sink, err = factory.NewSinkFromDSN(cfg.History.DSN)
		if err != nil {
			return fmt.Errorf("history sink: %w", err)
		}
		if c, ok := sink.(io.Closer); ok {
			a.closers = append(a.closers, c)
		}
	}

	fsys := afero.NewOsFs()
	logs, err := logstore.New(fsys, cfg.Executor.LogDir)
	if err != nil {
		return err
	}
	a.exec, err = executor.New(executor.Config{
		InboxSize:      cfg.Executor.InboxSize,
		StreamCapacity: cfg.Executor.StreamCapacity,
		Logs:           logs,
		History:        sink,
		Logger:         a.logger,
	})
	if err != nil {
		return err
	}

	reg, err := registry.Open(fsys, cfg.Projects.StoreFile)
	if err != nil {
		return err
	}
	ws, err := workspace.New(fsys, cfg.Projects.Root, workspace.WithLogger(a.logger))
	if err != nil {
		return err
	}
	globals, err := cfg.GlobalEnv()
	if err != nil {
		return err
	}
	a.deploy, err = deploy.New(deploy.Config{
		Registry:  reg,
		Workspace: ws,
		Executor:  a.exec,
		Scripts:   project.Env{Fs: fsys, ScriptDir: cfg.Projects.ScriptDir},
		Env:       env.New(globals),
		Logger:    a.logger,
	})
	if err != nil {
		return err
	}

	if cfg.Docker.Enabled {
		a.docker = a.connectDocker()
	}

	a.tlsConfig, err = cfg.Server.TLS.Server()
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}

	ropts := server.Options{
		BasePath:   cfg.Server.BasePath,
		Projects:   a.deploy,
		Executions: a.exec,
		Logs:       logs,
		Stream:     stream.New(a.exec, a.logger),
		Metrics:    metricsHandler,
		Logger:     a.logger,
	}
	if a.docker != nil {
		ropts.Docker = a.docker
	}
	if cfg.Server.Auth.Enabled {
		ropts.Auth, err = auth.New(cfg.Server.Auth)
		if err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	a.router, err = server.NewRouter(ropts)
	if err != nil {
		return err
	}
	a.logger.Info("servcur ready",
		"projects", len(reg.List()),
		"store", reg.Path(),
		"logs", logs.Dir(),
		"docker", a.docker != nil,
		"history", cfg.History.Enabled,
		"auth", cfg.Server.Auth.Enabled)
	return nil
}

// connectDocker keeps an unreachable daemon's client: requests answer 503
// until the engine comes up.
func (a *App) connectDocker() *dockerapi.Client {
	c, err := dockerapi.New(a.cfg.Docker.Host, a.cfg.Docker.APIVersion)
	if err != nil {
		a.logger.Warn("Docker integration disabled", "error", err)
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), dockerPingTimeout)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		a.logger.Warn("Docker daemon not reachable", "error", err)
	}
	a.closers = append(a.closers, c)
	return c
}

// Handler returns the API handler, for embedding in another server.
func (a *App) Handler() http.Handler { return a.router.Handler() }

// Projects exposes the deployment service.
func (a *App) Projects() *deploy.Service { return a.deploy }

// Serve accepts connections on l until ctx is done, then shuts the HTTP
// server down gracefully. Open websocket streams are cut once the grace
// period ends.
func (a *App) Serve(ctx context.Context, l net.Listener) error {
	srv := server.NewServer(a.cfg.Server.Listen, a.router)
	srv.ErrorLog = slog.NewLogLogger(a.logger.Handler(), slog.LevelWarn)
	if a.tlsConfig != nil {
		srv.TLSConfig = a.tlsConfig
		l = tls.NewListener(l, a.tlsConfig)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(l) }()
	a.logger.Info("HTTP API listening", "addr", l.Addr().String(), "base_path", a.cfg.Server.BasePath, "tls", a.tlsConfig != nil)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
	}
	<-errCh
	return nil
}

// ListenAndServe listens on the configured address and calls Serve.
func (a *App) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", a.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.Server.Listen, err)
	}
	return a.Serve(ctx, l)
}

// Close stops accepting plans, waits for running ones until ctx ends, and
// releases the remaining resources.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.exec != nil {
		if err := a.exec.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("executor: %w", err))
		}
	}
	a.closeAll()
	return errors.Join(errs...)
}

// closeAll releases closers in reverse order of acquisition.
func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && a.logger != nil {
			a.logger.Warn("Close failed", "error", err)
		}
	}
	a.closers = nil
}
