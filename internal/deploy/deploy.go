// Package deploy ties the project registry, the checkouts on disk and the
// executor together into the operations the API exposes.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/loykin/servcur/internal/domain"
	"github.com/loykin/servcur/internal/env"
	"github.com/loykin/servcur/internal/project"
	"github.com/loykin/servcur/internal/registry"
	"github.com/loykin/servcur/internal/workspace"
)

// Submitter accepts plans for asynchronous execution.
type Submitter interface {
	Submit(ctx context.Context, plan domain.Plan) (domain.ExecutionID, error)
}

type Config struct {
	Registry  *registry.Registry
	Workspace *workspace.Workspace
	Executor  Submitter
	Scripts   project.Env // where custom strategy scripts are rendered
	Env       *env.Env    // variables added to every step; may be nil
	Logger    *slog.Logger
}

type Service struct {
	reg     *registry.Registry
	ws      *workspace.Workspace
	exec    Submitter
	scripts project.Env
	env     *env.Env
	logger  *slog.Logger
}

func New(cfg Config) (*Service, error) {
	switch {
	case cfg.Registry == nil:
		return nil, errors.New("deploy service requires a registry")
	case cfg.Workspace == nil:
		return nil, errors.New("deploy service requires a workspace")
	case cfg.Executor == nil:
		return nil, errors.New("deploy service requires an executor")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		reg:     cfg.Registry,
		ws:      cfg.Workspace,
		exec:    cfg.Executor,
		scripts: cfg.Scripts,
		env:     cfg.Env,
		logger:  logger,
	}, nil
}

// NewProject is a request to register and clone a repository.
type NewProject struct {
	Name   string       `json:"name"`
	Branch string       `json:"branch"`
	URL    string       `json:"https_url"`
	Token  string       `json:"token,omitempty"`
	Kind   project.Kind `json:"project_kind"`
	Env    []string     `json:"env,omitempty"`

	RedeployOnPush bool `json:"redeploy_on_push,omitempty"`
}

// CreateProject clones the repository and registers it. A failed insert
// removes the fresh checkout again.
func (s *Service) CreateProject(req NewProject) (project.Project, error) {
	bp := domain.BaseProject{Name: req.Name, Branch: req.Branch}
	p := project.Project{
		URI:    project.WebhookURI(req.Name, req.Branch),
		Name:   req.Name,
		Branch: req.Branch,
		Kind:   req.Kind,
		Env:    req.Env,

		RedeployOnPush: req.RedeployOnPush,
	}
	if err := p.Validate(); err != nil {
		return project.Project{}, err
	}
	if _, ok := s.reg.Get(bp.Name, bp.Branch); ok {
		return project.Project{}, fmt.Errorf("%w: project %s", domain.ErrAlreadyExists, bp)
	}

	dir, err := s.ws.Clone(workspace.CloneRequest{Project: bp, URL: req.URL, Token: req.Token})
	if err != nil {
		return project.Project{}, err
	}
	p.Path = dir
	if err := s.reg.Insert(p); err != nil {
		if rmErr := s.ws.Remove(bp); rmErr != nil {
			s.logger.Warn("Failed to remove checkout after rejected insert", "project", bp.Name, "branch", bp.Branch, "error", rmErr)
		}
		return project.Project{}, err
	}
	s.logger.Info("Project created", "project", bp.Name, "branch", bp.Branch, "kind", p.Kind.Type())
	return p.Clone(), nil
}

// RemoveProject deletes the checkout and then the registry record.
func (s *Service) RemoveProject(bp domain.BaseProject) (project.Project, error) {
	if _, ok := s.reg.Get(bp.Name, bp.Branch); !ok {
		return project.Project{}, fmt.Errorf("%w: project %s", domain.ErrNotFound, bp)
	}
	if err := s.ws.Remove(bp); err != nil {
		return project.Project{}, err
	}
	removed, err := s.reg.Remove(bp)
	if err != nil {
		return project.Project{}, err
	}
	s.logger.Info("Project removed", "project", bp.Name, "branch", bp.Branch)
	return removed, nil
}

func (s *Service) Get(name, branch string) (project.Project, error) {
	p, ok := s.reg.Get(name, branch)
	if !ok {
		return project.Project{}, fmt.Errorf("%w: project %s/%s", domain.ErrNotFound, name, branch)
	}
	return p, nil
}

func (s *Service) List() []project.Project { return s.reg.List() }

// Pull updates the checkout of a registered project.
func (s *Service) Pull(bp domain.BaseProject) error {
	if _, ok := s.reg.Get(bp.Name, bp.Branch); !ok {
		return fmt.Errorf("%w: project %s", domain.ErrNotFound, bp)
	}
	return s.ws.Pull(bp)
}

// ActionResult is returned as soon as the plan is queued.
type ActionResult struct {
	ID      domain.ExecutionID `json:"io_id"`
	Project domain.BaseProject `json:"project"`
}

// Act builds the plan for cmd while holding the registry's write access, so
// strategy state changes are persisted before the plan is submitted. It does
// not wait for the plan to run. Concurrent actions on one project are not
// serialized beyond that.
func (s *Service) Act(ctx context.Context, bp domain.BaseProject, cmd project.ActionCommand) (ActionResult, error) {
	var (
		plan    domain.Plan
		overlay []string
	)
	err := s.reg.Update(bp.Name, bp.Branch, func(p *project.Project) error {
		var err error
		plan, err = cmd.Plan(p, s.scripts)
		overlay = p.Env
		return err
	})
	if err != nil {
		return ActionResult{}, err
	}
	plan = withEnv(plan, s.env.Overlay(overlay))

	id, err := s.exec.Submit(ctx, plan)
	if err != nil {
		return ActionResult{}, err
	}
	s.logger.Info("Action submitted", "id", id, "project", bp.Name, "branch", bp.Branch, "kind", cmd.Kind, "action", cmd.Command)
	return ActionResult{ID: id, Project: bp}, nil
}

func withEnv(plan domain.Plan, vars []string) domain.Plan {
	if len(vars) == 0 {
		return plan
	}
	steps := make([]domain.Step, len(plan.Steps))
	for i, st := range plan.Steps {
		st.Command.Env = append(append([]string(nil), vars...), st.Command.Env...)
		steps[i] = st
	}
	plan.Steps = steps
	return plan
}
