package project

import (
	"errors"
	"fmt"
	"strings"

	"github.com/loykin/servcur/internal/domain"
)

// Action is one of the lifecycle operations every strategy implements.
type Action string

const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionRestart Action = "restart"
)

func ParseAction(s string) (Action, error) {
	a := Action(normalize(s))
	if err := a.Validate(); err != nil {
		return "", err
	}
	return a, nil
}

func (a Action) Validate() error {
	switch a {
	case ActionStart, ActionStop, ActionRestart:
		return nil
	}
	return fmt.Errorf("%w: unknown action %q", domain.ErrInvalid, string(a))
}

// ErrKindMismatch is returned when an action is addressed to a strategy the
// project does not use.
var ErrKindMismatch = fmt.Errorf("%w: project kind mismatch", domain.ErrInvalid)

// ActionCommand is a kind-qualified action request, for example
// {"project_kind": "DockerFile", "command": "start"}.
type ActionCommand struct {
	Kind    KindType `json:"project_kind"`
	Command Action   `json:"command"`
}

func (c ActionCommand) Validate() error {
	if _, err := ParseKindType(string(c.Kind)); err != nil {
		return err
	}
	_, err := ParseAction(string(c.Command))
	return err
}

// Plan dispatches the command to p's strategy. Strategy state on p (such as
// the Dockerfile image version) is mutated in place, so callers must hold
// the registry's write access while calling it.
func (c ActionCommand) Plan(p *Project, env Env) (domain.Plan, error) {
	want, err := ParseKindType(string(c.Kind))
	if err != nil {
		return domain.Plan{}, err
	}
	action, err := ParseAction(string(c.Command))
	if err != nil {
		return domain.Plan{}, err
	}
	if got := p.Kind.Type(); got != want {
		return domain.Plan{}, fmt.Errorf("%w: %s is a %s project, got %s action %q",
			ErrKindMismatch, p.Base(), got, want, action)
	}
	return p.Kind.Run(action, env, p.Path, p.Base())
}

// IsKindMismatch reports whether err came from a kind-qualified dispatch
// that addressed the wrong strategy.
func IsKindMismatch(err error) bool { return errors.Is(err, ErrKindMismatch) }

func normalize(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", ""))
}
