package domain

import (
	"fmt"

	"github.com/loykin/servcur/internal/process"
)

// Step is one external command of a plan, optionally tagged for log naming.
type Step struct {
	Tag     string       `json:"tag,omitempty"`
	Command process.Spec `json:"command"`
}

// Plan is an unexecuted, linear chain of steps for one project. Steps run
// front to back; each step starts only after the previous one exited with
// status 0. The last step is the root of the resulting IoLog.
type Plan struct {
	Project BaseProject `json:"project"`
	Steps   []Step      `json:"steps"`
}

// NewPlan returns a single-step plan.
func NewPlan(project BaseProject, cmd process.Spec) Plan {
	return Plan{Project: project, Steps: []Step{{Command: cmd}}}
}

// WithTag tags the root (last) step.
func (p Plan) WithTag(tag string) Plan {
	if len(p.Steps) == 0 {
		return p
	}
	steps := append([]Step(nil), p.Steps...)
	steps[len(steps)-1].Tag = tag
	p.Steps = steps
	return p
}

// After returns a plan that runs all of dep's steps before p's.
func (p Plan) After(dep Plan) Plan {
	steps := make([]Step, 0, len(dep.Steps)+len(p.Steps))
	steps = append(steps, dep.Steps...)
	steps = append(steps, p.Steps...)
	p.Steps = steps
	return p
}

// DependsOnTagged prepends a tagged step for the same project.
func (p Plan) DependsOnTagged(cmd process.Spec, tag string) Plan {
	return p.After(NewPlan(p.Project, cmd).WithTag(tag))
}

// Root returns the last step.
func (p Plan) Root() (Step, bool) {
	if len(p.Steps) == 0 {
		return Step{}, false
	}
	return p.Steps[len(p.Steps)-1], true
}

// Validate rejects empty plans and steps with nothing to run.
func (p Plan) Validate() error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("%w: plan for %s has no steps", ErrInvalid, p.Project)
	}
	for i, s := range p.Steps {
		if err := s.Command.Validate(); err != nil {
			return fmt.Errorf("%w: step %d of %s: %v", ErrInvalid, i, p.Project, err)
		}
	}
	return nil
}
