package project

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/loykin/servcur/internal/domain"
	"github.com/loykin/servcur/internal/process"
)

// Env carries what strategies need beyond the project record itself.
type Env struct {
	Fs        afero.Fs // where custom scripts are written; nil means the OS filesystem
	ScriptDir string
}

func (e Env) fs() afero.Fs {
	if e.Fs == nil {
		return afero.NewOsFs()
	}
	return e.Fs
}

// CustomStrategy runs user supplied shell scripts.
type CustomStrategy struct {
	Start   string `json:"start"`
	Stop    string `json:"stop"`
	Restart string `json:"restart"`
}

func (c *CustomStrategy) Validate() error {
	if strings.TrimSpace(c.Start) == "" {
		return fmt.Errorf("%w: custom project requires a start script", domain.ErrInvalid)
	}
	return nil
}

func (c *CustomStrategy) script(a Action) string {
	switch a {
	case ActionStart:
		return c.Start
	case ActionStop:
		return c.Stop
	default:
		return c.Restart
	}
}

// ScriptName is the file an action's script is rendered to.
func ScriptName(a Action, bp domain.BaseProject) string {
	return fmt.Sprintf("%s-%s-%s%s", a, bp.Name, bp.Branch, process.ScriptExt)
}

// Run writes the action's script into env.ScriptDir, replacing any previous
// copy, and returns a plan that runs it with the project directory as cwd.
func (c *CustomStrategy) Run(a Action, env Env, dir string, bp domain.BaseProject) (domain.Plan, error) {
	body := c.script(a)
	if strings.TrimSpace(body) == "" {
		return domain.Plan{}, fmt.Errorf("%w: %s has no %s script", domain.ErrInvalid, bp, a)
	}
	if env.ScriptDir == "" {
		return domain.Plan{}, fmt.Errorf("%w: script directory not configured", domain.ErrInvalid)
	}
	fsys := env.fs()
	if err := fsys.MkdirAll(env.ScriptDir, 0o755); err != nil {
		return domain.Plan{}, fmt.Errorf("create script dir: %w", err)
	}
	path := filepath.Join(env.ScriptDir, ScriptName(a, bp))
	if !strings.HasSuffix(body, "\n") {
		body += "\n"
	}
	if err := afero.WriteFile(fsys, path, []byte(body), 0o700); err != nil {
		return domain.Plan{}, fmt.Errorf("write %s script: %w", a, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return domain.NewPlan(bp, process.ScriptSpec(abs, dir)), nil
}
