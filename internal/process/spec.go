package process

import (
	"errors"
	"os/exec"
	"strings"
)

// Spec describes one external command invocation. The program is executed
// directly with Args as its argv; nothing is parsed by a shell unless the
// program is one.
type Spec struct {
	Program string   `json:"program"`        // executable, resolved through PATH
	Args    []string `json:"args,omitempty"` // arguments passed verbatim
	WorkDir string   `json:"work_dir,omitempty"`
	Env     []string `json:"env,omitempty"` // extra KEY=VALUE pairs appended to the daemon env
}

// Validate reports whether the spec names something to run.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.Program) == "" {
		return errors.New("process requires a program")
	}
	return nil
}

// String renders the spec as a readable command line for logs.
func (s Spec) String() string {
	return strings.TrimSpace(s.Program + " " + strings.Join(s.Args, " "))
}

// BuildCommand constructs an *exec.Cmd for the spec.
func (s Spec) BuildCommand() *exec.Cmd {
	// #nosec G204
	cmd := exec.Command(s.Program, s.Args...)
	if s.WorkDir != "" {
		cmd.Dir = s.WorkDir
	}
	if len(s.Env) > 0 {
		cmd.Env = append(cmd.Environ(), s.Env...)
	}
	configureSysProcAttr(cmd)
	return cmd
}
