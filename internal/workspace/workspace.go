package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/loykin/servcur/internal/domain"
	"github.com/loykin/servcur/internal/process"
	"github.com/loykin/servcur/internal/project"
)

// Runner executes one git command to completion.
type Runner func(spec process.Spec) process.Result

func runQuiet(spec process.Spec) process.Result { return process.Run(spec, nil, nil) }

// GitError carries the outcome of a failed git invocation.
type GitError struct {
	Op         string
	ExitStatus int
	Stderr     string
}

func (e *GitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("git %s exited with status %d", e.Op, e.ExitStatus)
	}
	return fmt.Sprintf("git %s exited with status %d: %s", e.Op, e.ExitStatus, msg)
}

// Workspace owns the project checkouts under root, laid out as
// <root>/<name>/<branch>.
type Workspace struct {
	fs     afero.Fs
	root   string
	run    Runner
	logger *slog.Logger
}

type Option func(*Workspace)

// WithRunner replaces the git runner.
func WithRunner(r Runner) Option { return func(w *Workspace) { w.run = r } }

func WithLogger(l *slog.Logger) Option { return func(w *Workspace) { w.logger = l } }

func New(fsys afero.Fs, root string, opts ...Option) (*Workspace, error) {
	if root == "" {
		return nil, errors.New("workspace root cannot be empty")
	}
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	w := &Workspace{fs: fsys, root: abs, run: runQuiet, logger: slog.Default()}
	for _, o := range opts {
		o(w)
	}
	if err := fsys.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	return w, nil
}

func (w *Workspace) Root() string { return w.root }

// Dir is the checkout directory of bp.
func (w *Workspace) Dir(bp domain.BaseProject) string {
	return filepath.Join(w.root, bp.Name, bp.Branch)
}

// CloneRequest describes a new checkout.
type CloneRequest struct {
	Project domain.BaseProject
	URL     string // https only
	Token   string // optional access token embedded in the clone URL
}

// Clone checks out req.URL at req.Project.Branch into a fresh directory and
// returns it. The directory is removed again when git fails.
func (w *Workspace) Clone(req CloneRequest) (string, error) {
	if err := project.ValidateBase(req.Project); err != nil {
		return "", err
	}
	authURL, err := AuthURL(req.URL, req.Token)
	if err != nil {
		return "", err
	}
	dir := w.Dir(req.Project)
	exists, err := afero.DirExists(w.fs, dir)
	if err != nil {
		return "", err
	}
	if exists {
		return "", fmt.Errorf("%w: directory for %s", domain.ErrAlreadyExists, req.Project)
	}
	if err := w.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create project dir: %w", err)
	}

	w.logger.Info("Cloning project", "project", req.Project.Name, "branch", req.Project.Branch, "url", RedactURL(req.URL))
	res := w.run(gitSpec(dir, "clone", "-b", req.Project.Branch, authURL, "."))
	if !res.Success() {
		if err := w.Remove(req.Project); err != nil {
			w.logger.Warn("Failed to clean up after clone", "dir", dir, "error", err)
		}
		return "", &GitError{Op: "clone", ExitStatus: res.ExitStatus, Stderr: redact(res.Stderr, req.Token)}
	}
	return dir, nil
}

// Pull updates the existing checkout of bp.
func (w *Workspace) Pull(bp domain.BaseProject) error {
	if err := project.ValidateBase(bp); err != nil {
		return err
	}
	dir := w.Dir(bp)
	exists, err := afero.DirExists(w.fs, dir)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: directory for %s", domain.ErrNotFound, bp)
	}
	w.logger.Info("Pulling project", "project", bp.Name, "branch", bp.Branch)
	res := w.run(gitSpec(dir, "pull"))
	if !res.Success() {
		return &GitError{Op: "pull", ExitStatus: res.ExitStatus, Stderr: res.Stderr}
	}
	return nil
}

// Remove deletes the checkout of bp, and the project directory once no
// branch is left in it.
func (w *Workspace) Remove(bp domain.BaseProject) error {
	if err := project.ValidateBase(bp); err != nil {
		return err
	}
	if err := w.fs.RemoveAll(w.Dir(bp)); err != nil {
		return fmt.Errorf("remove %s: %w", bp, err)
	}
	parent := filepath.Join(w.root, bp.Name)
	if empty, err := afero.IsEmpty(w.fs, parent); err == nil && empty {
		if err := w.fs.Remove(parent); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", parent, err)
		}
	}
	return nil
}

func gitSpec(dir string, args ...string) process.Spec {
	return process.Spec{
		Program: "git",
		Args:    args,
		WorkDir: dir,
		Env:     []string{"GIT_TERMINAL_PROMPT=0"},
	}
}
