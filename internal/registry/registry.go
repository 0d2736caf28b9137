package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"github.com/loykin/servcur/internal/domain"
	"github.com/loykin/servcur/internal/metrics"
	"github.com/loykin/servcur/internal/project"
)

// Registry is the durable, ordered set of projects. Every mutation is
// applied to a copy, flushed to the snapshot file, and only then made
// visible, so readers never observe state that is not on disk.
type Registry struct {
	mu       sync.RWMutex
	projects []project.Project

	fileMu sync.Mutex
	fs     afero.Fs
	path   string
}

// Open loads the snapshot at path, creating an empty one when absent.
func Open(fsys afero.Fs, path string) (*Registry, error) {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	r := &Registry{fs: fsys, path: path}
	data, err := afero.ReadFile(fsys, path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := r.persist(nil); err != nil {
			return nil, err
		}
		return r, nil
	case err != nil:
		return nil, fmt.Errorf("read registry %s: %w", path, err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &r.projects); err != nil {
			return nil, fmt.Errorf("decode registry %s: %w", path, err)
		}
	}
	return r, nil
}

// Path returns the snapshot file location.
func (r *Registry) Path() string { return r.path }

// Insert appends p. A project with the same (name, branch) is rejected.
func (r *Registry) Insert(p project.Project) (err error) {
	defer func() { metrics.IncRegistryOp("insert", err) }()
	if err := p.Validate(); err != nil {
		return err
	}
	return r.mutate(func(list *[]project.Project) error {
		if indexOf(*list, p.Name, p.Branch) >= 0 {
			return fmt.Errorf("%w: project %s", domain.ErrAlreadyExists, p.Base())
		}
		*list = append(*list, p.Clone())
		return nil
	})
}

// Remove deletes the project and returns the removed record. The working
// directory is left alone.
func (r *Registry) Remove(bp domain.BaseProject) (removed project.Project, err error) {
	defer func() { metrics.IncRegistryOp("remove", err) }()
	err = r.mutate(func(list *[]project.Project) error {
		i := indexOf(*list, bp.Name, bp.Branch)
		if i < 0 {
			return fmt.Errorf("%w: project %s", domain.ErrNotFound, bp)
		}
		removed = (*list)[i].Clone()
		*list = append((*list)[:i], (*list)[i+1:]...)
		return nil
	})
	return removed, err
}

// Get returns a copy of the project.
func (r *Registry) Get(name, branch string) (project.Project, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := indexOf(r.projects, name, branch)
	if i < 0 {
		return project.Project{}, false
	}
	return r.projects[i].Clone(), true
}

// GetByURI resolves a project by its webhook URI.
func (r *Registry) GetByURI(uri string) (project.Project, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.projects {
		if p.URI == uri {
			return p.Clone(), true
		}
	}
	return project.Project{}, false
}

// List returns copies of all projects in insertion order.
func (r *Registry) List() []project.Project {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]project.Project, len(r.projects))
	for i, p := range r.projects {
		out[i] = p.Clone()
	}
	return out
}

// Update runs fn on the named project under exclusive access and persists
// the result. The change is discarded when fn or the flush fails.
func (r *Registry) Update(name, branch string, fn func(*project.Project) error) (err error) {
	defer func() { metrics.IncRegistryOp("update", err) }()
	return r.mutate(func(list *[]project.Project) error {
		i := indexOf(*list, name, branch)
		if i < 0 {
			return fmt.Errorf("%w: project %s/%s", domain.ErrNotFound, name, branch)
		}
		return fn(&(*list)[i])
	})
}

// WithMutable gives fn exclusive access to the whole collection.
func (r *Registry) WithMutable(fn func(*[]project.Project) error) (err error) {
	defer func() { metrics.IncRegistryOp("mutate", err) }()
	return r.mutate(fn)
}

func (r *Registry) mutate(fn func(*[]project.Project) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	work := make([]project.Project, len(r.projects))
	for i, p := range r.projects {
		work[i] = p.Clone()
	}
	if err := fn(&work); err != nil {
		return err
	}
	if err := r.persist(work); err != nil {
		return err
	}
	r.projects = work
	return nil
}

// persist writes the full snapshot through a temp file and rename.
func (r *Registry) persist(list []project.Project) error {
	r.fileMu.Lock()
	defer r.fileMu.Unlock()

	if list == nil {
		list = []project.Project{}
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	dir := filepath.Dir(r.path)
	if err := r.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}
	tmp, err := afero.TempFile(r.fs, dir, ".registry-*")
	if err != nil {
		return fmt.Errorf("create registry temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = r.fs.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write registry: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close registry: %w", err)
	}
	if err := r.fs.Rename(tmpPath, r.path); err != nil {
		return fmt.Errorf("replace registry %s: %w", r.path, err)
	}
	return nil
}

func indexOf(list []project.Project, name, branch string) int {
	for i := range list {
		if list[i].Name == name && list[i].Branch == branch {
			return i
		}
	}
	return -1
}
