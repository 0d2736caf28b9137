package project

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/loykin/servcur/internal/domain"
)

// Project is a deployable repository checkout. The registry owns the
// canonical copy; everything else works on clones.
type Project struct {
	URI    string   `json:"uri"`
	Path   string   `json:"path"`
	Name   string   `json:"name"`
	Branch string   `json:"branch"`
	Kind   Kind     `json:"project_kind"`
	Env    []string `json:"env,omitempty"` // KEY=VALUE pairs for every step, ${VAR} expanded

	// RedeployOnPush makes a push webhook run start after the pull.
	RedeployOnPush bool `json:"redeploy_on_push,omitempty"`
}

func (p Project) Base() domain.BaseProject {
	return domain.BaseProject{Name: p.Name, Branch: p.Branch}
}

func (p Project) Clone() Project {
	out := p
	out.Kind = p.Kind.Clone()
	out.Env = append([]string(nil), p.Env...)
	return out
}

func (p Project) Validate() error {
	if err := ValidateBase(p.Base()); err != nil {
		return err
	}
	for _, kv := range p.Env {
		if i := strings.IndexByte(kv, '='); i <= 0 {
			return fmt.Errorf("%w: env entry %q must be KEY=VALUE", domain.ErrInvalid, kv)
		}
	}
	return p.Kind.Validate()
}

// WebhookURI is the lookup key and webhook path of a project.
func WebhookURI(name, branch string) string {
	return "/webhook/" + url.PathEscape(name) + "/" + url.PathEscape(branch)
}

var safeSegment = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateName checks a name or branch used as one directory level and one
// URL path segment.
func ValidateName(field, s string) error {
	switch {
	case s == "":
		return fmt.Errorf("%w: %s is required", domain.ErrInvalid, field)
	case strings.ContainsAny(s, `/\`):
		return fmt.Errorf("%w: %s %q must not contain path separators", domain.ErrInvalid, field, s)
	case s == "." || s == "..":
		return fmt.Errorf("%w: %s %q is reserved", domain.ErrInvalid, field, s)
	case len(s) > 128 || !safeSegment.MatchString(s):
		return fmt.Errorf("%w: %s %q may only contain letters, digits, '.', '_' and '-'", domain.ErrInvalid, field, s)
	}
	return nil
}

func ValidateBase(bp domain.BaseProject) error {
	if err := ValidateName("name", bp.Name); err != nil {
		return err
	}
	return ValidateName("branch", bp.Branch)
}
