package project

import (
	"encoding/json"
	"fmt"

	"github.com/loykin/servcur/internal/domain"
)

// KindType names one deployment strategy. The values double as the JSON
// "type" discriminator of a Kind and the "project_kind" of an ActionCommand.
type KindType string

const (
	KindDockerfile KindType = "DockerFile"
	KindCompose    KindType = "DockerCompose"
	KindCustom     KindType = "Custom"
)

// ParseKindType accepts the canonical names case-insensitively.
func ParseKindType(s string) (KindType, error) {
	switch normalize(s) {
	case "dockerfile":
		return KindDockerfile, nil
	case "dockercompose", "compose":
		return KindCompose, nil
	case "custom":
		return KindCustom, nil
	}
	return "", fmt.Errorf("%w: unknown project kind %q", domain.ErrInvalid, s)
}

// Kind is a closed union of the supported strategies. Exactly one field is
// set; the zero Kind is invalid.
type Kind struct {
	Dockerfile *DockerfileStrategy
	Compose    *ComposeStrategy
	Custom     *CustomStrategy
}

func DockerfileKind() Kind { return Kind{Dockerfile: &DockerfileStrategy{}} }
func ComposeKind() Kind    { return Kind{Compose: &ComposeStrategy{}} }

func CustomKind(start, stop, restart string) Kind {
	return Kind{Custom: &CustomStrategy{Start: start, Stop: stop, Restart: restart}}
}

// Type returns the active variant, or "" for the zero Kind.
func (k Kind) Type() KindType {
	switch {
	case k.Dockerfile != nil:
		return KindDockerfile
	case k.Compose != nil:
		return KindCompose
	case k.Custom != nil:
		return KindCustom
	}
	return ""
}

func (k Kind) Validate() error {
	n := 0
	for _, set := range []bool{k.Dockerfile != nil, k.Compose != nil, k.Custom != nil} {
		if set {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("%w: project kind must name exactly one strategy", domain.ErrInvalid)
	}
	if k.Custom != nil {
		return k.Custom.Validate()
	}
	return nil
}

// Clone returns a deep copy so callers never share strategy state with the registry.
func (k Kind) Clone() Kind {
	var out Kind
	if k.Dockerfile != nil {
		d := *k.Dockerfile
		out.Dockerfile = &d
	}
	if k.Compose != nil {
		c := *k.Compose
		out.Compose = &c
	}
	if k.Custom != nil {
		c := *k.Custom
		out.Custom = &c
	}
	return out
}

// Run builds the plan for action on the active strategy.
func (k Kind) Run(a Action, env Env, dir string, bp domain.BaseProject) (domain.Plan, error) {
	if err := a.Validate(); err != nil {
		return domain.Plan{}, err
	}
	switch k.Type() {
	case KindDockerfile:
		return k.Dockerfile.Run(a, dir, bp), nil
	case KindCompose:
		return k.Compose.Run(a, dir, bp), nil
	case KindCustom:
		return k.Custom.Run(a, env, dir, bp)
	}
	return domain.Plan{}, fmt.Errorf("%w: project %s has no strategy", domain.ErrInvalid, bp)
}

type kindJSON struct {
	Type         KindType `json:"type"`
	ImageVersion *int     `json:"image_version,omitempty"`
	Start        string   `json:"start,omitempty"`
	Stop         string   `json:"stop,omitempty"`
	Restart      string   `json:"restart,omitempty"`
}

func (k Kind) MarshalJSON() ([]byte, error) {
	var out kindJSON
	switch k.Type() {
	case KindDockerfile:
		v := k.Dockerfile.ImageVersion
		out = kindJSON{Type: KindDockerfile, ImageVersion: &v}
	case KindCompose:
		out = kindJSON{Type: KindCompose}
	case KindCustom:
		out = kindJSON{Type: KindCustom, Start: k.Custom.Start, Stop: k.Custom.Stop, Restart: k.Custom.Restart}
	default:
		return nil, fmt.Errorf("%w: cannot encode empty project kind", domain.ErrInvalid)
	}
	return json.Marshal(out)
}

func (k *Kind) UnmarshalJSON(b []byte) error {
	var in kindJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	t, err := ParseKindType(string(in.Type))
	if err != nil {
		return err
	}
	switch t {
	case KindDockerfile:
		d := &DockerfileStrategy{}
		if in.ImageVersion != nil {
			d.ImageVersion = *in.ImageVersion
		}
		*k = Kind{Dockerfile: d}
	case KindCompose:
		*k = Kind{Compose: &ComposeStrategy{}}
	case KindCustom:
		*k = Kind{Custom: &CustomStrategy{Start: in.Start, Stop: in.Stop, Restart: in.Restart}}
	}
	return nil
}
