package client

import "time"

// BaseProject identifies a project by name and branch.
type BaseProject struct {
	Name   string `json:"name"`
	Branch string `json:"branch"`
}

// Kind is the deployment strategy of a project. Type is one of
// "DockerFile", "DockerCompose" or "Custom"; the script fields only apply to
// Custom projects.
type Kind struct {
	Type         string `json:"type"`
	ImageVersion *int   `json:"image_version,omitempty"`
	Start        string `json:"start,omitempty"`
	Stop         string `json:"stop,omitempty"`
	Restart      string `json:"restart,omitempty"`
}

// Project is a registered repository checkout.
type Project struct {
	URI    string   `json:"uri"`
	Path   string   `json:"path"`
	Name   string   `json:"name"`
	Branch string   `json:"branch"`
	Kind   Kind     `json:"project_kind"`
	Env    []string `json:"env,omitempty"`

	RedeployOnPush bool `json:"redeploy_on_push,omitempty"`
}

// CreateProjectRequest registers and clones a repository.
type CreateProjectRequest struct {
	Name   string   `json:"name"`
	Branch string   `json:"branch"`
	URL    string   `json:"https_url"`
	Token  string   `json:"token,omitempty"`
	Kind   Kind     `json:"project_kind"`
	Env    []string `json:"env,omitempty"`

	// RedeployOnPush lets the push webhook start the project after pulling.
	RedeployOnPush bool `json:"redeploy_on_push,omitempty"`
}

// ActionRequest is a kind-qualified start, stop or restart.
type ActionRequest struct {
	Kind    string `json:"project_kind"`
	Command string `json:"command"`
}

// ActionResult carries the execution id assigned to a queued action.
type ActionResult struct {
	ID      string      `json:"io_id"`
	Project BaseProject `json:"project"`
}

// LogEntry describes one persisted execution log.
type LogEntry struct {
	ID      string    `json:"id"`
	File    string    `json:"file"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// IoLog is a finished execution; Child is the step that ran before.
type IoLog struct {
	ExitStatus int         `json:"exit_status"`
	Project    BaseProject `json:"project"`
	Tag        string      `json:"tag,omitempty"`
	Stdout     string      `json:"stdout"`
	Stderr     string      `json:"stderr"`
	Skipped    bool        `json:"skipped,omitempty"`
	Child      *IoLog      `json:"child,omitempty"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Token is a bearer token issued by the daemon.
type Token struct {
	Type      string    `json:"type"`
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

type LoginResult struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	Token    *Token   `json:"token,omitempty"`
}
