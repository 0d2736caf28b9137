//go:build !windows

package process

import (
	"runtime"
	"strings"
	"testing"
)

func requireUnixSpec(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like shell")
	}
}

func TestBuildCommand_ShellScriptArgvVerbatim(t *testing.T) {
	requireUnixSpec(t)
	script := `sh -c 'echo a' && echo 'b'`
	cmd := Spec{Program: ShellPath, Args: []string{"-c", script}}.BuildCommand()
	want := []string{ShellPath, "-c", script}
	if strings.Join(cmd.Args, "\x00") != strings.Join(want, "\x00") {
		t.Fatalf("argv = %#v, want %#v", cmd.Args, want)
	}
}

func TestScriptSpec(t *testing.T) {
	s := ScriptSpec("/scripts/start-demo-main.sh", "/projects/demo/main")
	if ScriptExt != ".sh" || s.Program != ShellPath {
		t.Fatalf("unexpected script spec %#v (ext %q)", s, ScriptExt)
	}
	if len(s.Args) != 1 || s.Args[0] != "/scripts/start-demo-main.sh" || s.WorkDir != "/projects/demo/main" {
		t.Fatalf("unexpected script spec %#v", s)
	}
}

func TestBuildCommand_ProgramArgv(t *testing.T) {
	requireUnixSpec(t)
	s := Spec{Program: "docker", Args: []string{"build", ".", "-t", "demo-main:1"}, WorkDir: "/tmp"}
	cmd := s.BuildCommand()
	want := []string{"docker", "build", ".", "-t", "demo-main:1"}
	if strings.Join(cmd.Args, " ") != strings.Join(want, " ") {
		t.Fatalf("argv = %#v, want %#v", cmd.Args, want)
	}
	if cmd.Dir != "/tmp" {
		t.Fatalf("dir = %q", cmd.Dir)
	}
	if cmd.SysProcAttr == nil || !cmd.SysProcAttr.Setpgid {
		t.Fatalf("expected own process group")
	}
}

func TestBuildCommand_EnvAppended(t *testing.T) {
	requireUnixSpec(t)
	s := Spec{Program: "env", Env: []string{"SERVCUR_TEST=1"}}
	cmd := s.BuildCommand()
	found := false
	for _, kv := range cmd.Env {
		if kv == "SERVCUR_TEST=1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("extra env missing from %v", cmd.Env)
	}
}

func TestSpec_Validate(t *testing.T) {
	tests := []struct {
		name      string
		spec      Spec
		expectErr bool
	}{
		{name: "program", spec: Spec{Program: "true"}},
		{name: "empty", spec: Spec{}, expectErr: true},
		{name: "args without program", spec: Spec{Args: []string{"echo", "hello"}}, expectErr: true},
		{name: "whitespace only", spec: Spec{Program: "  \t"}, expectErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.expectErr && err == nil {
				t.Fatalf("expected error")
			}
			if !tt.expectErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestSpec_String(t *testing.T) {
	if got := (Spec{Program: "docker", Args: []string{"compose", "up", "-d"}}).String(); got != "docker compose up -d" {
		t.Fatalf("String() = %q", got)
	}
	if got := (Spec{Program: "true"}).String(); got != "true" {
		t.Fatalf("String() = %q", got)
	}
}
