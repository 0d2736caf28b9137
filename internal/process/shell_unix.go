//go:build !windows

package process

// ShellPath is the interpreter script files are run with.
const ShellPath = "/bin/sh"

// ScriptExt is the extension script files are rendered with.
const ScriptExt = ".sh"

// ScriptSpec runs the script file at path with workDir as cwd.
func ScriptSpec(path, workDir string) Spec {
	return Spec{Program: ShellPath, Args: []string{path}, WorkDir: workDir}
}
