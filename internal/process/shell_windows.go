//go:build windows

package process

// ShellPath is the interpreter script files are run with.
const ShellPath = "cmd"

// ScriptExt is the extension script files are rendered with. cmd only runs
// batch files, so scripts are written as .cmd.
const ScriptExt = ".cmd"

// ScriptSpec runs the script file at path with workDir as cwd.
func ScriptSpec(path, workDir string) Spec {
	return Spec{Program: ShellPath, Args: []string{"/d", "/c", path}, WorkDir: workDir}
}
