package workspace

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/servcur/internal/domain"
	"github.com/loykin/servcur/internal/process"
)

type fakeGit struct {
	calls []process.Spec
	res   process.Result
}

func (f *fakeGit) run(spec process.Spec) process.Result {
	f.calls = append(f.calls, spec)
	return f.res
}

var demo = domain.BaseProject{Name: "demo", Branch: "main"}

func newWorkspace(t *testing.T, git *fakeGit) (*Workspace, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	w, err := New(fsys, "/data/projects", WithRunner(git.run))
	require.NoError(t, err)
	return w, fsys
}

func TestCloneRunsGitInFreshDir(t *testing.T) {
	git := &fakeGit{}
	w, fsys := newWorkspace(t, git)

	dir, err := w.Clone(CloneRequest{Project: demo, URL: "https://example.com/org/demo.git", Token: "s3cret"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/data/projects", "demo", "main"), dir)

	ok, _ := afero.DirExists(fsys, dir)
	assert.True(t, ok)
	require.Len(t, git.calls, 1)
	call := git.calls[0]
	assert.Equal(t, "git", call.Program)
	assert.Equal(t, []string{"clone", "-b", "main", "https://s3cret@example.com/org/demo.git", "."}, call.Args)
	assert.Equal(t, dir, call.WorkDir)
	assert.Contains(t, call.Env, "GIT_TERMINAL_PROMPT=0")
}

func TestCloneRejectsExistingDir(t *testing.T) {
	git := &fakeGit{}
	w, fsys := newWorkspace(t, git)
	require.NoError(t, fsys.MkdirAll(w.Dir(demo), 0o755))

	_, err := w.Clone(CloneRequest{Project: demo, URL: "https://example.com/x.git"})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	assert.Empty(t, git.calls)
}

func TestCloneValidation(t *testing.T) {
	git := &fakeGit{}
	w, _ := newWorkspace(t, git)

	_, err := w.Clone(CloneRequest{Project: demo, URL: "http://example.com/x.git"})
	assert.ErrorIs(t, err, domain.ErrInvalid)
	_, err = w.Clone(CloneRequest{Project: domain.BaseProject{Name: "a/b", Branch: "main"}, URL: "https://example.com/x.git"})
	assert.ErrorIs(t, err, domain.ErrInvalid)
	assert.Empty(t, git.calls)
}

func TestCloneFailureRemovesDirAndRedactsToken(t *testing.T) {
	git := &fakeGit{res: process.Result{ExitStatus: 128, Stderr: "fatal: https://tok@example.com denied\n"}}
	w, fsys := newWorkspace(t, git)

	_, err := w.Clone(CloneRequest{Project: demo, URL: "https://example.com/x.git", Token: "tok"})
	require.Error(t, err)
	var gerr *GitError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, 128, gerr.ExitStatus)
	assert.NotContains(t, err.Error(), "tok@")

	ok, _ := afero.DirExists(fsys, w.Dir(demo))
	assert.False(t, ok)
	ok, _ = afero.DirExists(fsys, "/data/projects/demo")
	assert.False(t, ok)
}

func TestPull(t *testing.T) {
	git := &fakeGit{}
	w, fsys := newWorkspace(t, git)

	assert.ErrorIs(t, w.Pull(demo), domain.ErrNotFound)

	require.NoError(t, fsys.MkdirAll(w.Dir(demo), 0o755))
	require.NoError(t, w.Pull(demo))
	require.Len(t, git.calls, 1)
	assert.Equal(t, []string{"pull"}, git.calls[0].Args)

	git.res = process.Result{ExitStatus: 1, Stderr: "conflict"}
	err := w.Pull(demo)
	var gerr *GitError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, "pull", gerr.Op)
}

func TestRemoveKeepsSiblingBranches(t *testing.T) {
	w, fsys := newWorkspace(t, &fakeGit{})
	dev := domain.BaseProject{Name: "demo", Branch: "dev"}
	require.NoError(t, fsys.MkdirAll(w.Dir(demo), 0o755))
	require.NoError(t, fsys.MkdirAll(w.Dir(dev), 0o755))

	require.NoError(t, w.Remove(demo))
	ok, _ := afero.DirExists(fsys, w.Dir(dev))
	assert.True(t, ok)

	require.NoError(t, w.Remove(dev))
	ok, _ = afero.DirExists(fsys, "/data/projects/demo")
	assert.False(t, ok)
}

func TestAuthURL(t *testing.T) {
	u, err := AuthURL("https://github.com/a/b.git", "")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/a/b.git", u)

	u, err = AuthURL("https://github.com/a/b.git", "abc")
	require.NoError(t, err)
	assert.Equal(t, "https://abc@github.com/a/b.git", u)

	for _, bad := range []string{"", "git@github.com:a/b.git", "http://github.com/a/b.git", "https://"} {
		_, err := AuthURL(bad, "")
		assert.ErrorIs(t, err, domain.ErrInvalid, bad)
	}
	assert.Equal(t, "https://github.com/a", RedactURL("https://tok@github.com/a"))
}
