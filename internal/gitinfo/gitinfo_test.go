package gitinfo

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// initRepo creates a repository with a single commit on the default branch.
func initRepo(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("kaya\n"), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("README.md")
	require.NoError(t, err)

	hash, err := wt.Commit("initial commit", &git.CommitOptions{
		Author: &object.Signature{
			Name:  "test",
			Email: "test@example.com",
			When:  time.Now(),
		},
	})
	require.NoError(t, err)

	return dir, hash.String()
}

func TestResolve(t *testing.T) {
	dir, hash := initRepo(t)

	info, err := Resolve(dir)
	require.NoError(t, err)

	assert.Equal(t, "master", info.Branch)
	assert.Equal(t, hash, info.CommitHash)
}

func TestResolveFromSubdirectory(t *testing.T) {
	dir, hash := initRepo(t)
	sub := filepath.Join(dir, "kaya")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	info, err := Resolve(sub)
	require.NoError(t, err)
	assert.Equal(t, hash, info.CommitHash)
}

func TestResolveNotARepo(t *testing.T) {
	_, err := Resolve(t.TempDir())
	assert.Error(t, err)
}

func TestResolveRef(t *testing.T) {
	dir, hash := initRepo(t)

	info, err := ResolveRef(dir, "master")
	require.NoError(t, err)
	assert.Equal(t, "master", info.Branch)
	assert.Equal(t, hash, info.CommitHash)

	_, err = ResolveRef(dir, "release")
	assert.Error(t, err)
}

func TestShortHash(t *testing.T) {
	info := Info{CommitHash: "0123456789abcdef0123456789abcdef01234567"}
	assert.Equal(t, "0123456789ab", info.ShortHash())

	short := Info{CommitHash: "abc"}
	assert.Equal(t, "abc", short.ShortHash())
}
