// Package gitinfo reads branch and commit information from the working tree.
// The deploy command gates on the branch and stamps the commit into deploy
// history.
package gitinfo

import (
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Info describes the repository state at deploy time.
type Info struct {
	Branch     string // empty when HEAD is detached
	CommitHash string // full hash
}

// ShortHash returns the abbreviated commit hash used in version strings.
func (i Info) ShortHash() string {
	if len(i.CommitHash) < 12 {
		return i.CommitHash
	}
	return i.CommitHash[:12]
}

// Resolve opens the repository containing dir and reports the HEAD branch and
// commit. A detached HEAD yields an empty branch.
func Resolve(dir string) (Info, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return Info{}, fmt.Errorf("failed to open git repository at %s: %w", dir, err)
	}

	head, err := repo.Head()
	if err != nil {
		return Info{}, fmt.Errorf("failed to resolve HEAD: %w", err)
	}

	info := Info{CommitHash: head.Hash().String()}
	if head.Name().IsBranch() {
		info.Branch = head.Name().Short()
	}
	return info, nil
}

// ResolveRef reports the commit a named branch points at, without touching
// HEAD. Used by rollback to confirm a version still exists on the branch.
func ResolveRef(dir, branch string) (Info, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return Info{}, fmt.Errorf("failed to open git repository at %s: %w", dir, err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		return Info{}, fmt.Errorf("failed to resolve branch %s: %w", branch, err)
	}

	return Info{Branch: branch, CommitHash: ref.Hash().String()}, nil
}
