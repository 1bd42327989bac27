// Package content writes contributed articles into the wiki's content
// repository and publishes them.
package content

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/dyluth/wikibot/internal/event"
)

// Signature identifies the author of a commit.
type Signature struct {
	Name  string
	Email string
}

// Repository is a local working copy of the content repository.
type Repository interface {
	// Reused reports whether the working copy existed before it was opened.
	Reused() bool
	Sync(ctx context.Context, branch string) error
	Exists(rel string) (bool, error)
	WriteFile(rel string, data []byte) error
	StageAll() error
	Commit(message string, author Signature) (string, error)
	Push(ctx context.Context, branch string) error
}

// Opener produces the working copy, cloning it on first use.
type Opener interface {
	OpenOrClone(ctx context.Context) (Repository, error)
}

// GitHubURL returns the HTTPS clone URL of repo on github.com.
func GitHubURL(repo event.Repository) string {
	return fmt.Sprintf("https://github.com/%s/%s.git", repo.Owner, repo.Name)
}

// GitOpener opens or clones a go-git working copy at Dir.
type GitOpener struct {
	URL    string
	Dir    string
	Branch string
	Auth   transport.AuthMethod
}

// NewGitOpener clones repo into <workdir>/<repo name>. An empty token means
// anonymous access.
func NewGitOpener(repo event.Repository, workdir, branch, username, token string) *GitOpener {
	o := &GitOpener{
		URL:    GitHubURL(repo),
		Dir:    filepath.Join(workdir, repo.Name),
		Branch: branch,
	}
	if token != "" {
		o.Auth = &githttp.BasicAuth{Username: username, Password: token}
	}
	return o
}

// OpenOrClone implements Opener.
func (o *GitOpener) OpenOrClone(ctx context.Context) (Repository, error) {
	repo, err := git.PlainOpen(o.Dir)
	reused := err == nil
	if errors.Is(err, git.ErrRepositoryNotExists) {
		log.Printf("[INFO] Cloning %s into %s", o.URL, o.Dir)
		opts := &git.CloneOptions{URL: o.URL, Auth: o.Auth}
		if o.Branch != "" {
			opts.ReferenceName = plumbing.NewBranchReferenceName(o.Branch)
		}
		repo, err = git.PlainCloneContext(ctx, o.Dir, false, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to clone %s: %w", o.URL, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", o.Dir, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree of %s: %w", o.Dir, err)
	}
	return &GitRepository{repo: repo, wt: wt, auth: o.Auth, reused: reused}, nil
}

// GitRepository implements Repository with go-git.
type GitRepository struct {
	repo   *git.Repository
	wt     *git.Worktree
	auth   transport.AuthMethod
	reused bool
}

// Reused implements Repository.
func (r *GitRepository) Reused() bool {
	return r.reused
}

// Sync fetches origin/<branch> and resets the working copy onto it. Local
// commits and untracked files left behind by an earlier run are discarded.
func (r *GitRepository) Sync(ctx context.Context, branch string) error {
	local := plumbing.NewBranchReferenceName(branch)
	remote := plumbing.NewRemoteReferenceName(git.DefaultRemoteName, branch)

	err := r.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: git.DefaultRemoteName,
		RefSpecs:   []gitconfig.RefSpec{gitconfig.RefSpec("+" + local + ":" + remote)},
		Auth:       r.auth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to fetch %s: %w", branch, err)
	}

	ref, err := r.repo.Reference(remote, true)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", remote, err)
	}

	head, err := r.repo.Head()
	if err != nil || head.Name() != local {
		opts := &git.CheckoutOptions{Branch: local, Force: true}
		if _, missing := r.repo.Reference(local, false); missing != nil {
			opts.Create = true
			opts.Hash = ref.Hash()
		}
		if err := r.wt.Checkout(opts); err != nil {
			return fmt.Errorf("failed to check out %s: %w", branch, err)
		}
	}

	if err := r.wt.Reset(&git.ResetOptions{Commit: ref.Hash(), Mode: git.HardReset}); err != nil {
		return fmt.Errorf("failed to reset to %s: %w", remote, err)
	}
	if err := r.wt.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return fmt.Errorf("failed to clean worktree: %w", err)
	}
	return nil
}

// Exists reports whether rel exists in the working tree.
func (r *GitRepository) Exists(rel string) (bool, error) {
	_, err := r.wt.Filesystem.Stat(rel)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// WriteFile writes data at rel, creating parent directories.
func (r *GitRepository) WriteFile(rel string, data []byte) error {
	if err := r.wt.Filesystem.MkdirAll(filepath.Dir(rel), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", rel, err)
	}
	if err := util.WriteFile(r.wt.Filesystem, rel, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}
	return nil
}

// StageAll stages every change in the working tree.
func (r *GitRepository) StageAll() error {
	if err := r.wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("failed to stage changes: %w", err)
	}
	return nil
}

// Commit records the staged changes and returns the commit hash. A clean
// tree creates no commit and returns the current HEAD.
func (r *GitRepository) Commit(message string, author Signature) (string, error) {
	status, err := r.wt.Status()
	if err != nil {
		return "", fmt.Errorf("failed to read status: %w", err)
	}
	if status.IsClean() {
		head, err := r.repo.Head()
		if err != nil {
			return "", fmt.Errorf("failed to resolve HEAD: %w", err)
		}
		return head.Hash().String(), nil
	}

	sig := &object.Signature{Name: author.Name, Email: author.Email, When: time.Now()}
	hash, err := r.wt.Commit(message, &git.CommitOptions{Author: sig, Committer: sig})
	if err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}
	return hash.String(), nil
}

// Push publishes the local branch to origin.
func (r *GitRepository) Push(ctx context.Context, branch string) error {
	ref := plumbing.NewBranchReferenceName(branch)
	err := r.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: git.DefaultRemoteName,
		RefSpecs:   []gitconfig.RefSpec{gitconfig.RefSpec(ref + ":" + ref)},
		Auth:       r.auth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to push %s: %w", branch, err)
	}
	return nil
}
