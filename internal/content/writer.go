package content

import (
	"context"
	"log"

	"github.com/dyluth/wikibot/internal/article"
	"github.com/dyluth/wikibot/internal/fault"
)

// CommitMessage is used for every contribution commit.
const CommitMessage = "contribute: merge contribution from issue"

// DefaultCommitter is the identity contributions are committed as.
var DefaultCommitter = Signature{Name: "baipiao-bot", Email: "moss_the_bot@163.com"}

// Saver stores one article. The returned path is where it actually landed.
type Saver interface {
	Save(ctx context.Context, rel string, content string) (string, error)
}

// Writer implements Saver on a Repository. It must only be used while the
// contribution lock is held.
type Writer struct {
	opener        Opener
	branch        string
	defaultBranch string
	committer     Signature
}

// NewWriter creates a Writer publishing to branch.
func NewWriter(opener Opener, branch, defaultBranch string, committer Signature) *Writer {
	if defaultBranch == "" {
		defaultBranch = "main"
	}
	if branch == "" {
		branch = defaultBranch
	}
	if committer.Name == "" {
		committer = DefaultCommitter
	}
	return &Writer{
		opener:        opener,
		branch:        branch,
		defaultBranch: defaultBranch,
		committer:     committer,
	}
}

// Save writes content at rel (or its disambiguated form when rel is taken),
// commits and pushes it. All failures are I/O faults.
func (w *Writer) Save(ctx context.Context, rel string, content string) (string, error) {
	const op = "save contribution"

	repo, err := w.opener.OpenOrClone(ctx)
	if err != nil {
		return "", fault.IO(op, err)
	}

	// A fresh clone of the default branch is already current.
	if repo.Reused() || w.branch != w.defaultBranch {
		if err := repo.Sync(ctx, w.branch); err != nil {
			return "", fault.IO(op, err)
		}
	}

	final, err := article.Resolve(rel, content, repo.Exists)
	if err != nil {
		return "", fault.IO(op, err)
	}
	if final != rel {
		log.Printf("[INFO] %s already exists, writing %s instead", rel, final)
	}

	if err := repo.WriteFile(final, []byte(content)); err != nil {
		return "", fault.IO(op, err)
	}
	if err := repo.StageAll(); err != nil {
		return "", fault.IO(op, err)
	}
	hash, err := repo.Commit(CommitMessage, w.committer)
	if err != nil {
		return "", fault.IO(op, err)
	}
	if err := repo.Push(ctx, w.branch); err != nil {
		return "", fault.IO(op, err)
	}

	log.Printf("[INFO] Published %s in commit %s", final, hash)
	return final, nil
}
