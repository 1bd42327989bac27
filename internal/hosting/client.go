// Package hosting wraps the source-hosting platform operations the bot needs:
// issue and pull request reads, comments, issue updates and merges.
package hosting

import (
	"context"

	"github.com/dyluth/wikibot/internal/event"
)

// Issue states accepted by UpdateIssue.
const (
	StateOpen   = "open"
	StateClosed = "closed"
)

// MergeMethodSquash squashes all pull request commits into one.
const MergeMethodSquash = "squash"

// Issue is the subset of an issue the bot reads.
type Issue struct {
	Number int
	Title  string
	Body   string
	State  string
}

// IssueUpdate changes an issue. Nil fields are left untouched.
type IssueUpdate struct {
	Body  *string
	State *string
}

// PullRequest is the subset of a pull request the bot reads.
type PullRequest struct {
	Number int
	Title  string
}

// MergeOptions controls MergePullRequest.
type MergeOptions struct {
	Method  string
	Title   string
	Message string
}

// Client is the hosting platform collaborator.
type Client interface {
	GetIssue(ctx context.Context, repo event.Repository, number int) (*Issue, error)
	UpdateIssue(ctx context.Context, repo event.Repository, number int, update IssueUpdate) error
	CreateComment(ctx context.Context, repo event.Repository, number int, body string) error
	GetPullRequest(ctx context.Context, repo event.Repository, number int) (*PullRequest, error)
	GetPullRequestDiff(ctx context.Context, repo event.Repository, number int) (string, error)
	MergePullRequest(ctx context.Context, repo event.Repository, number int, opts MergeOptions) error
}

// String returns a pointer to s, for IssueUpdate fields.
func String(s string) *string {
	return &s
}
