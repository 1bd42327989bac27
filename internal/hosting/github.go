package hosting

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/dyluth/wikibot/internal/event"
	"github.com/dyluth/wikibot/internal/fault"
	"github.com/google/go-github/v61/github"
	"golang.org/x/oauth2"
)

// GitHub implements Client on the GitHub REST API.
type GitHub struct {
	client *github.Client
}

// NewGitHub creates a client authenticated with a personal access token.
func NewGitHub(ctx context.Context, token string) (*GitHub, error) {
	if token == "" {
		return nil, fmt.Errorf("GitHub token cannot be empty")
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return NewGitHubWithHTTPClient(oauth2.NewClient(ctx, ts)), nil
}

// NewGitHubWithHTTPClient wraps an already configured HTTP client.
func NewGitHubWithHTTPClient(httpClient *http.Client) *GitHub {
	return &GitHub{client: github.NewClient(httpClient)}
}

// WithBaseURL points the client at a GitHub Enterprise or test server.
func (g *GitHub) WithBaseURL(baseURL string) (*GitHub, error) {
	client, err := g.client.WithEnterpriseURLs(baseURL, baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid GitHub base URL: %w", err)
	}
	return &GitHub{client: client}, nil
}

// GetIssue implements Client.
func (g *GitHub) GetIssue(ctx context.Context, repo event.Repository, number int) (*Issue, error) {
	issue, _, err := g.client.Issues.Get(ctx, repo.Owner, repo.Name, number)
	if err != nil {
		return nil, fault.IO(fmt.Sprintf("get issue %s#%d", repo, number), err)
	}
	return &Issue{
		Number: issue.GetNumber(),
		Title:  issue.GetTitle(),
		Body:   issue.GetBody(),
		State:  issue.GetState(),
	}, nil
}

// UpdateIssue implements Client.
func (g *GitHub) UpdateIssue(ctx context.Context, repo event.Repository, number int, update IssueUpdate) error {
	req := &github.IssueRequest{
		Body:  update.Body,
		State: update.State,
	}
	if _, _, err := g.client.Issues.Edit(ctx, repo.Owner, repo.Name, number, req); err != nil {
		return fault.IO(fmt.Sprintf("update issue %s#%d", repo, number), err)
	}
	return nil
}

// CreateComment implements Client. Pull requests share the issue comment API.
func (g *GitHub) CreateComment(ctx context.Context, repo event.Repository, number int, body string) error {
	if _, _, err := g.client.Issues.CreateComment(ctx, repo.Owner, repo.Name, number, &github.IssueComment{Body: &body}); err != nil {
		return fault.IO(fmt.Sprintf("comment on %s#%d", repo, number), err)
	}
	log.Printf("[INFO] Commented on %s#%d", repo, number)
	return nil
}

// GetPullRequest implements Client.
func (g *GitHub) GetPullRequest(ctx context.Context, repo event.Repository, number int) (*PullRequest, error) {
	pr, _, err := g.client.PullRequests.Get(ctx, repo.Owner, repo.Name, number)
	if err != nil {
		return nil, fault.IO(fmt.Sprintf("get pull request %s#%d", repo, number), err)
	}
	return &PullRequest{
		Number: pr.GetNumber(),
		Title:  pr.GetTitle(),
	}, nil
}

// GetPullRequestDiff implements Client.
func (g *GitHub) GetPullRequestDiff(ctx context.Context, repo event.Repository, number int) (string, error) {
	diff, _, err := g.client.PullRequests.GetRaw(ctx, repo.Owner, repo.Name, number, github.RawOptions{Type: github.Diff})
	if err != nil {
		return "", fault.IO(fmt.Sprintf("get diff of %s#%d", repo, number), err)
	}
	return diff, nil
}

// MergePullRequest implements Client.
func (g *GitHub) MergePullRequest(ctx context.Context, repo event.Repository, number int, opts MergeOptions) error {
	op := fmt.Sprintf("merge %s#%d", repo, number)
	result, _, err := g.client.PullRequests.Merge(ctx, repo.Owner, repo.Name, number, opts.Message, &github.PullRequestOptions{
		CommitTitle: opts.Title,
		MergeMethod: opts.Method,
	})
	if err != nil {
		return fault.IO(op, err)
	}
	if !result.GetMerged() {
		return fault.IO(op, fmt.Errorf("not merged: %s", result.GetMessage()))
	}
	log.Printf("[INFO] Merged %s#%d (%s)", repo, number, result.GetSHA())
	return nil
}
