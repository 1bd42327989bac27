package hosting

import (
	"context"
	"fmt"
	"sync"

	"github.com/dyluth/wikibot/internal/event"
	"github.com/dyluth/wikibot/internal/fault"
)

// Comment is a comment recorded by Fake.
type Comment struct {
	Repo   event.Repository
	Number int
	Body   string
}

// Merge is a merge recorded by Fake.
type Merge struct {
	Repo    event.Repository
	Number  int
	Options MergeOptions
}

// Fake is an in-memory Client. Issues and pull requests are keyed by number
// regardless of repository.
type Fake struct {
	mu sync.Mutex

	Issues       map[int]*Issue
	PullRequests map[int]*PullRequest
	Diffs        map[int]string

	Comments []Comment
	Merges   []Merge
	Updates  []IssueUpdate

	// Errors makes the named method ("GetIssue", "MergePullRequest", ...) fail.
	Errors map[string]error
}

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{
		Issues:       make(map[int]*Issue),
		PullRequests: make(map[int]*PullRequest),
		Diffs:        make(map[int]string),
		Errors:       make(map[string]error),
	}
}

func (f *Fake) fail(method string) error {
	if err, ok := f.Errors[method]; ok && err != nil {
		return fault.IO(method, err)
	}
	return nil
}

// GetIssue implements Client.
func (f *Fake) GetIssue(ctx context.Context, repo event.Repository, number int) (*Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("GetIssue"); err != nil {
		return nil, err
	}
	issue, ok := f.Issues[number]
	if !ok {
		return nil, fault.IO("GetIssue", fmt.Errorf("issue %s#%d not found", repo, number))
	}
	copied := *issue
	return &copied, nil
}

// UpdateIssue implements Client. Unknown issues are created.
func (f *Fake) UpdateIssue(ctx context.Context, repo event.Repository, number int, update IssueUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("UpdateIssue"); err != nil {
		return err
	}
	issue, ok := f.Issues[number]
	if !ok {
		issue = &Issue{Number: number, State: StateOpen}
		f.Issues[number] = issue
	}
	if update.Body != nil {
		issue.Body = *update.Body
	}
	if update.State != nil {
		issue.State = *update.State
	}
	f.Updates = append(f.Updates, update)
	return nil
}

// CreateComment implements Client.
func (f *Fake) CreateComment(ctx context.Context, repo event.Repository, number int, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("CreateComment"); err != nil {
		return err
	}
	f.Comments = append(f.Comments, Comment{Repo: repo, Number: number, Body: body})
	return nil
}

// GetPullRequest implements Client.
func (f *Fake) GetPullRequest(ctx context.Context, repo event.Repository, number int) (*PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("GetPullRequest"); err != nil {
		return nil, err
	}
	pr, ok := f.PullRequests[number]
	if !ok {
		return nil, fault.IO("GetPullRequest", fmt.Errorf("pull request %s#%d not found", repo, number))
	}
	copied := *pr
	return &copied, nil
}

// GetPullRequestDiff implements Client.
func (f *Fake) GetPullRequestDiff(ctx context.Context, repo event.Repository, number int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("GetPullRequestDiff"); err != nil {
		return "", err
	}
	return f.Diffs[number], nil
}

// MergePullRequest implements Client.
func (f *Fake) MergePullRequest(ctx context.Context, repo event.Repository, number int, opts MergeOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("MergePullRequest"); err != nil {
		return err
	}
	f.Merges = append(f.Merges, Merge{Repo: repo, Number: number, Options: opts})
	return nil
}

// CommentsOn returns the bodies of comments posted on number.
func (f *Fake) CommentsOn(number int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var bodies []string
	for _, c := range f.Comments {
		if c.Number == number {
			bodies = append(bodies, c.Body)
		}
	}
	return bodies
}

// IssueState returns the state of issue number, or "" if unknown.
func (f *Fake) IssueState(number int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if issue, ok := f.Issues[number]; ok {
		return issue.State
	}
	return ""
}
