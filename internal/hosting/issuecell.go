package hosting

import (
	"context"
	"fmt"

	"github.com/dyluth/wikibot/internal/event"
	"github.com/dyluth/wikibot/pkg/lockcell"
)

// DefaultLockIssue is the issue whose body stores the lock holder.
const DefaultLockIssue = 1

// IssueCell stores the lock holder in the body of an issue.
// The platform offers no conditional update, so writes are blind.
type IssueCell struct {
	client Client
	repo   event.Repository
	number int
}

// NewIssueCell creates a cell backed by issue number in repo.
func NewIssueCell(client Client, repo event.Repository, number int) *IssueCell {
	if number <= 0 {
		number = DefaultLockIssue
	}
	return &IssueCell{client: client, repo: repo, number: number}
}

// Read implements lockcell.Cell.
func (c *IssueCell) Read(ctx context.Context) (lockcell.Token, bool, error) {
	issue, err := c.client.GetIssue(ctx, c.repo, c.number)
	if err != nil {
		return 0, false, err
	}
	holder, held := lockcell.ParseHolder(issue.Body)
	return holder, held, nil
}

// TryClaim implements lockcell.Cell.
func (c *IssueCell) TryClaim(ctx context.Context, token lockcell.Token) error {
	return c.client.UpdateIssue(ctx, c.repo, c.number, IssueUpdate{Body: String(token.String())})
}

// Release implements lockcell.Releaser.
func (c *IssueCell) Release(ctx context.Context) error {
	return c.client.UpdateIssue(ctx, c.repo, c.number, IssueUpdate{Body: String("")})
}

func (c *IssueCell) String() string {
	return fmt.Sprintf("issue %s#%d", c.repo, c.number)
}
