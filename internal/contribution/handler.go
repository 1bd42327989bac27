// Package contribution turns classified webhook events into wiki changes.
//
// Every mutation of the content repository happens after the contribution
// lock is confirmed. The lock is never released here: the external site
// rebuild releases it once the published content has been picked up.
package contribution

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/dyluth/wikibot/internal/article"
	"github.com/dyluth/wikibot/internal/content"
	"github.com/dyluth/wikibot/internal/event"
	"github.com/dyluth/wikibot/internal/fault"
	"github.com/dyluth/wikibot/internal/frontmatter"
	"github.com/dyluth/wikibot/internal/hosting"
	"github.com/dyluth/wikibot/internal/lock"
	"github.com/dyluth/wikibot/internal/patch"
	"github.com/dyluth/wikibot/pkg/lockcell"
)

// DefaultReviewer is mentioned on pull requests the bot will not merge.
const DefaultReviewer = "longfangsong"

// ThanksComment is posted on an issue once its article is published.
const ThanksComment = "Merged. Thank you for contribution!"

// UnsafeComment returns the comment posted on a pull request that fails
// validation.
func UnsafeComment(reviewer string) string {
	return fmt.Sprintf("Sorry I cannot make sure your PR is safe to merge.\n@%s PTAL.", reviewer)
}

// ContributeRequest is a validated issue contribution.
type ContributeRequest struct {
	Repository event.Repository
	Token      lockcell.Token
	Issue      int
	Author     string
	Title      string // Issue title with the marker stripped
	Path       string // Destination before collision handling
	Document   *frontmatter.Document
}

// ContributePRRequest is a pull request to validate and merge.
type ContributePRRequest struct {
	Repository  event.Repository
	Token       lockcell.Token
	PullRequest int
}

// Handler processes one event per invocation.
type Handler struct {
	locker   lock.Locker
	client   hosting.Client
	saver    content.Saver
	marker   string
	reviewer string
	now      func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithMarker sets the issue title prefix that marks a contribution.
func WithMarker(marker string) Option {
	return func(h *Handler) {
		if marker != "" {
			h.marker = marker
		}
	}
}

// WithReviewer sets the account mentioned on rejected pull requests.
func WithReviewer(reviewer string) Option {
	return func(h *Handler) {
		if reviewer != "" {
			h.reviewer = reviewer
		}
	}
}

// WithClock replaces time.Now for last_update stamps.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

// NewHandler wires a handler.
func NewHandler(locker lock.Locker, client hosting.Client, saver content.Saver, opts ...Option) *Handler {
	h := &Handler{
		locker:   locker,
		client:   client,
		saver:    saver,
		marker:   event.DefaultMarker,
		reviewer: DefaultReviewer,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle dispatches ev. Ignored events are a no-op.
func (h *Handler) Handle(ctx context.Context, ev *event.Event) error {
	switch ev.Kind {
	case event.IssueCreated, event.IssueReopened:
		req, ok, err := h.NewContributeRequest(ev)
		if err != nil || !ok {
			return err
		}
		return h.Contribute(ctx, req)

	case event.PullRequestCreated:
		if ev.PullRequest == nil {
			return fault.Inputf("handle event", "%s event has no pull request", ev.Kind)
		}
		return h.ContributePR(ctx, &ContributePRRequest{
			Repository:  ev.Repository,
			Token:       lockcell.Token(ev.RunningInfo.RunID),
			PullRequest: ev.PullRequest.Number,
		})

	default:
		log.Printf("[DEBUG] Ignoring event: %s", ev.Reason)
		return nil
	}
}

// NewContributeRequest validates an issue event. ok is false when the issue
// is not a contribution. Malformed bodies are input errors.
func (h *Handler) NewContributeRequest(ev *event.Event) (*ContributeRequest, bool, error) {
	if ev.Issue == nil {
		return nil, false, fault.Inputf("handle event", "%s event has no issue", ev.Kind)
	}
	if !strings.HasPrefix(ev.Issue.Title, h.marker) {
		log.Printf("[DEBUG] Issue #%d is not a contribution", ev.Issue.Number)
		return nil, false, nil
	}
	title := strings.TrimSpace(strings.TrimPrefix(ev.Issue.Title, h.marker))

	sub, err := frontmatter.ParseIssueBody(ev.Issue.Body)
	if err != nil {
		return nil, false, err
	}
	doc, err := sub.Document()
	if err != nil {
		return nil, false, err
	}
	if err := doc.CheckStampable(); err != nil {
		return nil, false, err
	}
	rel, err := article.Destination(sub.Language, sub.Answer, title)
	if err != nil {
		return nil, false, err
	}

	return &ContributeRequest{
		Repository: ev.Repository,
		Token:      lockcell.Token(ev.RunningInfo.RunID),
		Issue:      ev.Issue.Number,
		Author:     ev.Issue.Author,
		Title:      title,
		Path:       rel,
		Document:   doc,
	}, true, nil
}

// Contribute publishes the article, thanks the author and closes the issue.
func (h *Handler) Contribute(ctx context.Context, req *ContributeRequest) error {
	if err := h.locker.Acquire(ctx, req.Token); err != nil {
		return err
	}

	doc := *req.Document
	if err := doc.Stamp(req.Author, h.now()); err != nil {
		return err
	}

	final, err := h.saver.Save(ctx, req.Path, doc.String())
	if err != nil {
		return err
	}
	log.Printf("[INFO] Issue %s#%d published as %s", req.Repository, req.Issue, final)

	if err := h.client.CreateComment(ctx, req.Repository, req.Issue, ThanksComment); err != nil {
		return err
	}
	return h.client.UpdateIssue(ctx, req.Repository, req.Issue, hosting.IssueUpdate{State: hosting.String(hosting.StateClosed)})
}

// ContributePR squash-merges a pull request that only touches articles.
// Anything else is handed to the reviewer without taking the lock.
func (h *Handler) ContributePR(ctx context.Context, req *ContributePRRequest) error {
	diff, err := h.client.GetPullRequestDiff(ctx, req.Repository, req.PullRequest)
	if err != nil {
		return err
	}

	verdict := patch.Validate(diff)
	if !verdict.Safe {
		log.Printf("[INFO] Pull request %s#%d needs review: %s", req.Repository, req.PullRequest, verdict.Reason)
		return h.client.CreateComment(ctx, req.Repository, req.PullRequest, UnsafeComment(h.reviewer))
	}

	pr, err := h.client.GetPullRequest(ctx, req.Repository, req.PullRequest)
	if err != nil {
		return err
	}

	if err := h.locker.Acquire(ctx, req.Token); err != nil {
		return err
	}

	return h.client.MergePullRequest(ctx, req.Repository, req.PullRequest, hosting.MergeOptions{
		Method:  hosting.MergeMethodSquash,
		Title:   pr.Title,
		Message: pr.Title,
	})
}
