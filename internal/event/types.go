// Package event turns the workflow payload that triggered a bot run into a
// routed Event.
package event

import "fmt"

// DefaultMarker prefixes the titles of contribution issues.
const DefaultMarker = "[Contribute]"

// Kind is the routing decision for an event.
type Kind int

const (
	// Ignored events cause no side effects.
	Ignored Kind = iota
	IssueCreated
	IssueReopened
	PullRequestCreated
)

func (k Kind) String() string {
	switch k {
	case IssueCreated:
		return "issue-created"
	case IssueReopened:
		return "issue-reopened"
	case PullRequestCreated:
		return "pull-request-created"
	default:
		return "ignored"
	}
}

// Repository identifies the content repository.
type Repository struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

func (r Repository) String() string {
	return fmt.Sprintf("%s/%s", r.Owner, r.Name)
}

// RunningInfo describes the current bot invocation.
type RunningInfo struct {
	RunID int64 `json:"run_id"` // Lock-holder token
}

// Issue carries the fields of an issue event.
type Issue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	Author string `json:"author"`
}

// PullRequest carries the fields of a pull request event.
type PullRequest struct {
	Number int `json:"number"`
}

// Event is a classified payload.
type Event struct {
	Kind        Kind         `json:"kind"`
	Repository  Repository   `json:"repository"`
	RunningInfo RunningInfo  `json:"running_info"`
	Issue       *Issue       `json:"issue,omitempty"`        // Set for issue kinds
	PullRequest *PullRequest `json:"pull_request,omitempty"` // Set for PullRequestCreated
	Reason      string       `json:"reason,omitempty"`       // Why the event was ignored
}
