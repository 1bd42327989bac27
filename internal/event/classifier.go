package event

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dyluth/wikibot/internal/fault"
	"github.com/tidwall/gjson"
)

// Classifier routes GitHub Actions context payloads (the JSON produced by
// `${{ toJson(github) }}`).
type Classifier struct {
	marker string
}

// NewClassifier creates a classifier. An empty marker selects DefaultMarker.
func NewClassifier(marker string) *Classifier {
	if marker == "" {
		marker = DefaultMarker
	}
	return &Classifier{marker: marker}
}

// Classify parses payload and decides how the bot should react.
//
// Missing repository identity or run id, or a routed event without its
// issue or pull request number, is a fatal input error.
func (c *Classifier) Classify(payload []byte) (*Event, error) {
	if !gjson.ValidBytes(payload) {
		return nil, fault.Inputf("parse event", "payload is not valid JSON")
	}
	root := gjson.ParseBytes(payload)

	repo, err := repositoryOf(root)
	if err != nil {
		return nil, err
	}

	runID, err := runIDOf(root)
	if err != nil {
		return nil, err
	}

	ev := &Event{
		Kind:        Ignored,
		Repository:  repo,
		RunningInfo: RunningInfo{RunID: runID},
	}

	name := root.Get("event_name").String()
	action := root.Get("event.action").String()

	switch name {
	case "issues":
		return c.classifyIssue(ev, root, action)
	case "pull_request", "pull_request_target":
		return classifyPullRequest(ev, root, action)
	default:
		ev.Reason = fmt.Sprintf("unhandled event %q", name)
		return ev, nil
	}
}

func (c *Classifier) classifyIssue(ev *Event, root gjson.Result, action string) (*Event, error) {
	var kind Kind
	switch action {
	case "opened":
		kind = IssueCreated
	case "reopened":
		kind = IssueReopened
	default:
		ev.Reason = fmt.Sprintf("unhandled issue action %q", action)
		return ev, nil
	}

	issue := root.Get("event.issue")
	title := issue.Get("title").String()
	if !strings.HasPrefix(title, c.marker) {
		ev.Reason = fmt.Sprintf("issue title does not start with %s", c.marker)
		return ev, nil
	}

	number, err := numberOf(issue.Get("number"), "event.issue.number")
	if err != nil {
		return nil, err
	}

	ev.Kind = kind
	ev.Issue = &Issue{
		Number: number,
		Title:  title,
		Body:   issue.Get("body").String(),
		Author: issue.Get("user.login").String(),
	}
	return ev, nil
}

func classifyPullRequest(ev *Event, root gjson.Result, action string) (*Event, error) {
	if action != "opened" {
		ev.Reason = fmt.Sprintf("unhandled pull request action %q", action)
		return ev, nil
	}

	raw := root.Get("event.pull_request.number")
	if !raw.Exists() {
		raw = root.Get("event.number")
	}
	number, err := numberOf(raw, "event.pull_request.number")
	if err != nil {
		return nil, err
	}

	ev.Kind = PullRequestCreated
	ev.PullRequest = &PullRequest{Number: number}
	return ev, nil
}

func repositoryOf(root gjson.Result) (Repository, error) {
	owner := root.Get("event.repository.owner.login").String()
	name := root.Get("event.repository.name").String()
	if owner != "" && name != "" {
		return Repository{Owner: owner, Name: name}, nil
	}

	full := root.Get("repository").String()
	if full == "" {
		full = root.Get("event.repository.full_name").String()
	}
	return ParseRepository(full)
}

// ParseRepository parses an "owner/name" repository reference.
func ParseRepository(full string) (Repository, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(full), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return Repository{}, fault.Inputf("parse event", "missing or invalid repository %q", full)
	}
	return Repository{Owner: owner, Name: name}, nil
}

// runIDOf accepts the run id as a JSON number or a decimal string; the
// Actions context serializes it as a string.
func runIDOf(root gjson.Result) (int64, error) {
	raw := root.Get("run_id")
	if !raw.Exists() {
		return 0, fault.Inputf("parse event", "missing run_id")
	}
	id, err := strconv.ParseInt(strings.TrimSpace(raw.String()), 10, 64)
	if err != nil || id <= 0 {
		return 0, fault.Inputf("parse event", "invalid run_id %q", raw.String())
	}
	return id, nil
}

func numberOf(raw gjson.Result, field string) (int, error) {
	if !raw.Exists() {
		return 0, fault.Inputf("parse event", "missing %s", field)
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw.String()))
	if err != nil || n <= 0 {
		return 0, fault.Inputf("parse event", "invalid %s %q", field, raw.String())
	}
	return n, nil
}
