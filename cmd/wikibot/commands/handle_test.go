package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/wikibot/internal/fault"
	"github.com/dyluth/wikibot/internal/hosting"
)

const prOpenedPayload = `{
  "event_name": "pull_request",
  "repository": "baipiao-bot/wiki",
  "run_id": "1658821493",
  "event": {"action": "opened", "number": 12, "pull_request": {"number": 12}}
}`

const safeDiff = "diff --git a/data/en/math/pi.md b/data/en/math/pi.md\n--- a/data/en/math/pi.md\n+++ b/data/en/math/pi.md\n@@ -1 +1 @@\n-a\n+b\n"

// setupFakeHosting routes the commands to an in-memory hosting client and
// shortens the lock timings.
func setupFakeHosting(t *testing.T) *hosting.Fake {
	t.Helper()
	fake := hosting.NewFake()
	fake.Issues[1] = &hosting.Issue{Number: 1, State: hosting.StateOpen}

	prev := newHostingClient
	newHostingClient = func(ctx context.Context, token string) (hosting.Client, error) {
		return fake, nil
	}
	t.Cleanup(func() { newHostingClient = prev })

	t.Setenv("WIKIBOT_TOKEN", "test-token")
	t.Setenv("WIKIBOT_EVENT", "")
	t.Setenv("WIKIBOT_LOCK_BACKEND", "issue")
	t.Setenv("WIKIBOT_LOCK_SETTLE_PERIOD", "1ms")
	t.Setenv("WIKIBOT_LOCK_WAIT", "1ms")
	t.Setenv("WIKIBOT_LOCK_MAX_JITTER", "0s")
	return fake
}

func writePayload(t *testing.T, payload string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(path, []byte(payload), 0644))
	return path
}

func TestHandle_MergesSafePullRequest(t *testing.T) {
	fake := setupFakeHosting(t)
	fake.Diffs[12] = safeDiff
	fake.PullRequests[12] = &hosting.PullRequest{Number: 12, Title: "Fix pi"}

	_, _, err := execute(t, "", "handle", "--event", writePayload(t, prOpenedPayload))
	require.NoError(t, err)

	require.Len(t, fake.Merges, 1)
	assert.Equal(t, "Fix pi", fake.Merges[0].Options.Title)
	assert.Equal(t, "1658821493", fake.Issues[1].Body, "lock stays held by this run")
}

func TestHandle_PayloadFromStdin(t *testing.T) {
	fake := setupFakeHosting(t)
	fake.PullRequests[12] = &hosting.PullRequest{Number: 12, Title: "Empty"}

	_, _, err := execute(t, prOpenedPayload, "handle", "--event", "-")
	require.NoError(t, err)

	assert.Empty(t, fake.Merges)
	assert.Len(t, fake.CommentsOn(12), 1)
	assert.Equal(t, "", fake.Issues[1].Body, "rejected pull requests never take the lock")
}

func TestHandle_PayloadFromEnvironment(t *testing.T) {
	fake := setupFakeHosting(t)
	fake.Diffs[12] = safeDiff
	fake.PullRequests[12] = &hosting.PullRequest{Number: 12, Title: "Fix pi"}
	t.Setenv("WIKIBOT_EVENT", prOpenedPayload)

	_, _, err := execute(t, "", "handle")
	require.NoError(t, err)
	assert.Len(t, fake.Merges, 1)
}

func TestHandle_MalformedIssueBodyExitsWithInputCode(t *testing.T) {
	fake := setupFakeHosting(t)
	payload := `{
	  "event_name": "issues",
	  "repository": "baipiao-bot/wiki",
	  "run_id": 7,
	  "event": {"action": "opened", "issue": {"number": 17, "title": "[Contribute] Pi", "body": "no header here", "user": {"login": "euler"}}}
	}`

	_, errOut, err := execute(t, "", "handle", "--event", writePayload(t, payload))
	require.Error(t, err)
	assert.Equal(t, 2, fault.ExitCode(err))
	assert.Contains(t, errOut, "Invalid input")
	assert.Empty(t, fake.Comments)
	assert.Equal(t, "", fake.Issues[1].Body)
}

func TestHandle_InvalidJSONExitsWithInputCode(t *testing.T) {
	setupFakeHosting(t)

	_, _, err := execute(t, "", "handle", "--event", writePayload(t, "{not json"))
	require.Error(t, err)
	assert.Equal(t, 2, fault.ExitCode(err))
}

func TestHandle_IgnoredEventNeedsNoToken(t *testing.T) {
	setupFakeHosting(t)
	t.Setenv("WIKIBOT_TOKEN", "")
	newHostingClient = func(ctx context.Context, token string) (hosting.Client, error) {
		t.Fatal("ignored events must not contact the hosting platform")
		return nil, nil
	}
	payload := `{"event_name": "issues", "repository": "baipiao-bot/wiki", "run_id": 7,
	  "event": {"action": "opened", "issue": {"number": 3, "title": "Bug report", "body": ""}}}`

	_, _, err := execute(t, "", "handle", "--event", writePayload(t, payload))
	assert.NoError(t, err)
}

func TestHandle_NoPayload(t *testing.T) {
	setupFakeHosting(t)

	_, errOut, err := execute(t, "", "handle")
	require.Error(t, err)
	assert.Equal(t, 1, fault.ExitCode(err))
	assert.Contains(t, errOut, "no event payload")
}

func TestReadPayload(t *testing.T) {
	data, err := readPayload(nil, "", `{"a":1}`)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	_, err = readPayload(nil, "", "")
	assert.Error(t, err)

	_, err = readPayload(nil, "/nonexistent/event.json", `{"a":1}`)
	assert.Error(t, err)
}
