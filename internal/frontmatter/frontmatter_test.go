package frontmatter

import (
	"testing"
	"time"

	"github.com/dyluth/wikibot/internal/fault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stampTime = time.Date(2026, 10, 17, 8, 30, 15, 999, time.FixedZone("CST", 8*3600))

func TestParseIssueBody(t *testing.T) {
	sub, err := ParseIssueBody("language: en\r\n  answer:  math \n---\n# Pi\nPi is irrational.")
	require.NoError(t, err)

	assert.Equal(t, "en", sub.Language)
	assert.Equal(t, "math", sub.Answer)
	assert.Equal(t, []string{"language: en", "answer:  math"}, sub.HeaderLines)
	assert.Equal(t, "---\n# Pi\nPi is irrational.", sub.Block)
}

func TestParseIssueBody_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		errMsg string
	}{
		{name: "no delimiter", body: "language: en\nanswer: math\n# Pi", errMsg: "no --- delimiter"},
		{name: "missing language", body: "answer: math\n---\n# Pi", errMsg: "missing language"},
		{name: "missing answer", body: "language: en\n---\n# Pi", errMsg: "missing answer"},
		{name: "empty language", body: "language:\nanswer: math\n---\n# Pi", errMsg: "empty language"},
		{name: "keys after delimiter do not count", body: "---\nlanguage: en\nanswer: math\n", errMsg: "missing language"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := ParseIssueBody(tt.body)
			require.Error(t, err)
			assert.Nil(t, sub)
			assert.Contains(t, err.Error(), tt.errMsg)
			assert.True(t, fault.IsInput(err), "malformed bodies are fatal input errors")
		})
	}
}

func TestDocument_UsesAddressingLinesWithoutOwnHeader(t *testing.T) {
	sub, err := ParseIssueBody("language: en\nanswer: math\n---\n# Pi\nPi is irrational.")
	require.NoError(t, err)

	doc, err := sub.Document()
	require.NoError(t, err)
	assert.Equal(t, "language: en\nanswer: math\n", doc.Header)
	assert.Equal(t, "# Pi\nPi is irrational.", doc.Content)
}

func TestDocument_DropsTemplateHintsFromAddressingHeader(t *testing.T) {
	body := "<!-- fill in the fields below -->\nlanguage: en\nPlease keep one field per line.\nanswer: math\n---\n# Pi\n"
	sub, err := ParseIssueBody(body)
	require.NoError(t, err)
	assert.Equal(t, []string{"language: en", "answer: math"}, sub.HeaderLines)

	doc, err := sub.Document()
	require.NoError(t, err)
	assert.Equal(t, "language: en\nanswer: math\n", doc.Header)
	require.NoError(t, doc.CheckStampable())
	require.NoError(t, doc.Stamp("euler", stampTime))
	assert.Equal(t, "language: en\nanswer: math\nauthor: euler\nlast_update: 2026-10-17T00:30:15Z\n", doc.Header)
}

func TestDocument_UsesOwnHeader(t *testing.T) {
	body := "language: zh\nanswer: science\n---\ncategory: science\ntags: [physics, light]\naliases:\n  - lightspeed\n---\n# Speed of light\n299792458 m/s\n"
	sub, err := ParseIssueBody(body)
	require.NoError(t, err)

	doc, err := sub.Document()
	require.NoError(t, err)
	assert.Equal(t, "category: science\ntags: [physics, light]\naliases:\n  - lightspeed\n", doc.Header)
	assert.Equal(t, "# Speed of light\n299792458 m/s\n", doc.Content)

	meta, err := doc.Meta()
	require.NoError(t, err)
	assert.Equal(t, "science", meta.Category)
	assert.Equal(t, []string{"physics", "light"}, meta.Tags)
	assert.Equal(t, []string{"lightspeed"}, meta.Aliases)
}

func TestDocument_RejectsExtraBlocks(t *testing.T) {
	bodies := []string{
		"language: en\nanswer: math\n---\ncategory: math\n---\n# Pi\n---\nmore",
		"language: en\nanswer: math\n---\n# Pi\n---\nmore",
	}
	for _, body := range bodies {
		sub, err := ParseIssueBody(body)
		require.NoError(t, err)

		_, err = sub.Document()
		require.Error(t, err)
		assert.True(t, fault.IsInput(err))
		assert.Contains(t, err.Error(), "more than one")
	}
}

func TestDocument_HorizontalRuleVariantsAreContent(t *testing.T) {
	sub, err := ParseIssueBody("language: en\nanswer: math\n---\n# Pi\n\n-----\n\nfooter")
	require.NoError(t, err)

	doc, err := sub.Document()
	require.NoError(t, err)
	assert.Equal(t, "# Pi\n\n-----\n\nfooter", doc.Content)
}

func TestStamp_RoundTrip(t *testing.T) {
	sub, err := ParseIssueBody("language: en\nanswer: math\n---\n# Pi\nPi is irrational.")
	require.NoError(t, err)
	doc, err := sub.Document()
	require.NoError(t, err)

	require.NoError(t, doc.Stamp("euler", stampTime))

	parsed, err := Parse(doc.String())
	require.NoError(t, err)

	keys, err := parsed.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"language", "answer", "author", "last_update"}, keys)

	meta, err := parsed.Meta()
	require.NoError(t, err)
	assert.Equal(t, "en", meta.Language)
	assert.Equal(t, "math", meta.Answer)
	assert.Equal(t, "euler", meta.Author)
	assert.True(t, meta.LastUpdate.Equal(stampTime.Truncate(time.Second)))
	assert.Equal(t, "# Pi\nPi is irrational.", parsed.Content)
}

func TestStamp_Format(t *testing.T) {
	doc := &Document{Header: "category: math", Content: "body\n"}
	require.NoError(t, doc.Stamp("gauss", stampTime))

	assert.Equal(t,
		"---\ncategory: math\nauthor: gauss\nlast_update: 2026-10-17T00:30:15Z\n---\nbody\n",
		doc.String())
}

func TestStamp_NeverReplacesExistingKeys(t *testing.T) {
	for _, header := range []string{
		"category: math\nauthor: someone\n",
		"category: math\nlast_update: 2020-01-01T00:00:00Z\n",
	} {
		doc := &Document{Header: header, Content: "body"}
		assert.True(t, fault.IsInput(doc.CheckStampable()))
		err := doc.Stamp("gauss", stampTime)
		require.Error(t, err)
		assert.True(t, fault.IsInput(err))
		assert.Equal(t, header, doc.Header, "header is left untouched")
	}
}

func TestStamp_RejectsNonYAMLHeader(t *testing.T) {
	doc := &Document{Header: "language: en\nthis is not yaml: [\n", Content: "body"}
	err := doc.Stamp("gauss", stampTime)
	require.Error(t, err)
	assert.True(t, fault.IsInput(err))
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse("# no header")
	assert.Error(t, err)

	_, err = Parse("---\ncategory: math\nno closing")
	assert.Error(t, err)
}
