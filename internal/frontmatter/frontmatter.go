// Package frontmatter reads contribution issue bodies and produces the
// article files stored in the content repository.
//
// An issue body looks like:
//
//	language: en
//	answer: math
//	---
//	category: math
//	tags: [constants]
//	---
//	# Pi
//	...
//
// The lines before the first "---" address the article. Everything from the
// first "---" on is the content block that becomes the file. When the content
// block has no YAML header of its own, the addressing lines become the header.
package frontmatter

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dyluth/wikibot/internal/fault"
	"gopkg.in/yaml.v3"
)

// Delimiter separates the header from the content.
const Delimiter = "---"

// fieldRe matches a top-level "key: value" line. Template hints and prose
// before the delimiter do not match and are dropped.
var fieldRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*:(\s|$)`)

// Submission is a parsed contribution issue body.
type Submission struct {
	Language    string
	Answer      string   // category/slug directory under the language
	HeaderLines []string // Trimmed "key: value" lines before the first delimiter
	Block       string   // Body from the first delimiter, inclusive
}

// Document is an article split into its header and markdown content.
type Document struct {
	Header  string // YAML mapping, every line terminated by \n
	Content string
}

// ParseIssueBody extracts the addressing header and content block.
// A body without a delimiter, or without language or answer, is a fatal
// input error.
func ParseIssueBody(body string) (*Submission, error) {
	idx := strings.Index(body, Delimiter)
	if idx < 0 {
		return nil, fault.Inputf("parse issue body", "no %s delimiter", Delimiter)
	}

	var lines []string
	for _, line := range strings.Split(body[:idx], "\n") {
		if line = strings.TrimSpace(line); fieldRe.MatchString(line) {
			lines = append(lines, line)
		}
	}

	language, err := requiredField(lines, "language")
	if err != nil {
		return nil, err
	}
	answer, err := requiredField(lines, "answer")
	if err != nil {
		return nil, err
	}

	return &Submission{
		Language:    language,
		Answer:      answer,
		HeaderLines: lines,
		Block:       body[idx:],
	}, nil
}

func requiredField(lines []string, key string) (string, error) {
	prefix := key + ":"
	for _, line := range lines {
		if strings.HasPrefix(line, prefix) {
			value := strings.TrimSpace(strings.TrimPrefix(line, prefix))
			if value == "" {
				return "", fault.Inputf("parse issue body", "empty %s", key)
			}
			return value, nil
		}
	}
	return "", fault.Inputf("parse issue body", "missing %s", key)
}

// Document splits the content block. If the block opens with its own YAML
// header, that header is used; otherwise the addressing lines are.
func (s *Submission) Document() (*Document, error) {
	rest := strings.TrimPrefix(s.Block, Delimiter)

	if header, content, ok := splitHeader(rest); ok {
		if err := checkSingleBlock(content); err != nil {
			return nil, err
		}
		return &Document{Header: header, Content: content}, nil
	}

	content := trimLeadingNewline(rest)
	if err := checkSingleBlock(content); err != nil {
		return nil, err
	}
	return &Document{
		Header:  strings.Join(s.HeaderLines, "\n") + "\n",
		Content: content,
	}, nil
}

// splitHeader looks for a closing delimiter line after a YAML mapping.
func splitHeader(rest string) (header, content string, ok bool) {
	body := trimLeadingNewline(rest)
	end := -1
	if strings.HasPrefix(body, Delimiter+"\n") || body == Delimiter {
		end = 0
	} else if i := strings.Index(body, "\n"+Delimiter); i >= 0 {
		end = i + 1
	}
	if end <= 0 {
		return "", "", false
	}

	after := body[end+len(Delimiter):]
	if after != "" && after[0] != '\n' && after[0] != '\r' {
		return "", "", false
	}

	candidate := body[:end]
	var fields map[string]any
	if err := yaml.Unmarshal([]byte(candidate), &fields); err != nil || len(fields) == 0 {
		return "", "", false
	}
	return ensureTrailingNewline(candidate), trimLeadingNewline(after), true
}

func checkSingleBlock(content string) error {
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == Delimiter {
			return fault.Inputf("parse issue body", "content contains more than one %s block", Delimiter)
		}
	}
	return nil
}

// Stamp appends author and last_update to the header. Existing keys are
// never replaced: a header that already carries either key is rejected.
func (d *Document) Stamp(author string, now time.Time) error {
	if err := d.CheckStampable(); err != nil {
		return err
	}
	d.Header = ensureTrailingNewline(d.Header) + fmt.Sprintf("author: %s\nlast_update: %s\n",
		author, now.UTC().Format(time.RFC3339))
	return nil
}

// CheckStampable returns the error Stamp would return, without changing d.
func (d *Document) CheckStampable() error {
	keys, err := headerKeys(d.Header)
	if err != nil {
		return fault.Input("stamp header", err)
	}
	for _, k := range keys {
		if k == "author" || k == "last_update" {
			return fault.Inputf("stamp header", "header already has %s", k)
		}
	}
	return nil
}

// String renders the document as an article file.
func (d *Document) String() string {
	return Delimiter + "\n" + ensureTrailingNewline(d.Header) + Delimiter + "\n" + d.Content
}

// Keys returns the header keys in order.
func (d *Document) Keys() ([]string, error) {
	return headerKeys(d.Header)
}

// Meta decodes the header.
func (d *Document) Meta() (*Meta, error) {
	var m Meta
	if err := yaml.Unmarshal([]byte(d.Header), &m); err != nil {
		return nil, fmt.Errorf("failed to decode header: %w", err)
	}
	return &m, nil
}

// Parse reads an article file produced by Document.String.
func Parse(text string) (*Document, error) {
	if !strings.HasPrefix(text, Delimiter+"\n") {
		return nil, fmt.Errorf("article does not start with %s", Delimiter)
	}
	header, content, ok := splitHeader(strings.TrimPrefix(text, Delimiter))
	if !ok {
		return nil, fmt.Errorf("article has no closing %s", Delimiter)
	}
	return &Document{Header: header, Content: content}, nil
}

func headerKeys(header string) ([]string, error) {
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(header), &node); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, nil
	}
	mapping := node.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("header is not a mapping")
	}
	keys := make([]string, 0, len(mapping.Content)/2)
	for i := 0; i < len(mapping.Content); i += 2 {
		keys = append(keys, mapping.Content[i].Value)
	}
	return keys, nil
}

func trimLeadingNewline(s string) string {
	s = strings.TrimPrefix(s, "\r")
	return strings.TrimPrefix(s, "\n")
}

func ensureTrailingNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
