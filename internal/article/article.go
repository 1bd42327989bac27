// Package article computes where a contribution is stored in the content
// repository.
package article

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path"
	"strings"
	"unicode"

	"github.com/dyluth/wikibot/internal/fault"
)

// DataDir is the repository directory holding all articles.
const DataDir = "data"

// Ext is the article file extension.
const Ext = ".md"

// Slug lowercases title and collapses every run of characters that are not
// letters or digits into a single hyphen. Non-ASCII letters are kept.
func Slug(title string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}

// Destination returns data/<language>/<answer>/<slug>.md.
// Components that would escape the data directory are rejected.
func Destination(language, answer, title string) (string, error) {
	if err := checkComponent("language", language); err != nil {
		return "", err
	}
	if err := checkComponent("answer", answer); err != nil {
		return "", err
	}

	slug := Slug(title)
	if slug == "" {
		return "", fault.Inputf("article path", "title %q has no usable characters", title)
	}

	return path.Join(DataDir, language, answer, slug+Ext), nil
}

func checkComponent(field, value string) error {
	if value == "" || strings.HasPrefix(value, "/") || strings.Contains(value, "\\") {
		return fault.Inputf("article path", "invalid %s %q", field, value)
	}
	for _, seg := range strings.Split(value, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fault.Inputf("article path", "invalid %s %q", field, value)
		}
	}
	return nil
}

// ContentHash is the hex MD5 digest of content.
func ContentHash(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Disambiguate inserts the content hash before the extension:
// data/en/math/pi.md -> data/en/math/pi-<hash>.md.
func Disambiguate(rel, content string) string {
	return strings.TrimSuffix(rel, Ext) + "-" + ContentHash(content) + Ext
}

// Resolve returns rel if nothing exists there yet, otherwise its
// disambiguated form. An existing file is never chosen as the target.
func Resolve(rel, content string, exists func(rel string) (bool, error)) (string, error) {
	taken, err := exists(rel)
	if err != nil {
		return "", fmt.Errorf("failed to check %s: %w", rel, err)
	}
	if !taken {
		return rel, nil
	}
	return Disambiguate(rel, content), nil
}
