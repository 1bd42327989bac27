// Package patch inspects pull request diffs to decide whether a pull request
// only touches articles and can be merged without a human.
package patch

import (
	"fmt"
	"regexp"
	"strings"
)

// FileChange is one file touched by a diff, as named by its
// "diff --git a/<before> b/<after>" header.
type FileChange struct {
	Before string
	After  string
}

var headerRe = regexp.MustCompile(`(?m)^diff --git (.+)$`)

// ChangedFiles returns the files named by the diff's file headers, in order.
func ChangedFiles(diff string) []FileChange {
	var files []FileChange
	for _, m := range headerRe.FindAllStringSubmatch(diff, -1) {
		if fc, ok := parseHeaderPaths(strings.TrimRight(m[1], "\r")); ok {
			files = append(files, fc)
		}
	}
	return files
}

// pathsOf lists both sides of every change. An unchanged path is listed once.
func pathsOf(files []FileChange) []string {
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Before)
		if f.After != f.Before {
			paths = append(paths, f.After)
		}
	}
	return paths
}

// parseHeaderPaths splits "a/<before> b/<after>". Paths may contain spaces,
// so the common unchanged-path case is detected by symmetry first.
func parseHeaderPaths(s string) (FileChange, bool) {
	if unquoted, ok := unquotePair(s); ok {
		s = unquoted
	}

	if len(s)%2 == 1 {
		half := (len(s) - 1) / 2
		left, right := s[:half], s[half+1:]
		if s[half] == ' ' && strings.HasPrefix(left, "a/") && strings.HasPrefix(right, "b/") && left[2:] == right[2:] {
			return FileChange{Before: left[2:], After: right[2:]}, true
		}
	}

	if !strings.HasPrefix(s, "a/") {
		return FileChange{}, false
	}
	i := strings.LastIndex(s, " b/")
	if i < 2 {
		return FileChange{}, false
	}
	return FileChange{Before: s[2:i], After: s[i+3:]}, true
}

// unquotePair handles git's quoting of paths with special characters:
// "a/x y" "b/x y". Escape sequences are left as they are.
func unquotePair(s string) (string, bool) {
	if !strings.HasPrefix(s, `"a/`) || !strings.HasSuffix(s, `"`) {
		return "", false
	}
	i := strings.Index(s, `" "b/`)
	if i < 0 {
		return "", false
	}
	return s[1:i] + " " + s[i+3:len(s)-1], true
}

// Verdict is the outcome of Validate.
type Verdict struct {
	Safe     bool
	Files    []FileChange
	Rejected []string // Offending paths
	Reason   string
}

// Validate reports whether every changed file is an article: a path under
// data/ ending in .md, case-sensitive. Both sides of a rename must qualify.
// A diff with no files is never safe.
func Validate(diff string) Verdict {
	files := ChangedFiles(diff)
	v := Verdict{Files: files}
	if len(files) == 0 {
		v.Reason = "pull request changes no files"
		return v
	}

	v.Rejected = rejectedPaths(pathsOf(files))
	if len(v.Rejected) > 0 {
		v.Reason = fmt.Sprintf("pull request changes files outside data/*.md: %s", strings.Join(v.Rejected, ", "))
		return v
	}

	v.Safe = true
	return v
}

// IsArticlePath reports whether p lies under data/ and ends with .md.
func IsArticlePath(p string) bool {
	if !strings.HasPrefix(p, "data/") || !strings.HasSuffix(p, ".md") {
		return false
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return false
		}
	}
	return true
}

func rejectedPaths(paths []string) []string {
	var rejected []string
	for _, p := range paths {
		if !IsArticlePath(p) {
			rejected = append(rejected, p)
		}
	}
	return rejected
}
