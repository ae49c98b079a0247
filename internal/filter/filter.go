// Package filter selects changeset paths with gitignore-style glob patterns.
package filter

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	pathpkg "path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"sniff-go/internal/changes"
)

// pattern is a parsed exclusion pattern with its matching strategy.
type pattern struct {
	glob      string
	negated   bool
	matchLeaf bool // true = also match against the last path component
}

// Matcher checks changeset paths against an ordered list of patterns.
// Patterns without '/' match the last path component as well as the whole
// path. A leading '!' re-includes paths excluded by an earlier pattern; the
// last matching pattern wins. '**' matches any number of components.
type Matcher struct {
	patterns []pattern
}

// New parses raw pattern strings. Blank lines and lines starting with '#'
// are skipped.
func New(rawPatterns []string) (*Matcher, error) {
	var patterns []pattern
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		p, err := parsePattern(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing pattern %q: %w", raw, err)
		}
		patterns = append(patterns, p)
	}
	return &Matcher{patterns: patterns}, nil
}

func parsePattern(raw string) (pattern, error) {
	negated := false
	if raw[0] == '!' {
		negated = true
		raw = raw[1:]
	}

	anchored := false
	if strings.HasPrefix(raw, "/") {
		anchored = true
		raw = raw[1:]
	}
	raw = strings.TrimSuffix(raw, "/")
	if raw == "" {
		return pattern{}, errors.New("empty pattern")
	}

	// Match against a non-empty path so that bad patterns are reported.
	if _, err := doublestar.Match(raw, "a"); err != nil {
		return pattern{}, err
	}

	return pattern{
		glob:      raw,
		negated:   negated,
		matchLeaf: !anchored && !strings.Contains(raw, "/"),
	}, nil
}

func (p pattern) matches(path string) bool {
	if ok, _ := doublestar.Match(p.glob, path); ok {
		return true
	}
	if p.matchLeaf && path != "" {
		ok, _ := doublestar.Match(p.glob, pathpkg.Base(path))
		return ok
	}
	return false
}

// Empty reports whether the matcher has no patterns.
func (m *Matcher) Empty() bool {
	return m == nil || len(m.patterns) == 0
}

// Excluded reports whether path is excluded. path uses forward slashes.
func (m *Matcher) Excluded(path string) bool {
	if m.Empty() {
		return false
	}

	path = strings.TrimPrefix(path, "/")
	excluded := false
	for _, p := range m.patterns {
		if p.matches(path) {
			excluded = !p.negated
		}
	}
	return excluded
}

// Apply returns a copy of cs without the excluded paths. The watermark is
// kept as is.
func Apply[Ts any](m *Matcher, cs *changes.Changeset[Ts]) *changes.Changeset[Ts] {
	out := changes.NewChangeset(cs.EarliestTimestamp)
	for path, diff := range cs.All() {
		if !m.Excluded(path) {
			out.Insert(path, diff)
		}
	}
	return out
}

// ParseFile reads a pattern file and returns the raw pattern strings.
// Returns nil and no error if the file does not exist.
func ParseFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening filter file: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading filter file: %w", err)
	}
	return patterns, nil
}
