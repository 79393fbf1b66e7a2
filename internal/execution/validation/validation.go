// Package validation checks start requests before any slot state changes.
package validation

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultSourceURL is the data source the squad scrapers work against.
const DefaultSourceURL = "https://sofifa.com"

var ErrInvalid = errors.New("invalid start request")

// Error describes why a start request was rejected.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *Error) Is(target error) bool {
	return target == ErrInvalid
}

// Gate validates start requests against the accepted resource kinds of
// one data source.
type Gate struct {
	prefixes []string
}

// NewGate creates a gate accepting team and squad pages below sourceURL.
// An empty sourceURL falls back to DefaultSourceURL.
func NewGate(sourceURL string) *Gate {
	base := strings.TrimSuffix(strings.TrimSpace(sourceURL), "/")
	if base == "" {
		base = DefaultSourceURL
	}

	return &Gate{
		prefixes: []string{
			base + "/team/",
			base + "/squad/",
		},
	}
}

// Prefixes returns the accepted url prefixes.
func (g *Gate) Prefixes() []string {
	return append([]string(nil), g.prefixes...)
}

// Validate checks url and outputDir. It has no side effects. The prefix
// match is case-sensitive.
func (g *Gate) Validate(url, outputDir string) error {
	url = strings.TrimSpace(url)

	if url == "" {
		return &Error{Field: "url", Reason: "must not be empty"}
	}

	if !g.hasPrefix(url) {
		return &Error{
			Field:  "url",
			Reason: fmt.Sprintf("must start with one of %s", strings.Join(g.prefixes, ", ")),
		}
	}

	if strings.TrimSpace(outputDir) == "" {
		return &Error{Field: "output", Reason: "must not be empty"}
	}

	return nil
}

func (g *Gate) hasPrefix(url string) bool {
	for _, prefix := range g.prefixes {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}

	return false
}

// NormalizeURL trims whitespace and ensures a trailing slash.
func NormalizeURL(url string) string {
	url = strings.TrimSpace(url)
	if !strings.HasSuffix(url, "/") {
		url += "/"
	}

	return url
}
