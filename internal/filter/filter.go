// Package filter provides the `--filter=<expr>` predicate the CLI
// applies to each merged event before emission.
package filter

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/marmos91/usnwatcher/internal/usnrecord"
)

// Predicate reports whether an event should be emitted.
type Predicate func(*usnrecord.Event) bool

// PassAll emits every event.
func PassAll(*usnrecord.Event) bool { return true }

// Parse compiles an expression into a Predicate. Supported forms:
//
//	reason:<TOKEN>     - only events carrying the given reason token
//	dir-only           - only directory events
//	file-only          - only non-directory events
//	glob:<pattern>      - only events whose fullPath matches a filepath.Match glob
//	close-files         - only non-directory CLOSE events (the common "file finished
//	                      being written" signal editors and build tools care about)
//
// An empty expression compiles to PassAll.
func Parse(expr string) (Predicate, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return PassAll, nil
	}

	switch {
	case expr == "dir-only":
		return func(e *usnrecord.Event) bool { return e.IsDirectory }, nil

	case expr == "file-only":
		return func(e *usnrecord.Event) bool { return !e.IsDirectory }, nil

	case expr == "close-files":
		return func(e *usnrecord.Event) bool { return !e.IsDirectory && e.IsClose() }, nil

	case strings.HasPrefix(expr, "reason:"):
		token := strings.ToUpper(strings.TrimPrefix(expr, "reason:"))
		return func(e *usnrecord.Event) bool {
			for _, r := range e.Reasons {
				if r == token {
					return true
				}
			}
			return false
		}, nil

	case strings.HasPrefix(expr, "glob:"):
		pattern := strings.TrimPrefix(expr, "glob:")
		if _, err := filepath.Match(pattern, "probe"); err != nil {
			return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
		}
		return func(e *usnrecord.Event) bool {
			if e.FullPath == "" {
				return false
			}
			if matched, err := filepath.Match(pattern, filepath.Base(e.FullPath)); err == nil && matched {
				return true
			}
			matched, err := filepath.Match(pattern, e.FullPath)
			return err == nil && matched
		}, nil

	default:
		return nil, fmt.Errorf("unrecognized filter expression %q", expr)
	}
}
