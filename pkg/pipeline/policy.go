package pipeline

import (
	"fmt"
	"path"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultAccept is the accepted-file pattern used when none is configured.
var DefaultAccept = []string{"*.java"}

// Policy decides which file names are accepted for detection.
type Policy struct {
	patterns []string
}

// NewPolicy creates a policy from doublestar glob patterns. Patterns without
// a slash match the base name; others match the whole slash-separated name.
func NewPolicy(patterns ...string) (*Policy, error) {
	if len(patterns) == 0 {
		patterns = DefaultAccept
	}
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid accept pattern %q", p)
		}
	}
	return &Policy{patterns: append([]string(nil), patterns...)}, nil
}

// DefaultPolicy accepts DefaultAccept.
func DefaultPolicy() *Policy {
	return &Policy{patterns: DefaultAccept}
}

// Patterns returns the configured patterns.
func (p *Policy) Patterns() []string {
	return append([]string(nil), p.patterns...)
}

// Accepts reports whether name matches any pattern.
func (p *Policy) Accepts(name string) bool {
	if name == "" {
		return false
	}
	full := filepath.ToSlash(name)
	base := path.Base(full)
	for _, pattern := range p.patterns {
		if ok, _ := doublestar.Match(pattern, full); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, base); ok {
			return true
		}
	}
	return false
}
