package match

import (
	"errors"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher evaluates glob patterns against names such as queues, users,
// hosts and job group paths.
//
// A Matcher is configured with include and exclude patterns:
//   - Include patterns: the name must match at least one
//   - Exclude patterns: the name must not match any
//
// The Matcher is safe for concurrent use after creation.
type Matcher struct {
	includes []string
	excludes []string
}

// Config configures a Matcher.
type Config struct {
	// Includes are glob patterns a name must match (at least one).
	Includes []string

	// Excludes are glob patterns a name must not match (any).
	Excludes []string
}

// Errors returned by Matcher operations.
var (
	// ErrNoIncludes is returned when no include patterns are provided.
	ErrNoIncludes = errors.New("at least one include pattern is required")

	// ErrInvalidPattern is returned when a pattern cannot be compiled.
	ErrInvalidPattern = errors.New("invalid glob pattern")
)

// PatternError wraps pattern-related errors with context.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// New creates a new Matcher from the given configuration.
func New(cfg Config) (*Matcher, error) {
	if len(cfg.Includes) == 0 {
		return nil, ErrNoIncludes
	}
	includes, err := compile(cfg.Includes)
	if err != nil {
		return nil, err
	}
	excludes, err := compile(cfg.Excludes)
	if err != nil {
		return nil, err
	}
	return &Matcher{includes: includes, excludes: excludes}, nil
}

func compile(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if !doublestar.ValidatePattern(p) {
			return nil, &PatternError{Pattern: p, Err: ErrInvalidPattern}
		}
		out = append(out, p)
	}
	return out, nil
}

// Match returns true if name matches an include pattern and no exclude
// pattern.
func (m *Matcher) Match(name string) bool {
	matched := false
	for _, inc := range m.includes {
		if matchPattern(inc, name) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}

	for _, exc := range m.excludes {
		if matchPattern(exc, name) {
			return false
		}
	}
	return true
}

// MatchAny returns true if any of names matches.
func (m *Matcher) MatchAny(names []string) bool {
	for _, n := range names {
		if m.Match(n) {
			return true
		}
	}
	return false
}

// IncludePatterns returns the raw include patterns.
func (m *Matcher) IncludePatterns() []string {
	return append([]string(nil), m.includes...)
}

// ExcludePatterns returns the raw exclude patterns.
func (m *Matcher) ExcludePatterns() []string {
	return append([]string(nil), m.excludes...)
}

// matchPattern matches a name against a doublestar pattern.
func matchPattern(pattern, name string) bool {
	matched, err := doublestar.Match(pattern, name)
	if err != nil {
		// Validated in New.
		return false
	}
	return matched
}
