package match

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/3leaps/batchlog/pkg/event"
	"github.com/3leaps/batchlog/pkg/jobstate"
)

// Filter evaluates whether a job record passes filter criteria.
type Filter interface {
	// Match returns true if the job passes the filter.
	Match(rec *jobstate.JobRecord) bool

	// String returns a human-readable description of the filter.
	String() string
}

// FilterConfig holds job query criteria from query parameters or CLI flags.
type FilterConfig struct {
	// Queue, User, Host and Group are glob patterns. A job passes a field
	// when any pattern matches; Host passes when any execution host matches.
	Queue []string `json:"queue,omitempty" yaml:"queue,omitempty"`
	User  []string `json:"user,omitempty" yaml:"user,omitempty"`
	Host  []string `json:"host,omitempty" yaml:"host,omitempty"`
	Group []string `json:"group,omitempty" yaml:"group,omitempty"`

	// Status lists accepted status names such as "RUN" or "EXIT".
	Status []string `json:"status,omitempty" yaml:"status,omitempty"`

	// Submitted and Ended constrain the submit and end times.
	Submitted *DateFilterConfig `json:"submitted,omitempty" yaml:"submitted,omitempty"`
	Ended     *DateFilterConfig `json:"ended,omitempty" yaml:"ended,omitempty"`

	// Mem constrains the peak memory reported for the job.
	Mem *SizeFilterConfig `json:"mem,omitempty" yaml:"mem,omitempty"`

	// NameRegex is applied to the job name.
	NameRegex string `json:"name_regex,omitempty" yaml:"name_regex,omitempty"`
}

// SizeFilterConfig specifies size constraints.
type SizeFilterConfig struct {
	// Min is the minimum size (inclusive). Supports human-readable: "1KB", "100MiB".
	Min string `json:"min,omitempty" yaml:"min,omitempty"`

	// Max is the maximum size (inclusive). Supports human-readable: "1GB", "100MiB".
	Max string `json:"max,omitempty" yaml:"max,omitempty"`
}

// DateFilterConfig specifies date range constraints.
type DateFilterConfig struct {
	// After is an exclusive lower bound.
	// Supports ISO 8601: "2024-01-15" or "2024-01-15T10:30:00Z".
	After string `json:"after,omitempty" yaml:"after,omitempty"`

	// Before is an exclusive upper bound.
	Before string `json:"before,omitempty" yaml:"before,omitempty"`
}

// Filter errors.
var (
	ErrInvalidSize   = errors.New("invalid size value")
	ErrInvalidDate   = errors.New("invalid date value")
	ErrInvalidRegex  = errors.New("invalid regex pattern")
	ErrInvalidStatus = errors.New("invalid job status")
)

// FieldFilter matches one string field of a job against glob patterns.
type FieldFilter struct {
	field   string
	matcher *Matcher
	values  func(rec *jobstate.JobRecord) []string
}

var fields = map[string]func(rec *jobstate.JobRecord) []string{
	"queue": func(rec *jobstate.JobRecord) []string { return []string{rec.Queue} },
	"user":  func(rec *jobstate.JobRecord) []string { return []string{rec.User} },
	"host":  func(rec *jobstate.JobRecord) []string { return rec.ExecHosts },
	"group": func(rec *jobstate.JobRecord) []string { return []string{rec.JobGroup} },
}

// NewFieldFilter creates a glob filter on field ("queue", "user", "host" or
// "group"). Returns nil if patterns is empty.
func NewFieldFilter(field string, patterns []string) (*FieldFilter, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	values, ok := fields[field]
	if !ok {
		return nil, fmt.Errorf("unknown job field %q", field)
	}
	m, err := New(Config{Includes: patterns})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return &FieldFilter{field: field, matcher: m, values: values}, nil
}

// Match returns true if any value of the field matches.
func (f *FieldFilter) Match(rec *jobstate.JobRecord) bool {
	return f.matcher.MatchAny(f.values(rec))
}

// String returns a human-readable description.
func (f *FieldFilter) String() string {
	return fmt.Sprintf("%s: %s", f.field, strings.Join(f.matcher.IncludePatterns(), "|"))
}

// StatusFilter accepts jobs in one of a set of states.
type StatusFilter struct {
	statuses []event.Status
}

// NewStatusFilter creates a status filter from status names.
// Returns nil if names is empty.
func NewStatusFilter(names []string) (*StatusFilter, error) {
	if len(names) == 0 {
		return nil, nil
	}
	f := &StatusFilter{}
	for _, n := range names {
		s, ok := event.ParseStatus(strings.ToUpper(strings.TrimSpace(n)))
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, n)
		}
		if !slices.Contains(f.statuses, s) {
			f.statuses = append(f.statuses, s)
		}
	}
	return f, nil
}

// Match returns true if the job status is in the set.
func (f *StatusFilter) Match(rec *jobstate.JobRecord) bool {
	return slices.Contains(f.statuses, rec.Status)
}

// String returns a human-readable description.
func (f *StatusFilter) String() string {
	parts := make([]string, len(f.statuses))
	for i, s := range f.statuses {
		parts[i] = s.String()
	}
	return "status: " + strings.Join(parts, "|")
}

// SizeFilter filters jobs by peak memory.
type SizeFilter struct {
	min int64 // -1 means no minimum
	max int64 // -1 means no maximum
}

// NewSizeFilter creates a memory filter from config.
// Returns nil if no size constraints are specified.
func NewSizeFilter(cfg *SizeFilterConfig) (*SizeFilter, error) {
	if cfg == nil {
		return nil, nil
	}

	f := &SizeFilter{min: -1, max: -1}

	if cfg.Min != "" {
		size, err := ParseSize(cfg.Min)
		if err != nil {
			return nil, fmt.Errorf("min size: %w", err)
		}
		f.min = size
	}

	if cfg.Max != "" {
		size, err := ParseSize(cfg.Max)
		if err != nil {
			return nil, fmt.Errorf("max size: %w", err)
		}
		f.max = size
	}

	if f.min >= 0 && f.max >= 0 && f.min > f.max {
		return nil, fmt.Errorf("%w: min (%d) > max (%d)", ErrInvalidSize, f.min, f.max)
	}

	return f, nil
}

// Match returns true if peak memory is within the configured range. Job
// memory is reported in kilobytes.
func (f *SizeFilter) Match(rec *jobstate.JobRecord) bool {
	mem := int64(rec.MaxMem) * KiB
	if f.min >= 0 && mem < f.min {
		return false
	}
	if f.max >= 0 && mem > f.max {
		return false
	}
	return true
}

// String returns a human-readable description.
func (f *SizeFilter) String() string {
	switch {
	case f.min >= 0 && f.max >= 0:
		return fmt.Sprintf("mem: %s - %s", FormatSize(f.min), FormatSize(f.max))
	case f.min >= 0:
		return fmt.Sprintf("mem: >= %s", FormatSize(f.min))
	case f.max >= 0:
		return fmt.Sprintf("mem: <= %s", FormatSize(f.max))
	default:
		return "mem: any"
	}
}

// DateFilter filters jobs by one of their timestamps.
type DateFilter struct {
	label  string
	at     func(rec *jobstate.JobRecord) *time.Time
	after  time.Time // zero means no after constraint
	before time.Time // zero means no before constraint
}

// NewSubmittedFilter filters on submit time.
func NewSubmittedFilter(cfg *DateFilterConfig) (*DateFilter, error) {
	return newDateFilter("submitted", func(rec *jobstate.JobRecord) *time.Time { return rec.SubmitTime }, cfg)
}

// NewEndedFilter filters on end time. Jobs that have not ended never match.
func NewEndedFilter(cfg *DateFilterConfig) (*DateFilter, error) {
	return newDateFilter("ended", func(rec *jobstate.JobRecord) *time.Time { return rec.EndTime }, cfg)
}

func newDateFilter(label string, at func(rec *jobstate.JobRecord) *time.Time, cfg *DateFilterConfig) (*DateFilter, error) {
	if cfg == nil {
		return nil, nil
	}

	f := &DateFilter{label: label, at: at}

	if cfg.After != "" {
		t, err := ParseDate(cfg.After)
		if err != nil {
			return nil, fmt.Errorf("after date: %w", err)
		}
		f.after = t
	}

	if cfg.Before != "" {
		t, err := ParseDate(cfg.Before)
		if err != nil {
			return nil, fmt.Errorf("before date: %w", err)
		}
		f.before = t
	}

	if !f.after.IsZero() && !f.before.IsZero() && !f.after.Before(f.before) {
		return nil, fmt.Errorf("%w: after (%s) >= before (%s)", ErrInvalidDate, f.after, f.before)
	}

	return f, nil
}

// Match returns true if the timestamp is set and within range.
func (f *DateFilter) Match(rec *jobstate.JobRecord) bool {
	t := f.at(rec)
	if t == nil {
		return false
	}
	if !f.after.IsZero() && !t.After(f.after) {
		return false
	}
	if !f.before.IsZero() && !t.Before(f.before) {
		return false
	}
	return true
}

// String returns a human-readable description.
func (f *DateFilter) String() string {
	switch {
	case !f.after.IsZero() && !f.before.IsZero():
		return fmt.Sprintf("%s: %s to %s", f.label, f.after.Format(time.RFC3339), f.before.Format(time.RFC3339))
	case !f.after.IsZero():
		return fmt.Sprintf("%s: after %s", f.label, f.after.Format(time.RFC3339))
	case !f.before.IsZero():
		return fmt.Sprintf("%s: before %s", f.label, f.before.Format(time.RFC3339))
	default:
		return f.label + ": any"
	}
}

// RegexFilter filters jobs by name.
type RegexFilter struct {
	pattern *regexp.Regexp
	raw     string
}

// NewRegexFilter creates a regex filter from pattern string.
// Returns nil if pattern is empty.
func NewRegexFilter(pattern string) (*RegexFilter, error) {
	if pattern == "" {
		return nil, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegex, err)
	}

	return &RegexFilter{pattern: re, raw: pattern}, nil
}

// Match returns true if the job name matches the regex.
func (f *RegexFilter) Match(rec *jobstate.JobRecord) bool {
	return f.pattern.MatchString(rec.JobName)
}

// String returns a human-readable description.
func (f *RegexFilter) String() string {
	return fmt.Sprintf("name_regex: %s", f.raw)
}

// CompositeFilter combines multiple filters with AND semantics.
type CompositeFilter struct {
	filters []Filter
}

// NewCompositeFilter creates a composite filter from the given filters.
// Nil filters are ignored. Returns nil if no non-nil filters provided.
func NewCompositeFilter(filters ...Filter) *CompositeFilter {
	var nonNil []Filter
	for _, f := range filters {
		if f != nil {
			nonNil = append(nonNil, f)
		}
	}
	if len(nonNil) == 0 {
		return nil
	}
	return &CompositeFilter{filters: nonNil}
}

// NewFilterFromConfig creates a CompositeFilter from FilterConfig.
// Returns nil if no filters are configured.
func NewFilterFromConfig(cfg *FilterConfig) (*CompositeFilter, error) {
	if cfg == nil {
		return nil, nil
	}

	var filters []Filter

	// Glob filters
	for _, fc := range []struct {
		field    string
		patterns []string
	}{
		{"queue", cfg.Queue},
		{"user", cfg.User},
		{"host", cfg.Host},
		{"group", cfg.Group},
	} {
		f, err := NewFieldFilter(fc.field, fc.patterns)
		if err != nil {
			return nil, err
		}
		if f != nil {
			filters = append(filters, f)
		}
	}

	statusFilter, err := NewStatusFilter(cfg.Status)
	if err != nil {
		return nil, err
	}
	if statusFilter != nil {
		filters = append(filters, statusFilter)
	}

	// Date filters
	submitted, err := NewSubmittedFilter(cfg.Submitted)
	if err != nil {
		return nil, fmt.Errorf("submitted: %w", err)
	}
	if submitted != nil {
		filters = append(filters, submitted)
	}
	ended, err := NewEndedFilter(cfg.Ended)
	if err != nil {
		return nil, fmt.Errorf("ended: %w", err)
	}
	if ended != nil {
		filters = append(filters, ended)
	}

	sizeFilter, err := NewSizeFilter(cfg.Mem)
	if err != nil {
		return nil, err
	}
	if sizeFilter != nil {
		filters = append(filters, sizeFilter)
	}

	regexFilter, err := NewRegexFilter(cfg.NameRegex)
	if err != nil {
		return nil, err
	}
	if regexFilter != nil {
		filters = append(filters, regexFilter)
	}

	if len(filters) == 0 {
		return nil, nil
	}

	return &CompositeFilter{filters: filters}, nil
}

// Match returns true if all filters pass. A nil CompositeFilter matches
// every job.
func (f *CompositeFilter) Match(rec *jobstate.JobRecord) bool {
	if f == nil {
		return true
	}
	for _, filter := range f.filters {
		if !filter.Match(rec) {
			return false
		}
	}
	return true
}

// String returns a human-readable description.
func (f *CompositeFilter) String() string {
	if f == nil || len(f.filters) == 0 {
		return "no filters"
	}
	parts := make([]string, len(f.filters))
	for i, filter := range f.filters {
		parts[i] = filter.String()
	}
	return strings.Join(parts, ", ")
}

// Filters returns the underlying filters.
func (f *CompositeFilter) Filters() []Filter {
	if f == nil {
		return nil
	}
	return f.filters
}

// Size unit multipliers.
const (
	Byte int64 = 1

	// Base-10 (SI) units
	KB int64 = 1000
	MB int64 = 1000 * KB
	GB int64 = 1000 * MB
	TB int64 = 1000 * GB

	// Base-2 (IEC) units
	KiB int64 = 1024
	MiB int64 = 1024 * KiB
	GiB int64 = 1024 * MiB
	TiB int64 = 1024 * GiB
)

// ParseSize parses a human-readable size string.
//
// Supported formats:
//   - Raw bytes: "1024", "104857600"
//   - Base-10 (SI): "1KB", "100MB", "1GB" (1KB = 1000 bytes)
//   - Base-2 (IEC): "1KiB", "100MiB", "1GiB" (1KiB = 1024 bytes)
//   - Case insensitive: "1kb", "1KB", "1Kb" all work
//
// Note: KB/MB/GB use base-10 (SI standard), KiB/MiB/GiB use base-2 (IEC).
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidSize
	}

	// Find where the numeric part ends
	numEnd := 0
	for i, c := range s {
		if c >= '0' && c <= '9' || c == '.' {
			numEnd = i + 1
		} else {
			break
		}
	}

	if numEnd == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	numStr := s[:numEnd]
	unitStr := strings.TrimSpace(s[numEnd:])

	// Parse unit
	var multiplier int64
	switch strings.ToUpper(unitStr) {
	case "", "B":
		multiplier = Byte
	case "K", "KB":
		multiplier = KB
	case "M", "MB":
		multiplier = MB
	case "G", "GB":
		multiplier = GB
	case "T", "TB":
		multiplier = TB
	case "KI", "KIB":
		multiplier = KiB
	case "MI", "MIB":
		multiplier = MiB
	case "GI", "GIB":
		multiplier = GiB
	case "TI", "TIB":
		multiplier = TiB
	default:
		return 0, fmt.Errorf("%w: unknown unit %q", ErrInvalidSize, unitStr)
	}

	// Parse numeric part
	if strings.Contains(numStr, ".") {
		num, err := strconv.ParseFloat(numStr, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
		}
		if num < 0 {
			return 0, fmt.Errorf("%w: negative size", ErrInvalidSize)
		}
		if math.IsNaN(num) || math.IsInf(num, 0) {
			return 0, fmt.Errorf("%w: invalid number", ErrInvalidSize)
		}

		bytes := num * float64(multiplier)
		maxInt64Float := float64(int64(^uint64(0) >> 1))
		if bytes > maxInt64Float {
			return 0, fmt.Errorf("%w: size overflows int64", ErrInvalidSize)
		}

		return int64(bytes), nil
	}

	n, err := strconv.ParseUint(numStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	mult := uint64(multiplier)
	maxInt64 := ^uint64(0) >> 1
	if mult == 0 || n > maxInt64/mult {
		return 0, fmt.Errorf("%w: size overflows int64", ErrInvalidSize)
	}

	return int64(n * mult), nil
}

// FormatSize formats bytes as human-readable string using base-2 units.
func FormatSize(bytes int64) string {
	switch {
	case bytes >= TiB:
		return fmt.Sprintf("%.1fTiB", float64(bytes)/float64(TiB))
	case bytes >= GiB:
		return fmt.Sprintf("%.1fGiB", float64(bytes)/float64(GiB))
	case bytes >= MiB:
		return fmt.Sprintf("%.1fMiB", float64(bytes)/float64(MiB))
	case bytes >= KiB:
		return fmt.Sprintf("%.1fKiB", float64(bytes)/float64(KiB))
	default:
		return fmt.Sprintf("%dB", bytes)
	}
}

// ParseDate parses an ISO 8601 date or datetime string.
//
// Supported formats:
//   - Date only: "2024-01-15" (interpreted as start of day UTC)
//   - Datetime: "2024-01-15T10:30:00Z"
//   - Datetime with offset: "2024-01-15T10:30:00+05:00"
//
// All times are normalized to UTC for comparison.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidDate
	}

	// Try RFC3339 first (full datetime)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}

	// Try date-only format
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}

	// Try RFC3339Nano
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}
