package match

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/batchlog/pkg/event"
	"github.com/3leaps/batchlog/pkg/jobid"
	"github.com/3leaps/batchlog/pkg/jobstate"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		// Raw bytes
		{name: "raw bytes", input: "1024", want: 1024},
		{name: "zero bytes", input: "0", want: 0},
		{name: "large bytes", input: "104857600", want: 104857600},

		// Base-10 (SI) units
		{name: "KB lowercase", input: "1kb", want: 1000},
		{name: "KB uppercase", input: "1KB", want: 1000},
		{name: "MB", input: "100MB", want: 100 * 1000 * 1000},
		{name: "GB", input: "1GB", want: 1000 * 1000 * 1000},
		{name: "TB", input: "2TB", want: 2 * 1000 * 1000 * 1000 * 1000},

		// Base-2 (IEC) units
		{name: "KiB", input: "1KiB", want: 1024},
		{name: "MiB", input: "100MiB", want: 100 * 1024 * 1024},
		{name: "GiB", input: "1GiB", want: 1024 * 1024 * 1024},
		{name: "TiB", input: "1TiB", want: 1024 * 1024 * 1024 * 1024},

		// Shorthand units
		{name: "K shorthand", input: "1K", want: 1000},
		{name: "M shorthand", input: "1M", want: 1000 * 1000},
		{name: "G shorthand", input: "1G", want: 1000 * 1000 * 1000},

		// Decimal values
		{name: "decimal KB", input: "1.5KB", want: 1500},
		{name: "decimal MiB", input: "2.5MiB", want: int64(2.5 * 1024 * 1024)},

		// With spaces
		{name: "space before unit", input: "100 MB", want: 100 * 1000 * 1000},
		{name: "leading space", input: " 100MB", want: 100 * 1000 * 1000},
		{name: "trailing space", input: "100MB ", want: 100 * 1000 * 1000},

		// B suffix
		{name: "explicit bytes", input: "1024B", want: 1024},

		// Error cases
		{name: "empty string", input: "", wantErr: true},
		{name: "negative", input: "-100", wantErr: true},
		{name: "negative with unit", input: "-1KB", wantErr: true},
		{name: "overflow raw bytes", input: "9223372036854775808", wantErr: true},
		{name: "overflow with unit", input: "1000000000000000000000TB", wantErr: true},
		{name: "invalid unit", input: "100XB", wantErr: true},
		{name: "no number", input: "KB", wantErr: true},
		{name: "garbage", input: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0B"},
		{100, "100B"},
		{1023, "1023B"},
		{1024, "1.0KiB"},
		{1536, "1.5KiB"},
		{1024 * 1024, "1.0MiB"},
		{1024 * 1024 * 1024, "1.0GiB"},
		{1024 * 1024 * 1024 * 1024, "1.0TiB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := FormatSize(tt.bytes)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{
			name:  "date only",
			input: "2024-01-15",
			want:  time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "datetime UTC",
			input: "2024-01-15T10:30:00Z",
			want:  time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		},
		{
			name:  "datetime with offset",
			input: "2024-01-15T10:30:00+05:00",
			want:  time.Date(2024, 1, 15, 5, 30, 0, 0, time.UTC), // normalized to UTC
		},
		{
			name:  "datetime with nanoseconds",
			input: "2024-01-15T10:30:00.123456789Z",
			want:  time.Date(2024, 1, 15, 10, 30, 0, 123456789, time.UTC),
		},
		{
			name:  "with leading space",
			input: " 2024-01-15",
			want:  time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
		{
			name:    "invalid format",
			input:   "01-15-2024",
			wantErr: true,
		},
		{
			name:    "garbage",
			input:   "not a date",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %v, got %v", tt.want, got)
		})
	}
}

func at(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func sampleJob() *jobstate.JobRecord {
	return &jobstate.JobRecord{
		ID:         jobid.New(101, 0),
		Status:     event.StatusRunning,
		Queue:      "normal",
		User:       "alice",
		JobName:    "nightly-etl",
		JobGroup:   "/etl/nightly",
		ExecHosts:  []string{"node01", "node02"},
		MaxMem:     2 * 1024 * 1024, // 2 GiB in KB
		SubmitTime: at("2024-06-15T12:00:00Z"),
	}
}

func TestFieldFilter(t *testing.T) {
	rec := sampleJob()
	tests := []struct {
		name     string
		field    string
		patterns []string
		want     bool
	}{
		{"queue exact", "queue", []string{"normal"}, true},
		{"queue glob", "queue", []string{"norm*"}, true},
		{"queue miss", "queue", []string{"short"}, false},
		{"queue alternatives", "queue", []string{"short", "normal"}, true},
		{"user", "user", []string{"a?ice"}, true},
		{"host any", "host", []string{"node02"}, true},
		{"host class", "host", []string{"node0[3-9]"}, false},
		{"group path", "group", []string{"/etl/**"}, true},
		{"group single segment", "group", []string{"/etl/*"}, true},
		{"group other", "group", []string{"/ml/**"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFieldFilter(tt.field, tt.patterns)
			require.NoError(t, err)
			require.NotNil(t, f)
			assert.Equal(t, tt.want, f.Match(rec))
		})
	}
}

func TestFieldFilter_Errors(t *testing.T) {
	f, err := NewFieldFilter("queue", nil)
	require.NoError(t, err)
	assert.Nil(t, f)

	_, err = NewFieldFilter("project", []string{"x"})
	assert.Error(t, err)

	_, err = NewFieldFilter("queue", []string{"[bad"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPattern))
}

func TestStatusFilter(t *testing.T) {
	rec := sampleJob()

	f, err := NewStatusFilter([]string{"run", " PEND "})
	require.NoError(t, err)
	assert.True(t, f.Match(rec))
	assert.Equal(t, "status: RUN|PEND", f.String())

	rec.Status = event.StatusDone
	assert.False(t, f.Match(rec))

	_, err = NewStatusFilter([]string{"RUNNING"})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	f, err = NewStatusFilter(nil)
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestSizeFilter(t *testing.T) {
	rec := sampleJob()
	tests := []struct {
		name    string
		cfg     *SizeFilterConfig
		want    bool
		wantErr bool
	}{
		{name: "min pass", cfg: &SizeFilterConfig{Min: "1GiB"}, want: true},
		{name: "min fail", cfg: &SizeFilterConfig{Min: "3GiB"}, want: false},
		{name: "max pass", cfg: &SizeFilterConfig{Max: "4GB"}, want: true},
		{name: "max fail", cfg: &SizeFilterConfig{Max: "1GB"}, want: false},
		{name: "exact boundary", cfg: &SizeFilterConfig{Min: "2GiB", Max: "2GiB"}, want: true},
		{name: "min > max", cfg: &SizeFilterConfig{Min: "4GiB", Max: "1GiB"}, wantErr: true},
		{name: "invalid", cfg: &SizeFilterConfig{Min: "lots"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewSizeFilter(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, f)
			assert.Equal(t, tt.want, f.Match(rec))
		})
	}
}

func TestDateFilter(t *testing.T) {
	rec := sampleJob()
	tests := []struct {
		name    string
		cfg     *DateFilterConfig
		want    bool
		wantErr bool
	}{
		{name: "after pass", cfg: &DateFilterConfig{After: "2024-01-01"}, want: true},
		{name: "after fail", cfg: &DateFilterConfig{After: "2024-12-01"}, want: false},
		{name: "after exclusive", cfg: &DateFilterConfig{After: "2024-06-15T12:00:00Z"}, want: false},
		{name: "before pass", cfg: &DateFilterConfig{Before: "2024-12-01"}, want: true},
		{name: "before exclusive", cfg: &DateFilterConfig{Before: "2024-06-15T12:00:00Z"}, want: false},
		{name: "range", cfg: &DateFilterConfig{After: "2024-06-01", Before: "2024-07-01"}, want: true},
		{name: "inverted range", cfg: &DateFilterConfig{After: "2024-07-01", Before: "2024-06-01"}, wantErr: true},
		{name: "bad date", cfg: &DateFilterConfig{After: "yesterday"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewSubmittedFilter(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Match(rec))
		})
	}
}

func TestEndedFilter_Unfinished(t *testing.T) {
	f, err := NewEndedFilter(&DateFilterConfig{After: "2000-01-01"})
	require.NoError(t, err)

	rec := sampleJob()
	assert.False(t, f.Match(rec))

	rec.EndTime = at("2024-06-16T00:00:00Z")
	assert.True(t, f.Match(rec))
}

func TestRegexFilter(t *testing.T) {
	f, err := NewRegexFilter(`^nightly-`)
	require.NoError(t, err)
	assert.True(t, f.Match(sampleJob()))
	assert.Equal(t, "name_regex: ^nightly-", f.String())

	_, err = NewRegexFilter(`(`)
	assert.ErrorIs(t, err, ErrInvalidRegex)

	f, err = NewRegexFilter("")
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestNewFilterFromConfig(t *testing.T) {
	rec := sampleJob()

	f, err := NewFilterFromConfig(nil)
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.True(t, f.Match(rec), "nil composite matches everything")

	f, err = NewFilterFromConfig(&FilterConfig{})
	require.NoError(t, err)
	assert.Nil(t, f)

	f, err = NewFilterFromConfig(&FilterConfig{
		Queue:     []string{"normal"},
		Host:      []string{"node*"},
		Status:    []string{"RUN"},
		Submitted: &DateFilterConfig{After: "2024-01-01"},
		NameRegex: "etl",
	})
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Len(t, f.Filters(), 5)
	assert.True(t, f.Match(rec))
	assert.Equal(t, "queue: normal, host: node*, status: RUN, submitted: after 2024-01-01T00:00:00Z, name_regex: etl", f.String())

	rec.User = "bob"
	f, err = NewFilterFromConfig(&FilterConfig{User: []string{"alice"}, Queue: []string{"normal"}})
	require.NoError(t, err)
	assert.False(t, f.Match(rec))
}

func TestNewFilterFromConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  FilterConfig
	}{
		{"bad glob", FilterConfig{User: []string{"[x"}}},
		{"bad status", FilterConfig{Status: []string{"ZOMBIE"}}},
		{"bad date", FilterConfig{Ended: &DateFilterConfig{Before: "soon"}}},
		{"bad size", FilterConfig{Mem: &SizeFilterConfig{Max: "1XB"}}},
		{"bad regex", FilterConfig{NameRegex: "[a-"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFilterFromConfig(&tt.cfg)
			assert.Error(t, err)
			assert.Nil(t, f)
		})
	}
}
