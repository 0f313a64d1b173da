package match

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		wantErr     error
		wantErrType interface{}
	}{
		{
			name: "valid single include",
			cfg:  Config{Includes: []string{"normal"}},
		},
		{
			name: "valid with excludes",
			cfg:  Config{Includes: []string{"*"}, Excludes: []string{"test-*"}},
		},
		{
			name:    "no includes",
			cfg:     Config{},
			wantErr: ErrNoIncludes,
		},
		{
			name:        "invalid include pattern",
			cfg:         Config{Includes: []string{"[invalid"}},
			wantErrType: &PatternError{},
		},
		{
			name:        "invalid exclude pattern",
			cfg:         Config{Includes: []string{"*"}, Excludes: []string{"[invalid"}},
			wantErrType: &PatternError{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(tt.cfg)
			switch {
			case tt.wantErr != nil:
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr))
				assert.Nil(t, m)
			case tt.wantErrType != nil:
				require.Error(t, err)
				assert.IsType(t, tt.wantErrType, err)
				assert.Nil(t, m)
			default:
				require.NoError(t, err)
				assert.NotNil(t, m)
			}
		})
	}
}

func TestMatcher_Match(t *testing.T) {
	tests := []struct {
		name     string
		includes []string
		excludes []string
		value    string
		expected bool
	}{
		{"exact", []string{"normal"}, nil, "normal", true},
		{"exact miss", []string{"normal"}, nil, "short", false},
		{"star", []string{"gpu*"}, nil, "gpu_a100", true},
		{"question", []string{"node0?"}, nil, "node07", true},
		{"class", []string{"node[0-4]*"}, nil, "node51", false},
		{"alternation", []string{"{short,long}"}, nil, "long", true},
		{"excluded", []string{"*"}, []string{"test-*"}, "test-queue", false},
		{"not excluded", []string{"*"}, []string{"test-*"}, "prod", true},
		{"star stops at slash", []string{"/proj/*"}, nil, "/proj/a/b", false},
		{"doublestar crosses slash", []string{"/proj/**"}, nil, "/proj/a/b", true},
		{"empty value", []string{"*"}, nil, "", true},
		{"multi include second", []string{"short", "night"}, nil, "night", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(Config{Includes: tt.includes, Excludes: tt.excludes})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, m.Match(tt.value))
		})
	}
}

func TestMatcher_MatchAny(t *testing.T) {
	m, err := New(Config{Includes: []string{"hostb*"}})
	require.NoError(t, err)

	assert.True(t, m.MatchAny([]string{"hosta1", "hostb2"}))
	assert.False(t, m.MatchAny([]string{"hosta1"}))
	assert.False(t, m.MatchAny(nil))
}

func TestMatcher_Patterns(t *testing.T) {
	m, err := New(Config{Includes: []string{"a*", "b*"}, Excludes: []string{"ab"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"a*", "b*"}, m.IncludePatterns())
	assert.Equal(t, []string{"ab"}, m.ExcludePatterns())
}

func TestPatternError(t *testing.T) {
	err := &PatternError{Pattern: "[invalid", Err: ErrInvalidPattern}

	assert.Equal(t, "pattern [invalid: invalid glob pattern", err.Error())
	assert.True(t, errors.Is(err, ErrInvalidPattern))
	assert.Equal(t, ErrInvalidPattern, err.Unwrap())
}

func BenchmarkMatcher_Match(b *testing.B) {
	m, _ := New(Config{
		Includes: []string{"gpu*", "night*"},
		Excludes: []string{"*-test"},
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Match("gpu_a100")
	}
}
