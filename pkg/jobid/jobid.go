// Package jobid models batch job identifiers.
//
// A job is identified by a base id and an array index. Non-array jobs have
// index 0. On the wire the pair is packed into a single 64-bit integer with
// the index in the high 32 bits and the base id in the low 32 bits; the
// value -1 is a reserved "no job" sentinel.
package jobid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// MaxArrayIndex is the largest index an array element can carry.
	MaxArrayIndex = 0xFFFF

	// DefaultCeiling is the default largest base id before ids wrap to 1.
	DefaultCeiling = 999999

	// MaxCeiling is the largest configurable ceiling.
	MaxCeiling = 2147483646

	// Sentinel is the packed value meaning "no job".
	Sentinel int64 = -1
)

// ErrInvalid is returned when a job id string or value cannot be used.
var ErrInvalid = errors.New("invalid job id")

// ID identifies a job or a job array element.
type ID struct {
	Base  int32 `json:"base"`
	Index int32 `json:"index"`
}

// New returns the ID for base and index.
func New(base, index int32) ID {
	return ID{Base: base, Index: index}
}

// IsArrayElement reports whether the id names an element of a job array.
func (id ID) IsArrayElement() bool {
	return id.Index > 0
}

// IsZero reports whether the id is unset.
func (id ID) IsZero() bool {
	return id.Base == 0 && id.Index == 0
}

// Packed returns the 64-bit wire form.
func (id ID) Packed() int64 {
	return Pack(id.Index, id.Base)
}

// String renders "123" or "123[4]".
func (id ID) String() string {
	if id.Index == 0 {
		return strconv.FormatInt(int64(id.Base), 10)
	}
	return fmt.Sprintf("%d[%d]", id.Base, id.Index)
}

// Less orders ids by base, then index.
func (id ID) Less(other ID) bool {
	if id.Base != other.Base {
		return id.Base < other.Base
	}
	return id.Index < other.Index
}

// Pack combines an array index and base id into the 64-bit wire form.
func Pack(index, base int32) int64 {
	return int64(uint64(uint32(base)) | uint64(uint32(index))<<32)
}

// Unpack splits a packed id into (index, base). Unpack(-1) is (0, -1).
func Unpack(packed int64) (index, base int32) {
	if packed == Sentinel {
		return 0, -1
	}
	u := uint64(packed)
	return int32(uint32(u >> 32)), int32(uint32(u))
}

// FromPacked returns the ID for a packed wire value.
func FromPacked(packed int64) ID {
	index, base := Unpack(packed)
	return ID{Base: base, Index: index}
}

// Parse accepts "123" and "123[4]".
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ID{}, fmt.Errorf("%w: empty", ErrInvalid)
	}

	baseStr, idxStr := s, ""
	if open := strings.IndexByte(s, '['); open >= 0 {
		if !strings.HasSuffix(s, "]") {
			return ID{}, fmt.Errorf("%w: %q", ErrInvalid, s)
		}
		baseStr = s[:open]
		idxStr = s[open+1 : len(s)-1]
	}

	base, err := strconv.ParseInt(baseStr, 10, 32)
	if err != nil || base <= 0 {
		return ID{}, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	id := ID{Base: int32(base)}
	if idxStr != "" {
		idx, err := strconv.ParseInt(idxStr, 10, 32)
		if err != nil || idx <= 0 || idx > MaxArrayIndex {
			return ID{}, fmt.Errorf("%w: %q", ErrInvalid, s)
		}
		id.Index = int32(idx)
	}
	return id, nil
}

// NextAfter returns the base id that follows last, wrapping to 1 once ceiling
// is exceeded. A ceiling outside (0, MaxCeiling] uses DefaultCeiling.
func NextAfter(last, ceiling int32) int32 {
	if ceiling <= 0 || ceiling > MaxCeiling {
		ceiling = DefaultCeiling
	}
	if last < 0 || last >= ceiling {
		return 1
	}
	return last + 1
}
