// Package reason is the catalog of pending, suspending, and exit reason codes.
//
// The catalog is data, not logic: every code lives in catalog.yaml and is
// resolved through Lookup. Pending and suspending codes share a numeric space
// (suspending codes are bit flags), so lookups are always keyed by Kind.
package reason

import (
	_ "embed"
	"errors"
	"fmt"
	"math/bits"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// ErrUnknownReason is returned when a code is not registered.
var ErrUnknownReason = errors.New("unknown reason")

// Kind selects which reason space a code belongs to.
type Kind string

const (
	Pending    Kind = "pending"
	Suspending Kind = "suspending"
)

// Band names a contiguous range of pending reason codes.
type Band struct {
	Name string `yaml:"name" json:"name"`
	Min  int    `yaml:"min" json:"min"`
	Max  int    `yaml:"max" json:"max"`
}

// Contains reports whether code falls inside the band.
func (b Band) Contains(code int) bool {
	return code >= b.Min && code <= b.Max
}

// Descriptor describes one reason code.
type Descriptor struct {
	Code      int    `json:"code"`
	Name      string `json:"name"`
	Text      string `json:"text"`
	Band      string `json:"band"`
	AppliesTo Kind   `json:"applies_to"`

	// LoadSubreasons marks reasons whose subreason mask names load indices.
	LoadSubreasons bool `json:"load_subreasons,omitempty"`
	// LimitSubreasons marks reasons whose subreason mask names resource limits.
	LimitSubreasons bool `json:"limit_subreasons,omitempty"`
}

// Subreason is one resolved bit of a subreason mask.
type Subreason struct {
	Bit  uint   `yaml:"bit" json:"bit"`
	Name string `yaml:"name" json:"name"`
	Text string `yaml:"text" json:"text"`
}

type entry struct {
	Code   int    `yaml:"code"`
	Name   string `yaml:"name"`
	Text   string `yaml:"text"`
	Load   bool   `yaml:"load"`
	Limits bool   `yaml:"limits"`
}

type catalogFile struct {
	Bands          []Band      `yaml:"bands"`
	Pending        []entry     `yaml:"pending"`
	Suspending     []entry     `yaml:"suspending"`
	LoadIndices    []Subreason `yaml:"load_indices"`
	ResourceLimits []Subreason `yaml:"resource_limits"`
	ExitReasons    []entry     `yaml:"exit_reasons"`
	TermReasons    []entry     `yaml:"term_reasons"`
}

type catalog struct {
	bands       []Band
	pending     map[int]Descriptor
	suspending  map[int]Descriptor
	loadIndices map[uint]Subreason
	limits      map[uint]Subreason
	exits       map[int]entry
	terms       map[int]entry
}

var (
	loadOnce sync.Once
	loaded   *catalog
)

func get() *catalog {
	loadOnce.Do(func() {
		c, err := parseCatalog(catalogYAML)
		if err != nil {
			panic(fmt.Sprintf("reason: embedded catalog: %v", err))
		}
		loaded = c
	})
	return loaded
}

func parseCatalog(data []byte) (*catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	sort.Slice(f.Bands, func(i, j int) bool { return f.Bands[i].Min < f.Bands[j].Min })
	for i := 1; i < len(f.Bands); i++ {
		if f.Bands[i].Min <= f.Bands[i-1].Max {
			return nil, fmt.Errorf("band %s overlaps %s", f.Bands[i].Name, f.Bands[i-1].Name)
		}
	}

	c := &catalog{
		bands:       f.Bands,
		pending:     make(map[int]Descriptor, len(f.Pending)),
		suspending:  make(map[int]Descriptor, len(f.Suspending)),
		loadIndices: make(map[uint]Subreason, len(f.LoadIndices)),
		limits:      make(map[uint]Subreason, len(f.ResourceLimits)),
		exits:       make(map[int]entry, len(f.ExitReasons)),
		terms:       make(map[int]entry, len(f.TermReasons)),
	}

	for _, e := range f.Pending {
		band, ok := c.bandOf(e.Code)
		if !ok {
			return nil, fmt.Errorf("pending reason %s (%d) is outside every band", e.Name, e.Code)
		}
		if _, dup := c.pending[e.Code]; dup {
			return nil, fmt.Errorf("duplicate pending reason %d", e.Code)
		}
		c.pending[e.Code] = Descriptor{
			Code: e.Code, Name: e.Name, Text: e.Text, Band: band.Name, AppliesTo: Pending,
			LoadSubreasons: e.Load, LimitSubreasons: e.Limits,
		}
	}
	for _, e := range f.Suspending {
		if bits.OnesCount(uint(e.Code)) != 1 {
			return nil, fmt.Errorf("suspending reason %s is not a single flag", e.Name)
		}
		if _, dup := c.suspending[e.Code]; dup {
			return nil, fmt.Errorf("duplicate suspending reason %#x", e.Code)
		}
		c.suspending[e.Code] = Descriptor{
			Code: e.Code, Name: e.Name, Text: e.Text, Band: "suspend", AppliesTo: Suspending,
			LoadSubreasons: e.Load, LimitSubreasons: e.Limits,
		}
	}
	for _, s := range f.LoadIndices {
		c.loadIndices[s.Bit] = s
	}
	for _, s := range f.ResourceLimits {
		c.limits[s.Bit] = s
	}
	for _, e := range f.ExitReasons {
		c.exits[e.Code] = e
	}
	for _, e := range f.TermReasons {
		c.terms[e.Code] = e
	}
	return c, nil
}

func (c *catalog) bandOf(code int) (Band, bool) {
	for _, b := range c.bands {
		if b.Contains(code) {
			return b, true
		}
	}
	return Band{}, false
}

// Bands returns the pending reason bands in ascending order.
func Bands() []Band {
	c := get()
	out := make([]Band, len(c.bands))
	copy(out, c.bands)
	return out
}

// BandOf returns the band a pending code belongs to.
func BandOf(code int) (Band, bool) {
	return get().bandOf(code)
}

// Lookup resolves a reason code of the given kind.
//
// Pending codes in the load band resolve to the load threshold reason for the
// encoded index. Codes in the customer band resolve to a generic descriptor.
// Everything else must be registered.
func Lookup(kind Kind, code int) (Descriptor, error) {
	c := get()
	switch kind {
	case Pending:
		if d, ok := c.pending[code]; ok {
			return d, nil
		}
		band, ok := c.bandOf(code)
		if !ok {
			break
		}
		switch band.Name {
		case "load":
			base := c.pending[band.Min]
			idx := uint(code - band.Min)
			if s, ok := c.loadIndices[idx]; ok {
				base.Code = code
				base.Text = fmt.Sprintf("%s: %s", base.Text, s.Text)
				return base, nil
			}
		case "customer":
			return Descriptor{
				Code:      code,
				Name:      "PEND_CUSTOMER",
				Text:      fmt.Sprintf("Customized pending reason %d", code),
				Band:      band.Name,
				AppliesTo: Pending,
			}, nil
		}
	case Suspending:
		if d, ok := c.suspending[code]; ok {
			return d, nil
		}
	default:
		return Descriptor{}, fmt.Errorf("%w: kind %q", ErrUnknownReason, kind)
	}
	return Descriptor{}, fmt.Errorf("%w: %s %d", ErrUnknownReason, kind, code)
}

// SuspendFlags resolves each bit of a suspending reason mask. Unregistered
// bits are returned in unknown.
func SuspendFlags(mask int) (flags []Descriptor, unknown int) {
	c := get()
	for m := uint(mask); m != 0; m &= m - 1 {
		bit := int(m & -m)
		if d, ok := c.suspending[bit]; ok {
			flags = append(flags, d)
		} else {
			unknown |= bit
		}
	}
	return flags, unknown
}

// LoadIndex returns the load index for bit i.
func LoadIndex(i uint) (Subreason, bool) {
	s, ok := get().loadIndices[i]
	return s, ok
}

// ResolveSubreasons resolves each set bit of a subreason mask against the
// table the descriptor selects. Bits with no entry are returned in unknown.
func ResolveSubreasons(d Descriptor, mask uint32) (subs []Subreason, unknown uint32) {
	c := get()
	var table map[uint]Subreason
	switch {
	case d.LoadSubreasons:
		table = c.loadIndices
	case d.LimitSubreasons:
		table = c.limits
	default:
		return nil, mask
	}
	for m := mask; m != 0; m &= m - 1 {
		bit := uint(bits.TrailingZeros32(m))
		if s, ok := table[bit]; ok {
			subs = append(subs, s)
		} else {
			unknown |= 1 << bit
		}
	}
	return subs, unknown
}

// ExitReason is the recorded terminal cause of a job.
type ExitReason int32

const (
	ExitNormal           ExitReason = 0
	ExitRestart          ExitReason = 0x1
	ExitZombie           ExitReason = 0x2
	FinishPend           ExitReason = 0x4
	ExitKillZombie       ExitReason = 0x8
	ExitZombieJob        ExitReason = 0x10
	ExitRerun            ExitReason = 0x20
	ExitNoMapping        ExitReason = 0x40
	ExitRemotePermission ExitReason = 0x80
	ExitInitEnviron      ExitReason = 0x100
	ExitPreExec          ExitReason = 0x200
	ExitRequeue          ExitReason = 0x400
	ExitRemove           ExitReason = 0x800
	ExitValueRequeue     ExitReason = 0x1000
	ExitCancel           ExitReason = 0x2000
	ExitMedKilled        ExitReason = 0x4000
	ExitRemoteLeaseJob   ExitReason = 0x8000
	ExitCwdNotExist      ExitReason = 0x10000
)

// String returns the historical constant name.
func (e ExitReason) String() string {
	if x, ok := get().exits[int(e)]; ok {
		return x.Name
	}
	return fmt.Sprintf("EXIT_%#x", int(e))
}

// Text returns a human readable description.
func (e ExitReason) Text() string {
	if x, ok := get().exits[int(e)]; ok {
		return x.Text
	}
	return "Unknown exit reason"
}

// Known reports whether the exit reason is registered.
func (e ExitReason) Known() bool {
	_, ok := get().exits[int(e)]
	return ok
}

// TermReason describes a TERM_* code recorded with finished jobs.
type TermReason struct {
	Code int    `json:"code"`
	Name string `json:"name"`
	Text string `json:"text"`
}

// LookupTerm resolves a TERM_* code.
func LookupTerm(code int) (TermReason, error) {
	x, ok := get().terms[code]
	if !ok {
		return TermReason{}, fmt.Errorf("%w: term %d", ErrUnknownReason, code)
	}
	return TermReason{Code: x.Code, Name: x.Name, Text: x.Text}, nil
}
