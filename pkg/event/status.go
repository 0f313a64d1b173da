package event

import (
	"encoding/json"
	"fmt"
)

// Status is the canonical job state. The wire form is a historical bit mask;
// translation happens only in this package.
type Status uint8

const (
	StatusNone Status = iota
	StatusPending
	StatusPendingSuspended
	StatusRunning
	StatusSystemSuspended
	StatusUserSuspended
	StatusDone
	StatusExited
	StatusUnknown
)

// Historical job status bits.
const (
	WirePend  int32 = 0x01
	WirePSusp int32 = 0x02
	WireRun   int32 = 0x04
	WireSSusp int32 = 0x08
	WireUSusp int32 = 0x10
	WireExit  int32 = 0x20
	WireDone  int32 = 0x40
	WirePDone int32 = 0x80
	WirePErr  int32 = 0x100
	WireWait  int32 = 0x200
	WireUnkwn int32 = 0x10000
)

// StatusFlags carries the modifier bits that accompany a status.
type StatusFlags struct {
	PostDone bool `json:"post_done,omitempty"`
	PostErr  bool `json:"post_err,omitempty"`
	Wait     bool `json:"wait,omitempty"`
}

var statusNames = [...]string{
	StatusNone:             "NULL",
	StatusPending:          "PEND",
	StatusPendingSuspended: "PSUSP",
	StatusRunning:          "RUN",
	StatusSystemSuspended:  "SSUSP",
	StatusUserSuspended:    "USUSP",
	StatusDone:             "DONE",
	StatusExited:           "EXIT",
	StatusUnknown:          "UNKWN",
}

var statusBits = [...]int32{
	StatusPending:          WirePend,
	StatusPendingSuspended: WirePSusp,
	StatusRunning:          WireRun,
	StatusSystemSuspended:  WireSSusp,
	StatusUserSuspended:    WireUSusp,
	StatusDone:             WireDone,
	StatusExited:           WireExit,
	StatusUnknown:          WireUnkwn,
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// ParseStatus resolves a status name such as "RUN".
func ParseStatus(name string) (Status, bool) {
	for i, n := range statusNames {
		if n == name {
			return Status(i), true
		}
	}
	return StatusNone, false
}

// Terminal reports whether s is DONE or EXIT.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusExited
}

// Suspended reports whether s is one of the suspended states.
func (s Status) Suspended() bool {
	return s == StatusPendingSuspended || s == StatusSystemSuspended || s == StatusUserSuspended
}

// Active reports whether the job holds an execution allocation.
func (s Status) Active() bool {
	return s == StatusRunning || s == StatusSystemSuspended || s == StatusUserSuspended
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	v, ok := ParseStatus(name)
	if !ok {
		return fmt.Errorf("unknown job status %q", name)
	}
	*s = v
	return nil
}

// StatusToWire returns the historical bit mask for s and f.
func StatusToWire(s Status, f StatusFlags) int32 {
	var v int32
	if s != StatusNone && int(s) < len(statusBits) {
		v = statusBits[s]
	}
	if f.PostDone {
		v |= WirePDone
	}
	if f.PostErr {
		v |= WirePErr
	}
	if f.Wait {
		v |= WireWait
	}
	return v
}

// StatusFromWire translates a historical bit mask. The UNKWN bit wins over
// any other state bit; otherwise exactly one state bit must be set.
func StatusFromWire(v int32) (Status, StatusFlags, error) {
	f := StatusFlags{
		PostDone: v&WirePDone != 0,
		PostErr:  v&WirePErr != 0,
		Wait:     v&WireWait != 0,
	}
	// UNKWN may be reported alongside the last known state bit.
	if v&WireUnkwn != 0 {
		return StatusUnknown, f, nil
	}

	state := v &^ (WirePDone | WirePErr | WireWait)
	if state == 0 {
		if v != 0 {
			return StatusNone, f, fmt.Errorf("status %#x carries flags without a state", v)
		}
		return StatusNone, f, nil
	}
	for s := StatusPending; s < StatusUnknown; s++ {
		if state == statusBits[s] {
			return s, f, nil
		}
	}
	return StatusNone, f, fmt.Errorf("status %#x is not a single state", v)
}
