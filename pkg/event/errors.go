package event

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncated means a required field was missing.
	ErrTruncated = errors.New("truncated record")

	// ErrBadEventType means the event type is not in the catalog.
	ErrBadEventType = errors.New("bad event type")

	// ErrUnsupportedVersion means no layout exists for the record version.
	ErrUnsupportedVersion = errors.New("unsupported version")

	// ErrMalformed means a field could not be parsed or encoded.
	ErrMalformed = errors.New("malformed record")
)

// CodecError describes why a record could not be encoded or decoded.
// Kind is one of the sentinel errors above.
type CodecError struct {
	Kind  error
	Type  Type
	Field string
	Err   error
}

func (e *CodecError) Error() string {
	msg := "event codec: " + e.Kind.Error()
	if e.Type != 0 {
		msg += fmt.Sprintf(" (%s)", e.Type)
	}
	if e.Field != "" {
		msg += ": field " + e.Field
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CodecError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsCodecError reports whether err is or wraps a *CodecError.
func IsCodecError(err error) bool {
	var ce *CodecError
	return errors.As(err, &ce)
}

// Fatal reports whether a codec error means no record of this stream can be
// trusted, as opposed to a single bad line.
func Fatal(err error) bool {
	return errors.Is(err, ErrUnsupportedVersion)
}
