package lsberr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/3leaps/batchlog/pkg/event"
	"github.com/3leaps/batchlog/pkg/jobid"
)

// Coder is implemented by errors that carry their own LSBE code.
type Coder interface {
	LSBCode() Code
}

// Error attaches a code and operation to an underlying error.
type Error struct {
	Code Code
	Op   string
	Err  error
}

// New returns an *Error for op.
func New(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code.Text(), e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Code.Text())
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code.Text(), e.Err)
	default:
		return e.Code.Text()
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) LSBCode() Code { return e.Code }

// Classify maps err to an LSBE code. Errors that carry a code win; the rest
// are mapped by kind, and anything unrecognised is SysCall.
func Classify(err error) Code {
	if err == nil {
		return NoError
	}
	var c Coder
	if errors.As(err, &c) {
		return c.LSBCode()
	}

	switch {
	case errors.Is(err, event.ErrBadEventType):
		return UnknownEvent
	case errors.Is(err, event.ErrUnsupportedVersion):
		return Protocol
	case errors.Is(err, event.ErrTruncated), errors.Is(err, event.ErrMalformed):
		return EventFormat
	case errors.Is(err, jobid.ErrInvalid):
		return BadJob
	case errors.Is(err, context.DeadlineExceeded):
		return TimeOut
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return EOF
	case errors.Is(err, os.ErrPermission):
		return Permission
	}
	return SysCall
}
