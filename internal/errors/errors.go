// Package errors maps batchlog failures to the JSON error envelope served by
// the HTTP API and to the LSBE codes external collaborators expect.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/3leaps/batchlog/pkg/jobid"
	"github.com/3leaps/batchlog/pkg/lsberr"
	"github.com/3leaps/batchlog/pkg/match"
	"github.com/3leaps/batchlog/pkg/reason"
	"github.com/3leaps/batchlog/pkg/registry"
)

// Stable envelope codes.
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeConflict           = "CONFLICT"
	CodeInternal           = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeExternalService    = "EXTERNAL_SERVICE_ERROR"
)

// ErrNotFound marks lookups that found nothing.
var ErrNotFound = stderrors.New("not found")

// Envelope is the transport-neutral form of an API error.
type Envelope struct {
	Code          string                 `json:"code"`
	Message       string                 `json:"message"`
	Details       map[string]interface{} `json:"details,omitempty"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	LSBE          *LSBEInfo              `json:"lsbe,omitempty"`
}

// LSBEInfo names the historical error number behind a failure.
type LSBEInfo struct {
	Code int    `json:"code"`
	Name string `json:"name"`
	Text string `json:"text"`
}

// NewEnvelope creates an envelope with code and message.
func NewEnvelope(code, message string) *Envelope {
	return &Envelope{Code: code, Message: message}
}

// WithDetails merges details into the envelope.
func (e *Envelope) WithDetails(details map[string]interface{}) *Envelope {
	if len(details) == 0 {
		return e
	}
	if e.Details == nil {
		e.Details = make(map[string]interface{}, len(details))
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithCorrelationID sets the request correlation id.
func (e *Envelope) WithCorrelationID(id string) *Envelope {
	e.CorrelationID = id
	return e
}

// WithLSBE attaches an LSBE code. NoError is ignored.
func (e *Envelope) WithLSBE(code lsberr.Code) *Envelope {
	if code == lsberr.NoError {
		return e
	}
	e.LSBE = &LSBEInfo{Code: int(code), Name: code.String(), Text: code.Text()}
	return e
}

// AppError is an error with a fixed HTTP status and envelope.
type AppError struct {
	Status   int
	Envelope *Envelope
	Err      error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Envelope.Message, e.Err)
	}
	return e.Envelope.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// NewBadRequest reports invalid client input.
func NewBadRequest(message string, err error) *AppError {
	return &AppError{Status: http.StatusBadRequest, Envelope: NewEnvelope(CodeBadRequest, message), Err: err}
}

// NewNotFound reports a missing resource.
func NewNotFound(message string) *AppError {
	return &AppError{Status: http.StatusNotFound, Envelope: NewEnvelope(CodeNotFound, message), Err: ErrNotFound}
}

// NewServiceUnavailable reports a dependency that cannot serve requests.
func NewServiceUnavailable(message string, details map[string]interface{}) *AppError {
	return &AppError{
		Status:   http.StatusServiceUnavailable,
		Envelope: NewEnvelope(CodeServiceUnavailable, message).WithDetails(details),
	}
}

// NewExternalServiceError reports a failing external collaborator such as
// the archive database or the message bus.
func NewExternalServiceError(message string) *AppError {
	return &AppError{Status: http.StatusBadGateway, Envelope: NewEnvelope(CodeExternalService, message)}
}

// WrapInternal wraps err as an internal failure. The request id in ctx, if
// any, becomes the correlation id.
func WrapInternal(ctx context.Context, err error, message string) *AppError {
	env := NewEnvelope(CodeInternal, message)
	if id := RequestIDFromContext(ctx); id != "" {
		env.WithCorrelationID(id)
	}
	return &AppError{Status: http.StatusInternalServerError, Envelope: env, Err: err}
}

// FromError classifies err into an HTTP status and envelope.
func FromError(err error) (int, *Envelope) {
	var app *AppError
	if stderrors.As(err, &app) {
		env := *app.Envelope
		if env.LSBE == nil && app.Err != nil {
			env.WithLSBE(codeOf(app.Err))
		}
		return app.Status, &env
	}

	code := lsberr.Classify(err)
	switch {
	case stderrors.Is(err, ErrNotFound):
		return http.StatusNotFound, NewEnvelope(CodeNotFound, err.Error()).WithLSBE(lsberr.NoJob)
	case stderrors.Is(err, registry.ErrStaleEvent):
		return http.StatusConflict, NewEnvelope(CodeConflict, err.Error()).WithLSBE(code)
	case code == lsberr.NoJob:
		return http.StatusNotFound, NewEnvelope(CodeNotFound, err.Error()).WithLSBE(code)
	case code == lsberr.NotStarted, code == lsberr.JobStarted, code == lsberr.JobFinish, code == lsberr.IllegalTransit:
		return http.StatusConflict, NewEnvelope(CodeConflict, err.Error()).WithLSBE(code)
	case badInput(err):
		if code == lsberr.SysCall {
			code = lsberr.BadArg
		}
		return http.StatusBadRequest, NewEnvelope(CodeBadRequest, err.Error()).WithLSBE(code)
	case code == lsberr.BadJob, code == lsberr.UnknownEvent, code == lsberr.EventFormat:
		return http.StatusBadRequest, NewEnvelope(CodeBadRequest, err.Error()).WithLSBE(code)
	case stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, NewEnvelope(CodeServiceUnavailable, err.Error()).WithLSBE(code)
	}
	return http.StatusInternalServerError, NewEnvelope(CodeInternal, err.Error()).WithLSBE(code)
}

func codeOf(err error) lsberr.Code {
	if stderrors.Is(err, ErrNotFound) {
		return lsberr.NoError
	}
	code := lsberr.Classify(err)
	if code == lsberr.SysCall && badInput(err) {
		return lsberr.BadArg
	}
	return code
}

func badInput(err error) bool {
	for _, target := range []error{
		jobid.ErrInvalid,
		reason.ErrUnknownReason,
		match.ErrInvalidDate,
		match.ErrInvalidRegex,
		match.ErrInvalidSize,
		match.ErrInvalidStatus,
	} {
		if stderrors.Is(err, target) {
			return true
		}
	}
	var pe *match.PatternError
	return stderrors.As(err, &pe)
}
