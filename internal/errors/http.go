package errors

import (
	"context"
	"encoding/json"
	"net/http"
)

// HTTPErrorResponse is the JSON body of every error response.
type HTTPErrorResponse struct {
	Error HTTPError `json:"error"`
}

// HTTPError is the error object inside HTTPErrorResponse.
type HTTPError struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	RequestID string                 `json:"request_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	LSBE      *LSBEInfo              `json:"lsbe,omitempty"`
}

type requestIDKey struct{}

// WithRequestID returns ctx carrying the request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id stored by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// NewHTTPErrorResponse builds the response body for env. requestID falls
// back to the envelope's correlation id.
func NewHTTPErrorResponse(env *Envelope, requestID string) HTTPErrorResponse {
	if requestID == "" {
		requestID = env.CorrelationID
	}
	return HTTPErrorResponse{Error: HTTPError{
		Code:      env.Code,
		Message:   env.Message,
		RequestID: requestID,
		Details:   env.Details,
		LSBE:      env.LSBE,
	}}
}

// WriteEnvelope writes env as a JSON error response with status.
func WriteEnvelope(w http.ResponseWriter, r *http.Request, env *Envelope, status int) {
	requestID := ""
	if r != nil {
		requestID = RequestIDFromContext(r.Context())
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(NewHTTPErrorResponse(env, requestID))
}

// RespondWithError classifies err and writes the error response.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	status, env := FromError(err)
	WriteEnvelope(w, r, env, status)
}

// NotFoundHandler answers unknown routes.
func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteEnvelope(w, r, NewEnvelope(CodeNotFound, "route not found: "+r.URL.Path), http.StatusNotFound)
}

// MethodNotAllowedHandler answers known routes called with the wrong method.
func MethodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	WriteEnvelope(w, r, NewEnvelope(CodeMethodNotAllowed, "method "+r.Method+" not allowed on "+r.URL.Path), http.StatusMethodNotAllowed)
}
