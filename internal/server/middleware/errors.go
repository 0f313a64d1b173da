package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	apperrors "github.com/3leaps/batchlog/internal/errors"
	"github.com/3leaps/batchlog/internal/observability"
)

// ErrorResponse is the JSON body written for recovered panics.
type ErrorResponse = apperrors.HTTPErrorResponse

// Recovery turns a panic in next into a 500 JSON error response.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rv := recover()
			if rv == nil {
				return
			}
			if rv == http.ErrAbortHandler {
				panic(rv)
			}

			requestID := apperrors.RequestIDFromContext(r.Context())
			observability.ServerLogger.Error("panic in handler",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("request_id", requestID),
				zap.Any("panic", rv),
				zap.ByteString("stack", debug.Stack()))

			env := apperrors.NewEnvelope(apperrors.CodeInternal, fmt.Sprintf("panic: %v", rv)).
				WithCorrelationID(requestID)
			writeErrorResponse(w, env, http.StatusInternalServerError)
		}()
		next.ServeHTTP(w, r)
	})
}

// ErrorHandler is Recovery under the name used by older router setups.
func ErrorHandler(next http.Handler) http.Handler {
	return Recovery(next)
}

func writeErrorResponse(w http.ResponseWriter, env *apperrors.Envelope, status int) {
	apperrors.WriteEnvelope(w, nil, env, status)
}
