package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"attestor/pkg/requestcontext"
)

// RequestIDHeader carries the caller-supplied correlation id, when present.
const RequestIDHeader = "X-Request-ID"

// RequestID attaches a correlation id to every request context and echoes it
// on the response. A caller-supplied id is trusted as-is.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
