package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const RequestIDKey contextKey = "request_id"

// maxInboundRequestIDLen bounds how much of a caller-supplied X-Request-ID
// is trusted; anything longer is replaced.
const maxInboundRequestIDLen = 64

// RequestID tags every request with an identifier, honoring a sane inbound
// X-Request-ID and minting a fresh one otherwise. The identifier is echoed
// on the response so callers can correlate logs.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > maxInboundRequestIDLen {
			id = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), RequestIDKey, id)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID reads the identifier RequestID stored, empty outside of it.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}
