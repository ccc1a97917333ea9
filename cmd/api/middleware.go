package main

import (
	"context"
	"net/http"

	"github.com/gofrs/uuid/v5"
)

type contextKey string

const (
	correlationKey    contextKey = "correlation_id"
	requestIDHeader              = "X-Request-Id"
	maxRequestIDBytes            = 128
)

// correlationMiddleware echoes the caller's request id, or mints one, so
// logs and responses for a single request share it.
func (s *Server) correlationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(requestIDHeader)
		if reqID == "" || len(reqID) > maxRequestIDBytes {
			reqID = uuid.Must(uuid.NewV4()).String()
		}
		w.Header().Set(requestIDHeader, reqID)
		ctx := context.WithValue(r.Context(), correlationKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func correlationIDFromContext(ctx context.Context) string {
	if value, ok := ctx.Value(correlationKey).(string); ok {
		return value
	}
	return ""
}
