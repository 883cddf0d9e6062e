package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/rechargecodes-backend/pkg/logger"
	"github.com/angelmondragon/rechargecodes-backend/pkg/types"
)

// RequestID tags the response and the request logger with a correlation id,
// reusing the caller's X-Request-Id when present.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(types.RequestIDHeader)
			if reqID == "" {
				reqID = uuid.NewString()
			}

			w.Header().Set(types.RequestIDHeader, reqID)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
