package middleware

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/authgate/pkg/logger"
)

// RequestLogger stores a request-scoped logger in the context, enriched with
// correlation_id, the masked user email and trace ids. Downstream code reads
// it with logger.FromContext.
//
// Mount it after RequestLogging and Tracing. When it runs behind Auth the
// authenticated email is included as well.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if claims, ok := ClaimsFromContext(ctx); ok && logger.UserEmailFromContext(ctx) == "" {
				ctx = logger.WithUserEmail(ctx, claims.Email)
			}

			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
