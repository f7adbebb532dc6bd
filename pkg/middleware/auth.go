package middleware

import (
	"context"
	"net/http"

	apperrors "github.com/utafrali/authgate/pkg/errors"
	"github.com/utafrali/authgate/pkg/httputil"
	"github.com/utafrali/authgate/pkg/logger"
)

type contextKeyType string

const claimsKey contextKeyType = "auth_claims"

// AccessTokenCookie is the cookie the access token is read from when the
// request has no Authorization header.
const AccessTokenCookie = "accessToken"

// Claims identifies the caller of an authenticated request.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// TokenValidator checks an access token and returns the caller's claims.
// Errors should be *apperrors.AppError values so their messages reach the
// client unchanged.
type TokenValidator func(ctx context.Context, token string) (*Claims, error)

// Auth rejects requests without a valid access token and stores the
// validated claims in the request context.
func Auth(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := httputil.BearerToken(r, AccessTokenCookie)
			if token == "" {
				httputil.WriteError(w, r, apperrors.Unauthorized("You are not authorized. Login first"), nil)
				return
			}

			claims, err := validate(r.Context(), token)
			if err != nil {
				httputil.WriteError(w, r, err, nil)
				return
			}

			ctx := WithClaims(r.Context(), claims)
			ctx = logger.WithUserEmail(ctx, claims.Email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole lets the request through only when the authenticated role is
// one of roles. It must be mounted after Auth.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				httputil.WriteError(w, r, apperrors.Unauthorized("You are not authorized. Login first"), nil)
				return
			}
			if _, ok := allowed[claims.Role]; !ok {
				httputil.WriteError(w, r, apperrors.Forbidden("You have no access"), nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithClaims stores claims in ctx.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the claims stored by Auth.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok && claims != nil
}
