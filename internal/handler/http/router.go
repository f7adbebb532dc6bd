package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/authgate/internal/domain"
	"github.com/utafrali/authgate/internal/service"
	"github.com/utafrali/authgate/internal/shortener"
	"github.com/utafrali/authgate/pkg/health"
	"github.com/utafrali/authgate/pkg/middleware"
)

// RouterConfig bundles the dependencies of the HTTP router.
type RouterConfig struct {
	Auth      *service.AuthService
	Shortener *shortener.Service
	Health    *health.Handler
	Sessions  SessionConfig
	CORS      middleware.CORSConfig

	// IPLimiter throttles every request per client address. Optional.
	IPLimiter *middleware.IPRateLimiter

	// PprofCIDRs enables /debug/pprof for the listed networks.
	PprofCIDRs []string

	Logger *slog.Logger
}

// NewRouter creates a chi router with all authgate routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing("authgate"))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics("authgate"))
	r.Use(middleware.CORS(cfg.CORS))
	if cfg.IPLimiter != nil {
		r.Use(cfg.IPLimiter.Middleware)
	}

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())
	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	authenticate := middleware.Auth(accessTokenValidator(cfg.Auth))

	authHandler := NewAuthHandler(cfg.Auth, cfg.Sessions, logger)
	userHandler := NewUserHandler(cfg.Auth, logger)

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(middleware.NoStore)
		r.Use(middleware.ContentTypeJSON)
		r.Use(requireJSON)

		r.Post("/signup", authHandler.Signup)
		r.Post("/verify-email", authHandler.VerifyEmail)
		r.Post("/resend-verify-email-code", authHandler.ResendVerificationCode)
		r.Post("/login", authHandler.Login)
		r.Post("/refresh-token", authHandler.RefreshToken)
		r.Post("/forgot-password", authHandler.ForgotPassword)
		r.Post("/reset-password/{token}", authHandler.ResetPassword)

		// Authenticated endpoints
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(middleware.RequestLogger(logger))

			r.Post("/logout", authHandler.Logout)

			r.With(middleware.RequireRole(domain.RoleSuperAdmin.String(), domain.RoleAdmin.String())).
				Get("/users", userHandler.List)
			r.With(middleware.RequireRole(domain.RoleAdmin.String(), domain.RoleSuperAdmin.String())).
				Patch("/change-role", userHandler.ChangeRole)
			r.With(middleware.RequireRole(domain.RoleSuperAdmin.String())).
				Delete("/delete-user/{id}", userHandler.Delete)
		})
	})

	urlHandler := NewShortURLHandler(cfg.Shortener, logger)

	r.Route("/api/v1/urls", func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(requireJSON)

		r.Post("/", urlHandler.Create)
		r.Get("/analytics", urlHandler.List)
		r.Get("/analytics/{code}", urlHandler.Analytics)
	})

	r.Get("/s/{code}", urlHandler.Redirect)

	return r
}

// accessTokenValidator adapts the auth service to the middleware's validator.
func accessTokenValidator(svc *service.AuthService) middleware.TokenValidator {
	return func(ctx context.Context, token string) (*middleware.Claims, error) {
		claims, err := svc.ValidateAccessToken(ctx, token)
		if err != nil {
			return nil, err
		}
		return &middleware.Claims{Email: claims.Email, Role: claims.Role}, nil
	}
}
