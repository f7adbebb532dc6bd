package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/authgate/internal/auth"
	"github.com/utafrali/authgate/internal/cache"
	"github.com/utafrali/authgate/internal/config"
	"github.com/utafrali/authgate/internal/domain"
	"github.com/utafrali/authgate/internal/email"
	"github.com/utafrali/authgate/internal/event"
	handler "github.com/utafrali/authgate/internal/handler/http"
	"github.com/utafrali/authgate/internal/ratelimit"
	"github.com/utafrali/authgate/internal/repository/postgres"
	"github.com/utafrali/authgate/internal/service"
	"github.com/utafrali/authgate/internal/shortener"
	"github.com/utafrali/authgate/migrations"
	"github.com/utafrali/authgate/pkg/database"
	"github.com/utafrali/authgate/pkg/health"
	"github.com/utafrali/authgate/pkg/httpclient"
	"github.com/utafrali/authgate/pkg/httputil"
	pkgkafka "github.com/utafrali/authgate/pkg/kafka"
	"github.com/utafrali/authgate/pkg/middleware"
	"github.com/utafrali/authgate/pkg/tracing"
)

const serviceName = "authgate"

// App wires together all dependencies and runs the auth service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	ipLimiter      *middleware.IPRateLimiter
	httpServer     *http.Server
	tracerShutdown tracing.ShutdownFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	// Release whatever was opened if a later step fails.
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	a.tracerShutdown, err = tracing.InitTracer(ctx, tracerConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	pgCfg := cfg.Postgres()
	a.pool, err = database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)

	if err := database.RunMigrations(ctx, a.pool, migrations.FS, logger); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	if cfg.SlowQueryThreshold > 0 {
		database.SetSlowQueryLogging(cfg.SlowQueryThreshold, logger)
	}

	a.redis, err = database.NewRedisClient(ctx, cfg.Redis(), logger)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis", slog.String("addr", cfg.Redis().Addr()))
	database.RegisterPoolMetrics(a.pool, a.redis, serviceName)

	var publisher event.Publisher = event.NopPublisher{}
	if cfg.EventsEnabled || cfg.MailDriver == config.MailDriverKafka {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}
	if cfg.EventsEnabled {
		publisher = a.producer
	}

	mailer, err := newMailSender(cfg, a.producer, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("mail sender configured", slog.String("driver", mailer.Name()))

	tokens, err := auth.NewTokenIssuer(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("create token issuer: %w", err)
	}

	// Build the dependency graph.
	keys := cache.NewKeys(cfg.CacheKeyPrefix)
	store := cache.NewRedisStore(a.redis, cfg.CacheOpTimeout, logger)
	limiter := ratelimit.NewLimiter(a.redis, keys, cfg.CacheOpTimeout, logger)
	userRepo := postgres.NewUserRepository(a.pool)
	urlRepo := postgres.NewShortURLRepository(a.pool)

	authService := service.NewAuthService(
		userRepo,
		store,
		keys,
		limiter,
		tokens,
		auth.NewPasswordHasher(cfg.BcryptCost),
		email.WithMetrics(mailer),
		event.NewProducer(publisher, logger),
		authSettings(cfg),
		logger,
	)
	urlService := shortener.NewService(urlRepo, cfg.ShortURLBase, logger)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return a.pool.Ping(ctx)
	})
	healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
		return a.redis.Ping(ctx).Err()
	})
	if a.producer != nil {
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
	}

	a.ipLimiter = middleware.NewIPRateLimiter(cfg.IPRateLimitRPS, cfg.IPRateLimitBurst, time.Minute, logger)

	router := handler.NewRouter(handler.RouterConfig{
		Auth:      authService,
		Shortener: urlService,
		Health:    healthHandler,
		Sessions: handler.SessionConfig{
			AccessTTL:  cfg.JWTAccessTTL,
			RefreshTTL: cfg.JWTRefreshTTL,
			Cookies: httputil.CookieOptions{
				Secure:   cfg.CookieSecure,
				SameSite: http.SameSiteStrictMode,
			},
		},
		CORS:       middleware.DefaultCORSConfig(cfg.CORSAllowedOrigins...),
		IPLimiter:  a.ipLimiter,
		PprofCIDRs: cfg.PprofAllowedCIDRs,
		Logger:     logger,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return errors.Join(err, a.Shutdown())
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka producer, Redis client and PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Flush pending spans after HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.tracerShutdown = nil
	}

	// 3. Close the backing clients.
	if err := a.close(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// close releases the clients opened by NewApp. It tolerates a partially
// built App.
func (a *App) close() error {
	var errs []error

	if a.ipLimiter != nil {
		a.ipLimiter.Stop()
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func tracerConfig(cfg *config.Config) tracing.Config {
	tc := tracing.DefaultConfig(serviceName)
	tc.Environment = cfg.Environment
	tc.OTLPEndpoint = cfg.OTELEndpoint
	tc.SampleRate = cfg.OTELSampleRate
	tc.Enabled = cfg.OTELEnabled
	return tc
}

func authSettings(cfg *config.Config) service.Settings {
	return service.Settings{
		VerificationTTL:  cfg.VerificationCodeTTL,
		ResetTTL:         cfg.ResetTokenTTL,
		ResetPasswordURL: cfg.ResetPasswordURL,
		Lock: domain.LockPolicy{
			MaxAttempts: cfg.LockMaxAttempts,
			Duration:    cfg.LockDuration,
		},
		Limits: ratelimit.Rules{
			Signup: ratelimit.Rule{MaxAttempts: cfg.RateLimitSignupMax, Window: cfg.RateLimitSignupWindow},
			Resend: ratelimit.Rule{MaxAttempts: cfg.RateLimitResendMax, Window: cfg.RateLimitResendWindow},
			Login:  ratelimit.Rule{MaxAttempts: cfg.RateLimitLoginMax, Window: cfg.RateLimitLoginWindow},
			Forgot: ratelimit.Rule{MaxAttempts: cfg.RateLimitForgotMax, Window: cfg.RateLimitForgotWindow},
		},
	}
}

// newMailSender builds the sender selected by MAIL_DRIVER. The kafka driver
// needs a producer.
func newMailSender(cfg *config.Config, producer *pkgkafka.Producer, logger *slog.Logger) (email.Sender, error) {
	switch cfg.MailDriver {
	case config.MailDriverKafka:
		if producer == nil {
			return nil, fmt.Errorf("mail driver %q needs a kafka producer", cfg.MailDriver)
		}
		return email.NewKafkaSender(producer), nil
	case config.MailDriverHTTP:
		return newHTTPMailSender(cfg, logger), nil
	default:
		return email.NewLogSender(logger), nil
	}
}

func newHTTPMailSender(cfg *config.Config, logger *slog.Logger) *email.HTTPSender {
	client := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpclient.DefaultConfig()),
		httpclient.DefaultCircuitBreakerConfig("mail-api"),
		logger,
	)
	return email.NewHTTPSender(client, cfg.MailAPIURL, cfg.MailAPIKey, cfg.MailFrom)
}
