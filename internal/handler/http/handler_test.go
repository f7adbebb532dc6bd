package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/utafrali/authgate/internal/auth"
	"github.com/utafrali/authgate/internal/cache"
	"github.com/utafrali/authgate/internal/domain"
	"github.com/utafrali/authgate/internal/email"
	"github.com/utafrali/authgate/internal/event"
	"github.com/utafrali/authgate/internal/ratelimit"
	"github.com/utafrali/authgate/internal/repository"
	"github.com/utafrali/authgate/internal/service"
	"github.com/utafrali/authgate/internal/shortener"
	"github.com/utafrali/authgate/pkg/health"
	"github.com/utafrali/authgate/pkg/httputil"
	"github.com/utafrali/authgate/pkg/middleware"
)

// ============================================================================
// Mock Repositories
// ============================================================================

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepo) Update(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockUserRepo) List(ctx context.Context, filter repository.UserFilter) ([]domain.User, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.User), args.Int(1), args.Error(2)
}

type mockShortURLRepo struct {
	mock.Mock
}

func (m *mockShortURLRepo) Create(ctx context.Context, u *domain.ShortURL) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *mockShortURLRepo) GetByCode(ctx context.Context, code string) (*domain.ShortURL, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ShortURL), args.Error(1)
}

func (m *mockShortURLRepo) GetByTarget(ctx context.Context, target string) (*domain.ShortURL, error) {
	args := m.Called(ctx, target)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ShortURL), args.Error(1)
}

func (m *mockShortURLRepo) List(ctx context.Context) ([]domain.ShortURL, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ShortURL), args.Error(1)
}

func (m *mockShortURLRepo) RecordVisit(ctx context.Context, v *domain.Visit) error {
	args := m.Called(ctx, v)
	return args.Error(0)
}

func (m *mockShortURLRepo) AddVisit(ctx context.Context, v *domain.Visit) error {
	args := m.Called(ctx, v)
	return args.Error(0)
}

func (m *mockShortURLRepo) ListVisits(ctx context.Context, shortURLID string, limit int) ([]domain.Visit, error) {
	args := m.Called(ctx, shortURLID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Visit), args.Error(1)
}

// ============================================================================
// Test Helpers
// ============================================================================

const (
	testEmail    = "jane@example.com"
	testPassword = "S3cure!Pass"
	testBaseURL  = "http://localhost:8080/s/"
)

type testServer struct {
	router http.Handler
	users  *mockUserRepo
	urls   *mockShortURLRepo
	tokens *auth.TokenIssuer
	store  *cache.RedisStore
	keys   cache.Keys
	mr     *miniredis.Miniredis
}

func handlerTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := handlerTestLogger()
	keys := cache.NewKeys("auth")
	store := cache.NewRedisStore(client, time.Second, logger)

	tokens, err := auth.NewTokenIssuer("access-secret", "refresh-secret", 15*time.Minute, 7*24*time.Hour)
	require.NoError(t, err)

	ts := &testServer{
		users:  new(mockUserRepo),
		urls:   new(mockShortURLRepo),
		tokens: tokens,
		store:  store,
		keys:   keys,
		mr:     mr,
	}

	authSvc := service.NewAuthService(
		ts.users,
		store,
		keys,
		ratelimit.NewLimiter(client, keys, time.Second, logger),
		tokens,
		auth.NewPasswordHasher(bcrypt.MinCost),
		email.NewLogSender(logger),
		event.NewProducer(event.NopPublisher{}, logger),
		service.DefaultSettings(),
		logger,
	)

	ts.router = NewRouter(RouterConfig{
		Auth:      authSvc,
		Shortener: shortener.NewService(ts.urls, testBaseURL, logger),
		Health:    health.NewHandler(),
		Sessions: SessionConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Cookies:    httputil.CookieOptions{Secure: true, SameSite: http.SameSiteStrictMode},
		},
		CORS:   middleware.DefaultCORSConfig("http://localhost:3000"),
		Logger: logger,
	})
	return ts
}

// do sends a request through the full router. A non-nil body is encoded as
// JSON; a string body is sent verbatim.
func (ts *testServer) do(t *testing.T, method, path string, body any, opts ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

// login caches a session for addr and returns a request option carrying
// its access token.
func (ts *testServer) login(t *testing.T, addr string, role domain.Role) (withAuth func(*http.Request), refresh string) {
	t.Helper()
	ctx := context.Background()
	payload := auth.TokenPayload{Email: addr, Role: role.String()}

	access, err := ts.tokens.Issue(payload, auth.AccessToken)
	require.NoError(t, err)
	refresh, err = ts.tokens.Issue(payload, auth.RefreshToken)
	require.NoError(t, err)

	require.NoError(t, ts.store.Put(ctx, ts.keys.AccessToken(addr), access, time.Hour))
	require.NoError(t, ts.store.Put(ctx, ts.keys.RefreshToken(addr), refresh, time.Hour))

	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+access)
	}, refresh
}

func withCookie(name, value string) func(*http.Request) {
	return func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: name, Value: value})
	}
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func responseCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func sampleUser(t *testing.T, addr string, role domain.Role) *domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	now := time.Now().UTC()
	return &domain.User{
		ID:           "0b8e5c3e-7a53-4c43-9a3e-4a4fbb0f1a01",
		Name:         "Jane Doe",
		Email:        addr,
		Phone:        "01712345678",
		PasswordHash: string(hash),
		Role:         role,
		IsVerified:   true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
