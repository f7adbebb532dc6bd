package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/authgate/internal/auth"
	"github.com/utafrali/authgate/internal/cache"
	"github.com/utafrali/authgate/internal/domain"
	"github.com/utafrali/authgate/internal/email"
	"github.com/utafrali/authgate/internal/event"
	"github.com/utafrali/authgate/internal/metrics"
	"github.com/utafrali/authgate/internal/ratelimit"
	"github.com/utafrali/authgate/internal/repository"
	apperrors "github.com/utafrali/authgate/pkg/errors"
	"github.com/utafrali/authgate/pkg/logger"
	"github.com/utafrali/authgate/pkg/pagination"
	"github.com/utafrali/authgate/pkg/tracing"
)

var tracer = tracing.Tracer("github.com/utafrali/authgate/internal/service")

// Client-facing messages shared by several operations.
const (
	msgLoginFirst      = "You are not authorized. Login first"
	msgSessionExpired  = "Your session has expired. Please login again."
	msgTokenInvalid    = "Invalid token. Please login again."
	msgTokenNotValid   = "Token is not valid"
	msgSessionUserGone = "This user is not found!"
)

// RateLimiter guards sensitive operations per identity.
type RateLimiter interface {
	CheckAndConsume(ctx context.Context, op, identity string, rule ratelimit.Rule) error
	Reset(ctx context.Context, op, identity string) error
}

// Settings holds the tunables of the auth flows.
type Settings struct {
	VerificationTTL  time.Duration
	ResetTTL         time.Duration
	ResetPasswordURL string
	Lock             domain.LockPolicy
	Limits           ratelimit.Rules
}

// DefaultSettings returns the production defaults.
func DefaultSettings() Settings {
	return Settings{
		VerificationTTL:  10 * time.Minute,
		ResetTTL:         10 * time.Minute,
		ResetPasswordURL: "http://localhost:3000/reset-password/",
		Lock:             domain.DefaultLockPolicy(),
		Limits:           ratelimit.DefaultRules(),
	}
}

// AuthService implements signup, verification, login, session refresh,
// password reset and user administration.
type AuthService struct {
	users    repository.UserRepository
	store    cache.Store
	keys     cache.Keys
	limiter  RateLimiter
	tokens   *auth.TokenIssuer
	hasher   *auth.PasswordHasher
	mailer   email.Sender
	producer *event.Producer
	settings Settings
	logger   *slog.Logger
	now      func() time.Time
}

// NewAuthService creates a new auth service.
func NewAuthService(
	users repository.UserRepository,
	store cache.Store,
	keys cache.Keys,
	limiter RateLimiter,
	tokens *auth.TokenIssuer,
	hasher *auth.PasswordHasher,
	mailer email.Sender,
	producer *event.Producer,
	settings Settings,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		store:    store,
		keys:     keys,
		limiter:  limiter,
		tokens:   tokens,
		hasher:   hasher,
		mailer:   mailer,
		producer: producer,
		settings: settings,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// --- Input/Output types ---

// SignupInput holds the parameters for registering a new user.
type SignupInput struct {
	Name     string
	Email    string
	Phone    string
	Password string
}

// LoginInput holds the parameters for user login.
type LoginInput struct {
	Email    string
	Password string
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	User         *domain.User
	AccessToken  string
	RefreshToken string
}

// ResetPasswordInput holds the parameters for completing a password reset.
type ResetPasswordInput struct {
	Email    string
	Token    string
	Password string
}

// --- Signup and verification ---

// Signup creates an unverified customer account and emails a verification
// code. If anything fails after the user row is written, the cached code is
// discarded so a later resend starts clean.
func (s *AuthService) Signup(ctx context.Context, input SignupInput) (_ *domain.User, err error) {
	ctx, span := tracer.Start(ctx, "AuthService.Signup")
	defer func() { tracing.End(span, err) }()

	addr := domain.NormalizeEmail(input.Email)
	if addr == "" {
		return nil, apperrors.InvalidInput("email is required")
	}

	if err := s.limiter.CheckAndConsume(ctx, ratelimit.OpSignup, addr, s.settings.Limits.Signup); err != nil {
		metrics.AuthAttempt(ratelimit.OpSignup, metrics.OutcomeLimited)
		return nil, err
	}

	if err := validatePassword(input.Password); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, addr); err == nil {
		return nil, apperrors.AlreadyExists("User already exists")
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("check existing user: %w", err)
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &domain.User{
		ID:           uuid.New().String(),
		Name:         strings.TrimSpace(input.Name),
		Email:        addr,
		Phone:        strings.TrimSpace(input.Phone),
		PasswordHash: hash,
		Role:         domain.RoleCustomer,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	if err := s.issueVerificationCode(ctx, user.Email, email.VerificationMessage); err != nil {
		s.discardVerification(ctx, user.Email)
		return nil, err
	}

	if err := s.producer.PublishUserRegistered(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.registered event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	metrics.AuthAttempt(ratelimit.OpSignup, metrics.OutcomeSuccess)
	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
		logger.Email(user.Email),
	)

	return user, nil
}

// VerifyEmail checks code against the cached challenge for addr and marks
// the user verified. The attempt limit and code comparison run before the
// expiry check.
func (s *AuthService) VerifyEmail(ctx context.Context, addr, code string) (_ *domain.User, err error) {
	ctx, span := tracer.Start(ctx, "AuthService.VerifyEmail")
	defer func() { tracing.End(span, err) }()

	addr = domain.NormalizeEmail(addr)
	key := s.keys.Verification(addr)

	var data domain.VerificationData
	found, err := s.store.Get(ctx, key, &data)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperrors.NotFoundMsg("Verification code expired or not found")
	}

	if data.Exhausted() {
		metrics.AuthAttempt("verify", metrics.OutcomeLimited)
		return nil, apperrors.TooManyRequests("Too many verification attempts")
	}

	if !secureEqual(data.Code, strings.ToUpper(strings.TrimSpace(code))) {
		data.Attempts++
		if err := s.store.PutKeepTTL(ctx, key, data); err != nil {
			return nil, fmt.Errorf("record verification attempt: %w", err)
		}
		metrics.AuthAttempt("verify", metrics.OutcomeFailure)
		return nil, apperrors.InvalidInput("Invalid verification code")
	}

	now := s.now()
	if data.Expired(now) {
		return nil, apperrors.InvalidInput("Verification code expired")
	}

	user, err := s.users.GetByEmail(ctx, addr)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFoundMsg("User not found")
		}
		return nil, fmt.Errorf("get user for verification: %w", err)
	}

	user.IsVerified = true
	user.UpdatedAt = now
	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("mark user verified: %w", err)
	}

	if err := s.store.Delete(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "failed to delete verification code",
			logger.Email(addr),
			slog.String("error", err.Error()),
		)
	}

	if err := s.producer.PublishUserVerified(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.verified event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	metrics.AuthAttempt("verify", metrics.OutcomeSuccess)
	s.logger.InfoContext(ctx, "email verified", slog.String("user_id", user.ID))

	return user, nil
}

// ResendVerificationCode replaces the cached code for an unverified user and
// emails the new one.
func (s *AuthService) ResendVerificationCode(ctx context.Context, addr string) (err error) {
	ctx, span := tracer.Start(ctx, "AuthService.ResendVerificationCode")
	defer func() { tracing.End(span, err) }()

	addr = domain.NormalizeEmail(addr)
	if err := s.limiter.CheckAndConsume(ctx, ratelimit.OpResend, addr, s.settings.Limits.Resend); err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, addr)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.NotFoundMsg("User not found")
		}
		return fmt.Errorf("get user for resend: %w", err)
	}
	if user.IsVerified {
		return apperrors.InvalidInput("User is already verified")
	}

	if err := s.issueVerificationCode(ctx, user.Email, email.ResendVerificationMessage); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "verification code resent", slog.String("user_id", user.ID))
	return nil
}

// --- Sessions ---

// Login authenticates a user, applies the account lock policy and caches a
// fresh access/refresh token pair.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (_ *LoginResult, err error) {
	ctx, span := tracer.Start(ctx, "AuthService.Login")
	defer func() { tracing.End(span, err) }()

	addr := domain.NormalizeEmail(input.Email)
	if err := s.limiter.CheckAndConsume(ctx, ratelimit.OpLogin, addr, s.settings.Limits.Login); err != nil {
		metrics.AuthAttempt(ratelimit.OpLogin, metrics.OutcomeLimited)
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, addr)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			metrics.AuthAttempt(ratelimit.OpLogin, metrics.OutcomeFailure)
			return nil, apperrors.NotFoundMsg("Email not found!")
		}
		return nil, fmt.Errorf("get user for login: %w", err)
	}

	now := s.now()
	if user.IsLocked(now) {
		metrics.AuthAttempt(ratelimit.OpLogin, metrics.OutcomeLocked)
		return nil, apperrors.Forbidden("Account is locked. Please try again later.")
	}

	if !s.hasher.Compare(user.PasswordHash, input.Password) {
		if err := s.recordFailedLogin(ctx, user, now); err != nil {
			return nil, err
		}
		metrics.AuthAttempt(ratelimit.OpLogin, metrics.OutcomeFailure)
		return nil, apperrors.Forbidden("Wrong Password")
	}

	updated := domain.RecordSuccessfulLogin(*user, now)
	updated.UpdatedAt = now
	if err := s.users.Update(ctx, &updated); err != nil {
		return nil, fmt.Errorf("record successful login: %w", err)
	}

	payload := auth.TokenPayload{Email: updated.Email, Role: updated.Role.String()}
	accessToken, err := s.issueAndCache(ctx, payload, auth.AccessToken, s.keys.AccessToken(updated.Email))
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.issueAndCache(ctx, payload, auth.RefreshToken, s.keys.RefreshToken(updated.Email))
	if err != nil {
		return nil, err
	}

	if err := s.producer.PublishUserLoggedIn(ctx, &updated); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.logged_in event",
			slog.String("user_id", updated.ID),
			slog.String("error", err.Error()),
		)
	}

	metrics.AuthAttempt(ratelimit.OpLogin, metrics.OutcomeSuccess)
	s.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", updated.ID),
		logger.Email(updated.Email),
	)

	return &LoginResult{
		User:         &updated,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// recordFailedLogin persists one more failed attempt and reports a fresh lock.
func (s *AuthService) recordFailedLogin(ctx context.Context, user *domain.User, now time.Time) error {
	updated := domain.RecordFailedLogin(*user, now, s.settings.Lock)
	updated.UpdatedAt = now
	if err := s.users.Update(ctx, &updated); err != nil {
		return fmt.Errorf("record failed login: %w", err)
	}

	if !updated.IsLocked(now) {
		return nil
	}

	metrics.AccountLocked()
	s.logger.WarnContext(ctx, "account locked after failed logins",
		slog.String("user_id", updated.ID),
		slog.Int("failed_attempts", updated.FailedLoginAttempts),
	)
	if err := s.producer.PublishUserLocked(ctx, &updated); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.locked event",
			slog.String("user_id", updated.ID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// Refresh exchanges a refresh token for a new access token. The refresh
// token must equal the cached one; a mismatch revokes the whole session.
// The refresh token itself is not rotated.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (_ string, err error) {
	ctx, span := tracer.Start(ctx, "AuthService.Refresh")
	defer func() { tracing.End(span, err) }()

	if refreshToken == "" {
		return "", apperrors.Unauthorized(msgLoginFirst)
	}

	claims, err := s.tokens.Verify(refreshToken, auth.RefreshToken)
	if err != nil {
		metrics.AuthAttempt("refresh", metrics.OutcomeFailure)
		return "", tokenError(err)
	}

	addr := claims.Email
	var cached string
	found, err := s.store.Get(ctx, s.keys.RefreshToken(addr), &cached)
	if err != nil {
		return "", err
	}
	if !found || !secureEqual(cached, refreshToken) {
		s.revokeSessions(ctx, addr)
		metrics.AuthAttempt("refresh", metrics.OutcomeFailure)
		s.logger.WarnContext(ctx, "refresh token does not match the active session",
			logger.Email(addr),
		)
		return "", apperrors.Unauthorized(msgTokenNotValid)
	}

	user, err := s.users.GetByEmail(ctx, addr)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.revokeSessions(ctx, addr)
			return "", apperrors.NotFoundMsg(msgSessionUserGone)
		}
		return "", fmt.Errorf("get user for refresh: %w", err)
	}

	payload := auth.TokenPayload{Email: user.Email, Role: user.Role.String()}
	accessToken, err := s.issueAndCache(ctx, payload, auth.AccessToken, s.keys.AccessToken(user.Email))
	if err != nil {
		return "", err
	}

	metrics.AuthAttempt("refresh", metrics.OutcomeSuccess)
	return accessToken, nil
}

// Logout removes every cached session token of addr.
func (s *AuthService) Logout(ctx context.Context, addr string) error {
	addr = domain.NormalizeEmail(addr)
	if _, err := s.store.DeleteMatching(ctx, s.keys.UserTokens(addr)); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	s.logger.InfoContext(ctx, "user logged out", logger.Email(addr))
	return nil
}

// ValidateAccessToken authenticates a request. The token must verify, equal
// the cached access token and belong to an existing user. The returned role
// is the user's current role.
func (s *AuthService) ValidateAccessToken(ctx context.Context, token string) (*auth.Claims, error) {
	claims, err := s.tokens.Verify(token, auth.AccessToken)
	if err != nil {
		return nil, tokenError(err)
	}

	var cached string
	found, err := s.store.Get(ctx, s.keys.AccessToken(claims.Email), &cached)
	if err != nil {
		return nil, err
	}
	if !found || !secureEqual(cached, token) {
		return nil, apperrors.Unauthorized(msgTokenNotValid)
	}

	user, err := s.users.GetByEmail(ctx, claims.Email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFoundMsg(msgSessionUserGone)
		}
		return nil, fmt.Errorf("get user for token: %w", err)
	}

	claims.Role = user.Role.String()
	return claims, nil
}

// --- Password reset ---

// ForgotPassword caches a reset token for addr and emails the reset link.
func (s *AuthService) ForgotPassword(ctx context.Context, addr string) (err error) {
	ctx, span := tracer.Start(ctx, "AuthService.ForgotPassword")
	defer func() { tracing.End(span, err) }()

	addr = domain.NormalizeEmail(addr)
	if err := s.limiter.CheckAndConsume(ctx, ratelimit.OpForgot, addr, s.settings.Limits.Forgot); err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, addr)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.NotFoundMsg("User not found!")
		}
		return fmt.Errorf("get user for password reset: %w", err)
	}

	token, err := generateResetToken()
	if err != nil {
		return err
	}

	data := domain.ResetPasswordData{
		Token:     token,
		ExpiresAt: s.now().Add(s.settings.ResetTTL).UnixMilli(),
	}
	if err := s.store.Put(ctx, s.keys.Reset(user.Email), data, s.settings.ResetTTL); err != nil {
		return fmt.Errorf("cache reset token: %w", err)
	}

	link := s.settings.ResetPasswordURL + token
	if err := s.mailer.Send(ctx, email.ResetPasswordMessage(user.Email, link)); err != nil {
		return apperrors.Unavailable("Failed to send password reset email", err)
	}

	s.logger.InfoContext(ctx, "password reset requested", slog.String("user_id", user.ID))
	return nil
}

// ResetPassword replaces the password of input.Email when input.Token
// matches the cached reset challenge. Existing sessions are revoked and the
// login rate limit is cleared.
func (s *AuthService) ResetPassword(ctx context.Context, input ResetPasswordInput) (err error) {
	ctx, span := tracer.Start(ctx, "AuthService.ResetPassword")
	defer func() { tracing.End(span, err) }()

	if err := validatePassword(input.Password); err != nil {
		return err
	}

	addr := domain.NormalizeEmail(input.Email)
	key := s.keys.Reset(addr)

	var data domain.ResetPasswordData
	found, err := s.store.Get(ctx, key, &data)
	if err != nil {
		return err
	}
	if !found {
		return apperrors.InvalidInput("Reset token expired or not found")
	}

	if data.Exhausted() {
		metrics.AuthAttempt("reset", metrics.OutcomeLimited)
		return apperrors.TooManyRequests("Too many reset attempts")
	}

	if !secureEqual(data.Token, input.Token) {
		data.Attempts++
		if err := s.store.PutKeepTTL(ctx, key, data); err != nil {
			return fmt.Errorf("record reset attempt: %w", err)
		}
		metrics.AuthAttempt("reset", metrics.OutcomeFailure)
		return apperrors.InvalidInput("Invalid reset token")
	}

	now := s.now()
	if data.Expired(now) {
		return apperrors.InvalidInput("Reset token expired")
	}

	user, err := s.users.GetByEmail(ctx, addr)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.NotFoundMsg("User not found")
		}
		return fmt.Errorf("get user for reset: %w", err)
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.UpdatedAt = now
	if err := s.users.Update(ctx, user); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if err := s.store.Delete(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "failed to delete reset token",
			logger.Email(addr),
			slog.String("error", err.Error()),
		)
	}
	s.revokeSessions(ctx, addr)
	if err := s.limiter.Reset(ctx, ratelimit.OpLogin, addr); err != nil {
		s.logger.WarnContext(ctx, "failed to reset login rate limit",
			logger.Email(addr),
			slog.String("error", err.Error()),
		)
	}

	if err := s.producer.PublishUserPasswordReset(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.password_reset event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	metrics.AuthAttempt("reset", metrics.OutcomeSuccess)
	s.logger.InfoContext(ctx, "password reset", slog.String("user_id", user.ID))
	return nil
}

// --- Listing ---

// ListUsers returns one page of users matching filter, newest first.
func (s *AuthService) ListUsers(ctx context.Context, filter repository.UserFilter) (*pagination.Result[domain.User], error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PerPage < 1 {
		filter.PerPage = pagination.DefaultPerPage
	}

	users, total, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	result := pagination.NewResult(users, total, filter.Params)
	return &result, nil
}

// --- Helpers ---

// issueVerificationCode caches a fresh verification challenge for addr and
// mails it using build.
func (s *AuthService) issueVerificationCode(ctx context.Context, addr string, build func(to, code string) email.Message) error {
	code, err := generateVerificationCode()
	if err != nil {
		return err
	}

	data := domain.VerificationData{
		Code:      code,
		ExpiresAt: s.now().Add(s.settings.VerificationTTL).UnixMilli(),
	}
	if err := s.store.Put(ctx, s.keys.Verification(addr), data, s.settings.VerificationTTL); err != nil {
		return fmt.Errorf("cache verification code: %w", err)
	}

	if err := s.mailer.Send(ctx, build(addr, code)); err != nil {
		return apperrors.Unavailable("Failed to send verification email", err)
	}
	return nil
}

// discardVerification deletes a cached verification code. Failures are
// logged only.
func (s *AuthService) discardVerification(ctx context.Context, addr string) {
	if err := s.store.Delete(context.WithoutCancel(ctx), s.keys.Verification(addr)); err != nil {
		s.logger.WarnContext(ctx, "failed to discard verification code",
			logger.Email(addr),
			slog.String("error", err.Error()),
		)
	}
}

// revokeSessions deletes both cached session tokens of addr. Failures are
// logged only.
func (s *AuthService) revokeSessions(ctx context.Context, addr string) {
	if err := s.store.Delete(context.WithoutCancel(ctx), s.keys.AccessToken(addr), s.keys.RefreshToken(addr)); err != nil {
		s.logger.WarnContext(ctx, "failed to revoke session tokens",
			logger.Email(addr),
			slog.String("error", err.Error()),
		)
	}
}

func (s *AuthService) issueAndCache(ctx context.Context, payload auth.TokenPayload, kind auth.TokenKind, key string) (string, error) {
	token, err := s.tokens.Issue(payload, kind)
	if err != nil {
		return "", fmt.Errorf("issue %s token: %w", kind, err)
	}
	if err := s.store.Put(ctx, key, token, s.tokens.TTL(kind)); err != nil {
		return "", fmt.Errorf("cache %s token: %w", kind, err)
	}
	return token, nil
}

// tokenError maps a verification failure to its client message.
func tokenError(err error) error {
	if errors.Is(err, auth.ErrTokenExpired) {
		return apperrors.Unauthorized(msgSessionExpired)
	}
	return apperrors.Unauthorized(msgTokenInvalid)
}

func secureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
