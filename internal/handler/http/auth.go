package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/authgate/internal/domain"
	"github.com/utafrali/authgate/internal/service"
	"github.com/utafrali/authgate/pkg/httputil"
	"github.com/utafrali/authgate/pkg/middleware"
	"github.com/utafrali/authgate/pkg/validator"
)

// Session cookie names.
const (
	accessCookie  = middleware.AccessTokenCookie
	refreshCookie = "refreshToken"
)

// SessionConfig controls the session cookies set by login and refresh.
type SessionConfig struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Cookies    httputil.CookieOptions
}

// AuthHandler handles HTTP requests for auth endpoints.
type AuthHandler struct {
	service  *service.AuthService
	sessions SessionConfig
	logger   *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc *service.AuthService, sessions SessionConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, sessions: sessions, logger: logger}
}

// --- Request DTOs ---

// SignupRequest is the JSON request body for user registration.
type SignupRequest struct {
	Name     string `json:"name" validate:"required,min=1,max=50,alphaspace"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"required,len=11,numeric"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// VerifyEmailRequest is the JSON request body for email verification.
type VerifyEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6"`
}

// EmailRequest is the JSON request body of endpoints keyed by email alone.
type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// LoginRequest is the JSON request body for user login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshTokenRequest is the optional JSON body for clients without cookies.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// ResetPasswordRequest is the JSON request body for password reset. The
// token travels in the URL.
type ResetPasswordRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// --- Response types ---

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	User         *domain.User `json:"user"`
}

// RefreshResponse is returned by a successful refresh.
type RefreshResponse struct {
	AccessToken string `json:"accessToken"`
}

// --- Handlers ---

// Signup handles POST /api/v1/auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	user, err := h.service.Signup(r.Context(), service.SignupInput{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusCreated, "User Registered Successfully", user)
}

// VerifyEmail handles POST /api/v1/auth/verify-email
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	user, err := h.service.VerifyEmail(r.Context(), req.Email, req.Code)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, "Email Verified Successfully!", user)
}

// ResendVerificationCode handles POST /api/v1/auth/resend-verify-email-code
func (h *AuthHandler) ResendVerificationCode(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	if err := h.service.ResendVerificationCode(r.Context(), req.Email); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, "Resend Email Verification code", nil)
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	result, err := h.service.Login(r.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.SetSessionCookie(w, accessCookie, result.AccessToken, h.sessions.AccessTTL, h.sessions.Cookies)
	httputil.SetSessionCookie(w, refreshCookie, result.RefreshToken, h.sessions.RefreshTTL, h.sessions.Cookies)

	httputil.WriteData(w, http.StatusOK, "User logged in successfully!", LoginResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		User:         result.User,
	})
}

// RefreshToken handles POST /api/v1/auth/refresh-token. The refresh token is
// read from its cookie, or from the JSON body when the cookie is absent.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	token := ""
	if c, err := r.Cookie(refreshCookie); err == nil {
		token = c.Value
	}
	if token == "" && r.ContentLength > 0 {
		var req RefreshTokenRequest
		if err := validator.DecodeAndValidate(w, r, &req); err != nil {
			httputil.WriteValidationError(w, err)
			return
		}
		token = req.RefreshToken
	}

	accessToken, err := h.service.Refresh(r.Context(), token)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.SetSessionCookie(w, accessCookie, accessToken, h.sessions.AccessTTL, h.sessions.Cookies)
	httputil.WriteData(w, http.StatusOK, "Access token refreshed successfully", RefreshResponse{AccessToken: accessToken})
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, errUnauthenticated, h.logger)
		return
	}

	if err := h.service.Logout(r.Context(), claims.Email); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.ClearSessionCookie(w, accessCookie, h.sessions.Cookies)
	httputil.ClearSessionCookie(w, refreshCookie, h.sessions.Cookies)
	httputil.WriteData(w, http.StatusOK, "User logged out successfully", nil)
}

// ForgotPassword handles POST /api/v1/auth/forgot-password
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, "Sent email successfully!", nil)
}

// ResetPassword handles POST /api/v1/auth/reset-password/{token}
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	err := h.service.ResetPassword(r.Context(), service.ResetPasswordInput{
		Email:    req.Email,
		Token:    chi.URLParam(r, "token"),
		Password: req.Password,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.ClearSessionCookie(w, accessCookie, h.sessions.Cookies)
	httputil.ClearSessionCookie(w, refreshCookie, h.sessions.Cookies)
	httputil.WriteData(w, http.StatusOK, "password Update successfully!", nil)
}
