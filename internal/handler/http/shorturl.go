package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/authgate/internal/shortener"
	"github.com/utafrali/authgate/pkg/httputil"
	"github.com/utafrali/authgate/pkg/validator"
)

// ShortURLHandler handles the URL shortener endpoints.
type ShortURLHandler struct {
	service *shortener.Service
	logger  *slog.Logger
}

// NewShortURLHandler creates a new URL shortener handler.
func NewShortURLHandler(svc *shortener.Service, logger *slog.Logger) *ShortURLHandler {
	return &ShortURLHandler{service: svc, logger: logger}
}

// CreateShortURLRequest is the JSON request body for shortening a URL.
// The target is validated by the service so its messages stay stable.
type CreateShortURLRequest struct {
	MainURL string `json:"mainUrl"`
}

// Create handles POST /api/v1/urls
func (h *ShortURLHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateShortURLRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	u, err := h.service.Create(r.Context(), req.MainURL, r.UserAgent())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusCreated, "Short url created successfully", u)
}

// Redirect handles GET /s/{code}
func (h *ShortURLHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	target, err := h.service.Resolve(r.Context(), chi.URLParam(r, "code"), r.UserAgent())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	http.Redirect(w, r, target, http.StatusFound)
}

// List handles GET /api/v1/urls/analytics
func (h *ShortURLHandler) List(w http.ResponseWriter, r *http.Request) {
	urls, err := h.service.List(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, "All short urls fetched successfully", urls)
}

// Analytics handles GET /api/v1/urls/analytics/{code}
func (h *ShortURLHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.Analytics(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, "Short url analytics fetched successfully", a)
}
