package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/authgate/internal/domain"
	"github.com/utafrali/authgate/internal/repository"
	"github.com/utafrali/authgate/internal/service"
	apperrors "github.com/utafrali/authgate/pkg/errors"
	"github.com/utafrali/authgate/pkg/httputil"
	"github.com/utafrali/authgate/pkg/middleware"
	"github.com/utafrali/authgate/pkg/pagination"
	"github.com/utafrali/authgate/pkg/validator"
)

var errUnauthenticated = apperrors.Unauthorized("You are not authorized. Login first")

// UserHandler handles the user administration endpoints.
type UserHandler struct {
	service *service.AuthService
	logger  *slog.Logger
}

// NewUserHandler creates a new user administration handler.
func NewUserHandler(svc *service.AuthService, logger *slog.Logger) *UserHandler {
	return &UserHandler{service: svc, logger: logger}
}

// ChangeRoleRequest is the JSON request body for changing a user's role.
type ChangeRoleRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required"`
}

// List handles GET /api/v1/auth/users?search=&page=&per_page=
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := repository.UserFilter{
		Search: strings.TrimSpace(r.URL.Query().Get("search")),
		Params: pagination.FromRequest(r),
	}

	result, err := h.service.ListUsers(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Message: "Getting all Users",
		Data:    result.Items,
		Meta:    result.Meta,
	})
}

// ChangeRole handles PATCH /api/v1/auth/change-role
func (h *UserHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		httputil.WriteError(w, r, errUnauthenticated, h.logger)
		return
	}

	var req ChangeRoleRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	user, err := h.service.ChangeRole(r.Context(), req.Email, req.Role, actor)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, "User role changed successfully", user)
}

// Delete handles DELETE /api/v1/auth/delete-user/{id}
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		httputil.WriteError(w, r, errUnauthenticated, h.logger)
		return
	}

	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	user, err := h.service.DeleteUser(r.Context(), id.String(), actor)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, "User deleted successfully", user)
}

func actorFrom(r *http.Request) (service.Actor, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		return service.Actor{}, false
	}
	return service.Actor{Email: claims.Email, Role: domain.Role(claims.Role)}, true
}
