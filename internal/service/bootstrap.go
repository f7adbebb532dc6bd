package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/authgate/internal/auth"
	"github.com/utafrali/authgate/internal/domain"
	"github.com/utafrali/authgate/internal/repository"
	apperrors "github.com/utafrali/authgate/pkg/errors"
)

// EnsureSuperAdmin makes sure a verified super admin with input's email
// exists. No API can grant the role, so a fresh installation is seeded with
// it. An existing account is promoted and keeps its password; created
// reports whether a new account was inserted.
func EnsureSuperAdmin(ctx context.Context, users repository.UserRepository, hasher *auth.PasswordHasher, input SignupInput) (_ *domain.User, created bool, err error) {
	addr := domain.NormalizeEmail(input.Email)
	if addr == "" {
		return nil, false, apperrors.InvalidInput("email is required")
	}
	now := time.Now().UTC()

	existing, err := users.GetByEmail(ctx, addr)
	switch {
	case err == nil:
		if existing.Role == domain.RoleSuperAdmin && existing.IsVerified {
			return existing, false, nil
		}
		existing.Role = domain.RoleSuperAdmin
		existing.IsVerified = true
		existing.UpdatedAt = now
		if err := users.Update(ctx, existing); err != nil {
			return nil, false, fmt.Errorf("promote super admin: %w", err)
		}
		return existing, false, nil
	case !errors.Is(err, apperrors.ErrNotFound):
		return nil, false, fmt.Errorf("look up super admin: %w", err)
	}

	if err := validatePassword(input.Password); err != nil {
		return nil, false, err
	}
	hash, err := hasher.Hash(input.Password)
	if err != nil {
		return nil, false, err
	}

	user := &domain.User{
		ID:           uuid.New().String(),
		Name:         strings.TrimSpace(input.Name),
		Email:        addr,
		Phone:        strings.TrimSpace(input.Phone),
		PasswordHash: hash,
		Role:         domain.RoleSuperAdmin,
		IsVerified:   true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := users.Create(ctx, user); err != nil {
		return nil, false, fmt.Errorf("create super admin: %w", err)
	}
	return user, true, nil
}
