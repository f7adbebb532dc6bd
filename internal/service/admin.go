package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/utafrali/authgate/internal/domain"
	apperrors "github.com/utafrali/authgate/pkg/errors"
	"github.com/utafrali/authgate/pkg/logger"
	"github.com/utafrali/authgate/pkg/tracing"
)

// Actor identifies the authenticated caller of an administrative operation.
type Actor struct {
	Email string
	Role  domain.Role
}

// ChangeRole moves the user identified by addr to newRole if actor's role
// allows it. The target's cached sessions are revoked so the next request
// carries the new role.
func (s *AuthService) ChangeRole(ctx context.Context, addr, newRole string, actor Actor) (_ *domain.User, err error) {
	ctx, span := tracer.Start(ctx, "AuthService.ChangeRole")
	defer func() { tracing.End(span, err) }()

	user, err := s.users.GetByEmail(ctx, domain.NormalizeEmail(addr))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFoundMsg("User not found!")
		}
		return nil, fmt.Errorf("get user for role change: %w", err)
	}

	if !domain.IsValidRole(newRole) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("Invalid role %q", newRole))
	}
	role := domain.Role(newRole)

	if !CanModifyRole(actor.Role, user.Role, role) {
		s.logger.WarnContext(ctx, "role change denied",
			logger.Email(actor.Email),
			slog.String("actor_role", actor.Role.String()),
			slog.String("target_role", user.Role.String()),
			slog.String("new_role", newRole),
		)
		return nil, apperrors.Forbidden("You don't have permission to perform this action")
	}

	oldRole := user.Role
	user.Role = role
	user.UpdatedAt = s.now()
	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("update role: %w", err)
	}

	s.revokeSessions(ctx, user.Email)

	if err := s.producer.PublishUserRoleChanged(ctx, user, oldRole, actor.Email); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.role_changed event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "role changed",
		slog.String("user_id", user.ID),
		slog.String("old_role", oldRole.String()),
		slog.String("new_role", user.Role.String()),
	)
	return user, nil
}

// DeleteUser removes the user with id. Only a super admin may delete, and
// never another super admin or themselves. Every cached entry of the user
// is purged.
func (s *AuthService) DeleteUser(ctx context.Context, id string, actor Actor) (_ *domain.User, err error) {
	ctx, span := tracer.Start(ctx, "AuthService.DeleteUser")
	defer func() { tracing.End(span, err) }()

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFoundMsg("User not found!")
		}
		return nil, fmt.Errorf("get user for deletion: %w", err)
	}

	switch {
	case actor.Role != domain.RoleSuperAdmin:
		return nil, apperrors.Forbidden("Only super admin can delete users")
	case user.Role == domain.RoleSuperAdmin:
		return nil, apperrors.Forbidden("Cannot delete super admin")
	case user.Email == domain.NormalizeEmail(actor.Email):
		return nil, apperrors.Forbidden("Cannot delete your own account")
	}

	if err := s.users.Delete(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("delete user: %w", err)
	}

	purge := []string{
		s.keys.AccessToken(user.Email),
		s.keys.RefreshToken(user.Email),
		s.keys.Verification(user.Email),
		s.keys.Reset(user.Email),
	}
	if err := s.store.Delete(context.WithoutCancel(ctx), purge...); err != nil {
		s.logger.WarnContext(ctx, "failed to purge cached entries of deleted user",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.producer.PublishUserDeleted(ctx, user, actor.Email); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.deleted event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user deleted",
		slog.String("user_id", user.ID),
		logger.Email(actor.Email),
	)
	return user, nil
}
