package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/authgate/internal/domain"
	"github.com/utafrali/authgate/internal/event"
	apperrors "github.com/utafrali/authgate/pkg/errors"
)

var (
	superAdmin = Actor{Email: "root@example.com", Role: domain.RoleSuperAdmin}
	admin      = Actor{Email: "admin@example.com", Role: domain.RoleAdmin}
	moderator  = Actor{Email: "mod@example.com", Role: domain.RoleModerator}
)

// --- ChangeRole Tests ---

func TestChangeRole_Success(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedSession(t, testEmail, domain.RoleCustomer)

	env.repo.On("GetByEmail", mock.Anything, testEmail).Return(env.newUser(t, domain.RoleCustomer), nil)
	env.repo.On("Update", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		return u.Role == domain.RoleModerator
	})).Return(nil)

	user, err := env.svc.ChangeRole(ctx, "Jane@Example.com", "moderator", admin)

	require.NoError(t, err)
	assert.Equal(t, domain.RoleModerator, user.Role)
	assert.False(t, env.mr.Exists(env.keys.AccessToken(testEmail)))
	assert.False(t, env.mr.Exists(env.keys.RefreshToken(testEmail)))
	assert.Equal(t, []string{event.TopicUserRoleChanged}, env.events.published())
	env.repo.AssertExpectations(t)
}

func TestChangeRole_UserNotFound(t *testing.T) {
	env := newTestEnv(t)
	env.repo.On("GetByEmail", mock.Anything, testEmail).Return(nil, apperrors.ErrNotFound)

	_, err := env.svc.ChangeRole(context.Background(), testEmail, "admin", superAdmin)

	assertAppError(t, err, apperrors.ErrNotFound, "User not found!")
}

func TestChangeRole_InvalidRole(t *testing.T) {
	env := newTestEnv(t)
	env.repo.On("GetByEmail", mock.Anything, testEmail).Return(env.newUser(t, domain.RoleCustomer), nil)

	_, err := env.svc.ChangeRole(context.Background(), testEmail, "owner", superAdmin)

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	env.repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestChangeRole_Denied(t *testing.T) {
	tests := []struct {
		name    string
		actor   Actor
		target  domain.Role
		newRole string
	}{
		{"moderator promotes customer", moderator, domain.RoleCustomer, "moderator"},
		{"admin promotes to admin", admin, domain.RoleCustomer, "admin"},
		{"admin demotes admin", admin, domain.RoleAdmin, "customer"},
		{"super admin touches super admin", superAdmin, domain.RoleSuperAdmin, "admin"},
		{"super admin grants super admin", superAdmin, domain.RoleCustomer, "superAdmin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.repo.On("GetByEmail", mock.Anything, testEmail).Return(env.newUser(t, tt.target), nil)

			_, err := env.svc.ChangeRole(context.Background(), testEmail, tt.newRole, tt.actor)

			assertAppError(t, err, apperrors.ErrForbidden, "You don't have permission to perform this action")
			env.repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
		})
	}
}

func TestChangeRole_UpdateError(t *testing.T) {
	env := newTestEnv(t)
	env.repo.On("GetByEmail", mock.Anything, testEmail).Return(env.newUser(t, domain.RoleCustomer), nil)
	env.repo.On("Update", mock.Anything, mock.Anything).Return(errors.New("db down"))

	_, err := env.svc.ChangeRole(context.Background(), testEmail, "seller", superAdmin)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "update role")
	assert.Empty(t, env.events.published())
}

// --- DeleteUser Tests ---

const targetID = "0b8e5c3e-7a53-4c43-9a3e-4a4fbb0f1a01"

func TestDeleteUser_Success(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedSession(t, testEmail, domain.RoleCustomer)
	putVerification(t, env, domain.VerificationData{Code: "A1B2C3"})
	putReset(t, env, domain.ResetPasswordData{Token: "abc"})

	env.repo.On("GetByID", mock.Anything, targetID).Return(env.newUser(t, domain.RoleCustomer), nil)
	env.repo.On("Delete", mock.Anything, targetID).Return(nil)

	user, err := env.svc.DeleteUser(ctx, targetID, superAdmin)

	require.NoError(t, err)
	assert.Equal(t, testEmail, user.Email)
	for _, key := range []string{
		env.keys.AccessToken(testEmail),
		env.keys.RefreshToken(testEmail),
		env.keys.Verification(testEmail),
		env.keys.Reset(testEmail),
	} {
		assert.False(t, env.mr.Exists(key), key)
	}
	assert.Equal(t, []string{event.TopicUserDeleted}, env.events.published())
	env.repo.AssertExpectations(t)
}

func TestDeleteUser_NotFound(t *testing.T) {
	env := newTestEnv(t)
	env.repo.On("GetByID", mock.Anything, targetID).Return(nil, apperrors.ErrNotFound)

	_, err := env.svc.DeleteUser(context.Background(), targetID, superAdmin)

	assertAppError(t, err, apperrors.ErrNotFound, "User not found!")
}

func TestDeleteUser_Forbidden(t *testing.T) {
	tests := []struct {
		name    string
		actor   Actor
		target  domain.Role
		email   string
		message string
	}{
		{"admin actor", admin, domain.RoleCustomer, testEmail, "Only super admin can delete users"},
		{"super admin target", superAdmin, domain.RoleSuperAdmin, testEmail, "Cannot delete super admin"},
		{"self", Actor{Email: "JANE@example.com", Role: domain.RoleSuperAdmin}, domain.RoleAdmin, testEmail, "Cannot delete your own account"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			target := env.newUser(t, tt.target)
			target.Email = tt.email
			env.repo.On("GetByID", mock.Anything, targetID).Return(target, nil)

			_, err := env.svc.DeleteUser(context.Background(), targetID, tt.actor)

			assertAppError(t, err, apperrors.ErrForbidden, tt.message)
			env.repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
		})
	}
}
