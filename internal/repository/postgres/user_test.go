package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/authgate/internal/domain"
	"github.com/utafrali/authgate/internal/repository"
	"github.com/utafrali/authgate/pkg/database"
	apperrors "github.com/utafrali/authgate/pkg/errors"
	"github.com/utafrali/authgate/pkg/pagination"
)

func newUserTestFixture(t *testing.T) (*UserRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	repo := NewUserRepository(mock)
	return repo, mock
}

func sampleUser() *domain.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.User{
		ID:           "0b8f6c1e-3f0a-4f4e-9d57-5a2b8d0c1a11",
		Name:         "Alice Smith",
		Email:        "alice@example.com",
		Phone:        "01712345678",
		PasswordHash: "hash-abc",
		Role:         domain.RoleCustomer,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func userColumnNames() []string {
	return []string{
		"id", "name", "email", "phone", "password_hash", "role", "is_verified", "last_login",
		"failed_login_attempts", "last_failed_login", "account_locked", "account_locked_until",
		"created_at", "updated_at",
	}
}

func userValues(u *domain.User) []any {
	return []any{
		u.ID, u.Name, u.Email, u.Phone, u.PasswordHash, u.Role, u.IsVerified, u.LastLogin,
		u.FailedLoginAttempts, u.LastFailedLogin, u.AccountLocked, u.AccountLockedUntil,
		u.CreatedAt, u.UpdatedAt,
	}
}

func userRow(u *domain.User) *pgxmock.Rows {
	return pgxmock.NewRows(userColumnNames()).AddRow(userValues(u)...)
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: database.UniqueViolation, ConstraintName: constraint}
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestUserRepository_Create_Success(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	u := sampleUser()

	mock.ExpectExec("INSERT INTO users").
		WithArgs(userValues(u)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Create(context.Background(), u)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_Create_DuplicateEmail(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	u := sampleUser()

	mock.ExpectExec("INSERT INTO users").
		WithArgs(userValues(u)...).
		WillReturnError(uniqueViolation("users_email_key"))

	err := repo.Create(context.Background(), u)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyExists), "expected ErrAlreadyExists, got: %v", err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "User already exists", appErr.Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_Create_DuplicatePhone(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	u := sampleUser()

	mock.ExpectExec("INSERT INTO users").
		WithArgs(userValues(u)...).
		WillReturnError(uniqueViolation("users_phone_key"))

	err := repo.Create(context.Background(), u)
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyExists))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_Create_OtherError(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	u := sampleUser()

	mock.ExpectExec("INSERT INTO users").
		WithArgs(userValues(u)...).
		WillReturnError(errors.New("connection reset"))

	err := repo.Create(context.Background(), u)
	require.Error(t, err)
	assert.False(t, errors.Is(err, apperrors.ErrAlreadyExists))
	assert.Contains(t, err.Error(), "insert user")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// GetByID / GetByEmail
// ---------------------------------------------------------------------------

func TestUserRepository_GetByID_Success(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	u := sampleUser()

	mock.ExpectQuery("SELECT .+ FROM users WHERE id =").
		WithArgs(u.ID).
		WillReturnRows(userRow(u))

	got, err := repo.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, u.Email, got.Email)
	assert.Equal(t, u.Name, got.Name)
	assert.Equal(t, domain.RoleCustomer, got.Role)
	assert.Nil(t, got.AccountLockedUntil)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM users WHERE id =").
		WithArgs("missing-id").
		WillReturnError(pgx.ErrNoRows)

	got, err := repo.GetByID(context.Background(), "missing-id")
	assert.Nil(t, got)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound), "expected ErrNotFound, got: %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByEmail_NormalizesAddress(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	u := sampleUser()
	locked := u.CreatedAt.Add(15 * time.Minute)
	u.FailedLoginAttempts = 5
	u.AccountLocked = true
	u.AccountLockedUntil = &locked

	mock.ExpectQuery("SELECT .+ FROM users WHERE email =").
		WithArgs("alice@example.com").
		WillReturnRows(userRow(u))

	got, err := repo.GetByEmail(context.Background(), "  Alice@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "hash-abc", got.PasswordHash)
	assert.Equal(t, 5, got.FailedLoginAttempts)
	assert.True(t, got.AccountLocked)
	require.NotNil(t, got.AccountLockedUntil)
	assert.True(t, locked.Equal(*got.AccountLockedUntil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByEmail_NotFound(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM users WHERE email =").
		WithArgs("nobody@example.com").
		WillReturnError(pgx.ErrNoRows)

	got, err := repo.GetByEmail(context.Background(), "nobody@example.com")
	assert.Nil(t, got)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// Update
// ---------------------------------------------------------------------------

func updateArgs(u *domain.User) []any {
	return []any{
		u.Name, u.Email, u.Phone, u.PasswordHash, u.Role, u.IsVerified,
		u.LastLogin, u.FailedLoginAttempts, u.LastFailedLogin,
		u.AccountLocked, u.AccountLockedUntil, u.UpdatedAt, u.ID,
	}
}

func TestUserRepository_Update_Success(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	u := sampleUser()
	u.IsVerified = true

	mock.ExpectExec("UPDATE users SET").
		WithArgs(updateArgs(u)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.Update(context.Background(), u)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_Update_NotFound(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	u := sampleUser()

	mock.ExpectExec("UPDATE users SET").
		WithArgs(updateArgs(u)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.Update(context.Background(), u)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound), "expected ErrNotFound, got: %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_Update_DuplicatePhone(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	u := sampleUser()

	mock.ExpectExec("UPDATE users SET").
		WithArgs(updateArgs(u)...).
		WillReturnError(uniqueViolation("users_phone_key"))

	err := repo.Update(context.Background(), u)
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyExists))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// Delete
// ---------------------------------------------------------------------------

func TestUserRepository_Delete_Success(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM users WHERE id =").
		WithArgs("u-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	assert.NoError(t, repo.Delete(context.Background(), "u-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_Delete_NotFound(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM users WHERE id =").
		WithArgs("u-404").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := repo.Delete(context.Background(), "u-404")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// List
// ---------------------------------------------------------------------------

func TestUserRepository_List_SearchAndPaging(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	u := sampleUser()
	cols := append(userColumnNames(), "total_count")
	rows := pgxmock.NewRows(cols).AddRow(append(userValues(u), 11)...)

	mock.ExpectQuery(`FROM users WHERE \(name ILIKE \$1 OR email ILIKE \$1 OR role ILIKE \$1 OR phone ILIKE \$1\) ORDER BY created_at DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("%ali%", 5, 5).
		WillReturnRows(rows)

	users, total, err := repo.List(context.Background(), repository.UserFilter{
		Search: " ali ",
		Params: pagination.Params{Page: 2, PerPage: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, 11, total)
	require.Len(t, users, 1)
	assert.Equal(t, u.Email, users[0].Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_List_NoSearchUsesDefaults(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery(`FROM users ORDER BY created_at DESC LIMIT \$1 OFFSET \$2`).
		WithArgs(pagination.DefaultPerPage, 0).
		WillReturnRows(pgxmock.NewRows(append(userColumnNames(), "total_count")))

	users, total, err := repo.List(context.Background(), repository.UserFilter{})
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.Zero(t, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_List_EscapesWildcards(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("FROM users WHERE").
		WithArgs(`%100\%\_off%`, pagination.DefaultPerPage, 0).
		WillReturnRows(pgxmock.NewRows(append(userColumnNames(), "total_count")))

	_, _, err := repo.List(context.Background(), repository.UserFilter{Search: "100%_off"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_List_QueryError(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("FROM users").
		WithArgs(pagination.DefaultPerPage, 0).
		WillReturnError(errors.New("timeout"))

	_, _, err := repo.List(context.Background(), repository.UserFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list users")
	assert.NoError(t, mock.ExpectationsWereMet())
}
