package repository

import (
	"context"

	"github.com/utafrali/authgate/internal/domain"
	"github.com/utafrali/authgate/pkg/pagination"
)

// UserFilter narrows a user listing. Search matches name, email, role and
// phone case-insensitively.
type UserFilter struct {
	Search string
	pagination.Params
}

// UserRepository defines the interface for user persistence operations.
type UserRepository interface {
	// Create inserts a new user. A duplicate email or phone yields an
	// AlreadyExists error.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by their unique identifier.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail retrieves a user, including the password hash, by their
	// normalized email address.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// Update persists the full mutable state of an existing user.
	Update(ctx context.Context, user *domain.User) error

	// Delete removes a user from the store by their identifier.
	Delete(ctx context.Context, id string) error

	// List returns one page of users, newest first, and the total match count.
	List(ctx context.Context, filter UserFilter) ([]domain.User, int, error)
}

// ShortURLRepository defines the interface for short URL persistence.
type ShortURLRepository interface {
	Create(ctx context.Context, u *domain.ShortURL) error
	GetByCode(ctx context.Context, code string) (*domain.ShortURL, error)
	GetByTarget(ctx context.Context, target string) (*domain.ShortURL, error)
	List(ctx context.Context) ([]domain.ShortURL, error)

	// RecordVisit increments the click counter and appends the visit in a
	// single transaction.
	RecordVisit(ctx context.Context, v *domain.Visit) error

	// AddVisit appends a visit without counting a click.
	AddVisit(ctx context.Context, v *domain.Visit) error

	// ListVisits returns the most recent visits of a short URL, newest first.
	ListVisits(ctx context.Context, shortURLID string, limit int) ([]domain.Visit, error)
}
