package userrepo

import (
	"context"
	"time"

	"github.com/wingz-dispatch/ride-records-api/internal/domain"
)

// User is the persistence shape used by the user repository.
// It carries the password hash, so it must never be used as an HTTP DTO.
type User struct {
	ID       domain.UserID
	Username string
	Email    string

	// PasswordHash is a bcrypt hash; empty means the user cannot log in.
	PasswordHash string

	FirstName   string
	LastName    string
	PhoneNumber *string

	Role     domain.Role
	IsActive bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ListFilter narrows List/Count. Zero values mean "no filter".
type ListFilter struct {
	Role     *domain.Role
	IsActive *bool
	// Search is a case-insensitive substring match over username, email, first and last name.
	Search string

	Limit  int
	Offset int
}

// Repository provides access to persisted users.
//
// Result ordering expectations:
// - List returns users ordered by Username ascending, then ID.
type Repository interface {
	Create(ctx context.Context, u User) error
	Update(ctx context.Context, u User) error
	Delete(ctx context.Context, id domain.UserID) error

	GetByID(ctx context.Context, id domain.UserID) (User, error)
	GetByUsername(ctx context.Context, username string) (User, error)

	// List ignores Limit when it is <= 0.
	List(ctx context.Context, f ListFilter) ([]User, error)
	// Count ignores Limit and Offset.
	Count(ctx context.Context, f ListFilter) (int, error)
}

// Summary projects a stored user onto the identity snapshot embedded in rides.
func (u User) Summary() domain.UserSummary {
	return domain.UserSummary{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		PhoneNumber: u.PhoneNumber,
		Role:        u.Role,
		IsActive:    u.IsActive,
	}
}
