package users

import "github.com/wingz-dispatch/ride-records-api/internal/domain"

// Optional is a tri-state field used to distinguish:
// - unspecified (omitted)
// - specified as null
// - specified with a value
type Optional[T any] struct {
	specified bool
	isNull    bool
	value     T
}

func Unspecified[T any]() Optional[T] { return Optional[T]{} }
func Null[T any]() Optional[T]        { return Optional[T]{specified: true, isNull: true} }
func Some[T any](v T) Optional[T]     { return Optional[T]{specified: true, value: v} }

func (o Optional[T]) IsSpecified() bool { return o.specified }
func (o Optional[T]) IsNull() bool      { return o.specified && o.isNull }
func (o Optional[T]) Value() T          { return o.value }

type CreateUserInput struct {
	Username    string
	Email       string
	Password    string
	FirstName   string
	LastName    string
	PhoneNumber *string
	Role        *domain.Role // defaults to rider
}

// UpdateUserInput is a partial update. For PUT the HTTP layer requires username and email.
type UpdateUserInput struct {
	Username    Optional[string]
	Email       Optional[string]
	Password    Optional[string] // empty or unspecified keeps the current password
	FirstName   Optional[string]
	LastName    Optional[string]
	PhoneNumber Optional[string] // may be null
	Role        Optional[domain.Role]
	IsActive    Optional[bool]
}

type ListUsersInput struct {
	Role     *domain.Role
	IsActive *bool
	Search   string
}
