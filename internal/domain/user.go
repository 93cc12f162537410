package domain

import (
	"fmt"
	"time"
)

// Role is the business classification of a user. It drives authorization and
// restricts which users may be assigned as rider or driver on a ride.
type Role int

const (
	RoleRider Role = iota + 1
	RoleDriver
	RoleAdmin
)

// ParseRole maps the wire value of a role onto the closed Role set.
func ParseRole(s string) (Role, error) {
	switch s {
	case "rider":
		return RoleRider, nil
	case "driver":
		return RoleDriver, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return 0, fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) String() string {
	switch r {
	case RoleRider:
		return "rider"
	case RoleDriver:
		return "driver"
	case RoleAdmin:
		return "admin"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

func (r Role) Valid() bool {
	switch r {
	case RoleRider, RoleDriver, RoleAdmin:
		return true
	default:
		return false
	}
}

// CanManageRides reports whether the role may use the ride endpoints.
func (r Role) CanManageRides() bool {
	switch r {
	case RoleAdmin, RoleDriver:
		return true
	case RoleRider:
		return false
	default:
		return false
	}
}

// CanManageUsers reports whether the role may use the user directory endpoints.
func (r Role) CanManageUsers() bool {
	switch r {
	case RoleAdmin:
		return true
	case RoleDriver, RoleRider:
		return false
	default:
		return false
	}
}

// User is the domain representation of a directory entry.
type User struct {
	ID       UserID
	Username string
	Email    string

	FirstName   string
	LastName    string
	PhoneNumber *string

	Role     Role
	IsActive bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserSummary is the identity snapshot embedded in ride responses.
type UserSummary struct {
	ID          UserID
	Username    string
	Email       string
	FirstName   string
	LastName    string
	PhoneNumber *string
	Role        Role
	IsActive    bool
}

func (u User) Summary() UserSummary {
	return UserSummary{
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
