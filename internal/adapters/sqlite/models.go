package sqlite

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Timestamps are stored as UTC unix nanoseconds so that ordering and window bounds compare
// numerically.

type User struct {
	ID           string  `gorm:"primaryKey;type:text"`
	Username     string  `gorm:"type:text;not null;uniqueIndex:idx_users_username"`
	Email        string  `gorm:"type:text;not null;index"`
	PasswordHash string  `gorm:"type:text;not null;default:''"`
	FirstName    string  `gorm:"type:text;not null;default:''"`
	LastName     string  `gorm:"type:text;not null;default:''"`
	PhoneNumber  *string `gorm:"type:text"`
	Role         int     `gorm:"not null"`
	IsActive     bool    `gorm:"not null"`
	CreatedAt    int64   `gorm:"not null;autoCreateTime:false"`
	UpdatedAt    int64   `gorm:"not null;autoUpdateTime:false"`
}

func (User) TableName() string { return "users" }

type Ride struct {
	ID               string  `gorm:"primaryKey;type:text"`
	Status           string  `gorm:"type:text;not null;index"`
	RiderID          *string `gorm:"type:text;index"`
	DriverID         *string `gorm:"type:text;index"`
	PickupLatitude   float64 `gorm:"not null"`
	PickupLongitude  float64 `gorm:"not null"`
	DropoffLatitude  float64 `gorm:"not null"`
	DropoffLongitude float64 `gorm:"not null"`
	PickupTime       int64   `gorm:"not null;index"`
	CreatedAt        int64   `gorm:"not null;autoCreateTime:false"`
	UpdatedAt        int64   `gorm:"not null;autoUpdateTime:false"`
	// Version is bumped on every update; writers compare-and-swap on it.
	Version int64 `gorm:"not null;default:0"`
}

func (Ride) TableName() string { return "rides" }

type RideEvent struct {
	Seq         int64  `gorm:"primaryKey;autoIncrement"`
	ID          string `gorm:"type:text;not null;uniqueIndex"`
	RideID      string `gorm:"type:text;not null;index:idx_ride_events_ride_created,priority:1"`
	Description string `gorm:"type:varchar(255);not null"`
	CreatedAt   int64  `gorm:"not null;index:idx_ride_events_ride_created,priority:2;autoCreateTime:false"`
}

func (RideEvent) TableName() string { return "ride_events" }

type IdempotencyKey struct {
	Key         string `gorm:"primaryKey;column:idempotency_key;type:text"`
	CallerID    string `gorm:"primaryKey;type:text"`
	Method      string `gorm:"primaryKey;type:text"`
	Route       string `gorm:"primaryKey;type:text"`
	BodyHash    string `gorm:"primaryKey;type:text"`
	StatusCode  int    `gorm:"not null"`
	ContentType string `gorm:"type:text;not null"`
	Body        []byte `gorm:"not null"`
	CreatedAt   int64  `gorm:"not null;autoCreateTime:false"`
}

func (IdempotencyKey) TableName() string { return "idempotency_keys" }

func ToNanos(t time.Time) int64 { return t.UTC().UnixNano() }

func FromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

// IsUniqueViolation reports whether err came from a UNIQUE or PRIMARY KEY constraint.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
