package rides

import (
	"time"

	"github.com/wingz-dispatch/ride-records-api/internal/domain"
)

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

type CreateRideInput struct {
	RiderID    domain.UserID
	DriverID   *domain.UserID
	Status     *domain.RideStatus // defaults to pending
	Pickup     domain.Coordinate
	Dropoff    domain.Coordinate
	PickupTime time.Time
}

// UpdateRideInput is a partial update. Only DriverID may be null.
type UpdateRideInput struct {
	Status           Optional[domain.RideStatus]
	RiderID          Optional[domain.UserID]
	DriverID         Optional[domain.UserID]
	PickupLatitude   Optional[float64]
	PickupLongitude  Optional[float64]
	DropoffLatitude  Optional[float64]
	DropoffLongitude Optional[float64]
	PickupTime       Optional[time.Time]
}

type ListRidesInput struct {
	Status     *domain.RideStatus
	RiderEmail *string
	// Ordering is one of pickup_time, -pickup_time, distance_to_pickup, -distance_to_pickup.
	// Anything else selects the default, -pickup_time.
	Ordering string
	// Reference enables distance ordering and the per-ride distance_to_pickup value.
	Reference *domain.Coordinate
}
