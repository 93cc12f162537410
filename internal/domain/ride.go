package domain

import (
	"fmt"
	"time"
)

type RideStatus string

const (
	RideStatusPending   RideStatus = "pending"
	RideStatusAccepted  RideStatus = "accepted"
	RideStatusEnRoute   RideStatus = "en-route"
	RideStatusPickup    RideStatus = "pickup"
	RideStatusDropoff   RideStatus = "dropoff"
	RideStatusCompleted RideStatus = "completed"
	RideStatusCancelled RideStatus = "cancelled"
)

// ParseRideStatus validates a wire value against the known statuses.
// Transitions between statuses are not restricted.
func ParseRideStatus(s string) (RideStatus, error) {
	switch st := RideStatus(s); st {
	case RideStatusPending,
		RideStatusAccepted,
		RideStatusEnRoute,
		RideStatusPickup,
		RideStatusDropoff,
		RideStatusCompleted,
		RideStatusCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("unknown ride status %q", s)
	}
}

// StatusChangeDescription returns the audit event description that must be
// recorded when a ride moves from old to next. ok is false when the change
// produces no event.
func StatusChangeDescription(old, next RideStatus) (description string, ok bool) {
	if old == next {
		return "", false
	}
	switch next {
	case RideStatusPickup, RideStatusDropoff:
		return "Status changed to " + string(next), true
	default:
		return "", false
	}
}

// MaxEventDescriptionLen bounds RideEvent.Description (in runes).
const MaxEventDescriptionLen = 255

// Coordinate is a WGS84 point in degrees.
type Coordinate struct {
	Latitude  float64
	Longitude float64
}

type Ride struct {
	ID     RideID
	Status RideStatus

	// Rider and driver are weak references: they become nil when the user is removed.
	RiderID  *UserID
	DriverID *UserID

	Pickup     Coordinate
	Dropoff    Coordinate
	PickupTime time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RideEvent is an append-only audit record owned by a ride.
type RideEvent struct {
	ID          RideEventID
	RideID      RideID
	Description string
	CreatedAt   time.Time
}

// RideDetails is the read model returned by the ride endpoints.
type RideDetails struct {
	Ride

	Rider  *UserSummary
	Driver *UserSummary

	// TodaysEvents holds events inside the trailing window; never nil.
	TodaysEvents []RideEvent

	// DistanceToPickupKm is nil when no reference coordinate was supplied.
	DistanceToPickupKm *float64
}
