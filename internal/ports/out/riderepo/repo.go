package riderepo

import (
	"context"
	"time"

	"github.com/wingz-dispatch/ride-records-api/internal/domain"
)

// Row is a ride joined with the identity summaries of its rider and driver.
type Row struct {
	Ride   domain.Ride
	Rider  *domain.UserSummary
	Driver *domain.UserSummary
}

// Filter narrows List/Count. Nil fields mean "no filter".
type Filter struct {
	Status *domain.RideStatus
	// RiderEmail matches the rider's email exactly.
	RiderEmail *string
}

type OrderField int

const (
	OrderPickupTime OrderField = iota
	OrderDistanceToPickup
)

// Query describes one page of rides.
//
// OrderDistanceToPickup requires Reference; without it implementations order by pickup time.
// Ties are always broken by ride ID ascending.
type Query struct {
	Filter Filter

	OrderBy    OrderField
	Descending bool
	Reference  *domain.Coordinate

	Limit  int
	Offset int
}

// Mutation edits a ride in place. It must not change the ride ID.
type Mutation func(r *domain.Ride) error

// Repository owns rides and their audit events.
type Repository interface {
	Create(ctx context.Context, r domain.Ride) error
	GetByID(ctx context.Context, id domain.RideID) (Row, error)

	// Update is the only way to change a persisted ride. It loads the current ride, applies mutate
	// and persists the result as one step serialized per ride. When the persisted status changes
	// and domain.StatusChangeDescription reports an event, exactly one RideEvent stamped with `at`
	// is appended in the same step. Updates to different rides do not contend.
	Update(ctx context.Context, id domain.RideID, at time.Time, mutate Mutation) (Row, error)

	// Delete removes the ride and all of its events.
	Delete(ctx context.Context, id domain.RideID) error

	// List applies Filter, ordering and Limit/Offset in a single lookup (riders/drivers joined).
	List(ctx context.Context, q Query) ([]Row, error)
	Count(ctx context.Context, f Filter) (int, error)

	// ListEvents returns the full event history of a ride ordered by CreatedAt ascending.
	ListEvents(ctx context.Context, id domain.RideID) ([]domain.RideEvent, error)

	// ListEventsInWindow returns, in one bulk lookup, the events of every requested ride whose
	// CreatedAt lies in [from, to], ordered by CreatedAt ascending. Every requested ID is present
	// in the result; rides without qualifying events map to an empty, non-nil slice.
	ListEventsInWindow(ctx context.Context, ids []domain.RideID, from, to time.Time) (map[domain.RideID][]domain.RideEvent, error)
}
