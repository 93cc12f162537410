package riderepo

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wingz-dispatch/ride-records-api/internal/domain"
	"github.com/wingz-dispatch/ride-records-api/internal/geo"
	"github.com/wingz-dispatch/ride-records-api/internal/ports/out/riderepo"
	"github.com/wingz-dispatch/ride-records-api/internal/ports/out/userrepo"
)

// Repo is an in-memory implementation of riderepo.Repository.
// It is safe for concurrent use.
//
// Rider and driver references are resolved against users at read time; a reference to a
// user that no longer exists reads back as nil.
type Repo struct {
	users userrepo.Repository

	mu     sync.RWMutex
	byID   map[domain.RideID]domain.Ride
	events map[domain.RideID][]domain.RideEvent

	locks *rideLocks

	newEventID func() domain.RideEventID
}

func NewRepo(users userrepo.Repository) *Repo {
	return &Repo{
		users:  users,
		byID:   make(map[domain.RideID]domain.Ride),
		events: make(map[domain.RideID][]domain.RideEvent),
		locks:  newRideLocks(),
		newEventID: func() domain.RideEventID {
			return domain.RideEventID(uuid.NewString())
		},
	}
}

func (r *Repo) Create(ctx context.Context, ride domain.Ride) error {
	_ = ctx
	if ride.ID == "" {
		return errors.New("ride id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[ride.ID]; ok {
		return riderepo.ErrAlreadyExists
	}
	r.byID[ride.ID] = cloneRide(ride)
	r.events[ride.ID] = []domain.RideEvent{}
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.RideID) (riderepo.Row, error) {
	r.mu.RLock()
	ride, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return riderepo.Row{}, riderepo.ErrNotFound
	}
	return r.resolve(ctx, cloneRide(ride))
}

func (r *Repo) Update(ctx context.Context, id domain.RideID, at time.Time, mutate riderepo.Mutation) (riderepo.Row, error) {
	unlock := r.locks.lock(id)
	defer unlock()

	r.mu.RLock()
	cur, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return riderepo.Row{}, riderepo.ErrNotFound
	}

	next := cloneRide(cur)
	if err := mutate(&next); err != nil {
		return riderepo.Row{}, err
	}
	next.ID = id
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = at

	r.mu.Lock()
	if desc, emit := domain.StatusChangeDescription(cur.Status, next.Status); emit {
		r.events[id] = append(r.events[id], domain.RideEvent{
			ID:          r.newEventID(),
			RideID:      id,
			Description: desc,
			CreatedAt:   at,
		})
	}
	r.byID[id] = next
	r.mu.Unlock()

	return r.resolve(ctx, cloneRide(next))
}

func (r *Repo) Delete(ctx context.Context, id domain.RideID) error {
	_ = ctx
	unlock := r.locks.lock(id)
	defer unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return riderepo.ErrNotFound
	}
	delete(r.byID, id)
	delete(r.events, id)
	return nil
}

func (r *Repo) List(ctx context.Context, q riderepo.Query) ([]riderepo.Row, error) {
	rows, err := r.filtered(ctx, q.Filter)
	if err != nil {
		return nil, err
	}
	sortRows(rows, q)

	if q.Offset > 0 {
		if q.Offset >= len(rows) {
			return []riderepo.Row{}, nil
		}
		rows = rows[q.Offset:]
	}
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	return rows, nil
}

func (r *Repo) Count(ctx context.Context, f riderepo.Filter) (int, error) {
	rows, err := r.filtered(ctx, f)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (r *Repo) ListEvents(ctx context.Context, id domain.RideID) ([]domain.RideEvent, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.byID[id]; !ok {
		return nil, riderepo.ErrNotFound
	}
	out := append([]domain.RideEvent{}, r.events[id]...)
	sortEvents(out)
	return out, nil
}

func (r *Repo) ListEventsInWindow(ctx context.Context, ids []domain.RideID, from, to time.Time) (map[domain.RideID][]domain.RideEvent, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[domain.RideID][]domain.RideEvent, len(ids))
	for _, id := range ids {
		evs := []domain.RideEvent{}
		for _, e := range r.events[id] {
			if e.CreatedAt.Before(from) || e.CreatedAt.After(to) {
				continue
			}
			evs = append(evs, e)
		}
		sortEvents(evs)
		out[id] = evs
	}
	return out, nil
}

func (r *Repo) filtered(ctx context.Context, f riderepo.Filter) ([]riderepo.Row, error) {
	r.mu.RLock()
	rides := make([]domain.Ride, 0, len(r.byID))
	for _, ride := range r.byID {
		if f.Status != nil && ride.Status != *f.Status {
			continue
		}
		rides = append(rides, cloneRide(ride))
	}
	r.mu.RUnlock()

	out := make([]riderepo.Row, 0, len(rides))
	for _, ride := range rides {
		row, err := r.resolve(ctx, ride)
		if err != nil {
			return nil, err
		}
		if f.RiderEmail != nil && (row.Rider == nil || row.Rider.Email != *f.RiderEmail) {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

// resolve joins the ride with its rider and driver, dropping dangling references.
func (r *Repo) resolve(ctx context.Context, ride domain.Ride) (riderepo.Row, error) {
	row := riderepo.Row{Ride: ride}

	rider, err := r.lookup(ctx, ride.RiderID)
	if err != nil {
		return riderepo.Row{}, err
	}
	if rider == nil {
		row.Ride.RiderID = nil
	}
	row.Rider = rider

	driver, err := r.lookup(ctx, ride.DriverID)
	if err != nil {
		return riderepo.Row{}, err
	}
	if driver == nil {
		row.Ride.DriverID = nil
	}
	row.Driver = driver
	return row, nil
}

func (r *Repo) lookup(ctx context.Context, id *domain.UserID) (*domain.UserSummary, error) {
	if id == nil || r.users == nil {
		return nil, nil
	}
	u, err := r.users.GetByID(ctx, *id)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	s := u.Summary()
	return &s, nil
}

func sortRows(rows []riderepo.Row, q riderepo.Query) {
	byDistance := q.OrderBy == riderepo.OrderDistanceToPickup && q.Reference != nil
	var dist map[domain.RideID]float64
	if byDistance {
		dist = make(map[domain.RideID]float64, len(rows))
		for _, row := range rows {
			dist[row.Ride.ID] = geo.Between(*q.Reference, row.Ride.Pickup)
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].Ride, rows[j].Ride
		if byDistance {
			da, db := dist[a.ID], dist[b.ID]
			if da != db {
				if q.Descending {
					return da > db
				}
				return da < db
			}
		} else if !a.PickupTime.Equal(b.PickupTime) {
			if q.Descending {
				return a.PickupTime.After(b.PickupTime)
			}
			return a.PickupTime.Before(b.PickupTime)
		}
		return string(a.ID) < string(b.ID)
	})
}

func sortEvents(evs []domain.RideEvent) {
	sort.SliceStable(evs, func(i, j int) bool {
		return evs[i].CreatedAt.Before(evs[j].CreatedAt)
	})
}

func cloneRide(r domain.Ride) domain.Ride {
	out := r
	out.RiderID = cloneUserIDPtr(r.RiderID)
	out.DriverID = cloneUserIDPtr(r.DriverID)
	return out
}

func cloneUserIDPtr(p *domain.UserID) *domain.UserID {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
