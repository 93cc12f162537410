package riderepo

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wingz-dispatch/ride-records-api/internal/adapters/sqlite"
	sqliteuserrepo "github.com/wingz-dispatch/ride-records-api/internal/adapters/sqlite/userrepo"
	"github.com/wingz-dispatch/ride-records-api/internal/domain"
	"github.com/wingz-dispatch/ride-records-api/internal/geo"
	"github.com/wingz-dispatch/ride-records-api/internal/ports/out/riderepo"
)

// maxUpdateAttempts bounds the compare-and-swap loop in Update.
const maxUpdateAttempts = 5

// Repo is a SQLite (gorm) implementation of riderepo.Repository.
//
// Update is optimistic: it reads the ride, applies the mutation and writes back only if the
// version column is unchanged, retrying on a lost race. Exhausted retries surface as
// riderepo.ErrConflict.
type Repo struct {
	db *gorm.DB

	newEventID func() domain.RideEventID
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{
		db: db,
		newEventID: func() domain.RideEventID {
			return domain.RideEventID(uuid.NewString())
		},
	}
}

func (r *Repo) Create(ctx context.Context, ride domain.Ride) error {
	if r.db == nil {
		return errors.New("nil sqlite db")
	}
	m := toModel(ride)
	m.Version = 0
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		if sqlite.IsUniqueViolation(err) {
			return riderepo.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.RideID) (riderepo.Row, error) {
	if r.db == nil {
		return riderepo.Row{}, errors.New("nil sqlite db")
	}
	m, err := r.load(ctx, id)
	if err != nil {
		return riderepo.Row{}, err
	}
	rows, err := r.resolve(ctx, []sqlite.Ride{m})
	if err != nil {
		return riderepo.Row{}, err
	}
	return rows[0], nil
}

func (r *Repo) Update(ctx context.Context, id domain.RideID, at time.Time, mutate riderepo.Mutation) (riderepo.Row, error) {
	if r.db == nil {
		return riderepo.Row{}, errors.New("nil sqlite db")
	}
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		cur, err := r.load(ctx, id)
		if err != nil {
			return riderepo.Row{}, err
		}
		prev := toDomain(cur)
		next := toDomain(cur)
		if err := mutate(&next); err != nil {
			return riderepo.Row{}, err
		}
		next.ID = id
		next.CreatedAt = prev.CreatedAt
		next.UpdatedAt = at

		applied := false
		err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			m := toModel(next)
			res := tx.Model(&sqlite.Ride{}).
				Where("id = ? AND version = ?", cur.ID, cur.Version).
				Updates(map[string]any{
					"status":            m.Status,
					"rider_id":          m.RiderID,
					"driver_id":         m.DriverID,
					"pickup_latitude":   m.PickupLatitude,
					"pickup_longitude":  m.PickupLongitude,
					"dropoff_latitude":  m.DropoffLatitude,
					"dropoff_longitude": m.DropoffLongitude,
					"pickup_time":       m.PickupTime,
					"updated_at":        m.UpdatedAt,
					"version":           cur.Version + 1,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return nil
			}
			applied = true

			if desc, emit := domain.StatusChangeDescription(prev.Status, next.Status); emit {
				ev := sqlite.RideEvent{
					ID:          string(r.newEventID()),
					RideID:      string(id),
					Description: desc,
					CreatedAt:   sqlite.ToNanos(at),
				}
				if err := tx.Create(&ev).Error; err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return riderepo.Row{}, err
		}
		if applied {
			return r.GetByID(ctx, id)
		}
	}
	return riderepo.Row{}, riderepo.ErrConflict
}

func (r *Repo) Delete(ctx context.Context, id domain.RideID) error {
	if r.db == nil {
		return errors.New("nil sqlite db")
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", string(id)).Delete(&sqlite.Ride{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return riderepo.ErrNotFound
		}
		return tx.Where("ride_id = ?", string(id)).Delete(&sqlite.RideEvent{}).Error
	})
}

func (r *Repo) List(ctx context.Context, q riderepo.Query) ([]riderepo.Row, error) {
	if r.db == nil {
		return nil, errors.New("nil sqlite db")
	}
	if q.OrderBy == riderepo.OrderDistanceToPickup && q.Reference != nil {
		return r.listByDistance(ctx, q)
	}

	dir := " ASC"
	if q.Descending {
		dir = " DESC"
	}
	tx := r.filtered(ctx, q.Filter).Order("rides.pickup_time" + dir).Order("rides.id ASC")
	tx = paginate(tx, q.Limit, q.Offset)

	var models []sqlite.Ride
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.resolve(ctx, models)
}

// listByDistance ranks the filtered pickups in Go (SQLite has no trigonometry built in),
// then loads only the requested page.
func (r *Repo) listByDistance(ctx context.Context, q riderepo.Query) ([]riderepo.Row, error) {
	var points []sqlite.Ride
	if err := r.filtered(ctx, q.Filter).
		Select("rides.id", "rides.pickup_latitude", "rides.pickup_longitude").
		Find(&points).Error; err != nil {
		return nil, err
	}

	dist := make(map[string]float64, len(points))
	for _, p := range points {
		dist[p.ID] = geo.Distance(q.Reference.Latitude, q.Reference.Longitude, p.PickupLatitude, p.PickupLongitude)
	}
	sort.SliceStable(points, func(i, j int) bool {
		di, dj := dist[points[i].ID], dist[points[j].ID]
		if di != dj {
			if q.Descending {
				return di > dj
			}
			return di < dj
		}
		return points[i].ID < points[j].ID
	})

	start := min(max(q.Offset, 0), len(points))
	end := len(points)
	if q.Limit > 0 {
		end = min(start+q.Limit, len(points))
	}
	page := points[start:end]
	if len(page) == 0 {
		return []riderepo.Row{}, nil
	}

	ids := make([]string, 0, len(page))
	for _, p := range page {
		ids = append(ids, p.ID)
	}
	var models []sqlite.Ride
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, err
	}
	pos := make(map[string]int, len(ids))
	for i, id := range ids {
		pos[id] = i
	}
	sort.Slice(models, func(i, j int) bool { return pos[models[i].ID] < pos[models[j].ID] })
	return r.resolve(ctx, models)
}

func (r *Repo) Count(ctx context.Context, f riderepo.Filter) (int, error) {
	if r.db == nil {
		return 0, errors.New("nil sqlite db")
	}
	var n int64
	if err := r.filtered(ctx, f).Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *Repo) ListEvents(ctx context.Context, id domain.RideID) ([]domain.RideEvent, error) {
	if r.db == nil {
		return nil, errors.New("nil sqlite db")
	}
	if _, err := r.load(ctx, id); err != nil {
		return nil, err
	}
	var models []sqlite.RideEvent
	if err := r.db.WithContext(ctx).
		Where("ride_id = ?", string(id)).
		Order("created_at ASC").Order("seq ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.RideEvent, 0, len(models))
	for _, m := range models {
		out = append(out, eventToDomain(m))
	}
	return out, nil
}

func (r *Repo) ListEventsInWindow(ctx context.Context, ids []domain.RideID, from, to time.Time) (map[domain.RideID][]domain.RideEvent, error) {
	if r.db == nil {
		return nil, errors.New("nil sqlite db")
	}
	out := make(map[domain.RideID][]domain.RideEvent, len(ids))
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		out[id] = []domain.RideEvent{}
		keys = append(keys, string(id))
	}
	if len(keys) == 0 {
		return out, nil
	}

	var models []sqlite.RideEvent
	if err := r.db.WithContext(ctx).
		Where("ride_id IN ?", keys).
		Where("created_at >= ? AND created_at <= ?", sqlite.ToNanos(from), sqlite.ToNanos(to)).
		Order("created_at ASC").Order("seq ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	for _, m := range models {
		ev := eventToDomain(m)
		out[ev.RideID] = append(out[ev.RideID], ev)
	}
	return out, nil
}

func (r *Repo) load(ctx context.Context, id domain.RideID) (sqlite.Ride, error) {
	var m sqlite.Ride
	if err := r.db.WithContext(ctx).Where("id = ?", string(id)).Take(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return sqlite.Ride{}, riderepo.ErrNotFound
		}
		return sqlite.Ride{}, err
	}
	return m, nil
}

func (r *Repo) filtered(ctx context.Context, f riderepo.Filter) *gorm.DB {
	tx := r.db.WithContext(ctx).Model(&sqlite.Ride{})
	if f.Status != nil {
		tx = tx.Where("rides.status = ?", string(*f.Status))
	}
	if f.RiderEmail != nil {
		tx = tx.Joins("JOIN users ur ON ur.id = rides.rider_id").Where("ur.email = ?", *f.RiderEmail)
	}
	return tx
}

func paginate(tx *gorm.DB, limit, offset int) *gorm.DB {
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if offset > 0 {
		if limit <= 0 {
			tx = tx.Limit(math.MaxInt32)
		}
		tx = tx.Offset(offset)
	}
	return tx
}

// resolve joins rides with their riders and drivers using one bulk user lookup.
func (r *Repo) resolve(ctx context.Context, models []sqlite.Ride) ([]riderepo.Row, error) {
	seen := make(map[string]struct{})
	var userIDs []string
	for _, m := range models {
		for _, p := range []*string{m.RiderID, m.DriverID} {
			if p == nil {
				continue
			}
			if _, ok := seen[*p]; ok {
				continue
			}
			seen[*p] = struct{}{}
			userIDs = append(userIDs, *p)
		}
	}

	users := make(map[string]domain.UserSummary, len(userIDs))
	if len(userIDs) > 0 {
		var found []sqlite.User
		if err := r.db.WithContext(ctx).Where("id IN ?", userIDs).Find(&found).Error; err != nil {
			return nil, err
		}
		for _, u := range found {
			users[u.ID] = sqliteuserrepo.FromModel(u).Summary()
		}
	}

	out := make([]riderepo.Row, 0, len(models))
	for _, m := range models {
		row := riderepo.Row{Ride: toDomain(m)}
		if m.RiderID != nil {
			if s, ok := users[*m.RiderID]; ok {
				row.Rider = &s
			} else {
				row.Ride.RiderID = nil
			}
		}
		if m.DriverID != nil {
			if s, ok := users[*m.DriverID]; ok {
				row.Driver = &s
			} else {
				row.Ride.DriverID = nil
			}
		}
		out = append(out, row)
	}
	return out, nil
}

func toModel(r domain.Ride) sqlite.Ride {
	return sqlite.Ride{
		ID:               string(r.ID),
		Status:           string(r.Status),
		RiderID:          userIDPtr(r.RiderID),
		DriverID:         userIDPtr(r.DriverID),
		PickupLatitude:   r.Pickup.Latitude,
		PickupLongitude:  r.Pickup.Longitude,
		DropoffLatitude:  r.Dropoff.Latitude,
		DropoffLongitude: r.Dropoff.Longitude,
		PickupTime:       sqlite.ToNanos(r.PickupTime),
		CreatedAt:        sqlite.ToNanos(r.CreatedAt),
		UpdatedAt:        sqlite.ToNanos(r.UpdatedAt),
	}
}

func toDomain(m sqlite.Ride) domain.Ride {
	return domain.Ride{
		ID:         domain.RideID(m.ID),
		Status:     domain.RideStatus(m.Status),
		RiderID:    domainUserIDPtr(m.RiderID),
		DriverID:   domainUserIDPtr(m.DriverID),
		Pickup:     domain.Coordinate{Latitude: m.PickupLatitude, Longitude: m.PickupLongitude},
		Dropoff:    domain.Coordinate{Latitude: m.DropoffLatitude, Longitude: m.DropoffLongitude},
		PickupTime: sqlite.FromNanos(m.PickupTime),
		CreatedAt:  sqlite.FromNanos(m.CreatedAt),
		UpdatedAt:  sqlite.FromNanos(m.UpdatedAt),
	}
}

func eventToDomain(m sqlite.RideEvent) domain.RideEvent {
	return domain.RideEvent{
		ID:          domain.RideEventID(m.ID),
		RideID:      domain.RideID(m.RideID),
		Description: m.Description,
		CreatedAt:   sqlite.FromNanos(m.CreatedAt),
	}
}

func userIDPtr(p *domain.UserID) *string {
	if p == nil {
		return nil
	}
	s := string(*p)
	return &s
}

func domainUserIDPtr(p *string) *domain.UserID {
	if p == nil {
		return nil
	}
	id := domain.UserID(*p)
	return &id
}
