package riderepo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/wingz-dispatch/ride-records-api/internal/adapters/postgres"
	"github.com/wingz-dispatch/ride-records-api/internal/domain"
	"github.com/wingz-dispatch/ride-records-api/internal/geo"
	"github.com/wingz-dispatch/ride-records-api/internal/ports/out/riderepo"
)

// Repo is a Postgres implementation of riderepo.Repository.
//
// Updates lock the ride row (SELECT ... FOR UPDATE) so the status read, the write and the
// event insert form one serialized step per ride.
type Repo struct {
	pool *pgxpool.Pool

	newEventID func() uuid.UUID
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool, newEventID: uuid.New}
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const rowColumns = `
	r.external_id, r.status,
	r.pickup_latitude, r.pickup_longitude, r.dropoff_latitude, r.dropoff_longitude,
	r.pickup_time, r.created_at, r.updated_at,
	ur.external_id, ur.username, ur.email, ur.first_name, ur.last_name, ur.phone_number, ur.role, ur.is_active,
	ud.external_id, ud.username, ud.email, ud.first_name, ud.last_name, ud.phone_number, ud.role, ud.is_active
`

const rowFrom = `
	FROM rides r
	LEFT JOIN users ur ON ur.id = r.rider_id
	LEFT JOIN users ud ON ud.id = r.driver_id
`

func (r *Repo) Create(ctx context.Context, ride domain.Ride) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	id, err := uuid.Parse(string(ride.ID))
	if err != nil {
		return fmt.Errorf("invalid ride id: %w", err)
	}
	riderID, err := optionalUUID(ride.RiderID)
	if err != nil {
		return fmt.Errorf("invalid rider id: %w", err)
	}
	driverID, err := optionalUUID(ride.DriverID)
	if err != nil {
		return fmt.Errorf("invalid driver id: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO rides (
			external_id,
			status,
			rider_id,
			driver_id,
			pickup_latitude,
			pickup_longitude,
			dropoff_latitude,
			dropoff_longitude,
			pickup_time,
			created_at,
			updated_at
		) VALUES (
			$1, $2,
			(SELECT id FROM users WHERE external_id = $3),
			(SELECT id FROM users WHERE external_id = $4),
			$5, $6, $7, $8, $9, $10, $11
		)
	`,
		id,
		string(ride.Status),
		riderID,
		driverID,
		ride.Pickup.Latitude,
		ride.Pickup.Longitude,
		ride.Dropoff.Latitude,
		ride.Dropoff.Longitude,
		ride.PickupTime.UTC(),
		ride.CreatedAt.UTC(),
		ride.UpdatedAt.UTC(),
	)
	if err != nil {
		if pe, ok := postgres.AsPgError(err); ok && pe.Code == postgres.UniqueViolationCode && pe.ConstraintName == "rides_external_id_unique" {
			return riderepo.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.RideID) (riderepo.Row, error) {
	if r.pool == nil {
		return riderepo.Row{}, errors.New("nil postgres pool")
	}
	rid, err := uuid.Parse(string(id))
	if err != nil {
		return riderepo.Row{}, riderepo.ErrNotFound
	}
	return getRow(ctx, r.pool, rid, "")
}

func (r *Repo) Update(ctx context.Context, id domain.RideID, at time.Time, mutate riderepo.Mutation) (riderepo.Row, error) {
	if r.pool == nil {
		return riderepo.Row{}, errors.New("nil postgres pool")
	}
	rid, err := uuid.Parse(string(id))
	if err != nil {
		return riderepo.Row{}, riderepo.ErrNotFound
	}

	var out riderepo.Row
	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		cur, err := getRow(ctx, tx, rid, "FOR UPDATE OF r")
		if err != nil {
			return err
		}

		next := cur.Ride
		if err := mutate(&next); err != nil {
			return err
		}
		riderID, err := optionalUUID(next.RiderID)
		if err != nil {
			return fmt.Errorf("invalid rider id: %w", err)
		}
		driverID, err := optionalUUID(next.DriverID)
		if err != nil {
			return fmt.Errorf("invalid driver id: %w", err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE rides
			SET status = $2,
			    rider_id = (SELECT id FROM users WHERE external_id = $3),
			    driver_id = (SELECT id FROM users WHERE external_id = $4),
			    pickup_latitude = $5,
			    pickup_longitude = $6,
			    dropoff_latitude = $7,
			    dropoff_longitude = $8,
			    pickup_time = $9,
			    updated_at = $10
			WHERE external_id = $1
		`,
			rid,
			string(next.Status),
			riderID,
			driverID,
			next.Pickup.Latitude,
			next.Pickup.Longitude,
			next.Dropoff.Latitude,
			next.Dropoff.Longitude,
			next.PickupTime.UTC(),
			at.UTC(),
		)
		if err != nil {
			return err
		}

		if desc, emit := domain.StatusChangeDescription(cur.Ride.Status, next.Status); emit {
			_, err := tx.Exec(ctx, `
				INSERT INTO ride_events (external_id, ride_id, description, created_at)
				VALUES ($1, (SELECT id FROM rides WHERE external_id = $2), $3, $4)
			`, r.newEventID(), rid, desc, at.UTC())
			if err != nil {
				return err
			}
		}

		out, err = getRow(ctx, tx, rid, "")
		return err
	})
	if err != nil {
		return riderepo.Row{}, err
	}
	return out, nil
}

func (r *Repo) Delete(ctx context.Context, id domain.RideID) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	rid, err := uuid.Parse(string(id))
	if err != nil {
		return riderepo.ErrNotFound
	}
	ct, err := r.pool.Exec(ctx, `DELETE FROM rides WHERE external_id = $1`, rid)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return riderepo.ErrNotFound
	}
	return nil
}

func (r *Repo) List(ctx context.Context, q riderepo.Query) ([]riderepo.Row, error) {
	if r.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	where, args := whereClause(q.Filter)

	dir := "ASC"
	if q.Descending {
		dir = "DESC"
	}
	var order string
	if q.OrderBy == riderepo.OrderDistanceToPickup && q.Reference != nil {
		args = append(args, q.Reference.Latitude, q.Reference.Longitude)
		order = fmt.Sprintf("%s %s", haversineSQL(len(args)-1, len(args)), dir)
	} else {
		order = "r.pickup_time " + dir
	}

	sql := `SELECT ` + rowColumns + rowFrom + where + ` ORDER BY ` + order + `, r.external_id ASC`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		sql += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []riderepo.Row{}
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *Repo) Count(ctx context.Context, f riderepo.Filter) (int, error) {
	if r.pool == nil {
		return 0, errors.New("nil postgres pool")
	}
	where, args := whereClause(f)
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) `+rowFrom+where, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *Repo) ListEvents(ctx context.Context, id domain.RideID) ([]domain.RideEvent, error) {
	if r.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	rid, err := uuid.Parse(string(id))
	if err != nil {
		return nil, riderepo.ErrNotFound
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rides WHERE external_id = $1)`, rid).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, riderepo.ErrNotFound
	}

	rows, err := r.pool.Query(ctx, `
		SELECT e.external_id, r.external_id, e.description, e.created_at
		FROM ride_events e
		JOIN rides r ON r.id = e.ride_id
		WHERE r.external_id = $1
		ORDER BY e.created_at ASC, e.id ASC
	`, rid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.RideEvent{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (r *Repo) ListEventsInWindow(ctx context.Context, ids []domain.RideID, from, to time.Time) (map[domain.RideID][]domain.RideEvent, error) {
	if r.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	out := make(map[domain.RideID][]domain.RideEvent, len(ids))
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		out[id] = []domain.RideEvent{}
		if u, err := uuid.Parse(string(id)); err == nil {
			keys = append(keys, u.String())
		}
	}
	if len(keys) == 0 {
		return out, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT e.external_id, r.external_id, e.description, e.created_at
		FROM ride_events e
		JOIN rides r ON r.id = e.ride_id
		WHERE r.external_id = ANY($1::uuid[])
		  AND e.created_at >= $2
		  AND e.created_at <= $3
		ORDER BY e.created_at ASC, e.id ASC
	`, keys, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out[ev.RideID] = append(out[ev.RideID], ev)
	}
	return out, rows.Err()
}

func getRow(ctx context.Context, q querier, id uuid.UUID, suffix string) (riderepo.Row, error) {
	row := q.QueryRow(ctx, `SELECT `+rowColumns+rowFrom+` WHERE r.external_id = $1 `+suffix, id)
	out, err := scanRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return riderepo.Row{}, riderepo.ErrNotFound
		}
		return riderepo.Row{}, err
	}
	return out, nil
}

func whereClause(f riderepo.Filter) (string, []any) {
	var conds []string
	var args []any
	if f.Status != nil {
		args = append(args, string(*f.Status))
		conds = append(conds, fmt.Sprintf("r.status = $%d", len(args)))
	}
	if f.RiderEmail != nil {
		args = append(args, *f.RiderEmail)
		conds = append(conds, fmt.Sprintf("ur.email = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// haversineSQL renders the great-circle distance in km between the pickup point and the
// reference point bound at $latArg/$lonArg.
func haversineSQL(latArg, lonArg int) string {
	return fmt.Sprintf(`(2 * %[3]v * asin(sqrt(least(1.0,
		power(sin(radians(r.pickup_latitude - $%[1]d::double precision) / 2), 2) +
		cos(radians($%[1]d::double precision)) * cos(radians(r.pickup_latitude)) *
		power(sin(radians(r.pickup_longitude - $%[2]d::double precision) / 2), 2)))))`,
		latArg, lonArg, geo.EarthRadiusKm)
}

func optionalUUID(id *domain.UserID) (*uuid.UUID, error) {
	if id == nil {
		return nil, nil
	}
	u, err := uuid.Parse(string(*id))
	if err != nil {
		return nil, err
	}
	return &u, nil
}

type userCols struct {
	id        pgtype.UUID
	username  pgtype.Text
	email     pgtype.Text
	firstName pgtype.Text
	lastName  pgtype.Text
	phone     pgtype.Text
	role      pgtype.Int2
	isActive  pgtype.Bool
}

func (c *userCols) dest() []any {
	return []any{&c.id, &c.username, &c.email, &c.firstName, &c.lastName, &c.phone, &c.role, &c.isActive}
}

func (c *userCols) summary() *domain.UserSummary {
	if !c.id.Valid {
		return nil
	}
	s := &domain.UserSummary{
		ID:        domain.UserID(uuid.UUID(c.id.Bytes).String()),
		Username:  c.username.String,
		Email:     c.email.String,
		FirstName: c.firstName.String,
		LastName:  c.lastName.String,
		Role:      domain.Role(c.role.Int16),
		IsActive:  c.isActive.Bool,
	}
	if c.phone.Valid {
		p := c.phone.String
		s.PhoneNumber = &p
	}
	return s
}

func scanRow(row pgx.Row) (riderepo.Row, error) {
	var (
		id     uuid.UUID
		status string
		ride   domain.Ride
		rider  userCols
		driver userCols
	)
	dest := []any{
		&id,
		&status,
		&ride.Pickup.Latitude,
		&ride.Pickup.Longitude,
		&ride.Dropoff.Latitude,
		&ride.Dropoff.Longitude,
		&ride.PickupTime,
		&ride.CreatedAt,
		&ride.UpdatedAt,
	}
	dest = append(dest, rider.dest()...)
	dest = append(dest, driver.dest()...)
	if err := row.Scan(dest...); err != nil {
		return riderepo.Row{}, err
	}

	ride.ID = domain.RideID(id.String())
	ride.Status = domain.RideStatus(status)
	ride.PickupTime = ride.PickupTime.UTC()
	ride.CreatedAt = ride.CreatedAt.UTC()
	ride.UpdatedAt = ride.UpdatedAt.UTC()

	out := riderepo.Row{Ride: ride, Rider: rider.summary(), Driver: driver.summary()}
	if out.Rider != nil {
		rid := out.Rider.ID
		out.Ride.RiderID = &rid
	}
	if out.Driver != nil {
		did := out.Driver.ID
		out.Ride.DriverID = &did
	}
	return out, nil
}

func scanEvent(rows pgx.Rows) (domain.RideEvent, error) {
	var (
		evID   uuid.UUID
		rideID uuid.UUID
		ev     domain.RideEvent
	)
	if err := rows.Scan(&evID, &rideID, &ev.Description, &ev.CreatedAt); err != nil {
		return domain.RideEvent{}, err
	}
	ev.ID = domain.RideEventID(evID.String())
	ev.RideID = domain.RideID(rideID.String())
	ev.CreatedAt = ev.CreatedAt.UTC()
	return ev, nil
}
