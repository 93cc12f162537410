package contracttest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wingz-dispatch/ride-records-api/internal/domain"
	idempotencyport "github.com/wingz-dispatch/ride-records-api/internal/ports/out/idempotency"
	riderepoport "github.com/wingz-dispatch/ride-records-api/internal/ports/out/riderepo"
	userrepoport "github.com/wingz-dispatch/ride-records-api/internal/ports/out/userrepo"
)

type CleanupFunc = func()

type UserRepoFactory func(t *testing.T) (userrepoport.Repository, CleanupFunc)

// RideStoreFactory returns a user repository and a ride repository sharing the same backing store.
type RideStoreFactory func(t *testing.T) (userrepoport.Repository, riderepoport.Repository, CleanupFunc)

type IdemStoreFactory func(t *testing.T) (idempotencyport.Store, CleanupFunc)

func RunIdempotencyStore(t *testing.T, newStore IdemStoreFactory) {
	t.Helper()
	ctx := context.Background()

	store, cleanup := newStore(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	fp := idempotencyport.Fingerprint{
		Key:      "k-1",
		Caller:   domain.UserID(uuid.NewString()),
		Method:   "POST",
		Route:    "/rides",
		BodyHash: "",
	}
	rec := idempotencyport.Record{
		StatusCode:  0,
		ContentType: "text/plain",
		Body:        []byte("hash-abc"),
		CreatedAt:   time.Unix(123, 0).UTC(),
	}
	if err := store.Put(ctx, fp, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := store.Get(ctx, fp)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if string(got.Body) != "hash-abc" || got.ContentType != "text/plain" || got.StatusCode != 0 {
		t.Fatalf("unexpected record: %+v", got)
	}

	// Overwrite semantics.
	rec2 := rec
	rec2.Body = []byte("hash-def")
	if err := store.Put(ctx, fp, rec2); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	got, ok, err = store.Get(ctx, fp)
	if err != nil || !ok || string(got.Body) != "hash-def" {
		t.Fatalf("expected overwritten record, got ok=%v err=%v body=%q", ok, err, string(got.Body))
	}

	missing := fp
	missing.Key = "k-2"
	if _, ok, err := store.Get(ctx, missing); err != nil || ok {
		t.Fatalf("expected miss for unknown key, got ok=%v err=%v", ok, err)
	}
}

func newUser(username string, role domain.Role, now time.Time) userrepoport.User {
	return userrepoport.User{
		ID:        domain.UserID(uuid.NewString()),
		Username:  username,
		Email:     username + "@example.com",
		FirstName: username,
		LastName:  "Tester",
		Role:      role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func RunUserRepo(t *testing.T, newRepo UserRepoFactory) {
	t.Helper()
	ctx := context.Background()

	repo, cleanup := newRepo(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	now := time.Unix(1000, 0).UTC()
	alice := newUser("alice", domain.RoleRider, now)
	phone := "+63 900 000 0000"
	alice.PhoneNumber = &phone
	alice.PasswordHash = "hash-a"
	if err := repo.Create(ctx, alice); err != nil {
		t.Fatalf("Create alice: %v", err)
	}
	got, err := repo.GetByID(ctx, alice.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Username != "alice" || got.Role != domain.RoleRider || got.PasswordHash != "hash-a" ||
		got.PhoneNumber == nil || *got.PhoneNumber != phone {
		t.Fatalf("unexpected user: %+v", got)
	}
	if _, err := repo.GetByUsername(ctx, "alice"); err != nil {
		t.Fatalf("GetByUsername: %v", err)
	}
	if _, err := repo.GetByID(ctx, domain.UserID(uuid.NewString())); !errors.Is(err, userrepoport.ErrNotFound) {
		t.Fatalf("GetByID unknown err=%v, want ErrNotFound", err)
	}

	// Username uniqueness.
	dup := newUser("alice", domain.RoleDriver, now)
	if err := repo.Create(ctx, dup); !errors.Is(err, userrepoport.ErrUsernameTaken) {
		t.Fatalf("Create duplicate username err=%v, want ErrUsernameTaken", err)
	}

	bob := newUser("bob", domain.RoleDriver, now)
	carol := newUser("carol", domain.RoleAdmin, now)
	carol.IsActive = false
	for _, u := range []userrepoport.User{bob, carol} {
		if err := repo.Create(ctx, u); err != nil {
			t.Fatalf("Create %s: %v", u.Username, err)
		}
	}

	all, err := repo.List(ctx, userrepoport.ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].Username != "alice" || all[1].Username != "bob" || all[2].Username != "carol" {
		t.Fatalf("unexpected ordering: %#v", all)
	}

	driver := domain.RoleDriver
	drivers, err := repo.List(ctx, userrepoport.ListFilter{Role: &driver})
	if err != nil || len(drivers) != 1 || drivers[0].ID != bob.ID {
		t.Fatalf("role filter: %#v err=%v", drivers, err)
	}
	inactive := false
	if n, err := repo.Count(ctx, userrepoport.ListFilter{IsActive: &inactive}); err != nil || n != 1 {
		t.Fatalf("Count inactive: n=%d err=%v", n, err)
	}
	found, err := repo.List(ctx, userrepoport.ListFilter{Search: "BOB@EXAMPLE"})
	if err != nil || len(found) != 1 || found[0].ID != bob.ID {
		t.Fatalf("search: %#v err=%v", found, err)
	}
	page, err := repo.List(ctx, userrepoport.ListFilter{Limit: 1, Offset: 1})
	if err != nil || len(page) != 1 || page[0].ID != bob.ID {
		t.Fatalf("page: %#v err=%v", page, err)
	}

	// Update (including username change) and delete.
	bob.Username = "robert"
	bob.Role = domain.RoleAdmin
	bob.UpdatedAt = now.Add(time.Minute)
	if err := repo.Update(ctx, bob); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := repo.GetByUsername(ctx, "bob"); !errors.Is(err, userrepoport.ErrNotFound) {
		t.Fatalf("old username still resolves: err=%v", err)
	}
	gotBob, err := repo.GetByUsername(ctx, "robert")
	if err != nil || gotBob.Role != domain.RoleAdmin {
		t.Fatalf("GetByUsername robert: %+v err=%v", gotBob, err)
	}
	bob.Username = "alice"
	if err := repo.Update(ctx, bob); !errors.Is(err, userrepoport.ErrUsernameTaken) {
		t.Fatalf("Update to taken username err=%v, want ErrUsernameTaken", err)
	}
	if err := repo.Delete(ctx, carol.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := repo.Delete(ctx, carol.ID); !errors.Is(err, userrepoport.ErrNotFound) {
		t.Fatalf("Delete twice err=%v, want ErrNotFound", err)
	}
	missing := newUser("ghost", domain.RoleRider, now)
	if err := repo.Update(ctx, missing); !errors.Is(err, userrepoport.ErrNotFound) {
		t.Fatalf("Update unknown err=%v, want ErrNotFound", err)
	}
}

type rideFixture struct {
	users userrepoport.Repository
	rides riderepoport.Repository
	now   time.Time
	rider userrepoport.User
	drv   userrepoport.User
}

func newRideFixture(t *testing.T, newStore RideStoreFactory) *rideFixture {
	t.Helper()
	users, rides, cleanup := newStore(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := &rideFixture{users: users, rides: rides, now: now}
	f.rider = newUser("rider-"+uuid.NewString()[:8], domain.RoleRider, now)
	f.drv = newUser("driver-"+uuid.NewString()[:8], domain.RoleDriver, now)
	for _, u := range []userrepoport.User{f.rider, f.drv} {
		if err := users.Create(context.Background(), u); err != nil {
			t.Fatalf("seed user %s: %v", u.Username, err)
		}
	}
	return f
}

func (f *rideFixture) createRide(t *testing.T, status domain.RideStatus, pickup domain.Coordinate, pickupTime time.Time) domain.Ride {
	t.Helper()
	riderID := f.rider.ID
	r := domain.Ride{
		ID:         domain.RideID(uuid.NewString()),
		Status:     status,
		RiderID:    &riderID,
		Pickup:     pickup,
		Dropoff:    domain.Coordinate{Latitude: pickup.Latitude + 0.1, Longitude: pickup.Longitude + 0.1},
		PickupTime: pickupTime,
		CreatedAt:  f.now,
		UpdatedAt:  f.now,
	}
	if err := f.rides.Create(context.Background(), r); err != nil {
		t.Fatalf("Create ride: %v", err)
	}
	return r
}

func setStatus(st domain.RideStatus) riderepoport.Mutation {
	return func(r *domain.Ride) error {
		r.Status = st
		return nil
	}
}

func descriptions(evs []domain.RideEvent) []string {
	out := make([]string, 0, len(evs))
	for _, e := range evs {
		out = append(out, e.Description)
	}
	return out
}

// RunRideRepo exercises the ride store: CRUD, status-change event emission, cascading delete,
// windowed event lookup, filtering, ordering, pagination and per-ride serialization.
func RunRideRepo(t *testing.T, newStore RideStoreFactory) {
	t.Helper()
	ctx := context.Background()
	origin := domain.Coordinate{Latitude: 14.5995, Longitude: 120.9842}

	t.Run("create and get", func(t *testing.T) {
		f := newRideFixture(t, newStore)
		r := f.createRide(t, domain.RideStatusPending, origin, f.now)

		got, err := f.rides.GetByID(ctx, r.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.Ride.ID != r.ID || got.Ride.Status != domain.RideStatusPending || !got.Ride.PickupTime.Equal(r.PickupTime) {
			t.Fatalf("unexpected ride: %+v", got.Ride)
		}
		if got.Ride.Pickup != r.Pickup || got.Ride.Dropoff != r.Dropoff {
			t.Fatalf("coordinates mismatch: %+v", got.Ride)
		}
		if got.Rider == nil || got.Rider.ID != f.rider.ID || got.Rider.Email != f.rider.Email {
			t.Fatalf("rider not joined: %+v", got.Rider)
		}
		if got.Driver != nil || got.Ride.DriverID != nil {
			t.Fatalf("expected no driver, got %+v", got.Driver)
		}
		if _, err := f.rides.GetByID(ctx, domain.RideID(uuid.NewString())); !errors.Is(err, riderepoport.ErrNotFound) {
			t.Fatalf("GetByID unknown err=%v, want ErrNotFound", err)
		}
		if err := f.rides.Create(ctx, r); !errors.Is(err, riderepoport.ErrAlreadyExists) {
			t.Fatalf("Create duplicate err=%v, want ErrAlreadyExists", err)
		}
	})

	t.Run("status change onto pickup emits exactly one event", func(t *testing.T) {
		f := newRideFixture(t, newStore)
		r := f.createRide(t, domain.RideStatusAccepted, origin, f.now)

		if _, err := f.rides.Update(ctx, r.ID, f.now, setStatus(domain.RideStatusPickup)); err != nil {
			t.Fatalf("Update pickup: %v", err)
		}
		if _, err := f.rides.Update(ctx, r.ID, f.now.Add(time.Second), setStatus(domain.RideStatusPickup)); err != nil {
			t.Fatalf("Update pickup again: %v", err)
		}
		evs, err := f.rides.ListEvents(ctx, r.ID)
		if err != nil {
			t.Fatalf("ListEvents: %v", err)
		}
		if len(evs) != 1 || evs[0].Description != "Status changed to pickup" || evs[0].RideID != r.ID {
			t.Fatalf("unexpected events: %#v", evs)
		}
		if !evs[0].CreatedAt.Equal(f.now) {
			t.Fatalf("event created_at=%v want %v", evs[0].CreatedAt, f.now)
		}
	})

	t.Run("skipping pickup still emits dropoff only", func(t *testing.T) {
		f := newRideFixture(t, newStore)
		r := f.createRide(t, domain.RideStatusPending, origin, f.now)

		for _, st := range []domain.RideStatus{domain.RideStatusAccepted, domain.RideStatusDropoff, domain.RideStatusCompleted} {
			if _, err := f.rides.Update(ctx, r.ID, f.now, setStatus(st)); err != nil {
				t.Fatalf("Update %s: %v", st, err)
			}
		}
		evs, err := f.rides.ListEvents(ctx, r.ID)
		if err != nil {
			t.Fatalf("ListEvents: %v", err)
		}
		if got := descriptions(evs); len(got) != 1 || got[0] != "Status changed to dropoff" {
			t.Fatalf("unexpected events: %v", got)
		}
	})

	t.Run("update applies fields and keeps identity", func(t *testing.T) {
		f := newRideFixture(t, newStore)
		r := f.createRide(t, domain.RideStatusPending, origin, f.now)
		later := f.now.Add(time.Hour)
		drvID := f.drv.ID

		row, err := f.rides.Update(ctx, r.ID, later, func(ride *domain.Ride) error {
			ride.DriverID = &drvID
			ride.PickupTime = later
			ride.Dropoff = domain.Coordinate{Latitude: 1, Longitude: 2}
			return nil
		})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if row.Ride.ID != r.ID || row.Driver == nil || row.Driver.ID != f.drv.ID || !row.Ride.PickupTime.Equal(later) {
			t.Fatalf("unexpected row: %+v driver=%+v", row.Ride, row.Driver)
		}
		if !row.Ride.UpdatedAt.Equal(later) {
			t.Fatalf("updated_at=%v want %v", row.Ride.UpdatedAt, later)
		}
		boom := errors.New("boom")
		if _, err := f.rides.Update(ctx, r.ID, later, func(*domain.Ride) error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("mutation error not propagated: %v", err)
		}
		if _, err := f.rides.Update(ctx, domain.RideID(uuid.NewString()), later, setStatus(domain.RideStatusPickup)); !errors.Is(err, riderepoport.ErrNotFound) {
			t.Fatalf("Update unknown err=%v, want ErrNotFound", err)
		}
	})

	t.Run("delete cascades events", func(t *testing.T) {
		f := newRideFixture(t, newStore)
		r := f.createRide(t, domain.RideStatusAccepted, origin, f.now)
		if _, err := f.rides.Update(ctx, r.ID, f.now, setStatus(domain.RideStatusPickup)); err != nil {
			t.Fatalf("Update: %v", err)
		}
		if err := f.rides.Delete(ctx, r.ID); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if err := f.rides.Delete(ctx, r.ID); !errors.Is(err, riderepoport.ErrNotFound) {
			t.Fatalf("Delete twice err=%v, want ErrNotFound", err)
		}
		if _, err := f.rides.ListEvents(ctx, r.ID); !errors.Is(err, riderepoport.ErrNotFound) {
			t.Fatalf("ListEvents after delete err=%v, want ErrNotFound", err)
		}
		win, err := f.rides.ListEventsInWindow(ctx, []domain.RideID{r.ID}, f.now.Add(-time.Hour), f.now.Add(time.Hour))
		if err != nil {
			t.Fatalf("ListEventsInWindow: %v", err)
		}
		if evs, ok := win[r.ID]; !ok || evs == nil || len(evs) != 0 {
			t.Fatalf("expected empty non-nil slice for deleted ride, got %#v (ok=%v)", evs, ok)
		}
	})

	t.Run("deleting a user clears the weak reference", func(t *testing.T) {
		f := newRideFixture(t, newStore)
		r := f.createRide(t, domain.RideStatusPending, origin, f.now)
		if err := f.users.Delete(ctx, f.rider.ID); err != nil {
			t.Fatalf("Delete user: %v", err)
		}
		got, err := f.rides.GetByID(ctx, r.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.Ride.RiderID != nil || got.Rider != nil {
			t.Fatalf("expected rider cleared, got id=%v rider=%+v", got.Ride.RiderID, got.Rider)
		}
	})

	t.Run("window lookup is bounded and bulk", func(t *testing.T) {
		f := newRideFixture(t, newStore)
		a := f.createRide(t, domain.RideStatusAccepted, origin, f.now)
		b := f.createRide(t, domain.RideStatusAccepted, origin, f.now)

		if _, err := f.rides.Update(ctx, a.ID, f.now.Add(-25*time.Hour), setStatus(domain.RideStatusPickup)); err != nil {
			t.Fatalf("Update a pickup: %v", err)
		}
		if _, err := f.rides.Update(ctx, a.ID, f.now.Add(-time.Hour), setStatus(domain.RideStatusDropoff)); err != nil {
			t.Fatalf("Update a dropoff: %v", err)
		}

		unknown := domain.RideID(uuid.NewString())
		win, err := f.rides.ListEventsInWindow(ctx, []domain.RideID{a.ID, b.ID, unknown}, f.now.Add(-24*time.Hour), f.now)
		if err != nil {
			t.Fatalf("ListEventsInWindow: %v", err)
		}
		if got := descriptions(win[a.ID]); len(got) != 1 || got[0] != "Status changed to dropoff" {
			t.Fatalf("ride a window: %v", got)
		}
		for _, id := range []domain.RideID{b.ID, unknown} {
			evs, ok := win[id]
			if !ok || evs == nil || len(evs) != 0 {
				t.Fatalf("ride %s: expected empty non-nil slice, got %#v (ok=%v)", id, evs, ok)
			}
		}

		all, err := f.rides.ListEvents(ctx, a.ID)
		if err != nil {
			t.Fatalf("ListEvents: %v", err)
		}
		if got := descriptions(all); len(got) != 2 || got[0] != "Status changed to pickup" || got[1] != "Status changed to dropoff" {
			t.Fatalf("full history: %v", got)
		}
	})

	t.Run("filter order and paginate", func(t *testing.T) {
		f := newRideFixture(t, newStore)

		// Twelve rides, pickup times one minute apart; pickups step away from origin.
		ids := make([]domain.RideID, 0, 12)
		for i := 0; i < 12; i++ {
			st := domain.RideStatusPending
			if i%3 == 0 {
				st = domain.RideStatusCompleted
			}
			pickup := domain.Coordinate{Latitude: origin.Latitude + float64((i*7)%12)*0.01, Longitude: origin.Longitude}
			r := f.createRide(t, st, pickup, f.now.Add(time.Duration(i)*time.Minute))
			ids = append(ids, r.ID)
		}

		// Default ordering: pickup_time descending.
		var seen []domain.RideID
		for page := 0; page < 3; page++ {
			rows, err := f.rides.List(ctx, riderepoport.Query{Descending: true, Limit: 5, Offset: page * 5})
			if err != nil {
				t.Fatalf("List page %d: %v", page, err)
			}
			want := []int{5, 5, 2}[page]
			if len(rows) != want {
				t.Fatalf("page %d: got %d rows want %d", page, len(rows), want)
			}
			for _, row := range rows {
				seen = append(seen, row.Ride.ID)
			}
		}
		for i, id := range seen {
			if id != ids[11-i] {
				t.Fatalf("position %d: got %s want %s", i, id, ids[11-i])
			}
		}
		if n, err := f.rides.Count(ctx, riderepoport.Filter{}); err != nil || n != 12 {
			t.Fatalf("Count: n=%d err=%v", n, err)
		}

		completed := domain.RideStatusCompleted
		rows, err := f.rides.List(ctx, riderepoport.Query{Filter: riderepoport.Filter{Status: &completed}})
		if err != nil {
			t.Fatalf("List completed: %v", err)
		}
		if len(rows) != 4 {
			t.Fatalf("completed rows=%d want 4", len(rows))
		}
		for i := 1; i < len(rows); i++ {
			if rows[i].Ride.PickupTime.Before(rows[i-1].Ride.PickupTime) {
				t.Fatalf("ascending order violated at %d", i)
			}
		}
		if n, err := f.rides.Count(ctx, riderepoport.Filter{Status: &completed}); err != nil || n != 4 {
			t.Fatalf("Count completed: n=%d err=%v", n, err)
		}

		email := f.rider.Email
		if n, err := f.rides.Count(ctx, riderepoport.Filter{RiderEmail: &email}); err != nil || n != 12 {
			t.Fatalf("Count by rider email: n=%d err=%v", n, err)
		}
		nobody := "nobody@example.com"
		if n, err := f.rides.Count(ctx, riderepoport.Filter{RiderEmail: &nobody}); err != nil || n != 0 {
			t.Fatalf("Count by unknown email: n=%d err=%v", n, err)
		}

		// Distance ordering: ascending by haversine distance from origin.
		ref := origin
		rows, err = f.rides.List(ctx, riderepoport.Query{OrderBy: riderepoport.OrderDistanceToPickup, Reference: &ref})
		if err != nil {
			t.Fatalf("List by distance: %v", err)
		}
		if len(rows) != 12 {
			t.Fatalf("distance rows=%d want 12", len(rows))
		}
		for i := 1; i < len(rows); i++ {
			prev := rows[i-1].Ride.Pickup.Latitude - origin.Latitude
			cur := rows[i].Ride.Pickup.Latitude - origin.Latitude
			if cur < prev-1e-9 {
				t.Fatalf("distance order violated at %d: %v < %v", i, cur, prev)
			}
		}
		if rows[0].Ride.ID != ids[0] {
			t.Fatalf("closest ride=%s want %s", rows[0].Ride.ID, ids[0])
		}
	})

	t.Run("concurrent status flips never duplicate or drop events", func(t *testing.T) {
		f := newRideFixture(t, newStore)
		r := f.createRide(t, domain.RideStatusAccepted, origin, f.now)

		const n = 10
		var wg sync.WaitGroup
		errs := make(chan error, 2*n)
		for i := 0; i < n; i++ {
			for _, st := range []domain.RideStatus{domain.RideStatusPickup, domain.RideStatusDropoff} {
				wg.Add(1)
				go func(st domain.RideStatus) {
					defer wg.Done()
					for {
						_, err := f.rides.Update(ctx, r.ID, f.now, setStatus(st))
						if errors.Is(err, riderepoport.ErrConflict) {
							continue
						}
						if err != nil {
							errs <- fmt.Errorf("update %s: %w", st, err)
						}
						return
					}
				}(st)
			}
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatal(err)
		}

		evs, err := f.rides.ListEvents(ctx, r.ID)
		if err != nil {
			t.Fatalf("ListEvents: %v", err)
		}
		if len(evs) == 0 || len(evs) > 2*n {
			t.Fatalf("event count=%d out of range", len(evs))
		}
		for i := 1; i < len(evs); i++ {
			if evs[i].Description == evs[i-1].Description {
				t.Fatalf("consecutive duplicate event %q at %d: %v", evs[i].Description, i, descriptions(evs))
			}
		}
		final, err := f.rides.GetByID(ctx, r.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if last := evs[len(evs)-1].Description; last != "Status changed to "+string(final.Ride.Status) {
			t.Fatalf("last event %q does not match final status %q", last, final.Ride.Status)
		}
	})
}
