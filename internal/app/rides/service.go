package rides

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/wingz-dispatch/ride-records-api/internal/app/paging"
	"github.com/wingz-dispatch/ride-records-api/internal/domain"
	"github.com/wingz-dispatch/ride-records-api/internal/geo"
	clockport "github.com/wingz-dispatch/ride-records-api/internal/ports/out/clock"
	"github.com/wingz-dispatch/ride-records-api/internal/ports/out/riderepo"
)

// DefaultEventWindow is the trailing window used for todays_ride_events.
const DefaultEventWindow = 24 * time.Hour

// UserLookup resolves rider and driver references.
type UserLookup interface {
	LookupUser(ctx context.Context, id domain.UserID) (u domain.User, found bool, err error)
}

type Service struct {
	repo  riderepo.Repository
	users UserLookup
	clk   clockport.Clock

	newRideID func() domain.RideID

	EventWindow time.Duration
	Limits      paging.Limits
}

func NewService(repo riderepo.Repository, users UserLookup, clk clockport.Clock) *Service {
	return &Service{
		repo:  repo,
		users: users,
		clk:   clk,
		newRideID: func() domain.RideID {
			return domain.RideID(uuid.NewString())
		},
		EventWindow: DefaultEventWindow,
	}
}

// SetNewRideIDForTest overrides ride id generation.
func (s *Service) SetNewRideIDForTest(fn func() domain.RideID) {
	s.newRideID = fn
}

func (s *Service) CreateRide(ctx context.Context, in CreateRideInput) (domain.RideDetails, error) {
	verrs := validationErrors{}
	status := domain.RideStatusPending
	if in.Status != nil {
		st, err := domain.ParseRideStatus(string(*in.Status))
		if err != nil {
			verrs.add("status", err.Error())
		}
		status = st
	}
	validateCoordinate(verrs, "pickup", in.Pickup)
	validateCoordinate(verrs, "dropoff", in.Dropoff)
	if in.PickupTime.IsZero() {
		verrs.add("pickup_time", "required")
	}
	riderID := in.RiderID
	if riderID == "" {
		verrs.add("rider_id", "required")
	} else if err := s.checkParty(ctx, verrs, "rider_id", riderID, domain.RoleRider); err != nil {
		return domain.RideDetails{}, err
	}
	if in.DriverID != nil {
		if err := s.checkParty(ctx, verrs, "driver_id", *in.DriverID, domain.RoleDriver); err != nil {
			return domain.RideDetails{}, err
		}
	}
	if err := verrs.err(); err != nil {
		return domain.RideDetails{}, err
	}

	now := s.clk.Now()
	ride := domain.Ride{
		ID:         s.newRideID(),
		Status:     status,
		RiderID:    &riderID,
		DriverID:   cloneUserID(in.DriverID),
		Pickup:     in.Pickup,
		Dropoff:    in.Dropoff,
		PickupTime: in.PickupTime.UTC(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, ride); err != nil {
		return domain.RideDetails{}, err
	}
	row, err := s.repo.GetByID(ctx, ride.ID)
	if err != nil {
		return domain.RideDetails{}, s.mapRepoErr(err)
	}
	return s.details(ctx, row, nil)
}

// GetRide returns one ride with its recent events. ref, when set, enables DistanceToPickupKm.
func (s *Service) GetRide(ctx context.Context, id domain.RideID, ref *domain.Coordinate) (domain.RideDetails, error) {
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.RideDetails{}, s.mapRepoErr(err)
	}
	return s.details(ctx, row, ref)
}

// UpdateRide applies a partial update. A status change onto pickup or dropoff records exactly
// one event in the same step as the write.
func (s *Service) UpdateRide(ctx context.Context, id domain.RideID, in UpdateRideInput, ref *domain.Coordinate) (domain.RideDetails, error) {
	verrs := validationErrors{}
	if in.Status.IsSpecified() {
		if in.Status.IsNull() {
			verrs.add("status", "cannot be null")
		} else if _, err := domain.ParseRideStatus(string(in.Status.Value())); err != nil {
			verrs.add("status", err.Error())
		}
	}
	if in.RiderID.IsSpecified() {
		if in.RiderID.IsNull() || in.RiderID.Value() == "" {
			verrs.add("rider_id", "cannot be null")
		} else if err := s.checkParty(ctx, verrs, "rider_id", in.RiderID.Value(), domain.RoleRider); err != nil {
			return domain.RideDetails{}, err
		}
	}
	if in.DriverID.IsSpecified() && !in.DriverID.IsNull() {
		if err := s.checkParty(ctx, verrs, "driver_id", in.DriverID.Value(), domain.RoleDriver); err != nil {
			return domain.RideDetails{}, err
		}
	}
	checkFloat(verrs, "pickup_latitude", in.PickupLatitude, 90)
	checkFloat(verrs, "pickup_longitude", in.PickupLongitude, 180)
	checkFloat(verrs, "dropoff_latitude", in.DropoffLatitude, 90)
	checkFloat(verrs, "dropoff_longitude", in.DropoffLongitude, 180)
	if in.PickupTime.IsSpecified() && (in.PickupTime.IsNull() || in.PickupTime.Value().IsZero()) {
		verrs.add("pickup_time", "cannot be null")
	}
	if err := verrs.err(); err != nil {
		return domain.RideDetails{}, err
	}

	row, err := s.repo.Update(ctx, id, s.clk.Now(), func(r *domain.Ride) error {
		applyUpdate(r, in)
		return nil
	})
	if err != nil {
		return domain.RideDetails{}, s.mapRepoErr(err)
	}
	return s.details(ctx, row, ref)
}

// ReplaceRide is the full-update form: rider, coordinates and pickup time are required;
// status and driver are changed only when provided.
func (s *Service) ReplaceRide(ctx context.Context, id domain.RideID, in CreateRideInput, ref *domain.Coordinate) (domain.RideDetails, error) {
	verrs := validationErrors{}
	if in.RiderID == "" {
		verrs.add("rider_id", "required")
	}
	if in.PickupTime.IsZero() {
		verrs.add("pickup_time", "required")
	}
	if err := verrs.err(); err != nil {
		return domain.RideDetails{}, err
	}

	up := UpdateRideInput{
		RiderID:          Some(in.RiderID),
		PickupLatitude:   Some(in.Pickup.Latitude),
		PickupLongitude:  Some(in.Pickup.Longitude),
		DropoffLatitude:  Some(in.Dropoff.Latitude),
		DropoffLongitude: Some(in.Dropoff.Longitude),
		PickupTime:       Some(in.PickupTime),
	}
	if in.Status != nil {
		up.Status = Some(*in.Status)
	}
	if in.DriverID != nil {
		up.DriverID = Some(*in.DriverID)
	}
	return s.UpdateRide(ctx, id, up, ref)
}

func (s *Service) DeleteRide(ctx context.Context, id domain.RideID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return s.mapRepoErr(err)
	}
	return nil
}

// ListRideEvents returns the full event history of a ride, oldest first.
func (s *Service) ListRideEvents(ctx context.Context, id domain.RideID) ([]domain.RideEvent, error) {
	evs, err := s.repo.ListEvents(ctx, id)
	if err != nil {
		return nil, s.mapRepoErr(err)
	}
	return evs, nil
}

func (s *Service) details(ctx context.Context, row riderepo.Row, ref *domain.Coordinate) (domain.RideDetails, error) {
	now := s.clk.Now()
	win, err := s.repo.ListEventsInWindow(ctx, []domain.RideID{row.Ride.ID}, now.Add(-s.window()), now)
	if err != nil {
		return domain.RideDetails{}, err
	}
	return buildDetails(row, win[row.Ride.ID], ref), nil
}

func (s *Service) window() time.Duration {
	if s.EventWindow <= 0 {
		return DefaultEventWindow
	}
	return s.EventWindow
}

// checkParty validates that id names an existing user with the wanted role. Lookup failures
// other than "not found" are returned as errors; validation problems are recorded in verrs.
func (s *Service) checkParty(ctx context.Context, verrs validationErrors, field string, id domain.UserID, want domain.Role) error {
	u, found, err := s.users.LookupUser(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case !found:
		verrs.add(field, "unknown user")
	case u.Role != want:
		verrs.add(field, "user must have role "+want.String())
	}
	return nil
}

func (s *Service) mapRepoErr(err error) error {
	switch {
	case errors.Is(err, riderepo.ErrNotFound):
		return errRideNotFound()
	case errors.Is(err, riderepo.ErrConflict):
		return errUpdateConflict()
	default:
		return err
	}
}

func applyUpdate(r *domain.Ride, in UpdateRideInput) {
	if in.Status.IsSpecified() {
		r.Status = in.Status.Value()
	}
	if in.RiderID.IsSpecified() {
		id := in.RiderID.Value()
		r.RiderID = &id
	}
	if in.DriverID.IsSpecified() {
		if in.DriverID.IsNull() {
			r.DriverID = nil
		} else {
			id := in.DriverID.Value()
			r.DriverID = &id
		}
	}
	if in.PickupLatitude.IsSpecified() {
		r.Pickup.Latitude = in.PickupLatitude.Value()
	}
	if in.PickupLongitude.IsSpecified() {
		r.Pickup.Longitude = in.PickupLongitude.Value()
	}
	if in.DropoffLatitude.IsSpecified() {
		r.Dropoff.Latitude = in.DropoffLatitude.Value()
	}
	if in.DropoffLongitude.IsSpecified() {
		r.Dropoff.Longitude = in.DropoffLongitude.Value()
	}
	if in.PickupTime.IsSpecified() {
		r.PickupTime = in.PickupTime.Value().UTC()
	}
}

func buildDetails(row riderepo.Row, events []domain.RideEvent, ref *domain.Coordinate) domain.RideDetails {
	if events == nil {
		events = []domain.RideEvent{}
	}
	return domain.RideDetails{
		Ride:               row.Ride,
		Rider:              row.Rider,
		Driver:             row.Driver,
		TodaysEvents:       events,
		DistanceToPickupKm: geo.DistanceToPickup(ref, row.Ride.Pickup),
	}
}

func validateCoordinate(verrs validationErrors, prefix string, c domain.Coordinate) {
	if !inRange(c.Latitude, 90) {
		verrs.add(prefix+"_latitude", "must be a number between -90 and 90")
	}
	if !inRange(c.Longitude, 180) {
		verrs.add(prefix+"_longitude", "must be a number between -180 and 180")
	}
}

func checkFloat(verrs validationErrors, field string, v Optional[float64], bound float64) {
	if !v.IsSpecified() {
		return
	}
	if v.IsNull() {
		verrs.add(field, "cannot be null")
		return
	}
	if !inRange(v.Value(), bound) {
		verrs.add(field, "out of range")
	}
}

func inRange(v, bound float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= -bound && v <= bound
}

func cloneUserID(p *domain.UserID) *domain.UserID {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
