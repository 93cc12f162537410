package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/nullable"

	"github.com/wingz-dispatch/ride-records-api/internal/app/paging"
	"github.com/wingz-dispatch/ride-records-api/internal/app/rides"
	"github.com/wingz-dispatch/ride-records-api/internal/domain"
	"github.com/wingz-dispatch/ride-records-api/internal/ports/out/idempotency"
)

const rideStatuses = "pending accepted en-route pickup dropoff completed cancelled"

// RideRequest is the body of POST /rides and PUT /rides/{id}.
type RideRequest struct {
	RiderID          string     `json:"rider_id" validate:"required"`
	DriverID         *string    `json:"driver_id,omitempty"`
	Status           *string    `json:"status,omitempty" validate:"omitempty,oneof=pending accepted en-route pickup dropoff completed cancelled"`
	PickupLatitude   *float64   `json:"pickup_latitude" validate:"required,latitude"`
	PickupLongitude  *float64   `json:"pickup_longitude" validate:"required,longitude"`
	DropoffLatitude  *float64   `json:"dropoff_latitude" validate:"required,latitude"`
	DropoffLongitude *float64   `json:"dropoff_longitude" validate:"required,longitude"`
	PickupTime       *time.Time `json:"pickup_time" validate:"required"`
}

// RidePatchRequest is the body of PATCH /rides/{id}. driver_id may be null to unassign.
type RidePatchRequest struct {
	Status           *string                   `json:"status,omitempty" validate:"omitempty,oneof=pending accepted en-route pickup dropoff completed cancelled"`
	RiderID          *string                   `json:"rider_id,omitempty" validate:"omitempty,min=1"`
	DriverID         nullable.Nullable[string] `json:"driver_id,omitempty"`
	PickupLatitude   *float64                  `json:"pickup_latitude,omitempty" validate:"omitempty,latitude"`
	PickupLongitude  *float64                  `json:"pickup_longitude,omitempty" validate:"omitempty,longitude"`
	DropoffLatitude  *float64                  `json:"dropoff_latitude,omitempty" validate:"omitempty,latitude"`
	DropoffLongitude *float64                  `json:"dropoff_longitude,omitempty" validate:"omitempty,longitude"`
	PickupTime       *time.Time                `json:"pickup_time,omitempty"`
}

type UserSummaryJSON struct {
	ID          string  `json:"id"`
	Username    string  `json:"username"`
	Email       string  `json:"email"`
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	Role        string  `json:"role"`
	PhoneNumber *string `json:"phone_number"`
	IsActive    bool    `json:"is_active"`
}

type RideEventJSON struct {
	ID          string    `json:"id"`
	RideID      string    `json:"ride_id"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type RideJSON struct {
	ID               string                     `json:"id"`
	Status           string                     `json:"status"`
	Rider            *UserSummaryJSON           `json:"rider"`
	Driver           *UserSummaryJSON           `json:"driver"`
	PickupLatitude   float64                    `json:"pickup_latitude"`
	PickupLongitude  float64                    `json:"pickup_longitude"`
	DropoffLatitude  float64                    `json:"dropoff_latitude"`
	DropoffLongitude float64                    `json:"dropoff_longitude"`
	PickupTime       time.Time                  `json:"pickup_time"`
	CreatedAt        time.Time                  `json:"created_at"`
	UpdatedAt        time.Time                  `json:"updated_at"`
	TodaysRideEvents []RideEventJSON            `json:"todays_ride_events"`
	DistanceToPickup nullable.Nullable[float64] `json:"distance_to_pickup"`
}

func (s *Server) ListRides(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, ok := pageRequest(q)
	if !ok {
		pageNotFound(w, r)
		return
	}

	in := rides.ListRidesInput{
		Ordering:  q.Get("ordering"),
		Reference: referencePoint(q),
	}
	if v := q.Get("status"); v != "" {
		st, err := domain.ParseRideStatus(v)
		if err != nil {
			writeValidation(w, r, "invalid filter", map[string]any{"status": "must be one of: " + rideStatuses})
			return
		}
		in.Status = &st
	}
	if v := q.Get("rider__email"); v != "" {
		email := domain.NormalizeEmail(v)
		in.RiderEmail = &email
	}

	out, err := s.Rides.ListRides(r.Context(), in, page)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageJSON(r, out, rideFromDomain))
}

func (s *Server) CreateRide(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromContext(r.Context())
	var body RideRequest
	if !s.decodeBody(w, r, &body) {
		return
	}

	// Idempotency handling:
	// - Replay if same caller+key+route+bodyHash
	// - Reject if same caller+key+route with different bodyHash (409)
	idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	var metaFP idempotency.Fingerprint
	var bodyHash string
	if idemKey != "" && s.Idem != nil {
		var err error
		bodyHash, err = hashBody(body)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		metaFP = idempotency.Fingerprint{
			Key:      idempotency.Key(idemKey),
			Caller:   p.UserID,
			Method:   http.MethodPost,
			Route:    "/rides",
			BodyHash: "",
		}
		if meta, ok, err := s.Idem.Get(r.Context(), metaFP); err != nil {
			s.writeAppError(w, r, err)
			return
		} else if ok {
			if string(meta.Body) != bodyHash {
				writeError(w, r, http.StatusConflict, "IDEMPOTENCY_KEY_REUSE", "idempotency key reuse with different payload", nil)
				return
			}
		} else {
			_ = s.Idem.Put(r.Context(), metaFP, idempotency.Record{
				StatusCode:  0,
				ContentType: "text/plain",
				Body:        []byte(bodyHash),
				CreatedAt:   time.Now().UTC(),
			})
		}

		respFP := metaFP
		respFP.BodyHash = bodyHash
		if rec, ok, err := s.Idem.Get(r.Context(), respFP); err != nil {
			s.writeAppError(w, r, err)
			return
		} else if ok && rec.StatusCode == http.StatusCreated && strings.HasPrefix(rec.ContentType, "application/json") {
			w.Header().Set("Content-Type", rec.ContentType)
			w.Header().Set("Idempotent-Replayed", "true")
			w.WriteHeader(rec.StatusCode)
			_, _ = w.Write(rec.Body)
			return
		}
	}

	created, err := s.Rides.CreateRide(r.Context(), createInput(body))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	resp := rideFromDomain(created)

	if idemKey != "" && s.Idem != nil {
		respFP := metaFP
		respFP.BodyHash = bodyHash
		if b, err := json.Marshal(resp); err == nil {
			_ = s.Idem.Put(r.Context(), respFP, idempotency.Record{
				StatusCode:  http.StatusCreated,
				ContentType: "application/json",
				Body:        b,
				CreatedAt:   time.Now().UTC(),
			})
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) GetRide(w http.ResponseWriter, r *http.Request) {
	got, err := s.Rides.GetRide(r.Context(), rideIDParam(r), referencePoint(r.URL.Query()))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rideFromDomain(got))
}

func (s *Server) ReplaceRide(w http.ResponseWriter, r *http.Request) {
	var body RideRequest
	if !s.decodeBody(w, r, &body) {
		return
	}
	got, err := s.Rides.ReplaceRide(r.Context(), rideIDParam(r), createInput(body), referencePoint(r.URL.Query()))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rideFromDomain(got))
}

func (s *Server) UpdateRide(w http.ResponseWriter, r *http.Request) {
	var body RidePatchRequest
	if !s.decodeBody(w, r, &body) {
		return
	}

	var in rides.UpdateRideInput
	if body.Status != nil {
		in.Status = rides.Some(domain.RideStatus(*body.Status))
	}
	if body.RiderID != nil {
		in.RiderID = rides.Some(domain.UserID(*body.RiderID))
	}
	if body.DriverID.IsSpecified() {
		if body.DriverID.IsNull() {
			in.DriverID = rides.Null[domain.UserID]()
		} else if v, err := body.DriverID.Get(); err == nil {
			in.DriverID = rides.Some(domain.UserID(v))
		}
	}
	in.PickupLatitude = optionalFloat(body.PickupLatitude)
	in.PickupLongitude = optionalFloat(body.PickupLongitude)
	in.DropoffLatitude = optionalFloat(body.DropoffLatitude)
	in.DropoffLongitude = optionalFloat(body.DropoffLongitude)
	if body.PickupTime != nil {
		in.PickupTime = rides.Some(*body.PickupTime)
	}

	got, err := s.Rides.UpdateRide(r.Context(), rideIDParam(r), in, referencePoint(r.URL.Query()))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rideFromDomain(got))
}

func (s *Server) DeleteRide(w http.ResponseWriter, r *http.Request) {
	if err := s.Rides.DeleteRide(r.Context(), rideIDParam(r)); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListRideEvents returns the full history of a ride, paginated like every other list.
func (s *Server) ListRideEvents(w http.ResponseWriter, r *http.Request) {
	page, ok := pageRequest(r.URL.Query())
	if !ok {
		pageNotFound(w, r)
		return
	}
	evs, err := s.Rides.ListRideEvents(r.Context(), rideIDParam(r))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	out, ok := paging.Slice(evs, s.Rides.Limits.Normalize(page))
	if !ok {
		pageNotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, toPageJSON(r, out, rideEventFromDomain))
}

func rideIDParam(r *http.Request) domain.RideID {
	return domain.RideID(chi.URLParam(r, "rideID"))
}

func createInput(b RideRequest) rides.CreateRideInput {
	in := rides.CreateRideInput{
		RiderID: domain.UserID(b.RiderID),
		Pickup:  domain.Coordinate{Latitude: deref(b.PickupLatitude), Longitude: deref(b.PickupLongitude)},
		Dropoff: domain.Coordinate{Latitude: deref(b.DropoffLatitude), Longitude: deref(b.DropoffLongitude)},
	}
	if b.PickupTime != nil {
		in.PickupTime = *b.PickupTime
	}
	if b.DriverID != nil {
		id := domain.UserID(*b.DriverID)
		in.DriverID = &id
	}
	if b.Status != nil {
		st := domain.RideStatus(*b.Status)
		in.Status = &st
	}
	return in
}

func optionalFloat(p *float64) rides.Optional[float64] {
	if p == nil {
		return rides.Unspecified[float64]()
	}
	return rides.Some(*p)
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func hashBody(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

func rideFromDomain(d domain.RideDetails) RideJSON {
	out := RideJSON{
		ID:               string(d.Ride.ID),
		Status:           string(d.Ride.Status),
		Rider:            summaryFromDomain(d.Rider),
		Driver:           summaryFromDomain(d.Driver),
		PickupLatitude:   d.Ride.Pickup.Latitude,
		PickupLongitude:  d.Ride.Pickup.Longitude,
		DropoffLatitude:  d.Ride.Dropoff.Latitude,
		DropoffLongitude: d.Ride.Dropoff.Longitude,
		PickupTime:       d.Ride.PickupTime.UTC(),
		CreatedAt:        d.Ride.CreatedAt.UTC(),
		UpdatedAt:        d.Ride.UpdatedAt.UTC(),
		TodaysRideEvents: make([]RideEventJSON, 0, len(d.TodaysEvents)),
		DistanceToPickup: nullable.NewNullNullable[float64](),
	}
	for _, ev := range d.TodaysEvents {
		out.TodaysRideEvents = append(out.TodaysRideEvents, rideEventFromDomain(ev))
	}
	if d.DistanceToPickupKm != nil {
		out.DistanceToPickup = nullable.NewNullableWithValue(*d.DistanceToPickupKm)
	}
	return out
}

func rideEventFromDomain(ev domain.RideEvent) RideEventJSON {
	return RideEventJSON{
		ID:          string(ev.ID),
		RideID:      string(ev.RideID),
		Description: ev.Description,
		CreatedAt:   ev.CreatedAt.UTC(),
	}
}

func summaryFromDomain(u *domain.UserSummary) *UserSummaryJSON {
	if u == nil {
		return nil
	}
	return &UserSummaryJSON{
		ID:          string(u.ID),
		Username:    u.Username,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Role:        u.Role.String(),
		PhoneNumber: u.PhoneNumber,
		IsActive:    u.IsActive,
	}
}
