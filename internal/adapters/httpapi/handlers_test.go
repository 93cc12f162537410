package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	memclock "github.com/wingz-dispatch/ride-records-api/internal/adapters/memory/clock"
	memidempotency "github.com/wingz-dispatch/ride-records-api/internal/adapters/memory/idempotency"
	memriderepo "github.com/wingz-dispatch/ride-records-api/internal/adapters/memory/riderepo"
	memuserrepo "github.com/wingz-dispatch/ride-records-api/internal/adapters/memory/userrepo"
	"github.com/wingz-dispatch/ride-records-api/internal/app/rides"
	"github.com/wingz-dispatch/ride-records-api/internal/app/users"
	"github.com/wingz-dispatch/ride-records-api/internal/domain"
	"github.com/wingz-dispatch/ride-records-api/internal/platform/auth/tokens"
	"github.com/wingz-dispatch/ride-records-api/internal/platform/logging"
)

var now0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type apiHarness struct {
	h      http.Handler
	clk    *memclock.ManualClock
	issuer *tokens.Issuer

	admin  domain.User
	driver domain.User
	rider  domain.User
}

func newAPIHarness(t *testing.T, jwtMode bool) *apiHarness {
	t.Helper()
	clk := memclock.NewManualClock(now0)
	userRepo := memuserrepo.NewRepo()
	userSvc := users.NewService(userRepo, clk)
	userSvc.PasswordCost = bcrypt.MinCost
	rideSvc := rides.NewService(memriderepo.NewRepo(userRepo), userSvc, clk)
	issuer := tokens.NewIssuer(tokens.Config{
		Secret:     []byte("handler-test"),
		Issuer:     "test-iss",
		Audience:   "test-aud",
		AccessTTL:  5 * time.Minute,
		RefreshTTL: time.Hour,
	}, clk)

	a := &apiHarness{clk: clk, issuer: issuer}
	ctx := context.Background()
	mk := func(name string, role domain.Role) domain.User {
		u, err := userSvc.CreateUser(ctx, users.CreateUserInput{
			Username: name, Email: name + "@example.com", Password: "pw-" + name, Role: &role,
		})
		if err != nil {
			t.Fatalf("CreateUser(%s): %v", name, err)
		}
		return u
	}
	a.admin = mk("admin", domain.RoleAdmin)
	a.driver = mk("dana", domain.RoleDriver)
	a.rider = mk("riley", domain.RoleRider)

	srv := NewServer(rideSvc, userSvc, issuer, memidempotency.NewStore(), logging.Discard())
	auth := NewDevAuthMiddleware(userSvc, "", logging.Discard())
	if jwtMode {
		auth = NewAuthMiddleware(issuer, userSvc, logging.Discard())
	}
	a.h = NewRouter(srv, RouterOptions{AuthMiddleware: auth, Logger: logging.Discard(), RequestTimeout: 5 * time.Second})
	return a
}

func (a *apiHarness) do(t *testing.T, method, path, subject string, body any, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if subject != "" {
		req.Header.Set("X-Debug-Subject", subject)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	a.h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v\nbody=%s", err, rec.Body.String())
	}
	return out
}

func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status=%d want=%d body=%s", rec.Code, want, rec.Body.String())
	}
}

func requireError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) ErrorResponse {
	t.Helper()
	requireStatus(t, rec, status)
	er := decode[ErrorResponse](t, rec)
	if er.Error.Code != code {
		t.Fatalf("error.code=%q want=%q body=%s", er.Error.Code, code, rec.Body.String())
	}
	return er
}

type rideBody struct {
	ID               string           `json:"id"`
	Status           string           `json:"status"`
	Rider            *UserSummaryJSON `json:"rider"`
	Driver           *UserSummaryJSON `json:"driver"`
	PickupLatitude   float64          `json:"pickup_latitude"`
	TodaysRideEvents []RideEventJSON  `json:"todays_ride_events"`
	DistanceToPickup *float64         `json:"distance_to_pickup"`
}

type ridePage struct {
	Count    int        `json:"count"`
	Next     *string    `json:"next"`
	Previous *string    `json:"previous"`
	Results  []rideBody `json:"results"`
}

func (a *apiHarness) newRideBody(pickupTime time.Time) map[string]any {
	return map[string]any{
		"rider_id":          string(a.rider.ID),
		"pickup_latitude":   14.5995,
		"pickup_longitude":  120.9842,
		"dropoff_latitude":  14.55,
		"dropoff_longitude": 121.02,
		"pickup_time":       pickupTime.Format(time.RFC3339),
	}
}

func (a *apiHarness) createRide(t *testing.T, body map[string]any) rideBody {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/rides", string(a.admin.ID), body)
	requireStatus(t, rec, http.StatusCreated)
	return decode[rideBody](t, rec)
}

func TestAuthMiddleware_JWT(t *testing.T) {
	t.Parallel()
	a := newAPIHarness(t, true)

	rec := a.do(t, http.MethodGet, "/users/me", "", nil)
	er := requireError(t, rec, http.StatusUnauthorized, "UNAUTHORIZED")
	if rid, err := er.Error.RequestId.Get(); err != nil || rid == "" {
		t.Fatalf("expected requestId to be a non-empty string")
	}

	rec = a.do(t, http.MethodGet, "/users/me", "", nil, "Authorization", "Basic abc")
	requireError(t, rec, http.StatusUnauthorized, "UNAUTHORIZED")

	rec = a.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "riley", "password": "wrong"})
	requireError(t, rec, http.StatusUnauthorized, "UNAUTHORIZED")

	rec = a.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "riley", "password": "pw-riley"})
	requireStatus(t, rec, http.StatusOK)
	pair := decode[TokenPairJSON](t, rec)
	if pair.Access == "" || pair.Refresh == "" {
		t.Fatalf("expected both tokens: %+v", pair)
	}

	rec = a.do(t, http.MethodGet, "/users/me", "", nil, "Authorization", "Bearer "+pair.Access)
	requireStatus(t, rec, http.StatusOK)
	if me := decode[UserJSON](t, rec); me.ID != string(a.rider.ID) || me.Role != "rider" {
		t.Fatalf("unexpected me: %+v", me)
	}

	// A refresh token is not an access token.
	rec = a.do(t, http.MethodGet, "/users/me", "", nil, "Authorization", "Bearer "+pair.Refresh)
	requireError(t, rec, http.StatusUnauthorized, "UNAUTHORIZED")

	rec = a.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{"refresh": pair.Refresh})
	requireStatus(t, rec, http.StatusOK)
	refreshed := decode[TokenPairJSON](t, rec)
	if refreshed.Access == "" || refreshed.Refresh != "" {
		t.Fatalf("unexpected refresh response: %+v", refreshed)
	}

	rec = a.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{"refresh": pair.Access})
	requireError(t, rec, http.StatusUnauthorized, "UNAUTHORIZED")

	a.clk.Advance(10 * time.Minute)
	rec = a.do(t, http.MethodGet, "/users/me", "", nil, "Authorization", "Bearer "+pair.Access)
	requireError(t, rec, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestRoles_GateRideAndUserEndpoints(t *testing.T) {
	t.Parallel()
	a := newAPIHarness(t, false)

	requireError(t, a.do(t, http.MethodGet, "/rides", string(a.rider.ID), nil), http.StatusForbidden, "FORBIDDEN")
	requireStatus(t, a.do(t, http.MethodGet, "/rides", string(a.driver.ID), nil), http.StatusOK)
	requireStatus(t, a.do(t, http.MethodGet, "/rides", string(a.admin.ID), nil), http.StatusOK)

	requireError(t, a.do(t, http.MethodGet, "/users", string(a.driver.ID), nil), http.StatusForbidden, "FORBIDDEN")
	requireStatus(t, a.do(t, http.MethodGet, "/users/me", string(a.driver.ID), nil), http.StatusOK)
	requireStatus(t, a.do(t, http.MethodGet, "/users", string(a.admin.ID), nil), http.StatusOK)

	requireError(t, a.do(t, http.MethodGet, "/rides", "no-such-user", nil), http.StatusUnauthorized, "UNAUTHORIZED")
	requireStatus(t, a.do(t, http.MethodGet, "/healthz", "", nil), http.StatusOK)
}

func TestRides_CreateGetAndDistance(t *testing.T) {
	t.Parallel()
	a := newAPIHarness(t, false)
	admin := string(a.admin.ID)

	body := a.newRideBody(now0.Add(time.Hour))
	body["driver_id"] = string(a.driver.ID)
	created := a.createRide(t, body)
	if created.Status != "pending" || created.Rider == nil || created.Rider.Email != "riley@example.com" || created.Driver == nil {
		t.Fatalf("unexpected ride: %+v", created)
	}
	if created.TodaysRideEvents == nil || len(created.TodaysRideEvents) != 0 || created.DistanceToPickup != nil {
		t.Fatalf("unexpected derived fields: %+v", created)
	}

	rec := a.do(t, http.MethodGet, "/rides/"+created.ID+"?latitude=14.5995&longitude=120.9842", admin, nil)
	requireStatus(t, rec, http.StatusOK)
	if got := decode[rideBody](t, rec); got.DistanceToPickup == nil || *got.DistanceToPickup != 0 {
		t.Fatalf("distance=%v want 0", got.DistanceToPickup)
	}

	rec = a.do(t, http.MethodGet, "/rides/"+created.ID+"?latitude=abc&longitude=120.9", admin, nil)
	requireStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), `"distance_to_pickup":null`) {
		t.Fatalf("expected null distance: %s", rec.Body.String())
	}

	requireError(t, a.do(t, http.MethodGet, "/rides/missing", admin, nil), http.StatusNotFound, "RIDE_NOT_FOUND")
}

func TestRides_CreateValidation(t *testing.T) {
	t.Parallel()
	a := newAPIHarness(t, false)
	admin := string(a.admin.ID)

	body := a.newRideBody(now0)
	delete(body, "pickup_latitude")
	body["dropoff_longitude"] = 200
	er := requireError(t, a.do(t, http.MethodPost, "/rides", admin, body), http.StatusBadRequest, "VALIDATION_ERROR")
	details, err := er.Error.Details.Get()
	if err != nil {
		t.Fatalf("expected details: %v", err)
	}
	for _, f := range []string{"pickup_latitude", "dropoff_longitude"} {
		if _, ok := details[f]; !ok {
			t.Fatalf("details=%v, missing %s", details, f)
		}
	}

	body = a.newRideBody(now0)
	body["rider_id"] = string(a.driver.ID)
	requireError(t, a.do(t, http.MethodPost, "/rides", admin, body), http.StatusBadRequest, "VALIDATION_ERROR")

	body = a.newRideBody(now0)
	body["status"] = "teleported"
	requireError(t, a.do(t, http.MethodPost, "/rides", admin, body), http.StatusBadRequest, "VALIDATION_ERROR")

	requireError(t, a.do(t, http.MethodPost, "/rides", admin, "{"), http.StatusBadRequest, "VALIDATION_ERROR")
	requireError(t, a.do(t, http.MethodPost, "/rides", admin, `{"pickup_latitude":"north"}`), http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestRides_PatchStatusEmitsEventAndDriverCanBeCleared(t *testing.T) {
	t.Parallel()
	a := newAPIHarness(t, false)
	admin := string(a.admin.ID)

	body := a.newRideBody(now0)
	body["driver_id"] = string(a.driver.ID)
	body["status"] = "accepted"
	created := a.createRide(t, body)

	rec := a.do(t, http.MethodPatch, "/rides/"+created.ID, admin, map[string]any{"status": "pickup"})
	requireStatus(t, rec, http.StatusOK)
	got := decode[rideBody](t, rec)
	if got.Status != "pickup" || len(got.TodaysRideEvents) != 1 || got.TodaysRideEvents[0].Description != "Status changed to pickup" {
		t.Fatalf("unexpected ride after pickup: %+v", got)
	}

	rec = a.do(t, http.MethodPatch, "/rides/"+created.ID, admin, `{"driver_id":null}`)
	requireStatus(t, rec, http.StatusOK)
	if got := decode[rideBody](t, rec); got.Driver != nil || got.Status != "pickup" {
		t.Fatalf("driver not cleared: %+v", got)
	}

	rec = a.do(t, http.MethodPatch, "/rides/"+created.ID, admin, map[string]any{"pickup_latitude": 91})
	requireError(t, rec, http.StatusBadRequest, "VALIDATION_ERROR")

	rec = a.do(t, http.MethodGet, "/rides/"+created.ID+"/events", admin, nil)
	requireStatus(t, rec, http.StatusOK)
	events := decode[struct {
		Count   int             `json:"count"`
		Results []RideEventJSON `json:"results"`
	}](t, rec)
	if events.Count != 1 || events.Results[0].RideID != created.ID {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestRides_PutRequiresFullBody(t *testing.T) {
	t.Parallel()
	a := newAPIHarness(t, false)
	admin := string(a.admin.ID)
	created := a.createRide(t, a.newRideBody(now0))

	requireError(t, a.do(t, http.MethodPut, "/rides/"+created.ID, admin, map[string]any{"status": "accepted"}), http.StatusBadRequest, "VALIDATION_ERROR")

	body := a.newRideBody(now0.Add(2 * time.Hour))
	body["pickup_latitude"] = 10.0
	rec := a.do(t, http.MethodPut, "/rides/"+created.ID, admin, body)
	requireStatus(t, rec, http.StatusOK)
	if got := decode[rideBody](t, rec); got.PickupLatitude != 10 || got.Status != "pending" {
		t.Fatalf("unexpected ride: %+v", got)
	}
}

func TestRides_ListPaginationLinksAndOrdering(t *testing.T) {
	t.Parallel()
	a := newAPIHarness(t, false)
	admin := string(a.admin.ID)

	for i := 0; i < 12; i++ {
		a.createRide(t, a.newRideBody(now0.Add(time.Duration(i)*time.Hour)))
	}

	rec := a.do(t, http.MethodGet, "/rides?page_size=5&ordering=distance_to_pickup", admin, nil)
	requireStatus(t, rec, http.StatusOK)
	p1 := decode[ridePage](t, rec)
	if p1.Count != 12 || len(p1.Results) != 5 || p1.Previous != nil || p1.Next == nil {
		t.Fatalf("page 1: %+v", p1)
	}
	if !strings.Contains(*p1.Next, "page=2") || !strings.Contains(*p1.Next, "page_size=5") {
		t.Fatalf("next link: %s", *p1.Next)
	}

	rec = a.do(t, http.MethodGet, "/rides?page_size=5&page=3", admin, nil)
	requireStatus(t, rec, http.StatusOK)
	p3 := decode[ridePage](t, rec)
	if p3.Count != 12 || len(p3.Results) != 2 || p3.Next != nil || p3.Previous == nil || !strings.Contains(*p3.Previous, "page=2") {
		t.Fatalf("page 3: %+v", p3)
	}

	requireError(t, a.do(t, http.MethodGet, "/rides?page_size=5&page=4", admin, nil), http.StatusNotFound, "PAGE_NOT_FOUND")
	requireError(t, a.do(t, http.MethodGet, "/rides?page=zero", admin, nil), http.StatusNotFound, "PAGE_NOT_FOUND")
	requireError(t, a.do(t, http.MethodGet, "/rides?status=lost", admin, nil), http.StatusBadRequest, "VALIDATION_ERROR")

	rec = a.do(t, http.MethodGet, "/rides?rider__email=RILEY@example.com&ordering=pickup_time&page_size=100", admin, nil)
	requireStatus(t, rec, http.StatusOK)
	all := decode[ridePage](t, rec)
	if all.Count != 12 || len(all.Results) != 12 {
		t.Fatalf("rider email filter: count=%d results=%d", all.Count, len(all.Results))
	}
}

func TestRides_IdempotentCreate(t *testing.T) {
	t.Parallel()
	a := newAPIHarness(t, false)
	admin := string(a.admin.ID)
	body := a.newRideBody(now0)

	first := a.do(t, http.MethodPost, "/rides", admin, body, "Idempotency-Key", "k-1")
	requireStatus(t, first, http.StatusCreated)
	second := a.do(t, http.MethodPost, "/rides", admin, body, "Idempotency-Key", "k-1")
	requireStatus(t, second, http.StatusCreated)
	if decode[rideBody](t, first).ID != decode[rideBody](t, second).ID {
		t.Fatalf("replay returned a different ride")
	}
	if second.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("expected replay header")
	}

	body["pickup_latitude"] = 1.0
	requireError(t, a.do(t, http.MethodPost, "/rides", admin, body, "Idempotency-Key", "k-1"), http.StatusConflict, "IDEMPOTENCY_KEY_REUSE")

	rec := a.do(t, http.MethodGet, "/rides", admin, nil)
	if page := decode[ridePage](t, rec); page.Count != 1 {
		t.Fatalf("count=%d want 1", page.Count)
	}
}

func TestRides_DeleteCascades(t *testing.T) {
	t.Parallel()
	a := newAPIHarness(t, false)
	admin := string(a.admin.ID)

	body := a.newRideBody(now0)
	body["status"] = "accepted"
	created := a.createRide(t, body)
	requireStatus(t, a.do(t, http.MethodPatch, "/rides/"+created.ID, admin, map[string]any{"status": "dropoff"}), http.StatusOK)

	requireStatus(t, a.do(t, http.MethodDelete, "/rides/"+created.ID, admin, nil), http.StatusNoContent)
	requireError(t, a.do(t, http.MethodGet, "/rides/"+created.ID, admin, nil), http.StatusNotFound, "RIDE_NOT_FOUND")
	requireError(t, a.do(t, http.MethodGet, "/rides/"+created.ID+"/events", admin, nil), http.StatusNotFound, "RIDE_NOT_FOUND")
}

func TestUsers_CRUD(t *testing.T) {
	t.Parallel()
	a := newAPIHarness(t, false)
	admin := string(a.admin.ID)

	rec := a.do(t, http.MethodPost, "/users", admin, map[string]any{
		"username": "zoe", "email": "zoe@example.com", "password": "secret", "phone_number": "+63 900",
	})
	requireStatus(t, rec, http.StatusCreated)
	zoe := decode[UserJSON](t, rec)
	if zoe.Role != "rider" || !zoe.IsActive || zoe.PhoneNumber == nil {
		t.Fatalf("unexpected user: %+v", zoe)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("password leaked: %s", rec.Body.String())
	}

	requireError(t, a.do(t, http.MethodPost, "/users", admin, map[string]any{
		"username": "zoe", "email": "zoe2@example.com", "password": "secret",
	}), http.StatusConflict, "USERNAME_TAKEN")
	requireError(t, a.do(t, http.MethodPost, "/users", admin, map[string]any{
		"username": "zed", "email": "not-an-email", "password": "secret",
	}), http.StatusBadRequest, "VALIDATION_ERROR")

	rec = a.do(t, http.MethodPatch, "/users/"+zoe.ID, admin, `{"phone_number":null,"role":"driver"}`)
	requireStatus(t, rec, http.StatusOK)
	if got := decode[UserJSON](t, rec); got.PhoneNumber != nil || got.Role != "driver" {
		t.Fatalf("unexpected patched user: %+v", got)
	}
	requireError(t, a.do(t, http.MethodPut, "/users/"+zoe.ID, admin, map[string]any{"first_name": "Zoe"}), http.StatusBadRequest, "VALIDATION_ERROR")

	rec = a.do(t, http.MethodGet, "/users?role=driver", admin, nil)
	requireStatus(t, rec, http.StatusOK)
	page := decode[struct {
		Count   int        `json:"count"`
		Results []UserJSON `json:"results"`
	}](t, rec)
	if page.Count != 2 {
		t.Fatalf("drivers=%d want 2: %+v", page.Count, page.Results)
	}

	requireStatus(t, a.do(t, http.MethodDelete, "/users/"+zoe.ID, admin, nil), http.StatusNoContent)
	requireError(t, a.do(t, http.MethodGet, "/users/"+zoe.ID, admin, nil), http.StatusNotFound, "USER_NOT_FOUND")
}

func TestRides_DeletedRiderReadsBackAsNull(t *testing.T) {
	t.Parallel()
	a := newAPIHarness(t, false)
	admin := string(a.admin.ID)
	created := a.createRide(t, a.newRideBody(now0))

	requireStatus(t, a.do(t, http.MethodDelete, "/users/"+string(a.rider.ID), admin, nil), http.StatusNoContent)
	rec := a.do(t, http.MethodGet, "/rides/"+created.ID, admin, nil)
	requireStatus(t, rec, http.StatusOK)
	if got := decode[rideBody](t, rec); got.Rider != nil {
		t.Fatalf("rider=%+v want null", got.Rider)
	}
	if !strings.Contains(rec.Body.String(), `"rider":null`) {
		t.Fatalf("expected rider null in %s", rec.Body.String())
	}
}
