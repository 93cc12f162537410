package itest

import (
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/wingz-dispatch/ride-records-api/internal/domain"
)

type rideResp struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Rider  *struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"rider"`
	TodaysRideEvents []struct {
		Description string `json:"description"`
	} `json:"todays_ride_events"`
	DistanceToPickup *float64 `json:"distance_to_pickup"`
}

type ridePageResp struct {
	Count    int        `json:"count"`
	Next     *string    `json:"next"`
	Previous *string    `json:"previous"`
	Results  []rideResp `json:"results"`
}

func TestRides_ITest(t *testing.T) {
	for _, b := range backendsFromEnv(t) {
		t.Run(string(b), func(t *testing.T) {
			srv := newTestServer(t, b)
			admin := srv.adminID

			// Missing subject => 401
			{
				status, body, hdr := srv.doJSON(t, http.MethodGet, "/rides", "", nil)
				requireErrorCode(t, status, body, http.StatusUnauthorized, "UNAUTHORIZED")
				requireHeaderPresent(t, hdr, "Content-Type")
			}

			riderID := srv.createUser(t, "rosa", domain.RoleRider)
			driverID := srv.createUser(t, "diego", domain.RoleDriver)

			// Riders cannot manage rides, drivers can.
			{
				status, body, _ := srv.doJSON(t, http.MethodGet, "/rides", riderID, nil)
				requireErrorCode(t, status, body, http.StatusForbidden, "FORBIDDEN")
				status, body, _ = srv.doJSON(t, http.MethodGet, "/rides", driverID, nil)
				requireStatus(t, status, body, http.StatusOK)
			}

			base := time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC)
			newRide := func(i int, lat float64) map[string]any {
				return map[string]any{
					"rider_id":          riderID,
					"driver_id":         driverID,
					"status":            "accepted",
					"pickup_latitude":   lat,
					"pickup_longitude":  121.0,
					"dropoff_latitude":  14.0,
					"dropoff_longitude": 121.1,
					"pickup_time":       base.Add(time.Duration(i) * time.Hour).Format(time.RFC3339),
				}
			}

			ids := make([]string, 0, 12)
			for i := 0; i < 12; i++ {
				status, body, _ := srv.doJSON(t, http.MethodPost, "/rides", admin, newRide(i, 14.0+float64((i*7)%12)*0.01))
				requireStatus(t, status, body, http.StatusCreated)
				ids = append(ids, mustUnmarshal[rideResp](t, body).ID)
			}

			// Pagination: 5 / 5 / 2 with a stable total.
			for page, want := range []int{5, 5, 2} {
				status, body, _ := srv.doJSON(t, http.MethodGet, fmt.Sprintf("/rides?page_size=5&page=%d", page+1), admin, nil)
				requireStatus(t, status, body, http.StatusOK)
				got := mustUnmarshal[ridePageResp](t, body)
				if got.Count != 12 || len(got.Results) != want {
					t.Fatalf("page %d: count=%d results=%d", page+1, got.Count, len(got.Results))
				}
			}

			// Distance ordering with a reference point.
			{
				status, body, _ := srv.doJSON(t, http.MethodGet, "/rides?ordering=distance_to_pickup&latitude=14.0&longitude=121.0&page_size=12", admin, nil)
				requireStatus(t, status, body, http.StatusOK)
				got := mustUnmarshal[ridePageResp](t, body)
				if got.Results[0].ID != ids[0] {
					t.Fatalf("nearest ride=%s want %s", got.Results[0].ID, ids[0])
				}
				for i := 1; i < len(got.Results); i++ {
					prev, cur := got.Results[i-1].DistanceToPickup, got.Results[i].DistanceToPickup
					if prev == nil || cur == nil || *prev > *cur {
						t.Fatalf("distances not ascending at %d", i)
					}
				}
			}

			// Distance ordering without a reference falls back to newest pickup first.
			{
				status, body, _ := srv.doJSON(t, http.MethodGet, "/rides?ordering=distance_to_pickup&page_size=1", admin, nil)
				requireStatus(t, status, body, http.StatusOK)
				got := mustUnmarshal[ridePageResp](t, body)
				if got.Results[0].ID != ids[11] || got.Results[0].DistanceToPickup != nil {
					t.Fatalf("fallback ordering returned %+v", got.Results[0])
				}
			}

			// Concurrent pickup/dropoff flips keep an alternating trail.
			target := ids[3]
			{
				var wg sync.WaitGroup
				for i := 0; i < 8; i++ {
					for _, st := range []string{"pickup", "dropoff"} {
						wg.Add(1)
						go func(st string) {
							defer wg.Done()
							for {
								status, body, _ := srv.doJSON(t, http.MethodPatch, "/rides/"+target, admin, map[string]any{"status": st})
								if status == http.StatusConflict {
									continue
								}
								if status != http.StatusOK {
									t.Errorf("patch status=%d body=%s", status, string(body))
								}
								return
							}
						}(st)
					}
				}
				wg.Wait()

				status, body, _ := srv.doJSON(t, http.MethodGet, "/rides/"+target+"/events?page_size=100", admin, nil)
				requireStatus(t, status, body, http.StatusOK)
				evs := mustUnmarshal[struct {
					Results []struct {
						Description string `json:"description"`
					} `json:"results"`
				}](t, body).Results
				if len(evs) == 0 {
					t.Fatalf("expected events")
				}
				for i := 1; i < len(evs); i++ {
					if evs[i].Description == evs[i-1].Description {
						t.Fatalf("duplicate consecutive event at %d: %q", i, evs[i].Description)
					}
				}
			}

			// Event window: events older than 24h drop out of todays_ride_events.
			{
				srv.clk.Advance(25 * time.Hour)
				status, body, _ := srv.doJSON(t, http.MethodGet, "/rides/"+target, admin, nil)
				requireStatus(t, status, body, http.StatusOK)
				if got := mustUnmarshal[rideResp](t, body); len(got.TodaysRideEvents) != 0 {
					t.Fatalf("stale events still attached: %+v", got.TodaysRideEvents)
				}
			}

			// Deleting the rider keeps the ride with a null rider.
			{
				status, body, _ := srv.doJSON(t, http.MethodDelete, "/users/"+riderID, admin, nil)
				requireStatus(t, status, body, http.StatusNoContent)
				status, body, _ = srv.doJSON(t, http.MethodGet, "/rides/"+ids[0], admin, nil)
				requireStatus(t, status, body, http.StatusOK)
				if got := mustUnmarshal[rideResp](t, body); got.Rider != nil {
					t.Fatalf("rider=%+v want null", got.Rider)
				}
			}

			// Delete cascades.
			{
				status, body, _ := srv.doJSON(t, http.MethodDelete, "/rides/"+target, admin, nil)
				requireStatus(t, status, body, http.StatusNoContent)
				status, body, _ = srv.doJSON(t, http.MethodGet, "/rides/"+target+"/events", admin, nil)
				requireErrorCode(t, status, body, http.StatusNotFound, "RIDE_NOT_FOUND")
			}
		})
	}
}
