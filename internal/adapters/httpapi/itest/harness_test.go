package itest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/wingz-dispatch/ride-records-api/internal/adapters/httpapi"
	memclock "github.com/wingz-dispatch/ride-records-api/internal/adapters/memory/clock"
	memidempotency "github.com/wingz-dispatch/ride-records-api/internal/adapters/memory/idempotency"
	memriderepo "github.com/wingz-dispatch/ride-records-api/internal/adapters/memory/riderepo"
	memuserrepo "github.com/wingz-dispatch/ride-records-api/internal/adapters/memory/userrepo"
	pgidempotency "github.com/wingz-dispatch/ride-records-api/internal/adapters/postgres/idempotency"
	pgriderepo "github.com/wingz-dispatch/ride-records-api/internal/adapters/postgres/riderepo"
	postgres_testutil "github.com/wingz-dispatch/ride-records-api/internal/adapters/postgres/testutil"
	pguserrepo "github.com/wingz-dispatch/ride-records-api/internal/adapters/postgres/userrepo"
	"github.com/wingz-dispatch/ride-records-api/internal/adapters/sqlite"
	sqliteidempotency "github.com/wingz-dispatch/ride-records-api/internal/adapters/sqlite/idempotency"
	sqliteriderepo "github.com/wingz-dispatch/ride-records-api/internal/adapters/sqlite/riderepo"
	sqliteuserrepo "github.com/wingz-dispatch/ride-records-api/internal/adapters/sqlite/userrepo"
	"github.com/wingz-dispatch/ride-records-api/internal/app/rides"
	"github.com/wingz-dispatch/ride-records-api/internal/app/users"
	"github.com/wingz-dispatch/ride-records-api/internal/domain"
	"github.com/wingz-dispatch/ride-records-api/internal/platform/auth/tokens"
	"github.com/wingz-dispatch/ride-records-api/internal/platform/logging"
	idempotencyport "github.com/wingz-dispatch/ride-records-api/internal/ports/out/idempotency"
	riderepoport "github.com/wingz-dispatch/ride-records-api/internal/ports/out/riderepo"
	userrepoport "github.com/wingz-dispatch/ride-records-api/internal/ports/out/userrepo"
)

type backend string

const (
	backendMemory   backend = "memory"
	backendPostgres backend = "postgres"
	backendSQLite   backend = "sqlite"
)

func backendsFromEnv(t *testing.T) []backend {
	t.Helper()
	switch strings.ToLower(strings.TrimSpace(os.Getenv("ITEST_BACKEND"))) {
	case "", "memory":
		return []backend{backendMemory}
	case "postgres":
		return []backend{backendPostgres}
	case "sqlite":
		return []backend{backendSQLite}
	case "all":
		return []backend{backendMemory, backendSQLite, backendPostgres}
	default:
		t.Fatalf("unknown ITEST_BACKEND value (expected memory|postgres|sqlite|all)")
		return nil
	}
}

type testServer struct {
	baseURL string
	client  *http.Client
	clk     *memclock.ManualClock

	// adminID is bootstrapped directly through the directory, the way promote-admin does.
	adminID string
}

func newTestServer(t *testing.T, b backend) *testServer {
	t.Helper()

	clk := memclock.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	var (
		userRepo  userrepoport.Repository
		rideRepo  riderepoport.Repository
		idemStore idempotencyport.Store
	)

	switch b {
	case backendPostgres:
		pool := postgres_testutil.OpenMigratedPool(t)
		userRepo = pguserrepo.NewRepo(pool)
		rideRepo = pgriderepo.NewRepo(pool)
		idemStore = pgidempotency.NewStore(pool)
	case backendSQLite:
		db, err := sqlite.OpenInMemory(uuid.NewString())
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		t.Cleanup(func() { _ = sqlite.Close(db) })
		userRepo = sqliteuserrepo.NewRepo(db)
		rideRepo = sqliteriderepo.NewRepo(db)
		idemStore = sqliteidempotency.NewStore(db)
	case backendMemory:
		userRepo = memuserrepo.NewRepo()
		rideRepo = memriderepo.NewRepo(userRepo)
		idemStore = memidempotency.NewStore()
	default:
		t.Fatalf("unknown backend: %s", b)
	}

	userSvc := users.NewService(userRepo, clk)
	userSvc.PasswordCost = bcrypt.MinCost
	rideSvc := rides.NewService(rideRepo, userSvc, clk)
	issuer := tokens.NewIssuer(tokens.Config{Secret: []byte("itest"), AccessTTL: time.Minute, RefreshTTL: time.Hour}, clk)
	api := httpapi.NewServer(rideSvc, userSvc, issuer, idemStore, logging.Discard())

	ctx := context.Background()
	if _, err := userSvc.CreateUser(ctx, users.CreateUserInput{Username: "root", Email: "root@example.com", Password: "root-pw"}); err != nil {
		t.Fatalf("bootstrap user: %v", err)
	}
	admin, err := userSvc.PromoteToAdmin(ctx, "root")
	if err != nil {
		t.Fatalf("promote: %v", err)
	}

	// Integration tests use the dev auth middleware to stay fully local and deterministic.
	// We pass empty default subject to ensure requests MUST provide X-Debug-Subject, allowing
	// auth-failure coverage.
	authMW := httpapi.NewDevAuthMiddleware(userSvc, "", logging.Discard())
	handler := httpapi.NewRouter(api, httpapi.RouterOptions{AuthMiddleware: authMW, RequestTimeout: 10 * time.Second})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &testServer{
		baseURL: srv.URL,
		client:  srv.Client(),
		clk:     clk,
		adminID: string(admin.ID),
	}
}

func (s *testServer) url(path string) string {
	if strings.HasPrefix(path, "/") {
		return s.baseURL + path
	}
	return s.baseURL + "/" + path
}

func (s *testServer) doJSON(t *testing.T, method string, path string, subject string, body any) (int, []byte, http.Header) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.url(path), r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if subject != "" {
		req.Header.Set("X-Debug-Subject", subject)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out, resp.Header
}

// createUser creates a directory entry through the API and returns its id.
func (s *testServer) createUser(t *testing.T, username string, role domain.Role) string {
	t.Helper()
	status, body, _ := s.doJSON(t, http.MethodPost, "/users", s.adminID, map[string]any{
		"username": username,
		"email":    username + "@example.com",
		"password": "pw-" + username,
		"role":     role.String(),
	})
	if status != http.StatusCreated {
		t.Fatalf("create user %s: status=%d body=%s", username, status, string(body))
	}
	return mustUnmarshal[struct {
		ID string `json:"id"`
	}](t, body).ID
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func mustUnmarshal[T any](t *testing.T, b []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v\nbody=%s", err, string(b))
	}
	return out
}

func requireStatus(t *testing.T, status int, body []byte, want int) {
	t.Helper()
	if status != want {
		t.Fatalf("status=%d want=%d body=%s", status, want, string(body))
	}
}

func requireErrorCode(t *testing.T, status int, body []byte, wantStatus int, wantCode string) {
	t.Helper()
	if status != wantStatus {
		t.Fatalf("status=%d want=%d body=%s", status, wantStatus, string(body))
	}
	got := mustUnmarshal[errorResponse](t, body)
	if got.Error.Code != wantCode {
		t.Fatalf("error.code=%q want=%q body=%s", got.Error.Code, wantCode, string(body))
	}
}

func requireHeaderPresent(t *testing.T, h http.Header, key string) {
	t.Helper()
	if strings.TrimSpace(h.Get(key)) == "" {
		t.Fatalf("expected header %q to be present", key)
	}
}
