package riderepo

import (
	"testing"

	"github.com/google/uuid"

	"github.com/wingz-dispatch/ride-records-api/internal/adapters/contracttest"
	"github.com/wingz-dispatch/ride-records-api/internal/adapters/sqlite"
	"github.com/wingz-dispatch/ride-records-api/internal/adapters/sqlite/userrepo"
	riderepoport "github.com/wingz-dispatch/ride-records-api/internal/ports/out/riderepo"
	userrepoport "github.com/wingz-dispatch/ride-records-api/internal/ports/out/userrepo"
)

func TestContract_SQLiteRideRepo(t *testing.T) {
	contracttest.RunRideRepo(t, func(t *testing.T) (userrepoport.Repository, riderepoport.Repository, func()) {
		t.Helper()
		db, err := sqlite.OpenInMemory(uuid.NewString())
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		return userrepo.NewRepo(db), NewRepo(db), func() { _ = sqlite.Close(db) }
	})
}
