package userrepo

import (
	"testing"

	"github.com/wingz-dispatch/ride-records-api/internal/adapters/contracttest"
	"github.com/wingz-dispatch/ride-records-api/internal/adapters/postgres/testutil"
	userrepoport "github.com/wingz-dispatch/ride-records-api/internal/ports/out/userrepo"
)

func TestContract_PostgresUserRepo(t *testing.T) {
	contracttest.RunUserRepo(t, func(t *testing.T) (userrepoport.Repository, func()) {
		t.Helper()
		return NewRepo(testutil.OpenMigratedPool(t)), nil
	})
}
