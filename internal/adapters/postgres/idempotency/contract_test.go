package idempotency

import (
	"testing"

	"github.com/wingz-dispatch/ride-records-api/internal/adapters/contracttest"
	"github.com/wingz-dispatch/ride-records-api/internal/adapters/postgres/testutil"
	idempotencyport "github.com/wingz-dispatch/ride-records-api/internal/ports/out/idempotency"
)

func TestContract_PostgresIdempotencyStore(t *testing.T) {
	contracttest.RunIdempotencyStore(t, func(t *testing.T) (idempotencyport.Store, func()) {
		t.Helper()
		return NewStore(testutil.OpenMigratedPool(t)), nil
	})
}
