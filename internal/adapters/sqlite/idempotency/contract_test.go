package idempotency

import (
	"testing"

	"github.com/google/uuid"

	"github.com/wingz-dispatch/ride-records-api/internal/adapters/contracttest"
	"github.com/wingz-dispatch/ride-records-api/internal/adapters/sqlite"
	idempotencyport "github.com/wingz-dispatch/ride-records-api/internal/ports/out/idempotency"
)

func TestContract_SQLiteIdempotencyStore(t *testing.T) {
	contracttest.RunIdempotencyStore(t, func(t *testing.T) (idempotencyport.Store, func()) {
		t.Helper()
		db, err := sqlite.OpenInMemory(uuid.NewString())
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		return NewStore(db), func() { _ = sqlite.Close(db) }
	})
}
