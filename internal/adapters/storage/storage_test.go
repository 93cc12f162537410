package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/wingz-dispatch/ride-records-api/internal/platform/config"
	"github.com/wingz-dispatch/ride-records-api/internal/platform/logging"
	"github.com/wingz-dispatch/ride-records-api/internal/ports/out/riderepo"
)

func TestOpen_MemoryAndSQLite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for _, cfg := range []config.ServerConfig{
		{StorageBackend: config.BackendMemory},
		{StorageBackend: config.BackendSQLite, SQLitePath: filepath.Join(t.TempDir(), "rides.db")},
	} {
		st, err := Open(ctx, cfg, logging.Discard())
		if err != nil {
			t.Fatalf("Open(%s): %v", cfg.StorageBackend, err)
		}
		if st.Users == nil || st.Rides == nil || st.Idem == nil || st.Close == nil {
			t.Fatalf("Open(%s) returned incomplete stores: %+v", cfg.StorageBackend, st)
		}
		if n, err := st.Rides.Count(ctx, riderepo.Filter{}); err != nil || n != 0 {
			t.Fatalf("Count(%s)=%d err=%v, want an empty store", cfg.StorageBackend, n, err)
		}
		st.Close()
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	t.Parallel()
	if _, err := Open(context.Background(), config.ServerConfig{StorageBackend: "redis"}, logging.Discard()); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
