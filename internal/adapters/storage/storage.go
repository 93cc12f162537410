// Package storage opens the persistence backend selected by configuration.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	memidempotency "github.com/wingz-dispatch/ride-records-api/internal/adapters/memory/idempotency"
	memriderepo "github.com/wingz-dispatch/ride-records-api/internal/adapters/memory/riderepo"
	memuserrepo "github.com/wingz-dispatch/ride-records-api/internal/adapters/memory/userrepo"
	postgres "github.com/wingz-dispatch/ride-records-api/internal/adapters/postgres"
	pgidempotency "github.com/wingz-dispatch/ride-records-api/internal/adapters/postgres/idempotency"
	"github.com/wingz-dispatch/ride-records-api/internal/adapters/postgres/migrations"
	pgriderepo "github.com/wingz-dispatch/ride-records-api/internal/adapters/postgres/riderepo"
	pguserrepo "github.com/wingz-dispatch/ride-records-api/internal/adapters/postgres/userrepo"
	"github.com/wingz-dispatch/ride-records-api/internal/adapters/sqlite"
	sqliteidempotency "github.com/wingz-dispatch/ride-records-api/internal/adapters/sqlite/idempotency"
	sqliteriderepo "github.com/wingz-dispatch/ride-records-api/internal/adapters/sqlite/riderepo"
	sqliteuserrepo "github.com/wingz-dispatch/ride-records-api/internal/adapters/sqlite/userrepo"
	"github.com/wingz-dispatch/ride-records-api/internal/platform/config"
	idempotencyport "github.com/wingz-dispatch/ride-records-api/internal/ports/out/idempotency"
	riderepoport "github.com/wingz-dispatch/ride-records-api/internal/ports/out/riderepo"
	userrepoport "github.com/wingz-dispatch/ride-records-api/internal/ports/out/userrepo"
)

type Stores struct {
	Users userrepoport.Repository
	Rides riderepoport.Repository
	Idem  idempotencyport.Store

	// Close releases pools and handles. It is never nil.
	Close func()
}

// Open builds the stores for cfg.StorageBackend. Postgres schemas are migrated on open;
// SQLite is auto-migrated by the adapter.
func Open(ctx context.Context, cfg config.ServerConfig, log *slog.Logger) (Stores, error) {
	switch cfg.StorageBackend {
	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		})
		if err != nil {
			return Stores{}, err
		}
		if err := migrations.Up(ctx, pool); err != nil {
			pool.Close()
			return Stores{}, fmt.Errorf("migrate postgres: %w", err)
		}
		log.Info("storage ready", "backend", cfg.StorageBackend)
		return Stores{
			Users: pguserrepo.NewRepo(pool),
			Rides: pgriderepo.NewRepo(pool),
			Idem:  pgidempotency.NewStore(pool),
			Close: pool.Close,
		}, nil

	case config.BackendSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return Stores{}, err
		}
		log.Info("storage ready", "backend", cfg.StorageBackend, "path", cfg.SQLitePath)
		return Stores{
			Users: sqliteuserrepo.NewRepo(db),
			Rides: sqliteriderepo.NewRepo(db),
			Idem:  sqliteidempotency.NewStore(db),
			Close: func() {
				if err := sqlite.Close(db); err != nil {
					log.Warn("close sqlite", "error", err)
				}
			},
		}, nil

	case config.BackendMemory, "":
		users := memuserrepo.NewRepo()
		log.Info("storage ready", "backend", config.BackendMemory)
		return Stores{
			Users: users,
			Rides: memriderepo.NewRepo(users),
			Idem:  memidempotency.NewStore(),
			Close: func() {},
		}, nil

	default:
		return Stores{}, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
