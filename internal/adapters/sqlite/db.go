// Package sqlite holds the gorm models and connection setup shared by the SQLite adapters.
package sqlite

import (
	"errors"
	"fmt"
	"strings"
	"time"

	glebarez "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open opens (creating if needed) the SQLite database at path and migrates the schema.
//
// SQLite allows a single writer, so the pool is capped at one connection; concurrent ride
// updates are arbitrated with the optimistic version column instead.
func Open(path string) (*gorm.DB, error) {
	if path == "" {
		return nil, errors.New("empty sqlite path")
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := gorm.Open(glebarez.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&User{}, &Ride{}, &RideEvent{}, &IdempotencyKey{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return db, nil
}

// OpenInMemory opens a private in-memory database identified by name.
func OpenInMemory(name string) (*gorm.DB, error) {
	return Open("file:" + name + "?mode=memory&cache=shared")
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
