package idempotency

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wingz-dispatch/ride-records-api/internal/adapters/sqlite"
	"github.com/wingz-dispatch/ride-records-api/internal/ports/out/idempotency"
)

// Store is a SQLite (gorm) implementation of idempotency.Store.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, fp idempotency.Fingerprint) (idempotency.Record, bool, error) {
	if s.db == nil {
		return idempotency.Record{}, false, errors.New("nil sqlite db")
	}
	var m sqlite.IdempotencyKey
	err := s.db.WithContext(ctx).
		Where("idempotency_key = ? AND caller_id = ? AND method = ? AND route = ? AND body_hash = ?",
			string(fp.Key), string(fp.Caller), fp.Method, fp.Route, fp.BodyHash).
		Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return idempotency.Record{}, false, nil
		}
		return idempotency.Record{}, false, err
	}
	return idempotency.Record{
		StatusCode:  m.StatusCode,
		ContentType: m.ContentType,
		Body:        m.Body,
		CreatedAt:   sqlite.FromNanos(m.CreatedAt),
	}, true, nil
}

func (s *Store) Put(ctx context.Context, fp idempotency.Fingerprint, rec idempotency.Record) error {
	if s.db == nil {
		return errors.New("nil sqlite db")
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	body := rec.Body
	if body == nil {
		body = []byte{}
	}
	m := sqlite.IdempotencyKey{
		Key:         string(fp.Key),
		CallerID:    string(fp.Caller),
		Method:      fp.Method,
		Route:       fp.Route,
		BodyHash:    fp.BodyHash,
		StatusCode:  rec.StatusCode,
		ContentType: rec.ContentType,
		Body:        body,
		CreatedAt:   sqlite.ToNanos(createdAt),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		UpdateAll: true,
	}).Create(&m).Error
}
