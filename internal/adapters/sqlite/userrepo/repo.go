package userrepo

import (
	"context"
	"errors"
	"math"
	"strings"

	"gorm.io/gorm"

	"github.com/wingz-dispatch/ride-records-api/internal/adapters/sqlite"
	"github.com/wingz-dispatch/ride-records-api/internal/domain"
	"github.com/wingz-dispatch/ride-records-api/internal/ports/out/userrepo"
)

// Repo is a SQLite (gorm) implementation of userrepo.Repository.
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Create(ctx context.Context, u userrepo.User) error {
	if r.db == nil {
		return errors.New("nil sqlite db")
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&sqlite.User{}).Where("id = ?", string(u.ID)).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return userrepo.ErrAlreadyExists
		}
		if err := checkUsernameFree(tx, u.Username, ""); err != nil {
			return err
		}
		m := toModel(u)
		if err := tx.Create(&m).Error; err != nil {
			if sqlite.IsUniqueViolation(err) {
				return userrepo.ErrUsernameTaken
			}
			return err
		}
		return nil
	})
}

func (r *Repo) Update(ctx context.Context, u userrepo.User) error {
	if r.db == nil {
		return errors.New("nil sqlite db")
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing sqlite.User
		if err := tx.Where("id = ?", string(u.ID)).Take(&existing).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return userrepo.ErrNotFound
			}
			return err
		}
		if existing.Username != u.Username {
			if err := checkUsernameFree(tx, u.Username, existing.ID); err != nil {
				return err
			}
		}
		m := toModel(u)
		m.CreatedAt = existing.CreatedAt
		if err := tx.Save(&m).Error; err != nil {
			if sqlite.IsUniqueViolation(err) {
				return userrepo.ErrUsernameTaken
			}
			return err
		}
		return nil
	})
}

// Delete removes the user and clears rider/driver references to it on rides.
func (r *Repo) Delete(ctx context.Context, id domain.UserID) error {
	if r.db == nil {
		return errors.New("nil sqlite db")
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", string(id)).Delete(&sqlite.User{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return userrepo.ErrNotFound
		}
		if err := tx.Model(&sqlite.Ride{}).Where("rider_id = ?", string(id)).Update("rider_id", nil).Error; err != nil {
			return err
		}
		return tx.Model(&sqlite.Ride{}).Where("driver_id = ?", string(id)).Update("driver_id", nil).Error
	})
}

func (r *Repo) GetByID(ctx context.Context, id domain.UserID) (userrepo.User, error) {
	if r.db == nil {
		return userrepo.User{}, errors.New("nil sqlite db")
	}
	return r.getWhere(ctx, "id = ?", string(id))
}

func (r *Repo) GetByUsername(ctx context.Context, username string) (userrepo.User, error) {
	if r.db == nil {
		return userrepo.User{}, errors.New("nil sqlite db")
	}
	return r.getWhere(ctx, "username = ?", username)
}

func (r *Repo) List(ctx context.Context, f userrepo.ListFilter) ([]userrepo.User, error) {
	if r.db == nil {
		return nil, errors.New("nil sqlite db")
	}
	q := applyFilter(r.db.WithContext(ctx).Model(&sqlite.User{}), f).Order("username ASC").Order("id ASC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		if f.Limit <= 0 {
			q = q.Limit(math.MaxInt32)
		}
		q = q.Offset(f.Offset)
	}
	var models []sqlite.User
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]userrepo.User, 0, len(models))
	for _, m := range models {
		out = append(out, FromModel(m))
	}
	return out, nil
}

func (r *Repo) Count(ctx context.Context, f userrepo.ListFilter) (int, error) {
	if r.db == nil {
		return 0, errors.New("nil sqlite db")
	}
	var n int64
	if err := applyFilter(r.db.WithContext(ctx).Model(&sqlite.User{}), f).Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *Repo) getWhere(ctx context.Context, cond string, arg any) (userrepo.User, error) {
	var m sqlite.User
	if err := r.db.WithContext(ctx).Where(cond, arg).Take(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return userrepo.User{}, userrepo.ErrNotFound
		}
		return userrepo.User{}, err
	}
	return FromModel(m), nil
}

func checkUsernameFree(tx *gorm.DB, username, selfID string) error {
	var n int64
	q := tx.Model(&sqlite.User{}).Where("username = ?", username)
	if selfID != "" {
		q = q.Where("id <> ?", selfID)
	}
	if err := q.Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return userrepo.ErrUsernameTaken
	}
	return nil
}

func applyFilter(q *gorm.DB, f userrepo.ListFilter) *gorm.DB {
	if f.Role != nil {
		q = q.Where("role = ?", int(*f.Role))
	}
	if f.IsActive != nil {
		q = q.Where("is_active = ?", *f.IsActive)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + escapeLike(strings.ToLower(s)) + "%"
		q = q.Where(
			`(lower(username) LIKE ? ESCAPE '\' OR lower(email) LIKE ? ESCAPE '\' OR lower(first_name) LIKE ? ESCAPE '\' OR lower(last_name) LIKE ? ESCAPE '\')`,
			like, like, like, like,
		)
	}
	return q
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func toModel(u userrepo.User) sqlite.User {
	return sqlite.User{
		ID:           string(u.ID),
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		PhoneNumber:  u.PhoneNumber,
		Role:         int(u.Role),
		IsActive:     u.IsActive,
		CreatedAt:    sqlite.ToNanos(u.CreatedAt),
		UpdatedAt:    sqlite.ToNanos(u.UpdatedAt),
	}
}

// FromModel maps a stored row to the repository shape. The ride adapter reuses it for joins.
func FromModel(m sqlite.User) userrepo.User {
	return userrepo.User{
		ID:           domain.UserID(m.ID),
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		FirstName:    m.FirstName,
		LastName:     m.LastName,
		PhoneNumber:  m.PhoneNumber,
		Role:         domain.Role(m.Role),
		IsActive:     m.IsActive,
		CreatedAt:    sqlite.FromNanos(m.CreatedAt),
		UpdatedAt:    sqlite.FromNanos(m.UpdatedAt),
	}
}
