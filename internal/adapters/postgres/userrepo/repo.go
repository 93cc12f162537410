package userrepo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/wingz-dispatch/ride-records-api/internal/adapters/postgres"
	"github.com/wingz-dispatch/ride-records-api/internal/domain"
	"github.com/wingz-dispatch/ride-records-api/internal/ports/out/userrepo"
)

// Repo is a Postgres implementation of userrepo.Repository.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

const selectColumns = `
	external_id, username, email, password_hash, first_name, last_name,
	phone_number, role, is_active, created_at, updated_at
`

func (r *Repo) Create(ctx context.Context, u userrepo.User) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	id, err := uuid.Parse(string(u.ID))
	if err != nil {
		return fmt.Errorf("invalid user id: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO users (
			external_id,
			username,
			email,
			password_hash,
			first_name,
			last_name,
			phone_number,
			role,
			is_active,
			created_at,
			updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		id,
		u.Username,
		u.Email,
		u.PasswordHash,
		u.FirstName,
		u.LastName,
		u.PhoneNumber,
		int16(u.Role),
		u.IsActive,
		u.CreatedAt.UTC(),
		u.UpdatedAt.UTC(),
	)
	return mapWriteErr(err)
}

func (r *Repo) Update(ctx context.Context, u userrepo.User) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	id, err := uuid.Parse(string(u.ID))
	if err != nil {
		return userrepo.ErrNotFound
	}
	ct, err := r.pool.Exec(ctx, `
		UPDATE users
		SET username = $2,
		    email = $3,
		    password_hash = $4,
		    first_name = $5,
		    last_name = $6,
		    phone_number = $7,
		    role = $8,
		    is_active = $9,
		    updated_at = $10
		WHERE external_id = $1
	`,
		id,
		u.Username,
		u.Email,
		u.PasswordHash,
		u.FirstName,
		u.LastName,
		u.PhoneNumber,
		int16(u.Role),
		u.IsActive,
		u.UpdatedAt.UTC(),
	)
	if err != nil {
		return mapWriteErr(err)
	}
	if ct.RowsAffected() == 0 {
		return userrepo.ErrNotFound
	}
	return nil
}

// Delete removes the user. Rides referencing the user keep existing with the reference cleared
// (ON DELETE SET NULL).
func (r *Repo) Delete(ctx context.Context, id domain.UserID) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	uid, err := uuid.Parse(string(id))
	if err != nil {
		return userrepo.ErrNotFound
	}
	ct, err := r.pool.Exec(ctx, `DELETE FROM users WHERE external_id = $1`, uid)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return userrepo.ErrNotFound
	}
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.UserID) (userrepo.User, error) {
	if r.pool == nil {
		return userrepo.User{}, errors.New("nil postgres pool")
	}
	uid, err := uuid.Parse(string(id))
	if err != nil {
		return userrepo.User{}, userrepo.ErrNotFound
	}
	row := r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM users WHERE external_id = $1`, uid)
	return scanOne(row)
}

func (r *Repo) GetByUsername(ctx context.Context, username string) (userrepo.User, error) {
	if r.pool == nil {
		return userrepo.User{}, errors.New("nil postgres pool")
	}
	row := r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM users WHERE username = $1`, username)
	return scanOne(row)
}

func (r *Repo) List(ctx context.Context, f userrepo.ListFilter) ([]userrepo.User, error) {
	if r.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	where, args := whereClause(f)
	q := `SELECT ` + selectColumns + ` FROM users` + where + ` ORDER BY username COLLATE "C", external_id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []userrepo.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *Repo) Count(ctx context.Context, f userrepo.ListFilter) (int, error) {
	if r.pool == nil {
		return 0, errors.New("nil postgres pool")
	}
	where, args := whereClause(f)
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM users`+where, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func whereClause(f userrepo.ListFilter) (string, []any) {
	var conds []string
	var args []any
	if f.Role != nil {
		args = append(args, int16(*f.Role))
		conds = append(conds, fmt.Sprintf("role = $%d", len(args)))
	}
	if f.IsActive != nil {
		args = append(args, *f.IsActive)
		conds = append(conds, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, "%"+escapeLike(s)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(username ILIKE $%[1]d OR email ILIKE $%[1]d OR first_name ILIKE $%[1]d OR last_name ILIKE $%[1]d)", n))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func mapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	if pe, ok := postgres.AsPgError(err); ok && pe.Code == postgres.UniqueViolationCode {
		switch pe.ConstraintName {
		case "users_username_unique":
			return userrepo.ErrUsernameTaken
		case "users_external_id_unique":
			return userrepo.ErrAlreadyExists
		}
	}
	return err
}

func scanOne(row pgx.Row) (userrepo.User, error) {
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return userrepo.User{}, userrepo.ErrNotFound
		}
		return userrepo.User{}, err
	}
	return u, nil
}

func scanUser(row pgx.Row) (userrepo.User, error) {
	var (
		u    userrepo.User
		id   uuid.UUID
		role int16
	)
	if err := row.Scan(
		&id,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&u.PhoneNumber,
		&role,
		&u.IsActive,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return userrepo.User{}, err
	}
	u.ID = domain.UserID(id.String())
	u.Role = domain.Role(role)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}
