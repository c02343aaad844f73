package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"identity-audit/pkg/utils"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound   = errors.New("user: not found")
	ErrConflict   = errors.New("user: username already taken")
	ErrValidation = errors.New("user: invalid input")
)

// Repository is the persistence contract for users. Soft-deleted rows are
// invisible to every read.
type Repository interface {
	FindByID(ctx context.Context, id int64) (User, error)
	FindByUsername(ctx context.Context, username string) (User, error)
	List(ctx context.Context, q ListQuery) ([]User, int, error)
	ListAll(ctx context.Context) ([]User, error)
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
	UpdatePassword(ctx context.Context, id int64, hash string, actorID int64, now time.Time) error
	SoftDelete(ctx context.Context, id, actorID int64, now time.Time) error
}

// PostgresRepo implements Repository with database/sql on the pgx driver.
//
// NOTE: assumes the users table from internal/db/migrations, including
// UNIQUE (username).
type PostgresRepo struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresRepo(db *sql.DB, timeout time.Duration) *PostgresRepo {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PostgresRepo{db: db, timeout: timeout}
}

const userColumns = `id, name, username, password_hash, role, created_by, updated_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var (
		u         User
		createdBy sql.NullInt64
		updatedBy sql.NullInt64
	)
	if err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Username,
		&u.PasswordHash,
		&u.Role,
		&createdBy,
		&updatedBy,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	u.CreatedBy = createdBy.Int64
	u.UpdatedBy = updatedBy.Int64
	return u, nil
}

func (r *PostgresRepo) FindByID(ctx context.Context, id int64) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	q := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND deleted_at IS NULL`
	return scanUser(r.db.QueryRowContext(ctx, q, id))
}

func (r *PostgresRepo) FindByUsername(ctx context.Context, username string) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	q := `SELECT ` + userColumns + ` FROM users WHERE username = $1 AND deleted_at IS NULL`
	return scanUser(r.db.QueryRowContext(ctx, q, username))
}

func (r *PostgresRepo) List(ctx context.Context, lq ListQuery) ([]User, int, error) {
	lq = lq.Normalize()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	where := []string{"deleted_at IS NULL"}
	args := []any{}
	if lq.Q != "" {
		args = append(args, utils.ContainsPattern(lq.Q))
		where = append(where, fmt.Sprintf(`name ILIKE $%d ESCAPE '\'`, len(args)))
	}
	if lq.Role != "" {
		args = append(args, lq.Role)
		where = append(where, fmt.Sprintf("role = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (lq.Page - 1) * lq.Limit
	args = append(args, lq.Limit, offset)
	// SortBy and SortDir are whitelisted by Normalize.
	q := fmt.Sprintf(`SELECT %s FROM users WHERE %s ORDER BY %s %s, id ASC LIMIT $%d OFFSET $%d`,
		userColumns, cond, lq.SortBy, lq.SortDir, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]User, 0, lq.Limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

func (r *PostgresRepo) ListAll(ctx context.Context) ([]User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE deleted_at IS NULL ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Create(ctx context.Context, u *User) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const q = `
INSERT INTO users (name, username, password_hash, role, created_by, updated_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING id
`
	err := r.db.QueryRowContext(ctx, q,
		u.Name,
		u.Username,
		u.PasswordHash,
		u.Role,
		nullableID(u.CreatedBy),
		nullableID(u.UpdatedBy),
		u.CreatedAt,
		u.UpdatedAt,
	).Scan(&u.ID)
	return mapWriteErr(err)
}

func (r *PostgresRepo) Update(ctx context.Context, u *User) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const q = `
UPDATE users
SET name = $2, username = $3, role = $4, updated_by = $5, updated_at = $6
WHERE id = $1 AND deleted_at IS NULL
`
	res, err := r.db.ExecContext(ctx, q, u.ID, u.Name, u.Username, u.Role, nullableID(u.UpdatedBy), u.UpdatedAt)
	if err != nil {
		return mapWriteErr(err)
	}
	return requireOneRow(res)
}

func (r *PostgresRepo) UpdatePassword(ctx context.Context, id int64, hash string, actorID int64, now time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const q = `
UPDATE users
SET password_hash = $2, updated_by = $3, updated_at = $4
WHERE id = $1 AND deleted_at IS NULL
`
	res, err := r.db.ExecContext(ctx, q, id, hash, nullableID(actorID), now)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (r *PostgresRepo) SoftDelete(ctx context.Context, id, actorID int64, now time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	const q = `
UPDATE users
SET deleted_at = $2, updated_by = $3, updated_at = $2
WHERE id = $1 AND deleted_at IS NULL
`
	res, err := r.db.ExecContext(ctx, q, id, now, nullableID(actorID))
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func mapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrConflict
	}
	return err
}

func nullableID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id > 0}
}
