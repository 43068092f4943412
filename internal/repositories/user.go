package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/sbilibin2017/user-service/internal/logger"
	"github.com/sbilibin2017/user-service/internal/models"
)

const userColumns = `id, username, email, full_name, hashed_password, is_active, is_superuser, created_at, updated_at`

// Schema creates the users table when it does not exist yet.
const Schema = `
	CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username VARCHAR(255) NOT NULL UNIQUE,
		email VARCHAR(255) NOT NULL UNIQUE,
		full_name VARCHAR(255),
		hashed_password VARCHAR(255) NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		is_superuser BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT users_timestamps_ordered CHECK (created_at <= updated_at)
	)
`

// CreateSchema applies Schema.
func CreateSchema(ctx context.Context, exec sqlx.ExecerContext) error {
	_, err := exec.ExecContext(ctx, Schema)
	logQuery(Schema, nil, nil, err)
	return err
}

// UserRepository runs user statements on a single executor, normally the
// transaction of a session scope.
type UserRepository struct {
	exec sqlx.ExtContext
}

// NewUserRepository creates a repository bound to exec.
func NewUserRepository(exec sqlx.ExtContext) *UserRepository {
	return &UserRepository{exec: exec}
}

// FindOne returns the first user matching p in id order, or nil when none matches.
func (r *UserRepository) FindOne(ctx context.Context, p Predicate) (*models.User, error) {
	where, args := Where(p)
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where + ` ORDER BY id LIMIT 1`

	var user models.User
	err := sqlx.GetContext(ctx, r.exec, &user, query, args...)
	logQuery(query, args, user.ID, err)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	inUTC(&user)
	return &user, nil
}

// FindMany returns up to limit users matching p in insertion order, skipping offset.
func (r *UserRepository) FindMany(ctx context.Context, p Predicate, offset, limit int) ([]models.User, error) {
	where, args := Where(p)
	n := len(args)
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where +
		` ORDER BY id OFFSET $` + strconv.Itoa(n+1) + ` LIMIT $` + strconv.Itoa(n+2)
	args = append(args, offset, limit)

	users := []models.User{}
	err := sqlx.SelectContext(ctx, r.exec, &users, query, args...)
	logQuery(query, args, len(users), err)

	if err != nil {
		return nil, err
	}
	for i := range users {
		inUTC(&users[i])
	}
	return users, nil
}

// Insert stores u and assigns its id. Timestamps must already be set.
func (r *UserRepository) Insert(ctx context.Context, u *models.User) error {
	const query = `
		INSERT INTO users (username, email, full_name, hashed_password, is_active, is_superuser, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	args := []any{u.Username, u.Email, u.FullName, u.HashedPassword, u.IsActive, u.IsSuperuser, u.CreatedAt, u.UpdatedAt}

	var id int64
	err := sqlx.GetContext(ctx, r.exec, &id, query, args...)
	logQuery(query, redact(args, 3), id, err)

	if err != nil {
		return err
	}
	u.ID = id
	return nil
}

// Update writes every mutable column of u. It returns sql.ErrNoRows when the
// row no longer exists.
func (r *UserRepository) Update(ctx context.Context, u *models.User) error {
	const query = `
		UPDATE users
		SET username = $2, email = $3, full_name = $4, hashed_password = $5,
		    is_active = $6, is_superuser = $7, updated_at = $8
		WHERE id = $1
	`
	args := []any{u.ID, u.Username, u.Email, u.FullName, u.HashedPassword, u.IsActive, u.IsSuperuser, u.UpdatedAt}

	res, err := r.exec.ExecContext(ctx, query, args...)
	affected := rowsAffected(res)
	logQuery(query, redact(args, 4), affected, err)

	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes the user with the given id. It returns sql.ErrNoRows when
// nothing was deleted.
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM users WHERE id = $1`
	args := []any{id}

	res, err := r.exec.ExecContext(ctx, query, args...)
	affected := rowsAffected(res)
	logQuery(query, args, affected, err)

	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// inUTC drops the session time zone the driver attaches to timestamptz values.
func inUTC(u *models.User) {
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
}

func rowsAffected(res sql.Result) int64 {
	if res == nil {
		return 0
	}
	n, _ := res.RowsAffected()
	return n
}

// redact hides the credential argument at index i from the logs.
func redact(args []any, i int) []any {
	out := make([]any, len(args))
	copy(out, args)
	out[i] = "***"
	return out
}

// logQuery logs a statement collapsed onto a single line.
func logQuery(query string, args []any, result any, err error) {
	logger.Log.Debugw("query",
		"sql", strings.Join(strings.Fields(query), " "),
		"args", args,
		"result", result,
		"error", err,
	)
}
