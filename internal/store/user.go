package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/contactbook/apiserver/types"
)

const userColumns = `id, username, email, hashed_password, avatar, is_verified, role, created_at`

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	user.CreatedAt = time.Now().UTC()

	const query = `
		INSERT INTO users (username, email, hashed_password, avatar, is_verified, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.PasswordHash,
		nullString(user.Avatar),
		user.IsVerified,
		string(user.Role),
		user.CreatedAt,
	).Scan(&user.ID); err != nil {
		return types.User{}, translate(err)
	}
	return user, nil
}

// MarkVerified sets is_verified on the user. Repeated calls are no-ops.
func (r *UserRepository) MarkVerified(ctx context.Context, id int) error {
	return r.exec(ctx, `UPDATE users SET is_verified = TRUE WHERE id = $1`, id)
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id int, passwordHash string) error {
	return r.exec(ctx, `UPDATE users SET hashed_password = $1 WHERE id = $2`, passwordHash, id)
}

func (r *UserRepository) UpdateAvatar(ctx context.Context, id int, avatar string) (types.User, error) {
	return r.getOne(ctx, `
		UPDATE users SET avatar = $1
		WHERE id = $2
		RETURNING `+userColumns, nullString(avatar), id)
}

func (r *UserRepository) Delete(ctx context.Context, id int) error {
	return r.exec(ctx, `DELETE FROM users WHERE id = $1`, id)
}

func (r *UserRepository) getOne(ctx context.Context, query string, args ...any) (types.User, error) {
	var (
		user   types.User
		avatar sql.NullString
		role   string
	)
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&avatar,
		&user.IsVerified,
		&role,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	user.Avatar = avatar.String
	user.Role = types.Role(role)
	return user, nil
}

func (r *UserRepository) exec(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return translate(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
