package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/taskhub/apiserver/types"
)

const userColumns = `user_id, fullname, email, role, password, is_verified, verification_token, avatar_key, created_at, updated_at`

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) List(ctx context.Context) ([]types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users ORDER BY created_at`
	users := []types.User{}
	if err := r.db.SelectContext(ctx, &users, query); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`
	return r.getOne(ctx, query, id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.getOne(ctx, query, email)
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (user_id, fullname, email, password, role, is_verified, verification_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.FullName,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.Verified,
		user.VerificationToken,
		user.CreatedAt,
		user.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return types.User{}, fmt.Errorf("create user: %w", ErrDuplicate)
		}
		return types.User{}, err
	}
	return user, nil
}

// Update overwrites the profile fields of an existing user and returns the
// stored row.
func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	const query = `
		UPDATE users
		SET fullname = $1,
			email = $2,
			password = $3,
			updated_at = $4
		WHERE user_id = $5
		RETURNING ` + userColumns
	updated, err := r.getOne(ctx, query, user.FullName, user.Email, user.PasswordHash, time.Now().UTC(), user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return types.User{}, fmt.Errorf("update user: %w", ErrDuplicate)
		}
		return types.User{}, err
	}
	return updated, nil
}

// VerifyEmail redeems a pending verification token. The token is cleared in
// the same statement so a second redemption matches no row.
func (r *UserRepository) VerifyEmail(ctx context.Context, token string) (types.User, error) {
	const query = `
		UPDATE users
		SET is_verified = TRUE,
			verification_token = NULL,
			updated_at = $2
		WHERE verification_token = $1
		RETURNING ` + userColumns
	return r.getOne(ctx, query, token, time.Now().UTC())
}

func (r *UserRepository) SetAvatarKey(ctx context.Context, id, key string) error {
	const query = `UPDATE users SET avatar_key = $1, updated_at = $2 WHERE user_id = $3`
	result, err := r.db.ExecContext(ctx, query, key, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

// Delete removes a user and returns the deleted row.
func (r *UserRepository) Delete(ctx context.Context, id string) (types.User, error) {
	const query = `DELETE FROM users WHERE user_id = $1 RETURNING ` + userColumns
	return r.getOne(ctx, query, id)
}

func (r *UserRepository) getOne(ctx context.Context, query string, args ...any) (types.User, error) {
	var user types.User
	if err := r.db.GetContext(ctx, &user, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func expectAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
