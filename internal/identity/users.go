package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint hit.
const uniqueViolation = "23505"

// rowQuerier is satisfied by *pgxpool.Pool and pgx.Tx, so user operations
// can join the promotion transaction.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Users persists registered accounts.
//
// Safe for concurrent use.
type Users struct {
	pool *pgxpool.Pool
}

// NewUsers creates a Users store.
func NewUsers(pool *pgxpool.Pool) *Users {
	return &Users{pool: pool}
}

// Create inserts a new account on the given handle. A duplicate email is
// ErrEmailTaken.
func (u *Users) Create(ctx context.Context, db rowQuerier, email, passwordHash string) (*User, error) {
	user := &User{Email: email, PasswordHash: passwordHash}
	err := db.QueryRow(ctx,
		`INSERT INTO users (email, password_hash) VALUES ($1, $2) RETURNING id, created_at`,
		email, passwordHash,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return user, nil
}

const userByEmailSQL = `
SELECT id, email, password_hash, created_at
FROM users
WHERE email = $1`

// ByEmail looks up an account on the given handle. An unknown email is
// ErrInvalidCredentials, so callers never leak which emails exist.
func (u *Users) ByEmail(ctx context.Context, db rowQuerier, email string) (*User, error) {
	var user User
	err := db.QueryRow(ctx, userByEmailSQL, email).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up user by email: %w", err)
	}
	return &user, nil
}

// ByID looks up an account by id.
func (u *Users) ByID(ctx context.Context, id uuid.UUID) (*User, error) {
	var user User
	err := u.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE id = $1`, id,
	).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("looking up user %s: %w", id, err)
	}
	return &user, nil
}

// Pool exposes the underlying pool for non-transactional callers.
func (u *Users) Pool() *pgxpool.Pool {
	return u.pool
}

// NormalizeEmail lowercases and trims an email and applies a minimal
// shape check.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 || !strings.Contains(email[at+1:], ".") {
		return "", ErrInvalidEmail
	}
	return email, nil
}
