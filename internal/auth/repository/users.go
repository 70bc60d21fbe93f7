// Package repository provides persistence for user accounts.
package repository

import (
	"context"
	"errors"
	"time"

	"orderflow_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// User is the database model for an account. Firms holds the firm names
// the user may see; it may contain the "all" sentinel.
type User struct {
	ID           uuid.UUID
	Email        string
	Name         string
	PasswordHash string
	Role         string
	Firms        []string
	CreatedAt    time.Time
}

// CreateUserParams contains parameters for creating a new account.
type CreateUserParams struct {
	Email        string
	Name         string
	PasswordHash string
	Role         string
	Firms        []string
}

// UserRepository provides persistence for user accounts.
type UserRepository interface {
	Create(ctx context.Context, params CreateUserParams) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, id uuid.UUID) (User, error)
}

// Users is the pgx implementation of UserRepository.
type Users struct {
	pool *pgxpool.Pool
}

// NewUsers creates a new user repository.
func NewUsers(pool *pgxpool.Pool) *Users {
	return &Users{pool: pool}
}

const userColumns = "id, email, name, password_hash, role, firms, created_at"

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.Firms, &u.CreatedAt)
	return u, err
}

// Create inserts a new account.
func (r *Users) Create(ctx context.Context, params CreateUserParams) (User, error) {
	query := `
		INSERT INTO users (email, name, password_hash, role, firms)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + userColumns

	u, err := scanUser(r.pool.QueryRow(ctx, query,
		params.Email, params.Name, params.PasswordHash, params.Role, params.Firms))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, apperr.Conflict("an account with this email already exists")
		}
		return User{}, apperr.StorageUnavailable("failed to create user", err)
	}
	return u, nil
}

// GetByEmail retrieves an account by email.
func (r *Users) GetByEmail(ctx context.Context, email string) (User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`

	u, err := scanUser(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, apperr.NotFound("user not found")
		}
		return User{}, apperr.StorageUnavailable("failed to load user", err)
	}
	return u, nil
}

// GetByID retrieves an account by ID.
func (r *Users) GetByID(ctx context.Context, id uuid.UUID) (User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	u, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, apperr.NotFound("user not found")
		}
		return User{}, apperr.StorageUnavailable("failed to load user", err)
	}
	return u, nil
}

var _ UserRepository = (*Users)(nil)
