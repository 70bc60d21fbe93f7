// Package transport defines the HTTP request and response shapes of the
// auth module.
package transport

import (
	"time"

	"orderflow_backend/internal/auth/repository"
)

// LoginRequest authenticates an account.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// CreateUserRequest provisions a new account (master only).
type CreateUserRequest struct {
	Email    string   `json:"email" validate:"required,email"`
	Name     string   `json:"name" validate:"required,max=255"`
	Password string   `json:"password" validate:"required,min=8"`
	Role     string   `json:"role" validate:"required,oneof=master operator accounts logistics"`
	Firms    []string `json:"firms"`
}

// UserResponse is the client view of an account.
type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Firms     []string  `json:"firms"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewUserResponse maps a user model to its client view.
func NewUserResponse(u repository.User) UserResponse {
	return UserResponse{
		ID:        u.ID.String(),
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		Firms:     u.Firms,
		CreatedAt: u.CreatedAt,
	}
}

// LoginResponse is a successful authentication.
type LoginResponse struct {
	AccessToken string       `json:"accessToken"`
	ExpiresAt   time.Time    `json:"expiresAt"`
	User        UserResponse `json:"user"`
}
