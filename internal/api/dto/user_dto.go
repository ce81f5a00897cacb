package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-workflow/internal/domain"
)

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UserResponse describes an account.
type UserResponse struct {
	ID       int64         `json:"id"`
	FullName string        `json:"full_name"`
	Email    string        `json:"email"`
	Roles    []domain.Role `json:"roles"`
}
