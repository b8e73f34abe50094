// Package auth provides email and password authentication with HS256
// access tokens.
package auth

import (
	"errors"
	"time"

	"github.com/recreationcalc/recreationcalc/internal/api/models"
)

// Predefined service errors.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// User represents a registered user. The email doubles as the login.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal is the identity carried by a validated access token.
type Principal struct {
	UserID string
	Email  string
	Admin  bool
}

// ValidationError represents validation errors.
type ValidationError struct {
	Errors []models.FieldError
}

func (e *ValidationError) Error() string {
	return "validation failed"
}

func toAPIUser(u *User) *models.User {
	return &models.User{
		ID:        u.ID,
		Email:     u.Email,
		CreatedAt: models.Timestamp(u.CreatedAt),
		UpdatedAt: models.Timestamp(u.UpdatedAt),
	}
}
