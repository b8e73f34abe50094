package auth

import (
	"context"
	"strings"
	"sync"
)

// UserRepository defines the interface for user data operations.
type UserRepository interface {
	// FindByID finds a user by their internal ID.
	FindByID(ctx context.Context, id string) (*User, error)

	// FindByEmail finds a user by email, ignoring case.
	FindByEmail(ctx context.Context, email string) (*User, error)

	// Create creates a new user. Returns ErrEmailTaken if the email is in use.
	Create(ctx context.Context, user *User) error

	// Update stores the user's email and password hash.
	// Returns ErrEmailTaken if the new email belongs to another user.
	Update(ctx context.Context, user *User) error
}

// InMemoryUserRepository is an in-memory implementation of UserRepository.
// This is intended for testing and local development.
type InMemoryUserRepository struct {
	mu      sync.RWMutex
	users   map[string]*User  // keyed by user ID
	byEmail map[string]string // lower(email) -> userID
}

// NewInMemoryUserRepository creates a new in-memory user repository.
func NewInMemoryUserRepository() *InMemoryUserRepository {
	return &InMemoryUserRepository{
		users:   make(map[string]*User),
		byEmail: make(map[string]string),
	}
}

// FindByID finds a user by their internal ID.
func (r *InMemoryUserRepository) FindByID(_ context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}

	// Return a copy to avoid mutation
	userCopy := *user
	return &userCopy, nil
}

// FindByEmail finds a user by email.
func (r *InMemoryUserRepository) FindByEmail(_ context.Context, email string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userID, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrUserNotFound
	}

	userCopy := *r.users[userID]
	return &userCopy, nil
}

// Create creates a new user.
func (r *InMemoryUserRepository) Create(_ context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(user.Email)
	if _, taken := r.byEmail[key]; taken {
		return ErrEmailTaken
	}

	userCopy := *user
	r.users[user.ID] = &userCopy
	r.byEmail[key] = user.ID
	return nil
}

// Update stores the user's email and password hash.
func (r *InMemoryUserRepository) Update(_ context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.users[user.ID]
	if !ok {
		return ErrUserNotFound
	}

	key := strings.ToLower(user.Email)
	if owner, taken := r.byEmail[key]; taken && owner != user.ID {
		return ErrEmailTaken
	}

	delete(r.byEmail, strings.ToLower(existing.Email))
	userCopy := *user
	r.users[user.ID] = &userCopy
	r.byEmail[key] = user.ID
	return nil
}

// Ensure InMemoryUserRepository implements UserRepository interface.
var _ UserRepository = (*InMemoryUserRepository)(nil)
