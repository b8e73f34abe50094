package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/recreationcalc/recreationcalc/internal/api/models"
	"github.com/recreationcalc/recreationcalc/internal/validation"
)

// Service provides authentication and account operations.
type Service struct {
	jwtService  *JWTService
	userRepo    UserRepository
	bcryptCost  int
	adminEmails map[string]struct{}
	logger      zerolog.Logger

	// dummyHash is compared against when the email is unknown so that
	// login timing does not reveal registered addresses.
	dummyHash []byte
}

// ServiceConfig holds configuration for the auth service.
type ServiceConfig struct {
	JWTService  *JWTService
	UserRepo    UserRepository
	BcryptCost  int
	AdminEmails []string
	Logger      zerolog.Logger
}

// NewService creates a new auth service.
func NewService(cfg ServiceConfig) *Service {
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	admins := make(map[string]struct{}, len(cfg.AdminEmails))
	for _, email := range cfg.AdminEmails {
		if email = normalizeEmail(email); email != "" {
			admins[email] = struct{}{}
		}
	}

	dummy, _ := bcrypt.GenerateFromPassword([]byte("recreationcalc-dummy-password"), cost)

	return &Service{
		jwtService:  cfg.JWTService,
		userRepo:    cfg.UserRepo,
		bcryptCost:  cost,
		adminEmails: admins,
		logger:      cfg.Logger.With().Str("component", "auth").Logger(),
		dummyHash:   dummy,
	}
}

// Register creates a new account and returns an access token for it.
func (s *Service) Register(ctx context.Context, req *models.RegisterRequest) (*models.AuthResponse, error) {
	if fieldErrors := validation.ValidateStruct(req); len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	now := time.Now().UTC()
	user := &User{
		ID:           generateUserID(),
		Email:        normalizeEmail(req.Email),
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	s.logger.Info().Str("user_id", user.ID).Msg("user registered")
	return s.issueToken(user)
}

// Login verifies the credentials and returns an access token.
func (s *Service) Login(ctx context.Context, req *models.LoginRequest) (*models.AuthResponse, error) {
	if fieldErrors := validation.ValidateStruct(req); len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	user, err := s.userRepo.FindByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(req.Password))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("finding user: %w", err)
	}

	if !s.passwordMatches(user, req.Password) {
		s.logger.Warn().Str("user_id", user.ID).Msg("login failed")
		return nil, ErrInvalidCredentials
	}

	return s.issueToken(user)
}

// Profile returns the account of the given user.
func (s *Service) Profile(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toAPIUser(user), nil
}

// ChangeEmail changes the user's login after confirming the password.
func (s *Service) ChangeEmail(ctx context.Context, userID string, req *models.ChangeEmailRequest) (*models.User, error) {
	if fieldErrors := validation.ValidateStruct(req); len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if !s.passwordMatches(user, req.Password) {
		return nil, invalidField("password", "is incorrect")
	}

	user.Email = normalizeEmail(req.NewEmail)
	user.UpdatedAt = time.Now().UTC()

	if err := s.userRepo.Update(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("updating user: %w", err)
	}

	s.logger.Info().Str("user_id", user.ID).Msg("email changed")
	return toAPIUser(user), nil
}

// ChangePassword replaces the user's password after confirming the old one.
func (s *Service) ChangePassword(ctx context.Context, userID string, req *models.ChangePasswordRequest) error {
	if fieldErrors := validation.ValidateStruct(req); len(fieldErrors) > 0 {
		return &ValidationError{Errors: fieldErrors}
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	if !s.passwordMatches(user, req.OldPassword) {
		return invalidField("oldPassword", "is incorrect")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	user.PasswordHash = string(hash)
	user.UpdatedAt = time.Now().UTC()

	if err := s.userRepo.Update(ctx, user); err != nil {
		return fmt.Errorf("updating user: %w", err)
	}

	s.logger.Info().Str("user_id", user.ID).Msg("password changed")
	return nil
}

// ValidateAccessToken validates an access token and returns its principal.
func (s *Service) ValidateAccessToken(tokenString string) (*Principal, error) {
	claims, err := s.jwtService.ValidateAccessToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &Principal{UserID: claims.UserID, Email: claims.Email, Admin: claims.Admin}, nil
}

// IsAdmin reports whether the email is configured as an administrator.
func (s *Service) IsAdmin(email string) bool {
	_, ok := s.adminEmails[normalizeEmail(email)]
	return ok
}

func (s *Service) issueToken(user *User) (*models.AuthResponse, error) {
	token, expiresAt, err := s.jwtService.GenerateAccessToken(user, s.IsAdmin(user.Email))
	if err != nil {
		return nil, fmt.Errorf("generating access token: %w", err)
	}

	return &models.AuthResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(expiresAt).Round(time.Second).Seconds()),
		Email:       user.Email,
	}, nil
}

func (s *Service) passwordMatches(user *User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
}

func invalidField(field, message string) *ValidationError {
	return &ValidationError{Errors: []models.FieldError{{Field: field, Message: message, Code: "invalid"}}}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// generateUserID generates a unique user ID with prefix.
func generateUserID() string {
	return "usr_" + uuid.New().String()
}
