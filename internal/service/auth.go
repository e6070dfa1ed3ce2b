package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/coin-tracker/internal/apperror"
	"github.com/sakif/coin-tracker/internal/auth"
	"github.com/sakif/coin-tracker/internal/model"
	"github.com/sakif/coin-tracker/internal/repository"
)

// MaxUsernameLength caps usernames, counted in characters.
const MaxUsernameLength = 64

// AuthService is the credential store's business layer:
//
//	AuthHandler (HTTP) → AuthService (rules) → UserRepository (DB)
//	                   ↘ PasswordService (bcrypt)
//
// It knows nothing about cookies or sessions. The handler starts a session
// after Verify succeeds.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users      repository.UserRepository  → read/write user records
//   - passwords  *auth.PasswordService      → bcrypt hashing
//   - logger     *slog.Logger               → structured logging
type AuthService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	logger    *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		passwords: passwords,
		logger:    logger,
	}
}

// Register creates a new account and returns it.
//
// WHY NO "DOES IT EXIST?" PRE-CHECK?
// Two sign-ups for the same name can race between the check and the insert.
// The UNIQUE constraint on users.username can't race, so the repository's
// constraint error is the only duplicate check. It surfaces as
// apperror.ErrDuplicateUsername.
func (s *AuthService) Register(ctx context.Context, username, password string) (*model.User, error) {
	username, err := validateCredentials(username, password)
	if err != nil {
		return nil, err
	}
	if len(password) > auth.MaxPasswordBytes {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d bytes or fewer", auth.MaxPasswordBytes))
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{Username: username, PasswordHash: hash}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrDuplicateUsername) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: creating user %q: %w", username, err)
	}

	s.logger.Info("user registered",
		slog.Int64("userID", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// Verify checks a username and password pair.
//
// An unknown username and a wrong password both return
// apperror.InvalidCredentials() with the same message. For an unknown
// username a dummy bcrypt comparison still runs, so response time doesn't
// reveal which usernames exist.
func (s *AuthService) Verify(ctx context.Context, username, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperror.InvalidCredentials()
	}

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.passwords.VerifyDummy(password)
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("service/auth: fetching user %q: %w", username, err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("service/auth: verifying password for %q: %w", username, err)
	}

	return user, nil
}

// validateCredentials returns the trimmed username or a validation error.
// Passwords are not trimmed: leading spaces are part of the secret.
func validateCredentials(username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", apperror.ValidationFailed("username", "username is required")
	}
	if utf8.RuneCountInString(username) > MaxUsernameLength {
		return "", apperror.ValidationFailed("username",
			fmt.Sprintf("username must be %d characters or less", MaxUsernameLength))
	}
	if password == "" {
		return "", apperror.ValidationFailed("password", "password is required")
	}
	return username, nil
}
