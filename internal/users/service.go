// Package users manages portal accounts and passwords.
package users

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"mcportal/internal/database"
	"mcportal/internal/models"
)

// PasswordAlphabet leaves out characters that are easy to confuse.
const PasswordAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"

// MinPasswordLength applies to passwords chosen by people.
const MinPasswordLength = 8

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrWrongPassword      = errors.New("current password is wrong")
	ErrPasswordMismatch   = errors.New("password confirmation does not match")
	ErrPasswordTooShort   = errors.New("password must have at least 8 characters")
	ErrSelfDelete         = errors.New("cannot delete own account")
	ErrLastAdmin          = errors.New("cannot delete the last admin")
	ErrNotFound           = errors.New("user not found")
	ErrUsernameTaken      = errors.New("username already taken")
)

// Repository is the account storage used by Service.
type Repository interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	CreateUser(ctx context.Context, u *models.User) (int64, error)
	UpdatePasswordHash(ctx context.Context, userID int64, hash string) error
	SetUserDiscordName(ctx context.Context, userID int64, name string) error
	CountAdmins(ctx context.Context) (int, error)
	DeleteUserCompletely(ctx context.Context, userID int64) error
}

// Service implements login and account administration.
type Service struct {
	repo   Repository
	cost   int
	logger zerolog.Logger
}

// NewService creates an account service using bcrypt.DefaultCost.
func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		cost:   bcrypt.DefaultCost,
		logger: logger.With().Str("component", "users").Logger(),
	}
}

// WithCost sets the bcrypt cost, mostly to keep tests fast.
func (s *Service) WithCost(cost int) *Service {
	s.cost = cost
	return s
}

// HashPassword returns the bcrypt hash of password.
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Authenticate checks the credentials. Every failure reads the same.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	u, err := s.repo.GetUserByUsername(ctx, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		s.logger.Info().Str("username", username).Msg("failed login")
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func checkNewPassword(newPassword, confirm string) error {
	if newPassword != confirm {
		return ErrPasswordMismatch
	}
	if len(newPassword) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

// ChangePassword lets a user replace their own password.
func (s *Service) ChangePassword(ctx context.Context, userID int64, current, newPassword, confirm string) error {
	u, err := s.repo.GetUserByID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)) != nil {
		return ErrWrongPassword
	}
	if err := checkNewPassword(newPassword, confirm); err != nil {
		return err
	}
	return s.storePassword(ctx, userID, newPassword)
}

// SetPassword is the admin variant that skips the current password.
func (s *Service) SetPassword(ctx context.Context, userID int64, newPassword, confirm string) error {
	if err := checkNewPassword(newPassword, confirm); err != nil {
		return err
	}
	return s.storePassword(ctx, userID, newPassword)
}

func (s *Service) storePassword(ctx context.Context, userID int64, password string) error {
	hash, err := s.HashPassword(password)
	if err != nil {
		return err
	}
	err = s.repo.UpdatePasswordHash(ctx, userID, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// Create adds an account.
func (s *Service) Create(ctx context.Context, username, password string, isAdmin bool, discordName string) (int64, error) {
	if password == "" {
		return 0, fmt.Errorf("%w: username and password are required", models.ErrValidation)
	}
	hash, err := s.HashPassword(password)
	if err != nil {
		return 0, err
	}
	u, err := models.NewUser(username, hash, isAdmin, discordName)
	if err != nil {
		return 0, err
	}
	id, err := s.repo.CreateUser(ctx, u)
	if errors.Is(err, database.ErrDuplicate) {
		return 0, ErrUsernameTaken
	}
	if err != nil {
		return 0, err
	}
	s.logger.Info().Int64("user_id", id).Str("username", u.Username).Bool("admin", isAdmin).Msg("user created")
	return id, nil
}

// List returns all accounts.
func (s *Service) List(ctx context.Context) ([]models.User, error) {
	return s.repo.ListUsers(ctx)
}

// SetDiscordName updates the notification handle of a user.
func (s *Service) SetDiscordName(ctx context.Context, userID int64, name string) error {
	err := s.repo.SetUserDiscordName(ctx, userID, name)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// Delete removes targetID on behalf of actorID.
func (s *Service) Delete(ctx context.Context, actorID, targetID int64) error {
	if actorID == targetID {
		return ErrSelfDelete
	}
	err := s.repo.DeleteUserCompletely(ctx, targetID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case errors.Is(err, database.ErrLastAdmin):
		return ErrLastAdmin
	case err != nil:
		return fmt.Errorf("delete user %d: %w", targetID, err)
	}
	s.logger.Info().Int64("user_id", targetID).Int64("actor_id", actorID).Msg("user deleted")
	return nil
}

// EnsureAdmin creates an admin account when none exists. It reports whether
// an account was created.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	n, err := s.repo.CountAdmins(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	if len(password) < MinPasswordLength {
		return false, ErrPasswordTooShort
	}
	if _, err := s.Create(ctx, username, password, true, ""); err != nil {
		return false, err
	}
	return true, nil
}

// GeneratePassword returns n characters drawn uniformly from PasswordAlphabet.
func GeneratePassword(n int) (string, error) {
	max := big.NewInt(int64(len(PasswordAlphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate password: %w", err)
		}
		out[i] = PasswordAlphabet[idx.Int64()]
	}
	return string(out), nil
}
