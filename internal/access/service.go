// Package access provides role and ownership checks for portal actions.
package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"mcportal/internal/models"
)

// UserRepository resolves session user ids to current accounts.
type UserRepository interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID   int64
	Username string
	IsAdmin  bool
}

// Service implements access checks against the users table.
type Service struct {
	users  UserRepository
	logger zerolog.Logger
}

// NewService creates a new access control service.
func NewService(users UserRepository, logger zerolog.Logger) *Service {
	return &Service{
		users:  users,
		logger: logger.With().Str("component", "access").Logger(),
	}
}

// Resolve loads the current account for a session user id. Deleted users
// and demoted admins lose their rights on the next request.
func (s *Service) Resolve(ctx context.Context, userID int64) (Actor, error) {
	if userID <= 0 {
		return Actor{}, &AccessDeniedError{Reason: "Bitte einloggen.", Unauthenticated: true}
	}
	u, err := s.users.GetUserByID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && u == nil) {
		s.logger.Info().Int64("user_id", userID).Msg("session user no longer exists")
		return Actor{}, &AccessDeniedError{Reason: "Bitte einloggen.", Unauthenticated: true}
	}
	if err != nil {
		return Actor{}, fmt.Errorf("loading user %d: %w", userID, err)
	}
	return Actor{UserID: u.ID, Username: u.Username, IsAdmin: u.IsAdmin}, nil
}

// Middleware checks that userID belongs to an existing account.
func (s *Service) Middleware(ctx context.Context, userID int64) (Actor, error) {
	return s.Resolve(ctx, userID)
}

// AdminMiddleware checks that userID belongs to an admin.
func (s *Service) AdminMiddleware(ctx context.Context, userID int64) (Actor, error) {
	actor, err := s.Resolve(ctx, userID)
	if err != nil {
		return Actor{}, err
	}
	if !actor.IsAdmin {
		return Actor{}, &AccessDeniedError{Reason: "Nur für Admins."}
	}
	return actor, nil
}

// RequireCreatorOrAdmin allows admins and the creator of a resource.
func RequireCreatorOrAdmin(actor Actor, creatorID int64) error {
	if actor.IsAdmin || actor.UserID == creatorID {
		return nil
	}
	return &AccessDeniedError{Reason: "Kein Zugriff."}
}

// RequireAdmin allows admins only.
func RequireAdmin(actor Actor) error {
	if actor.IsAdmin {
		return nil
	}
	return &AccessDeniedError{Reason: "Nur für Admins."}
}

// AccessDeniedError is returned when an action is not permitted.
type AccessDeniedError struct {
	Reason          string
	Unauthenticated bool
}

func (e *AccessDeniedError) Error() string {
	return e.Reason
}

// IsAccessDenied checks if err is, or wraps, an access denied error.
func IsAccessDenied(err error) bool {
	var denied *AccessDeniedError
	return errors.As(err, &denied)
}

// IsUnauthenticated reports whether err asks the caller to log in.
func IsUnauthenticated(err error) bool {
	var denied *AccessDeniedError
	return errors.As(err, &denied) && denied.Unauthenticated
}
