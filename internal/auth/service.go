package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/opsboard/opsboard/internal/areas"
	"github.com/opsboard/opsboard/internal/principal"
	"github.com/opsboard/opsboard/internal/roles"
	"github.com/opsboard/opsboard/internal/shared"
)

// ErrWeakPassword is returned when a new password is too short.
var ErrWeakPassword = fmt.Errorf("auth: password must have at least %d characters", MinPasswordLength)

// ProfileLoader loads the area assignments that go into a principal.
type ProfileLoader interface {
	Profile(ctx context.Context, userID int64) (areas.Profile, error)
}

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	profiles ProfileLoader
	logger   *slog.Logger
	cost     int
}

// NewService constructs a new Service.
func NewService(repo Repository, profiles ProfileLoader, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, profiles: profiles, logger: logger, cost: bcrypt.DefaultCost}
}

// Authenticate validates email/password credentials and builds the principal.
// Every failure is reported as shared.ErrInvalidCredentials; the cause is
// only logged.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*principal.Principal, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			s.logger.Warn("login lookup failed", slog.Any("error", err))
		}
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if _, known := roles.Lookup(user.Role); !known {
		s.logger.Warn("user has unrecognised role", slog.Int64("user_id", user.ID), slog.String("role", user.Role))
	}

	profile, err := s.profiles.Profile(ctx, user.ID)
	if err != nil {
		s.logger.Warn("login profile load failed", slog.Int64("user_id", user.ID), slog.Any("error", err))
		return nil, shared.ErrInvalidCredentials
	}
	if profile.Email == "" {
		profile.Email = user.Email
	}
	return profile.Principal(), nil
}

// UpdatePassword replaces the password of userID after checking current.
func (s *Service) UpdatePassword(ctx context.Context, userID int64, current, next string) error {
	if len(next) < MinPasswordLength {
		return ErrWeakPassword
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return shared.ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.repo.UpdatePasswordHash(ctx, userID, string(hash))
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}
