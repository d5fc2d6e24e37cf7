package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fleetmesh/fleetmesh/internal/audit"
	"github.com/fleetmesh/fleetmesh/internal/security"
	"github.com/fleetmesh/fleetmesh/internal/users"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrAccountLocked      = errors.New("account locked")
	ErrTokenRevoked       = errors.New("token revoked")
)

// LoginResult is what a successful login hands back to the API layer.
type LoginResult struct {
	Token     string
	ExpiresIn int
	User      *users.User
}

// Service is the controller's authentication entry point. The lockout
// and revocation guards are constructed once at startup and shared with
// the HTTP middleware; this service is the only writer of their state.
type Service struct {
	users      *users.Service
	lockout    *security.LockoutGuard
	revocation *security.RevocationGuard
	auditor    *audit.Recorder
	config     Config
}

func NewService(userService *users.Service, lockout *security.LockoutGuard, revocation *security.RevocationGuard, auditor *audit.Recorder, config Config) *Service {
	return &Service{
		users:      userService,
		lockout:    lockout,
		revocation: revocation,
		auditor:    auditor,
		config:     config,
	}
}

// Login authenticates a user and issues a JWT. Failed attempts count
// toward lockout; a success clears the history. A locked identity is
// rejected before the password is even checked.
func (s *Service) Login(ctx context.Context, username, password, clientIP string) (*LoginResult, error) {
	if s.lockout.IsLockedOut(username) {
		s.auditor.Record(ctx, audit.Entry{
			Username:     username,
			Action:       "login_rejected_lockout",
			IPAddress:    clientIP,
			Success:      false,
			ErrorMessage: "account locked",
		})
		return nil, ErrAccountLocked
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil && !errors.Is(err, users.ErrNotFound) {
		return nil, fmt.Errorf("query user: %w", err)
	}

	if user == nil || !users.CheckPassword(password, user.PasswordHash) {
		locked := s.lockout.RecordFailedAttempt(username)
		s.auditor.Record(ctx, audit.Entry{
			Username:     username,
			Action:       "login_failed",
			IPAddress:    clientIP,
			Success:      false,
			ErrorMessage: "invalid credentials",
		})
		if locked {
			return nil, ErrAccountLocked
		}
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	s.lockout.ClearAttempts(username)

	token, err := GenerateToken(s.config, user.ID.String(), user.Username, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	if err := s.users.RecordLogin(ctx, user.ID); err != nil {
		slog.Warn("Failed to record last login", "username", username, "error", err)
	}

	s.auditor.Record(ctx, audit.Entry{
		UserID:       &user.ID,
		Username:     username,
		Action:       "login_success",
		ResourceType: "user",
		ResourceID:   user.ID.String(),
		IPAddress:    clientIP,
		Success:      true,
	})

	return &LoginResult{
		Token:     token,
		ExpiresIn: s.config.ExpiryMinutes * 60,
		User:      user,
	}, nil
}

// ValidateAccess verifies a bearer token and checks it against the
// revocation list.
func (s *Service) ValidateAccess(tokenString string) (*Claims, error) {
	claims, err := ValidateToken(s.config.Secret, tokenString)
	if err != nil {
		return nil, err
	}
	if s.revocation.IsRevoked(claims.ID) {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// Logout revokes the token until its natural expiry.
func (s *Service) Logout(ctx context.Context, claims *Claims) {
	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	s.revocation.Revoke(claims.ID, expiresAt)
	s.auditor.Record(ctx, audit.Entry{
		Username:     claims.Username,
		Action:       "logout",
		ResourceType: "user",
		ResourceID:   claims.UserID,
		Success:      true,
	})
}

// RemainingAttempts reports how many failures the identity has left
// before lockout; the API surfaces it alongside 401 responses.
func (s *Service) RemainingAttempts(username string) int {
	return s.lockout.RemainingAttempts(username)
}

// LockoutRemaining reports the seconds left on an active lockout.
func (s *Service) LockoutRemaining(username string) (int, bool) {
	return s.lockout.LockoutRemaining(username)
}
