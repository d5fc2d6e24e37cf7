package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetmesh/fleetmesh/internal/audit"
	"github.com/fleetmesh/fleetmesh/internal/auth"
	"github.com/fleetmesh/fleetmesh/internal/security"
	"github.com/fleetmesh/fleetmesh/internal/store/memory"
	"github.com/fleetmesh/fleetmesh/internal/users"
)

func newTestAuth(t *testing.T) (*auth.Service, *users.Service, *memory.AuditStore) {
	t.Helper()
	userService := users.NewService(memory.NewUserStore())
	auditStore := memory.NewAuditStore()
	svc := auth.NewService(
		userService,
		security.NewLockoutGuard(),
		security.NewRevocationGuard(),
		audit.NewRecorder(auditStore),
		auth.Config{Secret: "test-secret", ExpiryMinutes: 60},
	)
	return svc, userService, auditStore
}

func seedUser(t *testing.T, userService *users.Service, username, password string) *users.User {
	t.Helper()
	user, err := userService.Create(context.Background(), username, "", password, users.RoleOperator)
	require.NoError(t, err)
	return user
}

func TestLoginSuccess(t *testing.T) {
	svc, userService, _ := newTestAuth(t)
	seedUser(t, userService, "alice", "correct-horse")

	result, err := svc.Login(context.Background(), "alice", "correct-horse", "10.0.0.1")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, 3600, result.ExpiresIn)
	assert.Equal(t, "alice", result.User.Username)

	claims, err := svc.ValidateAccess(result.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, string(users.RoleOperator), claims.Role)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, userService, _ := newTestAuth(t)
	seedUser(t, userService, "alice", "correct-horse")

	_, err := svc.Login(context.Background(), "alice", "wrong", "10.0.0.1")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	assert.Equal(t, security.MaxFailedAttempts-1, svc.RemainingAttempts("alice"))
}

func TestLoginUnknownUserCountsTowardLockout(t *testing.T) {
	svc, _, _ := newTestAuth(t)

	_, err := svc.Login(context.Background(), "nobody", "whatever", "10.0.0.1")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	assert.Equal(t, security.MaxFailedAttempts-1, svc.RemainingAttempts("nobody"))
}

func TestLoginLockout(t *testing.T) {
	svc, userService, _ := newTestAuth(t)
	seedUser(t, userService, "alice", "correct-horse")
	ctx := context.Background()

	for i := 0; i < security.MaxFailedAttempts-1; i++ {
		_, err := svc.Login(ctx, "alice", "wrong", "10.0.0.1")
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	}

	// The attempt that uses up the last try reports the lockout itself.
	_, err := svc.Login(ctx, "alice", "wrong", "10.0.0.1")
	assert.ErrorIs(t, err, auth.ErrAccountLocked)

	// Even the right password is rejected while locked.
	_, err = svc.Login(ctx, "alice", "correct-horse", "10.0.0.1")
	assert.ErrorIs(t, err, auth.ErrAccountLocked)

	remaining, locked := svc.LockoutRemaining("alice")
	assert.True(t, locked)
	assert.Greater(t, remaining, 0)
}

func TestLoginSuccessClearsFailures(t *testing.T) {
	svc, userService, _ := newTestAuth(t)
	seedUser(t, userService, "alice", "correct-horse")
	ctx := context.Background()

	for i := 0; i < security.MaxFailedAttempts-1; i++ {
		_, err := svc.Login(ctx, "alice", "wrong", "10.0.0.1")
		require.Error(t, err)
	}

	_, err := svc.Login(ctx, "alice", "correct-horse", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, security.MaxFailedAttempts, svc.RemainingAttempts("alice"))
}

func TestLoginDisabledAccount(t *testing.T) {
	userStore := memory.NewUserStore()
	userService := users.NewService(userStore)
	svc := auth.NewService(
		userService,
		security.NewLockoutGuard(),
		security.NewRevocationGuard(),
		audit.NewRecorder(nil),
		auth.Config{Secret: "test-secret", ExpiryMinutes: 60},
	)
	ctx := context.Background()

	seedUser(t, userService, "alice", "correct-horse")

	stored, err := userStore.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	stored.IsActive = false
	require.NoError(t, userStore.Update(ctx, stored))

	_, err = svc.Login(ctx, "alice", "correct-horse", "10.0.0.1")
	assert.ErrorIs(t, err, auth.ErrAccountDisabled)
}

func TestLogoutRevokesToken(t *testing.T) {
	svc, userService, _ := newTestAuth(t)
	seedUser(t, userService, "alice", "correct-horse")
	ctx := context.Background()

	result, err := svc.Login(ctx, "alice", "correct-horse", "10.0.0.1")
	require.NoError(t, err)

	claims, err := svc.ValidateAccess(result.Token)
	require.NoError(t, err)

	svc.Logout(ctx, claims)

	_, err = svc.ValidateAccess(result.Token)
	assert.ErrorIs(t, err, auth.ErrTokenRevoked)

	// A fresh login issues a distinct token that still works.
	result2, err := svc.Login(ctx, "alice", "correct-horse", "10.0.0.1")
	require.NoError(t, err)
	_, err = svc.ValidateAccess(result2.Token)
	assert.NoError(t, err)
}

func TestValidateAccessGarbage(t *testing.T) {
	svc, _, _ := newTestAuth(t)

	_, err := svc.ValidateAccess("not-a-jwt")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestLoginWritesAudit(t *testing.T) {
	svc, userService, auditStore := newTestAuth(t)
	seedUser(t, userService, "alice", "correct-horse")
	ctx := context.Background()

	_, _ = svc.Login(ctx, "alice", "wrong", "10.0.0.1")
	_, err := svc.Login(ctx, "alice", "correct-horse", "10.0.0.1")
	require.NoError(t, err)

	entries := auditStore.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "login_failed", entries[0].Action)
	assert.False(t, entries[0].Success)
	assert.Equal(t, "login_success", entries[1].Action)
	assert.True(t, entries[1].Success)
	assert.Equal(t, "10.0.0.1", entries[1].IPAddress)
}
