package security

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// MaxFailedAttempts is the number of failed logins within the lockout
	// window that triggers a lockout.
	MaxFailedAttempts = 5

	// LockoutDuration is both the sliding window for counting failures and
	// the duration of a triggered lockout.
	LockoutDuration = 15 * time.Minute
)

// LockoutGuard tracks failed login attempts per identity and locks an
// identity out after too many failures in a sliding window. Expired
// lockouts clear lazily on the next check; there is no background sweep.
type LockoutGuard struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	lockouts map[string]time.Time

	now func() time.Time
}

func NewLockoutGuard() *LockoutGuard {
	return &LockoutGuard{
		attempts: make(map[string][]time.Time),
		lockouts: make(map[string]time.Time),
		now:      time.Now,
	}
}

// IsLockedOut reports whether the identity is currently locked out. An
// expired lockout is removed together with its attempt history.
func (g *LockoutGuard) IsLockedOut(identity string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	until, ok := g.lockouts[identity]
	if !ok {
		return false
	}
	if g.now().Before(until) {
		return true
	}
	delete(g.lockouts, identity)
	delete(g.attempts, identity)
	return false
}

// RecordFailedAttempt records a failed login and returns true if this
// attempt triggered a lockout.
func (g *LockoutGuard) RecordFailedAttempt(identity string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.pruneLocked(identity, now)
	g.attempts[identity] = append(g.attempts[identity], now)

	if len(g.attempts[identity]) >= MaxFailedAttempts {
		until := now.Add(LockoutDuration)
		g.lockouts[identity] = until
		slog.Warn("Account locked out", "identity", identity, "until", until)
		return true
	}
	return false
}

// RemainingAttempts returns how many more failures the identity can
// accumulate before being locked out.
func (g *LockoutGuard) RemainingAttempts(identity string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.pruneLocked(identity, g.now())
	remaining := MaxFailedAttempts - len(g.attempts[identity])
	if remaining < 0 {
		return 0
	}
	return remaining
}

// LockoutRemaining returns the remaining lockout duration in seconds and
// whether the identity is locked out at all.
func (g *LockoutGuard) LockoutRemaining(identity string) (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	until, ok := g.lockouts[identity]
	if !ok {
		return 0, false
	}
	remaining := until.Sub(g.now())
	if remaining <= 0 {
		return 0, false
	}
	return int(remaining.Seconds()), true
}

// ClearAttempts resets the identity after a successful login.
func (g *LockoutGuard) ClearAttempts(identity string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.attempts, identity)
	delete(g.lockouts, identity)
}

// pruneLocked drops attempts that fell out of the sliding window. Callers
// must hold g.mu.
func (g *LockoutGuard) pruneLocked(identity string, now time.Time) {
	cutoff := now.Add(-LockoutDuration)
	kept := g.attempts[identity][:0]
	for _, at := range g.attempts[identity] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	if len(kept) == 0 {
		delete(g.attempts, identity)
		return
	}
	g.attempts[identity] = kept
}
