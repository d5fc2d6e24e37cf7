package security

import (
	"sync"
	"time"
)

// RevocationGuard is an in-memory revocation list for issued tokens,
// keyed by the token's jti claim. Entries past their natural expiry are
// moot: an expired token cannot be used whether revoked or not, so
// IsRevoked reports false for them. Pruning happens opportunistically on
// Revoke rather than on a timer.
type RevocationGuard struct {
	mu      sync.Mutex
	revoked map[string]time.Time

	now func() time.Time
}

func NewRevocationGuard() *RevocationGuard {
	return &RevocationGuard{
		revoked: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Revoke adds a token to the revocation list until its natural expiry.
func (g *RevocationGuard) Revoke(tokenID string, expiresAt time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.revoked[tokenID] = expiresAt

	now := g.now()
	for id, exp := range g.revoked {
		if !exp.After(now) {
			delete(g.revoked, id)
		}
	}
}

// IsRevoked reports whether the token is revoked and not yet expired.
func (g *RevocationGuard) IsRevoked(tokenID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	exp, ok := g.revoked[tokenID]
	if !ok {
		return false
	}
	return exp.After(g.now())
}
