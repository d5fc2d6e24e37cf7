package security

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRevokeAndLookup(t *testing.T) {
	g := NewRevocationGuard()

	g.Revoke("jti-1", time.Now().Add(time.Hour))
	assert.True(t, g.IsRevoked("jti-1"))
	assert.False(t, g.IsRevoked("jti-2"))
}

func TestExpiredRevocationIsMoot(t *testing.T) {
	g := NewRevocationGuard()

	// Revoking with an expiry in the past has no effect on lookups: the
	// token could not be used anyway.
	g.Revoke("jti-past", time.Now().Add(-time.Minute))
	assert.False(t, g.IsRevoked("jti-past"))
}

func TestRevocationExpiresNaturally(t *testing.T) {
	g := NewRevocationGuard()
	current := time.Now()
	g.now = func() time.Time { return current }

	g.Revoke("jti-1", current.Add(time.Minute))
	assert.True(t, g.IsRevoked("jti-1"))

	current = current.Add(2 * time.Minute)
	assert.False(t, g.IsRevoked("jti-1"))
}

func TestRevokePrunesExpiredEntries(t *testing.T) {
	g := NewRevocationGuard()
	current := time.Now()
	g.now = func() time.Time { return current }

	g.Revoke("jti-old", current.Add(time.Minute))
	current = current.Add(2 * time.Minute)
	g.Revoke("jti-new", current.Add(time.Minute))

	g.mu.Lock()
	_, oldKept := g.revoked["jti-old"]
	g.mu.Unlock()
	assert.False(t, oldKept, "expired entry should be pruned on Revoke")
	assert.True(t, g.IsRevoked("jti-new"))
}

func TestRevocationConcurrentAccess(t *testing.T) {
	g := NewRevocationGuard()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			jti := fmt.Sprintf("jti-%d", id)
			g.Revoke(jti, time.Now().Add(time.Hour))
			g.IsRevoked(jti)
		}(i)
	}
	wg.Wait()
}
