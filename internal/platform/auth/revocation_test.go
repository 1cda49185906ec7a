package auth

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestRevoke_and_IsRevoked(t *testing.T) {
	store := NewTokenRevocationStore(0)
	defer store.Close()

	store.Revoke("token-abc-123", time.Now().Add(1*time.Hour))

	if !store.IsRevoked("token-abc-123") {
		t.Error("expected token to be revoked")
	}
	if store.IsRevoked("unknown") {
		t.Error("expected unknown token to not be revoked")
	}
}

func TestRevokeUser(t *testing.T) {
	store := NewTokenRevocationStore(0)
	defer store.Close()

	at := time.Date(2024, 6, 1, 12, 0, 0, 500, time.UTC)
	store.RevokeUser("u1", at, time.Hour)

	issued := func(sub string, iat time.Time) *Claims {
		return &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: sub, IssuedAt: jwt.NewNumericDate(iat)}}
	}
	if !store.Rejects(issued("u1", at.Add(-time.Minute))) {
		t.Error("token issued before the cutoff must be rejected")
	}
	if store.Rejects(issued("u1", at.Add(time.Second))) {
		t.Error("token issued after the cutoff must be accepted")
	}
	if store.Rejects(issued("u2", at.Add(-time.Minute))) {
		t.Error("other users must be unaffected")
	}
	if !store.Rejects(&Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}}) {
		t.Error("token without issue time must be rejected once the user is cut off")
	}
}

func TestSweep_RemovesExpiredEntries(t *testing.T) {
	store := NewTokenRevocationStore(0)
	defer store.Close()

	now := time.Now()
	store.Revoke("expired", now.Add(-time.Second))
	store.Revoke("active", now.Add(time.Hour))
	store.RevokeUser("old-user", now.Add(-2*time.Hour), time.Hour)
	store.RevokeUser("new-user", now, time.Hour)

	if store.Count() != 4 {
		t.Fatalf("expected 4 entries before sweep, got %d", store.Count())
	}

	store.sweep(now)

	if store.Count() != 2 {
		t.Errorf("expected 2 entries after sweep, got %d", store.Count())
	}
	if store.IsRevoked("expired") {
		t.Error("expected expired token to be swept")
	}
	if !store.IsRevoked("active") {
		t.Error("expected active token to remain")
	}
}

func TestConcurrentAccess(t *testing.T) {
	store := NewTokenRevocationStore(time.Millisecond)
	defer store.Close()

	var wg sync.WaitGroup
	const goroutines = 100
	wg.Add(goroutines * 2)
	for i := 0; i < goroutines; i++ {
		id := fmt.Sprintf("jti-%d", i)
		go func() {
			defer wg.Done()
			store.Revoke(id, time.Now().Add(time.Hour))
		}()
		go func() {
			defer wg.Done()
			_ = store.IsRevoked(id)
		}()
	}
	wg.Wait()

	if store.Count() != goroutines {
		t.Errorf("expected %d entries, got %d", goroutines, store.Count())
	}
}

func TestClose_Idempotent(t *testing.T) {
	store := NewTokenRevocationStore(time.Minute)
	store.Close()
	store.Close()

	store.Revoke("after-close", time.Now().Add(time.Hour))
	if !store.IsRevoked("after-close") {
		t.Error("expected store to still work after Close")
	}
}
