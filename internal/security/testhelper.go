package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"
)

// NewTestTokenProvider returns a TokenProvider backed by a freshly generated P-256 key.
// For tests only.
func NewTestTokenProvider(tb testing.TB) *TokenProvider {
	tb.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		tb.Fatalf("generate test key: %v", err)
	}
	return NewTokenProvider(key, &key.PublicKey, "test-issuer", "test-audience", 15*time.Minute, 24*time.Hour, time.Hour)
}

// SetClock overrides the provider's time source. For tests only.
func (p *TokenProvider) SetClock(now func() time.Time) {
	p.nowF = now
}
