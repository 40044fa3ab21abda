package security

import (
	"testing"
)

func TestHasher_HashAndCompare(t *testing.T) {
	h := NewHasher(4)
	password := []byte("secret123")
	hash, err := h.Hash(password)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "" || hash == string(password) {
		t.Fatal("Hash returned empty or plaintext")
	}
	if err := h.Compare(hash, password); err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if err := h.Compare(hash, []byte("wrong")); err == nil {
		t.Fatal("Compare with wrong password should fail")
	}
}

func TestHasher_SaltsEachHash(t *testing.T) {
	h := NewHasher(4)
	a, _ := h.Hash([]byte("secret123"))
	b, _ := h.Hash([]byte("secret123"))
	if a == b {
		t.Error("two hashes of the same password should differ")
	}
}

func TestHasher_Cost(t *testing.T) {
	if h := NewHasher(12); h.Cost != 12 {
		t.Errorf("Cost want 12, got %d", h.Cost)
	}
	if h := NewHasher(0); h.Cost < 4 {
		t.Errorf("zero cost should be clamped to at least MinCost, got %d", h.Cost)
	}
	if h := NewHasher(99); h.Cost != 31 {
		t.Errorf("cost above MaxCost should clamp to 31, got %d", h.Cost)
	}
}

func TestPasswordFingerprint(t *testing.T) {
	if PasswordFingerprint("") != "" {
		t.Error("empty hash should have empty fingerprint")
	}
	a := PasswordFingerprint("$2a$04$abc")
	if a == "" || a != PasswordFingerprint("$2a$04$abc") {
		t.Error("fingerprint should be stable and non-empty")
	}
	if a == PasswordFingerprint("$2a$04$abd") {
		t.Error("different hashes should have different fingerprints")
	}
}
