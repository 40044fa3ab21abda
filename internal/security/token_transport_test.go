package security

import (
	"errors"
	"strings"
	"testing"
	"testing/quick"
)

func TestEncodeTokenForURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"abc.DEF_-9", "abc%2EDEF_-9"},
		{"a+b/c=", "a%2Bb%2Fc%3D"},
		{"", ""},
		{"with space", "with%20space"},
	}
	for _, tt := range tests {
		if got := EncodeTokenForURL(tt.in); got != tt.want {
			t.Errorf("EncodeTokenForURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTokenTransport_RoundTripProperty(t *testing.T) {
	f := func(s string) bool {
		enc := EncodeTokenForURL(s)
		if strings.ContainsAny(enc, "/?#. +=") {
			return false
		}
		dec, err := DecodeTokenFromURL(enc)
		return err == nil && dec == s
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 2000}); err != nil {
		t.Error(err)
	}
}

func TestTokenTransport_RoundTripSignedToken(t *testing.T) {
	p := NewTestTokenProvider(t)
	for i := 0; i < 20; i++ {
		tok, _, _, err := p.IssueReset("acc-1", "alice", "fp")
		if err != nil {
			t.Fatalf("IssueReset: %v", err)
		}
		dec, err := DecodeTokenFromURL(EncodeTokenForURL(tok))
		if err != nil || dec != tok {
			t.Fatalf("round trip changed token: %v", err)
		}
	}
}

func TestDecodeTokenFromURL_Malformed(t *testing.T) {
	for _, s := range []string{"%", "%zz", "abc%2"} {
		if _, err := DecodeTokenFromURL(s); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("DecodeTokenFromURL(%q) err = %v, want ErrInvalidToken", s, err)
		}
	}
}
