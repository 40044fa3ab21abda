package security

import (
	"net/url"
	"strings"
)

// EncodeTokenForURL percent-encodes every byte outside [A-Za-z0-9_-] so a signed token can be
// placed in a URL path segment. DecodeTokenFromURL reverses it exactly.
func EncodeTokenForURL(token string) string {
	const hexDigits = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(token))
	for i := 0; i < len(token); i++ {
		c := token[i]
		if isUnreservedTokenByte(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0F])
	}
	return b.String()
}

// DecodeTokenFromURL reverses EncodeTokenForURL. Malformed escapes yield ErrInvalidToken.
func DecodeTokenFromURL(encoded string) (string, error) {
	s, err := url.PathUnescape(encoded)
	if err != nil {
		return "", ErrInvalidToken
	}
	return s, nil
}

func isUnreservedTokenByte(c byte) bool {
	return c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_' || c == '-'
}
