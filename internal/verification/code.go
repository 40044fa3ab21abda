package verification

import (
	"crypto/rand"
	"crypto/subtle"
	"math/big"
)

const (
	codeDigits = 6
	codeMin    = 100000
	codeSpan   = 900000
)

// GenerateCode returns a 6-digit decimal code in 100000..999999 drawn from crypto/rand.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpan))
	if err != nil {
		return "", err
	}
	return big.NewInt(0).Add(n, big.NewInt(codeMin)).String(), nil
}

// CodeEqual compares a supplied code with the stored one as strings in constant time.
func CodeEqual(supplied, stored string) bool {
	if stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(stored)) == 1
}
