package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, tampered, expired or of the wrong purpose.
	// The underlying jwt error stays in the chain for logging.
	ErrInvalidToken = errors.New("invalid token")
)

// Purpose scopes a token to one use so an access token can never be redeemed as a reset token.
type Purpose string

const (
	PurposeAccess        Purpose = "access"
	PurposeRefresh       Purpose = "refresh"
	PurposePasswordReset Purpose = "password_reset"
)

// Claims holds the JWT claims shared by every token the service issues.
// Subject is the account id.
type Claims struct {
	jwt.RegisteredClaims
	Purpose             Purpose `json:"purpose"`
	UserID              string  `json:"uid"`
	PasswordFingerprint string  `json:"pwf,omitempty"`
}

// TokenProvider issues and validates JWTs using RS256 or ES256 (private/public key).
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	resetTTL   time.Duration
	nowF       func() time.Time
}

// NewTokenProvider returns a TokenProvider that signs with the given private key.
// issuer and audience are set on claims and checked on validation.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL, refreshTTL, resetTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		resetTTL:   resetTTL,
		nowF:       func() time.Time { return time.Now().UTC() },
	}
}

// AccessTTL returns the lifetime of access tokens.
func (p *TokenProvider) AccessTTL() time.Duration { return p.accessTTL }

// ResetTTL returns the lifetime of password reset tokens.
func (p *TokenProvider) ResetTTL() time.Duration { return p.resetTTL }

// IssueAccess issues a short-lived access token for the account.
func (p *TokenProvider) IssueAccess(accountID, userID string) (token string, expiresAt time.Time, err error) {
	token, _, expiresAt, err = p.issue(PurposeAccess, accountID, userID, "", p.accessTTL)
	return token, expiresAt, err
}

// IssueRefresh issues a long-lived refresh token for the account.
func (p *TokenProvider) IssueRefresh(accountID, userID string) (token string, expiresAt time.Time, err error) {
	token, _, expiresAt, err = p.issue(PurposeRefresh, accountID, userID, "", p.refreshTTL)
	return token, expiresAt, err
}

// IssueReset issues a password reset token bound to the account's current password fingerprint.
// The returned jti identifies the token for single-use tracking.
func (p *TokenProvider) IssueReset(accountID, userID, passwordFingerprint string) (token, jti string, expiresAt time.Time, err error) {
	return p.issue(PurposePasswordReset, accountID, userID, passwordFingerprint, p.resetTTL)
}

func (p *TokenProvider) issue(purpose Purpose, accountID, userID, pwf string, ttl time.Duration) (token, jti string, expiresAt time.Time, err error) {
	jti, err = generateJTI()
	if err != nil {
		return "", "", time.Time{}, err
	}
	now := p.nowF()
	expiresAt = now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   accountID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Purpose:             purpose,
		UserID:              userID,
		PasswordFingerprint: pwf,
	}
	token, err = p.sign(claims)
	return token, jti, expiresAt, err
}

func (p *TokenProvider) sign(claims jwt.Claims) (string, error) {
	var method jwt.SigningMethod
	switch p.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrInvalidKey
	}
	t := jwt.NewWithClaims(method, claims)
	return t.SignedString(p.privateKey)
}

// Validate parses tokenString, checks signature, expiry, issuer, audience and purpose,
// and returns its claims. Every failure matches ErrInvalidToken.
func (p *TokenProvider) Validate(tokenString string, purpose Purpose) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
			return p.publicKey, nil
		}
		return nil, ErrInvalidToken
	},
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.nowF),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Purpose != purpose {
		return nil, fmt.Errorf("%w: purpose %q, want %q", ErrInvalidToken, claims.Purpose, purpose)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}

// IsExpired reports whether err came from an expired token. For internal logging only.
func IsExpired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
