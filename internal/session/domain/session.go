package domain

import "time"

// Tokens is the credential pair handed to a client after a successful authentication.
type Tokens struct {
	AccountID        string
	UserID           string
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Principal is the caller resolved from a valid access token.
type Principal struct {
	AccountID string
	UserID    string
}
