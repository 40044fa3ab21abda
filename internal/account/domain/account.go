package domain

import (
	"errors"
	"strings"
	"time"
)

// LockThreshold is the number of consecutive failed password attempts that locks an account.
const LockThreshold = 10

// Default profile image references assigned to new accounts until an image is uploaded.
const (
	DefaultDesktopImageURL = "/uploads/desktop/default.jpg"
	DefaultMobileImageURL  = "/uploads/mobile/default.jpg"
)

// Provider is the authentication origin of an account.
type Provider string

const (
	ProviderEmail    Provider = "email"
	ProviderGoogle   Provider = "google"
	ProviderKakao    Provider = "kakao"
	ProviderNaver    Provider = "naver"
	ProviderCombined Provider = "combined"
)

// Valid reports whether p is one of the known providers.
func (p Provider) Valid() bool {
	switch p {
	case ProviderEmail, ProviderGoogle, ProviderKakao, ProviderNaver, ProviderCombined:
		return true
	}
	return false
}

// External reports whether p is a third-party identity provider that can produce a verified claim.
func (p Provider) External() bool {
	switch p {
	case ProviderGoogle, ProviderKakao, ProviderNaver:
		return true
	}
	return false
}

// ParseProvider normalizes s and returns the matching Provider.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", ErrInvalidProvider
	}
	return p, nil
}

// SnsID returns the provider-qualified external identity, e.g. "google:1234".
func SnsID(p Provider, subject string) string {
	return string(p) + ":" + subject
}

// ProfileImage references the resized copies of an account's profile picture.
type ProfileImage struct {
	DesktopURL string
	MobileURL  string
}

// DefaultProfileImage returns the placeholder image reference.
func DefaultProfileImage() ProfileImage {
	return ProfileImage{DesktopURL: DefaultDesktopImageURL, MobileURL: DefaultMobileImageURL}
}

// Account is the identity record for one person. Empty strings stand for absent optional values.
type Account struct {
	ID       string
	UserID   string
	Email    string
	SnsID    string
	Provider Provider

	PasswordHash string

	IsVerified           bool
	VerificationCode     string
	VerificationExpiry   *time.Time
	VerificationAttempts int // wrong guesses against the pending code

	IsLocked       bool
	FailedAttempts int

	HasCompletedPreferences bool
	StylePreferences        []StylePreference
	Size                    Size
	ProfileImage            ProfileImage

	AccessTokenHash  string
	RefreshTokenHash string

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasPassword reports whether the account can authenticate with a password.
func (a *Account) HasPassword() bool {
	return a.PasswordHash != ""
}

// VerificationPending reports whether a code is outstanding and unexpired at now.
func (a *Account) VerificationPending(now time.Time) bool {
	return a.VerificationCode != "" && a.VerificationExpiry != nil && now.Before(*a.VerificationExpiry)
}

// RemainingAttempts returns how many wrong passwords are left before the account locks.
func (a *Account) RemainingAttempts() int {
	r := LockThreshold - a.FailedAttempts
	if r < 0 {
		return 0
	}
	return r
}

// Clone returns a deep copy so callers can mutate without affecting shared state.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	if a.VerificationExpiry != nil {
		t := *a.VerificationExpiry
		c.VerificationExpiry = &t
	}
	if a.StylePreferences != nil {
		c.StylePreferences = append([]StylePreference(nil), a.StylePreferences...)
	}
	return &c
}

// Validate checks the invariants that can be evaluated on a single row.
func (a *Account) Validate() error {
	if a.ID == "" {
		return errors.New("account id is required")
	}
	if strings.TrimSpace(a.UserID) == "" {
		return errors.New("user id is required")
	}
	if !a.Provider.Valid() {
		return ErrInvalidProvider
	}
	if a.Provider == ProviderEmail && a.Email == "" {
		return errors.New("email is required for email accounts")
	}
	if a.Provider.External() && a.SnsID == "" {
		return errors.New("sns id is required for provider accounts")
	}
	if a.IsVerified && (a.VerificationCode != "" || a.VerificationExpiry != nil) {
		return errors.New("verified account must not carry a verification code")
	}
	if a.IsLocked && a.FailedAttempts < LockThreshold {
		return errors.New("locked account must have reached the failure threshold")
	}
	if a.Size != "" && !a.Size.Valid() {
		return ErrInvalidSize
	}
	return nil
}
