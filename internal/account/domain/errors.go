package domain

import (
	"errors"
	"fmt"
)

// Error kinds shared by the store, the lifecycle services and the transport.
var (
	ErrDuplicateIdentity       = errors.New("identity already in use")
	ErrNotFound                = errors.New("account not found")
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrAccountLocked           = errors.New("account locked; password reset required")
	ErrNotVerified             = errors.New("email verification required")
	ErrAlreadyVerified         = errors.New("account already verified")
	ErrCodeExpired             = errors.New("verification code expired")
	ErrInvalidCode             = errors.New("invalid verification code")
	ErrInvalidOrExpiredToken   = errors.New("invalid or expired token")
	ErrInvalidPairing          = errors.New("invalid account pairing")
	ErrConflict                = errors.New("concurrent modification; retry")
	ErrUpstreamDeliveryFailure = errors.New("upstream delivery failure")
	ErrRateLimited             = errors.New("too many requests")
)

// ErrInvalidInput is the parent of all request validation failures.
var ErrInvalidInput = errors.New("invalid input")

// Validation failures; each matches ErrInvalidInput via errors.Is.
var (
	ErrInvalidEmail    = invalid("invalid email format")
	ErrInvalidUserID   = invalid("user id must be 3-30 characters of letters, digits, '_' or '.'")
	ErrWeakPassword    = invalid("password must be at least 8 characters and contain a letter and a digit")
	ErrInvalidProvider = invalid("unknown provider")
	ErrInvalidStyle    = invalid("unknown or duplicate style preference")
	ErrTooManyStyles   = invalid("at most 3 style preferences may be selected")
	ErrInvalidSize     = invalid("unknown size")
	ErrImageTooLarge   = invalid("image exceeds 5 MiB")
	ErrUnsupportedType = invalid("unsupported image type")
)

type validationError struct{ msg string }

func invalid(msg string) error { return &validationError{msg: msg} }

func (e *validationError) Error() string { return e.msg }

func (e *validationError) Is(target error) bool { return target == ErrInvalidInput }

// CredentialsError is returned for a wrong password on an existing, unlocked account.
type CredentialsError struct {
	RemainingAttempts int
}

func (e *CredentialsError) Error() string {
	return fmt.Sprintf("%s (%d attempts remaining)", ErrInvalidCredentials, e.RemainingAttempts)
}

func (e *CredentialsError) Unwrap() error { return ErrInvalidCredentials }

// RemainingAttempts extracts the remaining attempt count from err. ok is false when err does not carry one.
func RemainingAttempts(err error) (int, bool) {
	var ce *CredentialsError
	if errors.As(err, &ce) {
		return ce.RemainingAttempts, true
	}
	return 0, false
}

var clientKinds = []error{
	ErrDuplicateIdentity, ErrNotFound, ErrInvalidCredentials, ErrAccountLocked, ErrNotVerified,
	ErrAlreadyVerified, ErrCodeExpired, ErrInvalidCode, ErrInvalidOrExpiredToken, ErrInvalidPairing,
	ErrRateLimited, ErrInvalidInput,
}

// IsClientError reports whether err is an expected outcome caused by the request rather than a server fault.
func IsClientError(err error) bool {
	for _, k := range clientKinds {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

// IsRetryable reports whether the caller may retry the same operation unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrUpstreamDeliveryFailure)
}
