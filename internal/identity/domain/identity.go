// Package domain defines the normalized identity-provider claim consumed by the account core.
package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	accountdomain "account-identity-core/internal/account/domain"
)

// ErrExchangeRejected is returned by an Exchange when the provider refuses the authorization code.
// It matches accountdomain.ErrInvalidCredentials.
var ErrExchangeRejected = fmt.Errorf("%w: identity provider rejected the authorization code", accountdomain.ErrInvalidCredentials)

// ErrProviderNotConfigured is returned when no exchange is registered for a provider.
var ErrProviderNotConfigured = errors.New("identity provider not configured")

// VerifiedClaim is what an identity provider vouches for after a successful handshake.
// Email may be empty; some providers omit it.
type VerifiedClaim struct {
	Provider accountdomain.Provider
	Subject  string
	Email    string
	PhotoURL string
}

// SnsID returns the provider-qualified subject.
func (c *VerifiedClaim) SnsID() string {
	return accountdomain.SnsID(c.Provider, c.Subject)
}

// Normalize trims the subject and lowercases the email.
func (c *VerifiedClaim) Normalize() {
	c.Subject = strings.TrimSpace(c.Subject)
	c.Email = accountdomain.NormalizeEmail(c.Email)
}

// Validate checks that the claim names an external provider and a subject.
func (c *VerifiedClaim) Validate() error {
	if !c.Provider.External() {
		return accountdomain.ErrInvalidProvider
	}
	if c.Subject == "" {
		return errors.New("claim subject is required")
	}
	if c.Email != "" {
		if err := accountdomain.ValidateEmail(c.Email); err != nil {
			return err
		}
	}
	return nil
}

// Exchange trades a provider authorization code for a verified claim. The core never parses
// provider wire formats; implementations live at the edge.
type Exchange interface {
	Exchange(ctx context.Context, provider accountdomain.Provider, authCode string) (*VerifiedClaim, error)
}

// Registry dispatches to the Exchange registered for each provider.
type Registry map[accountdomain.Provider]Exchange

// Exchange implements Exchange.
func (r Registry) Exchange(ctx context.Context, provider accountdomain.Provider, authCode string) (*VerifiedClaim, error) {
	ex, ok := r[provider]
	if !ok || ex == nil {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, provider)
	}
	return ex.Exchange(ctx, provider, authCode)
}
