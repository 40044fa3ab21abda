package domain

import (
	"context"
	"strings"

	accountdomain "account-identity-core/internal/account/domain"
)

// DevExchange accepts authorization codes of the form "subject" or "subject|email" without
// contacting any provider. Only wired when APP_ENV is development.
type DevExchange struct{}

// Exchange implements Exchange.
func (DevExchange) Exchange(ctx context.Context, provider accountdomain.Provider, authCode string) (*VerifiedClaim, error) {
	subject, email, _ := strings.Cut(strings.TrimSpace(authCode), "|")
	if subject == "" {
		return nil, ErrExchangeRejected
	}
	return &VerifiedClaim{Provider: provider, Subject: subject, Email: email}, nil
}
