// Package events publishes account lifecycle events for audit and analytics consumers.
// Emission is best-effort and never on the correctness path of an account operation.
package events

import (
	"time"

	"github.com/segmentio/ksuid"
)

// Type names an account lifecycle transition.
type Type string

const (
	TypeRegistered      Type = "account.registered"
	TypeVerified        Type = "account.verified"
	TypeLocked          Type = "account.locked"
	TypePasswordReset   Type = "account.password_reset"
	TypeLinked          Type = "account.linked"
	TypeDeleted         Type = "account.deleted"
	TypeProviderCreated Type = "account.provider_created"
)

// Event is one lifecycle transition. Attributes never carry secrets (passwords, codes, tokens).
type Event struct {
	ID         string            `json:"id"`
	Type       Type              `json:"type"`
	AccountID  string            `json:"accountId"`
	UserID     string            `json:"userId,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// New returns an event with a time-sortable id stamped now.
func New(t Type, accountID, userID string, attrs map[string]string) *Event {
	return &Event{
		ID:         ksuid.New().String(),
		Type:       t,
		AccountID:  accountID,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
		Attributes: attrs,
	}
}
