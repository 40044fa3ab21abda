// Package notification delivers account emails. The core only produces (recipient, kind, payload)
// tuples; rendering and transport live here.
package notification

import (
	"context"
	"errors"
	"sync"
)

// Kind selects the template for a message.
type Kind string

const (
	KindVerificationCode Kind = "verification_code"
	KindPasswordReset    Kind = "password_reset"
	KindAccountDeleted   Kind = "account_deleted"
)

// Payload keys understood by the templates.
const (
	KeyUserID    = "UserID"
	KeyCode      = "Code"
	KeyExpiresIn = "ExpiresIn"
	KeyResetLink = "ResetLink"
)

// ErrNoRecipient is returned when a message has no address.
var ErrNoRecipient = errors.New("notification: recipient is required")

// Mailer sends one templated message.
type Mailer interface {
	Send(ctx context.Context, to string, kind Kind, payload map[string]string) error
}

// Message is a captured send.
type Message struct {
	To      string
	Kind    Kind
	Payload map[string]string
}

// MemoryMailer records messages instead of sending them. Fail, when set, is returned from Send
// and nothing is recorded.
type MemoryMailer struct {
	mu   sync.Mutex
	sent []Message
	Fail error
}

func (m *MemoryMailer) Send(ctx context.Context, to string, kind Kind, payload map[string]string) error {
	if to == "" {
		return ErrNoRecipient
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	cp := make(map[string]string, len(payload))
	for k, v := range payload {
		cp[k] = v
	}
	m.sent = append(m.sent, Message{To: to, Kind: kind, Payload: cp})
	return nil
}

// Sent returns a copy of every recorded message.
func (m *MemoryMailer) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.sent...)
}

// Last returns the most recent message of kind, if any.
func (m *MemoryMailer) Last(kind Kind) (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].Kind == kind {
			return m.sent[i], true
		}
	}
	return Message{}, false
}
