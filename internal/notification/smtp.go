package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// SMTPConfig configures the outbound mail relay.
type SMTPConfig struct {
	Host     string
	Port     int
	TLS      bool
	Username string
	Password string
	From     string
}

// SMTPMailer renders templates and delivers them through an SMTP relay.
type SMTPMailer struct {
	cfg    SMTPConfig
	client *mail.Client
	log    *zap.Logger
}

// NewSMTPMailer returns a mailer for cfg. The connection is opened per message.
func NewSMTPMailer(cfg SMTPConfig, log *zap.Logger) (*SMTPMailer, error) {
	if cfg.From == "" {
		return nil, fmt.Errorf("notification: SMTP from address is required")
	}
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(30 * time.Second),
	}
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	if cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("notification: smtp client: %w", err)
	}
	return &SMTPMailer{cfg: cfg, client: client, log: log}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, to string, kind Kind, payload map[string]string) error {
	if to == "" {
		return ErrNoRecipient
	}
	msg, err := m.buildMessage(to, kind, payload)
	if err != nil {
		return err
	}
	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		m.log.Warn("notification: smtp send failed", zap.String("kind", string(kind)), zap.Error(err))
		return err
	}
	m.log.Info("notification: email sent", zap.String("kind", string(kind)), zap.String("host", m.cfg.Host))
	return nil
}

func (m *SMTPMailer) buildMessage(to string, kind Kind, payload map[string]string) (*mail.Msg, error) {
	subject, text, html, err := Render(kind, payload)
	if err != nil {
		return nil, err
	}
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("notification: from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("notification: to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, text)
	msg.AddAlternativeString(mail.TypeTextHTML, html)
	return msg, nil
}

// LogMailer only logs that a message would have been sent. Used when SMTP is not configured.
// Payload values are never logged.
type LogMailer struct {
	Log *zap.Logger
}

func (m LogMailer) Send(ctx context.Context, to string, kind Kind, payload map[string]string) error {
	if to == "" {
		return ErrNoRecipient
	}
	if _, _, _, err := Render(kind, payload); err != nil {
		return err
	}
	m.Log.Info("notification: smtp disabled, message dropped", zap.String("kind", string(kind)))
	return nil
}
