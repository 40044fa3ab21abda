package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the account service counters. A nil *Metrics records nothing.
type Metrics struct {
	logins        metric.Int64Counter
	lockouts      metric.Int64Counter
	registrations metric.Int64Counter
	resets        metric.Int64Counter
	links         metric.Int64Counter
}

// NewMetrics creates the counters on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter("account-core")
	var (
		out Metrics
		err error
	)
	if out.logins, err = m.Int64Counter("account.logins", metric.WithDescription("Login attempts by outcome")); err != nil {
		return nil, err
	}
	if out.lockouts, err = m.Int64Counter("account.lockouts", metric.WithDescription("Accounts locked after repeated failures")); err != nil {
		return nil, err
	}
	if out.registrations, err = m.Int64Counter("account.registrations", metric.WithDescription("Accounts created by provider")); err != nil {
		return nil, err
	}
	if out.resets, err = m.Int64Counter("account.password_resets", metric.WithDescription("Password reset steps by outcome")); err != nil {
		return nil, err
	}
	if out.links, err = m.Int64Counter("account.links", metric.WithDescription("Account merges by outcome")); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login records one login attempt with outcome such as "success", "bad_password" or "locked".
func (m *Metrics) Login(ctx context.Context, method, outcome string) {
	if m == nil {
		return
	}
	m.logins.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method), attribute.String("outcome", outcome)))
}

// Lockout records an account crossing the lock threshold.
func (m *Metrics) Lockout(ctx context.Context) {
	if m == nil {
		return
	}
	m.lockouts.Add(ctx, 1)
}

// Registration records a created account.
func (m *Metrics) Registration(ctx context.Context, provider string) {
	if m == nil {
		return
	}
	m.registrations.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
}

// Reset records a password reset step ("request" or "confirm") and its outcome.
func (m *Metrics) Reset(ctx context.Context, step, outcome string) {
	if m == nil {
		return
	}
	m.resets.Add(ctx, 1, metric.WithAttributes(attribute.String("step", step), attribute.String("outcome", outcome)))
}

// Link records an account merge attempt.
func (m *Metrics) Link(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.links.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
