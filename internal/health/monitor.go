// Package health runs the advisory readiness sweep behind the standard gRPC health service.
// It never sits on a request path.
package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger checks database connectivity (e.g. *sqlx.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker verifies the policy engine can evaluate (e.g. *engine.OPAEvaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// IndexCounter reports how many indexes exist on the accounts table.
type IndexCounter interface {
	CountIndexes(ctx context.Context) (int, error)
}

// StatusSetter receives serving status changes (e.g. *health.Server from google.golang.org/grpc/health).
type StatusSetter interface {
	SetServingStatus(service string, status healthpb.HealthCheckResponse_ServingStatus)
}

// Monitor periodically checks the store and the policy engine and flips the serving status of
// services. Nil checkers are skipped.
type Monitor struct {
	Pinger    Pinger
	Policy    PolicyChecker
	Indexes   IndexCounter
	Status    StatusSetter
	Services  []string
	Interval  time.Duration
	Threshold int
	Log       *zap.Logger
}

// Check runs one sweep and updates the serving status. The returned error explains NOT_SERVING.
func (m *Monitor) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := m.check(ctx)
	st := healthpb.HealthCheckResponse_SERVING
	if err != nil {
		st = healthpb.HealthCheckResponse_NOT_SERVING
		m.log().Warn("health: not serving", zap.Error(err))
	}
	if m.Status != nil {
		m.Status.SetServingStatus("", st)
		for _, s := range m.Services {
			m.Status.SetServingStatus(s, st)
		}
	}
	return err
}

func (m *Monitor) check(ctx context.Context) error {
	if m.Pinger != nil {
		if err := m.Pinger.PingContext(ctx); err != nil {
			return fmt.Errorf("database ping: %w", err)
		}
	}
	if m.Policy != nil {
		if err := m.Policy.HealthCheck(ctx); err != nil {
			return fmt.Errorf("policy engine: %w", err)
		}
	}
	if m.Indexes != nil {
		n, err := m.Indexes.CountIndexes(ctx)
		if err != nil {
			// Advisory only.
			m.log().Warn("health: count indexes failed", zap.Error(err))
		} else if m.Threshold > 0 && n > m.Threshold {
			m.log().Warn("health: accounts table has more indexes than expected",
				zap.Int("indexes", n), zap.Int("threshold", m.Threshold))
		}
	}
	return nil
}

// Run checks immediately and then every Interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	interval := m.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	_ = m.Check(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-t.C:
			_ = m.Check(ctx)
		}
	}
}

func (m *Monitor) log() *zap.Logger {
	if m.Log == nil {
		return zap.NewNop()
	}
	return m.Log
}
