package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type mockPinger struct{ err error }

func (m *mockPinger) PingContext(context.Context) error { return m.err }

type mockPolicyChecker struct{ err error }

func (m *mockPolicyChecker) HealthCheck(context.Context) error { return m.err }

type mockIndexes struct {
	n   int
	err error
}

func (m *mockIndexes) CountIndexes(context.Context) (int, error) { return m.n, m.err }

type recordingStatus struct {
	mu   sync.Mutex
	last map[string]healthpb.HealthCheckResponse_ServingStatus
	sets int
}

func (r *recordingStatus) SetServingStatus(service string, st healthpb.HealthCheckResponse_ServingStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		r.last = make(map[string]healthpb.HealthCheckResponse_ServingStatus)
	}
	r.last[service] = st
	r.sets++
}

func (r *recordingStatus) get(service string) healthpb.HealthCheckResponse_ServingStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last[service]
}

func TestMonitor_Check(t *testing.T) {
	tests := []struct {
		name    string
		pinger  Pinger
		policy  PolicyChecker
		want    healthpb.HealthCheckResponse_ServingStatus
		wantErr bool
	}{
		{"no checkers", nil, nil, healthpb.HealthCheckResponse_SERVING, false},
		{"ping ok", &mockPinger{}, nil, healthpb.HealthCheckResponse_SERVING, false},
		{"ping fails", &mockPinger{err: errors.New("connection refused")}, nil, healthpb.HealthCheckResponse_NOT_SERVING, true},
		{"policy ok", nil, &mockPolicyChecker{}, healthpb.HealthCheckResponse_SERVING, false},
		{"policy fails", &mockPinger{}, &mockPolicyChecker{err: errors.New("rego compile failed")}, healthpb.HealthCheckResponse_NOT_SERVING, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &recordingStatus{}
			m := &Monitor{Pinger: tt.pinger, Policy: tt.policy, Status: st, Services: []string{"account.v1.AccountService"}}
			err := m.Check(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("Check err = %v, wantErr %v", err, tt.wantErr)
			}
			if got := st.get(""); got != tt.want {
				t.Errorf("overall status = %v, want %v", got, tt.want)
			}
			if got := st.get("account.v1.AccountService"); got != tt.want {
				t.Errorf("service status = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMonitor_IndexThresholdIsAdvisory(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	st := &recordingStatus{}
	m := &Monitor{Indexes: &mockIndexes{n: 80}, Threshold: 50, Status: st, Log: zap.New(core)}
	if err := m.Check(context.Background()); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if st.get("") != healthpb.HealthCheckResponse_SERVING {
		t.Error("index count must not flip serving status")
	}
	if logs.FilterMessage("health: accounts table has more indexes than expected").Len() != 1 {
		t.Errorf("warnings = %v", logs.All())
	}

	m.Indexes = &mockIndexes{err: errors.New("permission denied")}
	if err := m.Check(context.Background()); err != nil {
		t.Errorf("count failure should be advisory: %v", err)
	}
}

func TestMonitor_RunStopsOnCancel(t *testing.T) {
	st := &recordingStatus{}
	m := &Monitor{Status: st, Interval: 10 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	time.Sleep(35 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.sets < 2 {
		t.Errorf("sets = %d, want at least 2 sweeps", st.sets)
	}
}
