package otel

import (
	"context"
	"testing"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"account-identity-core/internal/events"
)

type recordCapture struct {
	rec otellog.Record
	n   int
}

func (r *recordCapture) Emit(ctx context.Context, rec otellog.Record) {
	r.rec = rec
	r.n++
}

func TestNewEventEmitter_NilProvider(t *testing.T) {
	em := NewEventEmitter(nil)
	if _, ok := em.(events.Noop); !ok {
		t.Fatalf("NewEventEmitter(nil) = %T, want events.Noop", em)
	}
}

func TestNewEventEmitter_Provider(t *testing.T) {
	provider := sdklog.NewLoggerProvider()
	defer func() { _ = provider.Shutdown(context.Background()) }()
	em := NewEventEmitter(provider)
	if err := em.Emit(context.Background(), events.New(events.TypeVerified, "acc", "alice", nil)); err != nil {
		t.Errorf("Emit: %v", err)
	}
}

func TestLogEmitter_Mapping(t *testing.T) {
	capture := &recordCapture{}
	em := NewEventEmitterWithLogger(capture)
	ev := events.New(events.TypeLinked, "acc-1", "alice", map[string]string{"secondary": "acc-2"})
	if err := em.Emit(context.Background(), ev); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	rec := capture.rec
	if rec.EventName() != "account.linked" {
		t.Errorf("EventName = %q", rec.EventName())
	}
	if !rec.Timestamp().Equal(ev.OccurredAt) {
		t.Errorf("Timestamp = %v, want %v", rec.Timestamp(), ev.OccurredAt)
	}
	if got := string(rec.Body().AsBytes()); got != `{"secondary":"acc-2"}` {
		t.Errorf("Body = %q", got)
	}
	attrs := map[string]string{}
	rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value.AsString()
		return true
	})
	want := map[string]string{"event_id": ev.ID, "event_type": "account.linked", "account_id": "acc-1", "user_id": "alice"}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("attr %q = %q, want %q", k, attrs[k], v)
		}
	}
}

func TestLogEmitter_NilEvent(t *testing.T) {
	capture := &recordCapture{}
	if err := NewEventEmitterWithLogger(capture).Emit(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if capture.n != 0 {
		t.Error("nil event should not emit a record")
	}
}
