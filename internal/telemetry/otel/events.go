package otel

import (
	"context"
	"encoding/json"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"account-identity-core/internal/events"
)

// recordEmitter is the part of otellog.Logger the event emitter needs.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewEventEmitter returns an events.Emitter that writes events as OTel log records.
// A nil provider yields events.Noop.
func NewEventEmitter(provider *sdklog.LoggerProvider) events.Emitter {
	if provider == nil {
		return events.Noop{}
	}
	return NewEventEmitterWithLogger(provider.Logger("account-core.events"))
}

// NewEventEmitterWithLogger returns an emitter writing to l.
func NewEventEmitterWithLogger(l recordEmitter) events.Emitter {
	return &logEmitter{logger: l}
}

type logEmitter struct {
	logger recordEmitter
}

func (e *logEmitter) Emit(ctx context.Context, ev *events.Event) error {
	if ev == nil {
		return nil
	}
	rec := otellog.Record{}
	ts := ev.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetEventName(string(ev.Type))
	if len(ev.Attributes) > 0 {
		if b, err := json.Marshal(ev.Attributes); err == nil {
			rec.SetBody(otellog.BytesValue(b))
		}
	}
	rec.AddAttributes(
		otellog.String("event_id", ev.ID),
		otellog.String("event_type", string(ev.Type)),
		otellog.String("account_id", ev.AccountID),
	)
	if ev.UserID != "" {
		rec.AddAttributes(otellog.String("user_id", ev.UserID))
	}
	e.logger.Emit(ctx, rec)
	return nil
}
