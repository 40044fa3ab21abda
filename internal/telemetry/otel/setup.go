// Package otel wires OpenTelemetry tracing, metrics and logs for the account service and
// adapts account events and counters onto them.
package otel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.uber.org/zap"
)

// metricInterval is how often account counters are pushed to the collector.
const metricInterval = 10 * time.Second

// Providers carries what the service exports: RPC spans from otelgrpc, the account counters in
// Metrics and account events as log records.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *metric.MeterProvider
	LoggerProvider *sdklog.LoggerProvider
	Shutdown       func(context.Context) error
}

// collector is an OTLP gRPC destination.
type collector struct {
	host     string
	insecure bool
}

// parseCollector accepts host:port or a URL and keeps only the host. Anything but https is
// plaintext; forceInsecure (OTEL_EXPORTER_OTLP_INSECURE) makes https plaintext too.
func parseCollector(endpoint string, forceInsecure bool) (collector, error) {
	raw := endpoint
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return collector{}, fmt.Errorf("invalid OTLP endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return collector{}, fmt.Errorf("invalid OTLP endpoint %q: missing host", endpoint)
	}
	return collector{host: u.Host, insecure: forceInsecure || u.Scheme != "https"}, nil
}

// NewProviders returns providers exporting to the OTLP collector at endpoint. With no endpoint the
// providers only serve in-process readers and export nothing.
func NewProviders(ctx context.Context, endpoint, serviceName string, insecureOverride bool, log *zap.Logger) (*Providers, error) {
	if log == nil {
		log = zap.NewNop()
	}
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return &Providers{
			TracerProvider: sdktrace.NewTracerProvider(),
			MeterProvider:  metric.NewMeterProvider(),
			LoggerProvider: sdklog.NewLoggerProvider(),
			Shutdown:       func(context.Context) error { return nil },
		}, nil
	}

	c, err := parseCollector(endpoint, insecureOverride)
	if err != nil {
		return nil, err
	}
	res, err := resource.Merge(resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, err
	}

	p := &Providers{}
	var stops []func(context.Context) error
	stopAll := func(ctx context.Context) error {
		var errs []error
		for i := len(stops) - 1; i >= 0; i-- {
			if err := stops[i](ctx); err != nil {
				log.Warn("telemetry: shutdown", zap.Error(err))
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	spans, err := otlptracegrpc.New(ctx, c.traceOptions()...)
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}
	p.TracerProvider = sdktrace.NewTracerProvider(sdktrace.WithBatcher(spans), sdktrace.WithResource(res))
	stops = append(stops, p.TracerProvider.Shutdown)

	counters, err := otlpmetricgrpc.New(ctx, c.metricOptions()...)
	if err != nil {
		_ = stopAll(ctx)
		return nil, fmt.Errorf("metric exporter: %w", err)
	}
	p.MeterProvider = metric.NewMeterProvider(metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(counters, metric.WithInterval(metricInterval))))
	stops = append(stops, p.MeterProvider.Shutdown)

	records, err := otlploggrpc.New(ctx, c.logOptions()...)
	if err != nil {
		_ = stopAll(ctx)
		return nil, fmt.Errorf("log exporter: %w", err)
	}
	p.LoggerProvider = sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewBatchProcessor(records)), sdklog.WithResource(res))
	stops = append(stops, p.LoggerProvider.Shutdown)

	p.Shutdown = stopAll
	log.Info("telemetry: exporting", zap.String("collector", c.host), zap.Bool("insecure", c.insecure))
	return p, nil
}

func (c collector) traceOptions() []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(c.host)}
	if c.insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return opts
}

func (c collector) metricOptions() []otlpmetricgrpc.Option {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(c.host)}
	if c.insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	return opts
}

func (c collector) logOptions() []otlploggrpc.Option {
	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(c.host)}
	if c.insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	return opts
}

// SetGlobal installs the tracer and meter providers for otelgrpc. The event emitter takes the
// logger provider directly.
func (p *Providers) SetGlobal() {
	otel.SetTracerProvider(p.TracerProvider)
	otel.SetMeterProvider(p.MeterProvider)
}
