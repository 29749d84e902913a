// Package otel sets up the OpenTelemetry log and metric providers.
package otel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// DefaultMetricInterval is how often metrics are exported when no interval is set.
const DefaultMetricInterval = time.Minute

var errNoLogSink = errors.New("otel enabled but no log writer or endpoint configured")

// Config selects the telemetry sinks. Logs need LogWriter, Endpoint or both;
// metrics are exported only when MetricWriter is set.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	BatchTimeout   time.Duration
	LogWriter      io.Writer
	MetricWriter   io.Writer
	MetricInterval time.Duration
	Endpoint       string // OTLP/HTTP collector, host:port
	Insecure       bool
}

// Provider owns the log and meter providers of one service run.
type Provider struct {
	enabled bool
	logs    *sdklog.LoggerProvider
	meters  *sdkmetric.MeterProvider
}

// New builds the providers for cfg. A disabled config yields a provider whose
// methods are no-ops. When metrics are exported the meter provider becomes
// the global one, so instruments created through otel.Meter report to it.
func New(cfg Config) (*Provider, error) {
	p := &Provider{enabled: cfg.Enabled}
	if !cfg.Enabled {
		return p, nil
	}

	ctx := context.Background()
	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if p.logs, err = newLoggerProvider(ctx, cfg, res); err != nil {
		return nil, err
	}
	if cfg.MetricWriter != nil {
		if p.meters, err = newMeterProvider(cfg, res); err != nil {
			_ = p.logs.Shutdown(ctx)
			return nil, err
		}
		otel.SetMeterProvider(p.meters)
	}
	return p, nil
}

func newResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	attrs := []resource.Option{resource.WithAttributes(semconv.ServiceName(cfg.ServiceName))}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceVersion(cfg.ServiceVersion)))
	}
	res, err := resource.New(ctx, attrs...)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}
	return res, nil
}

func newLoggerProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdklog.LoggerProvider, error) {
	var exporters []sdklog.Exporter
	if cfg.LogWriter != nil {
		exp, err := stdoutlog.New(stdoutlog.WithWriter(cfg.LogWriter), stdoutlog.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("creating file log exporter: %w", err)
		}
		exporters = append(exporters, exp)
	}
	if cfg.Endpoint != "" {
		opts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlploghttp.WithInsecure())
		}
		exp, err := otlploghttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("creating OTLP log exporter: %w", err)
		}
		exporters = append(exporters, exp)
	}
	if len(exporters) == 0 {
		return nil, errNoLogSink
	}

	opts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}
	for _, exp := range exporters {
		opts = append(opts, sdklog.WithProcessor(
			sdklog.NewBatchProcessor(exp, sdklog.WithExportTimeout(cfg.BatchTimeout)),
		))
	}
	return sdklog.NewLoggerProvider(opts...), nil
}

func newMeterProvider(cfg Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	interval := cfg.MetricInterval
	if interval <= 0 {
		interval = DefaultMetricInterval
	}
	exp, err := stdoutmetric.New(stdoutmetric.WithWriter(cfg.MetricWriter))
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))),
	), nil
}

// LoggerProvider returns the provider for the otelslog bridge, nil when disabled.
func (p *Provider) LoggerProvider() *sdklog.LoggerProvider {
	return p.logs
}

// Meter returns a named meter, or a no-op meter when metrics are not exported.
func (p *Provider) Meter(name string) metric.Meter {
	if p.meters == nil {
		return noop.Meter{}
	}
	return p.meters.Meter(name)
}

// Flush exports pending logs and metrics. Called on :SAVE: and session end.
func (p *Provider) Flush(ctx context.Context) error {
	return p.each(
		func() error { return p.logs.ForceFlush(ctx) },
		func() error { return p.meters.ForceFlush(ctx) },
		"flush",
	)
}

// Shutdown flushes and stops both providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.each(
		func() error { return p.logs.Shutdown(ctx) },
		func() error { return p.meters.Shutdown(ctx) },
		"shutdown",
	)
}

func (p *Provider) each(logs, meters func() error, op string) error {
	var errs []error
	if p.logs != nil {
		if err := logs(); err != nil {
			errs = append(errs, fmt.Errorf("log %s: %w", op, err))
		}
	}
	if p.meters != nil {
		if err := meters(); err != nil {
			errs = append(errs, fmt.Errorf("metric %s: %w", op, err))
		}
	}
	return errors.Join(errs...)
}

func (p *Provider) Enabled() bool {
	return p.enabled
}
