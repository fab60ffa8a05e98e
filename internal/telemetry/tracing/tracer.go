// Package tracing wraps the OpenTelemetry SDK for the transfer lifecycle:
// a handshake span and a transfer span, with retransmit events recorded on
// the transfer span. Adapted from the
// teacher's internal/gateway/tracing.Tracer, trimmed of its HTTP header
// propagation helpers (this protocol has no HTTP hop to carry trace context
// across) and retargeted at a file-transfer span tree instead of a gateway
// request span.
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Config controls whether and how transfer spans are exported.
type Config struct {
	Enable       bool
	ServiceName  string
	Endpoint     string
	Exporter     string // "jaeger", "zipkin", or "stdout"
	SampleRate   float64
	BatchTimeout time.Duration
	MaxQueueSize int
}

// DefaultConfig returns tracing disabled by default, matching the spec's
// stance that observability is opt-in overhead on top of the wire protocol.
func DefaultConfig() *Config {
	return &Config{
		Enable:       false,
		ServiceName:  "qrudp",
		Endpoint:     "http://localhost:14268/api/traces",
		Exporter:     "jaeger",
		SampleRate:   1.0,
		BatchTimeout: 5 * time.Second,
		MaxQueueSize: 2048,
	}
}

// Tracer manages the lifecycle span tree for one file transfer.
type Tracer struct {
	config   *Config
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	logger   *zap.Logger
}

// New creates a Tracer. When cfg.Enable is false, every method is a no-op
// that returns the incoming context unchanged.
func New(cfg *Config, logger *zap.Logger) (*Tracer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if !cfg.Enable {
		logger.Debug("tracing disabled")
		return &Tracer{config: cfg, logger: logger}, nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: create resource: %w", err)
	}

	exporter, err := newExporter(cfg)
	if err != nil {
		return nil, err
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	batcher := sdktrace.NewBatchSpanProcessor(
		exporter,
		sdktrace.WithBatchTimeout(cfg.BatchTimeout),
		sdktrace.WithMaxQueueSize(cfg.MaxQueueSize),
	)

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
		sdktrace.WithSpanProcessor(batcher),
	)
	otel.SetTracerProvider(provider)

	logger.Info("tracing initialized",
		zap.String("exporter", cfg.Exporter),
		zap.Float64("sample_rate", cfg.SampleRate),
	)

	return &Tracer{
		config:   cfg,
		provider: provider,
		tracer:   provider.Tracer(cfg.ServiceName),
		logger:   logger,
	}, nil
}

func newExporter(cfg *Config) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "jaeger":
		exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.Endpoint)))
		if err != nil {
			return nil, fmt.Errorf("tracing: create jaeger exporter: %w", err)
		}
		return exp, nil
	case "zipkin":
		exp, err := zipkin.New(cfg.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("tracing: create zipkin exporter: %w", err)
		}
		return exp, nil
	case "stdout":
		exp, err := stdouttrace.New()
		if err != nil {
			return nil, fmt.Errorf("tracing: create stdout exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, fmt.Errorf("tracing: unsupported exporter %q", cfg.Exporter)
	}
}

// Shutdown flushes and stops the tracer provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// StartHandshake opens the root span for one transfer attempt.
func (t *Tracer) StartHandshake(ctx context.Context, filename string) (context.Context, trace.Span) {
	return t.start(ctx, "handshake", attribute.String("file.name", filename))
}

// StartTransfer opens a span covering the data-transfer phase, parented to
// whatever span ctx already carries.
func (t *Tracer) StartTransfer(ctx context.Context, fileSize int64) (context.Context, trace.Span) {
	return t.start(ctx, "transfer", attribute.Int64("file.size", fileSize))
}

// RecordRetransmit adds a retransmit event to the current span.
func (t *Tracer) RecordRetransmit(ctx context.Context, seq uint32, cause string) {
	if !t.config.Enable {
		return
	}
	trace.SpanFromContext(ctx).AddEvent("retransmit",
		trace.WithAttributes(attribute.Int64("seq", int64(seq)), attribute.String("cause", cause)))
}

func (t *Tracer) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if t.config == nil || !t.config.Enable || t.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// IsEnabled reports whether tracing is active.
func (t *Tracer) IsEnabled() bool {
	return t.config != nil && t.config.Enable
}
