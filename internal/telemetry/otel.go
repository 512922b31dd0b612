package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"gopkg.in/yaml.v3"

	"github.com/replypass/replypass/internal/core"
)

func init() {
	core.RegisterModule(&Tracing{})
}

// Interface guards.
var (
	_ core.Module       = (*Tracing)(nil)
	_ core.Configurable = (*Tracing)(nil)
	_ core.Provisioner  = (*Tracing)(nil)
	_ core.Validator    = (*Tracing)(nil)
	_ core.Stopper      = (*Tracing)(nil)
)

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	ServiceName string            `yaml:"service_name"`
	Environment string            `yaml:"environment"`
	Endpoint    string            `yaml:"endpoint"` // host:port; empty disables export
	Insecure    bool              `yaml:"insecure"`
	Headers     map[string]string `yaml:"headers"`
	SampleRatio *float64          `yaml:"sample_ratio"`
}

func (c *TracingConfig) defaults() {
	if c.ServiceName == "" {
		c.ServiceName = "replypass"
	}
	if c.SampleRatio == nil {
		r := 0.1
		c.SampleRatio = &r
	}
}

// Tracing is the telemetry.otel module. It installs a global tracer
// provider so engine spans are exported.
type Tracing struct {
	config   TracingConfig
	logger   *slog.Logger
	provider *sdktrace.TracerProvider
}

// ModuleInfo implements core.Module.
func (t *Tracing) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "telemetry.otel",
		New: func() core.Module { return &Tracing{} },
	}
}

// Configure implements core.Configurable.
func (t *Tracing) Configure(node *yaml.Node) error {
	if err := node.Decode(&t.config); err != nil {
		return fmt.Errorf("telemetry.otel: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (t *Tracing) Provision(ctx *core.AppContext) error {
	t.logger = ctx.Logger
	t.config.defaults()

	tp, err := NewTracerProvider(context.Background(), t.config)
	if err != nil {
		return fmt.Errorf("telemetry.otel: %w", err)
	}
	t.provider = tp
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	t.logger.Info("tracing initialized", "service", t.config.ServiceName, "endpoint", t.config.Endpoint)
	return nil
}

// Validate implements core.Validator.
func (t *Tracing) Validate() error {
	if r := *t.config.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("telemetry.otel: sample_ratio must be within [0, 1], got %v", r)
	}
	return nil
}

// Stop implements core.Stopper. Pending spans are flushed.
func (t *Tracing) Stop(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// NewTracerProvider builds a tracer provider for cfg. Without an endpoint
// spans are sampled but not exported.
func NewTracerProvider(ctx context.Context, cfg TracingConfig) (*sdktrace.TracerProvider, error) {
	cfg.defaults()
	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("deployment.environment", cfg.Environment),
	))
	if err != nil && !errors.Is(err, resource.ErrPartialResource) {
		return nil, err
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(*cfg.SampleRatio))),
		sdktrace.WithResource(res),
	}
	if cfg.Endpoint != "" {
		expOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			expOpts = append(expOpts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			expOpts = append(expOpts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		exp, err := otlptracehttp.New(ctx, expOpts...)
		if err != nil {
			return nil, fmt.Errorf("creating otlp exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(5*time.Second)))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}
