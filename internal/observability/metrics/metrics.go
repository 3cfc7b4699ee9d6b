package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	readingsSubmitted  metric.Int64Counter
	assignmentsCreated metric.Int64Counter
	cyclesCompleted    metric.Int64Counter
	invoicesExported   metric.Int64Counter
	rateLimitDenied    metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "metra"
	}
	meter := provider.Meter(name)

	readingsSubmitted, err := meter.Int64Counter("metra_readings_submitted_total")
	if err != nil {
		return nil, err
	}
	assignmentsCreated, err := meter.Int64Counter("metra_assignments_created_total")
	if err != nil {
		return nil, err
	}
	cyclesCompleted, err := meter.Int64Counter("metra_cycles_completed_total")
	if err != nil {
		return nil, err
	}
	invoicesExported, err := meter.Int64Counter("metra_invoices_exported_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("metra_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		readingsSubmitted:  readingsSubmitted,
		assignmentsCreated: assignmentsCreated,
		cyclesCompleted:    cyclesCompleted,
		invoicesExported:   invoicesExported,
		rateLimitDenied:    rateLimitDenied,
	}, nil
}

// RecordReadingSubmitted increments reading submission counts.
func (m *Metrics) RecordReadingSubmitted(ctx context.Context, serviceCode string) {
	if m == nil {
		return
	}
	m.readingsSubmitted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("service_code", strings.TrimSpace(serviceCode)),
	))
}

// RecordAssignmentCreated increments assignment creation counts.
func (m *Metrics) RecordAssignmentCreated(ctx context.Context, serviceCode string) {
	if m == nil {
		return
	}
	m.assignmentsCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("service_code", strings.TrimSpace(serviceCode)),
	))
}

// RecordCycleCompleted increments cycle completion counts.
func (m *Metrics) RecordCycleCompleted(ctx context.Context, serviceCode string) {
	if m == nil {
		return
	}
	m.cyclesCompleted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("service_code", strings.TrimSpace(serviceCode)),
	))
}

// RecordInvoicesExported adds exported invoice counts for a cycle.
func (m *Metrics) RecordInvoicesExported(ctx context.Context, serviceCode string, count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.invoicesExported.Add(ctx, count, metric.WithAttributes(
		attribute.String("service_code", strings.TrimSpace(serviceCode)),
	))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
	))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}
