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
	reservations         metric.Int64Counter
	reservationConflicts metric.Int64Counter
	processorRetries     metric.Int64Counter
	settlementSnapshots  metric.Int64Counter
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
				log.Info("shutting down meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}

	return provider, nil
}

// New configures the domain metric instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "attendly"
	}
	meter := provider.Meter(name)

	reservations, err := meter.Int64Counter("attendly_payment_reservations_total")
	if err != nil {
		return nil, err
	}
	reservationConflicts, err := meter.Int64Counter("attendly_payment_reservation_conflicts_total")
	if err != nil {
		return nil, err
	}
	processorRetries, err := meter.Int64Counter("attendly_processor_retries_total")
	if err != nil {
		return nil, err
	}
	settlementSnapshots, err := meter.Int64Counter("attendly_settlement_snapshots_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		reservations:         reservations,
		reservationConflicts: reservationConflicts,
		processorRetries:     processorRetries,
		settlementSnapshots:  settlementSnapshots,
	}, nil
}

// RecordReservation counts reservation outcomes by path taken.
func (m *Metrics) RecordReservation(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.reservations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordReservationConflict counts unresolvable reservation conflicts.
func (m *Metrics) RecordReservationConflict(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.reservationConflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordProcessorRetry counts retried processor calls by operation.
func (m *Metrics) RecordProcessorRetry(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.processorRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}

// RecordSettlementSnapshot counts generated snapshots.
func (m *Metrics) RecordSettlementSnapshot(ctx context.Context, forced bool) {
	if m == nil {
		return
	}
	m.settlementSnapshots.Add(ctx, 1, metric.WithAttributes(attribute.Bool("forced", forced)))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		return otlpmetrichttp.New(context.Background(),
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		)
	case "", "grpc":
		return otlpmetricgrpc.New(context.Background(),
			otlpmetricgrpc.WithEndpoint(endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported otlp protocol %q", protocol)
	}
}
