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
	archivesImported  metric.Int64Counter
	archivesFailed    metric.Int64Counter
	notificationsSent metric.Int64Counter
	filingsIngested   metric.Int64Counter
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
		name = "agibilita"
	}
	meter := provider.Meter(name)

	archivesImported, err := meter.Int64Counter("agibilita_response_archives_imported_total")
	if err != nil {
		return nil, err
	}
	archivesFailed, err := meter.Int64Counter("agibilita_response_archives_failed_total")
	if err != nil {
		return nil, err
	}
	notificationsSent, err := meter.Int64Counter("agibilita_notifications_sent_total")
	if err != nil {
		return nil, err
	}
	filingsIngested, err := meter.Int64Counter("agibilita_filings_ingested_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		archivesImported:  archivesImported,
		archivesFailed:    archivesFailed,
		notificationsSent: notificationsSent,
		filingsIngested:   filingsIngested,
	}, nil
}

func (m *Metrics) RecordArchiveImported(ctx context.Context) {
	if m == nil {
		return
	}
	m.archivesImported.Add(ctx, 1)
}

func (m *Metrics) RecordArchiveFailed(ctx context.Context) {
	if m == nil {
		return
	}
	m.archivesFailed.Add(ctx, 1)
}

func (m *Metrics) RecordNotificationsSent(ctx context.Context, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.notificationsSent.Add(ctx, int64(count))
}

func (m *Metrics) RecordFilingIngested(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.filingsIngested.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "", "grpc":
		return otlpmetricgrpc.New(context.Background(),
			otlpmetricgrpc.WithEndpoint(endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	case "http", "http/protobuf":
		return otlpmetrichttp.New(context.Background(),
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported otlp protocol %q", protocol)
	}
}
