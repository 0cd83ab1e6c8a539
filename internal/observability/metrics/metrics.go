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
	Namespace        string
}

// Metrics exposes the OTLP-exported usage instruments.
type Metrics struct {
	usageReports       metric.Int64Counter
	usageReportedCount metric.Int64Counter
	rollups            metric.Int64Counter
	percentilePasses   metric.Int64Counter
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

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New registers the usage instruments on provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "entityusage"
	}
	ns := strings.TrimSpace(cfg.Namespace)
	if ns == "" {
		ns = "entityusage"
	}
	meter := provider.Meter(name)

	usageReports, err := meter.Int64Counter(ns+"_usage_reports_total",
		metric.WithDescription("Accepted usage reports."))
	if err != nil {
		return nil, err
	}
	usageReportedCount, err := meter.Int64Counter(ns+"_usage_reported_count_total",
		metric.WithDescription("Sum of reported daily counts."))
	if err != nil {
		return nil, err
	}
	rollups, err := meter.Int64Counter(ns+"_usage_rollups_total",
		metric.WithDescription("Parent aggregations triggered by child reports."))
	if err != nil {
		return nil, err
	}
	percentilePasses, err := meter.Int64Counter(ns+"_percentile_passes_total",
		metric.WithDescription("Completed percentile computations."))
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter(ns+"_rate_limit_denied_total",
		metric.WithDescription("Usage reports rejected by the limiter."))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		usageReports:       usageReports,
		usageReportedCount: usageReportedCount,
		rollups:            rollups,
		percentilePasses:   percentilePasses,
		rateLimitDenied:    rateLimitDenied,
	}, nil
}

// RecordUsageReport counts an accepted report and its daily count.
func (m *Metrics) RecordUsageReport(ctx context.Context, entityType string, count int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(FilterAttributes(attribute.String("entity_type", strings.TrimSpace(entityType)))...)
	m.usageReports.Add(ctx, 1, attrs)
	if count > 0 {
		m.usageReportedCount.Add(ctx, count, attrs)
	}
}

func (m *Metrics) RecordRollup(ctx context.Context, parentType string) {
	if m == nil {
		return
	}
	m.rollups.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("entity_type", strings.TrimSpace(parentType)))...))
}

func (m *Metrics) RecordPercentilePass(ctx context.Context, entityType string) {
	if m == nil {
		return
	}
	m.percentilePasses.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("entity_type", strings.TrimSpace(entityType)))...))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, entityType, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("entity_type", strings.TrimSpace(entityType)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
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

var allowedLabelKeys = map[attribute.Key]struct{}{
	"entity_type": {},
	"reason":      {},
	"outcome":     {},
	"status_code": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
