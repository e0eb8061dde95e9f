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

// Metrics exposes application-level instruments exported over OTLP.
type Metrics struct {
	deliveriesSubmitted metric.Int64Counter
	bottlesSettled      metric.Int64Counter
	creditsEarned       metric.Float64Counter
	creditsProjected    metric.Int64Counter
	rateLimitDecisions  metric.Int64Counter
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

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "recyclesim"
	}
	meter := provider.Meter(name)

	deliveriesSubmitted, err := meter.Int64Counter("recyclesim_deliveries_submitted_total")
	if err != nil {
		return nil, err
	}
	bottlesSettled, err := meter.Int64Counter("recyclesim_bottles_settled_total")
	if err != nil {
		return nil, err
	}
	creditsEarned, err := meter.Float64Counter("recyclesim_credits_earned_total")
	if err != nil {
		return nil, err
	}
	creditsProjected, err := meter.Int64Counter("recyclesim_credits_projected_total")
	if err != nil {
		return nil, err
	}
	rateLimitDecisions, err := meter.Int64Counter("recyclesim_rate_limit_decisions_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		deliveriesSubmitted: deliveriesSubmitted,
		bottlesSettled:      bottlesSettled,
		creditsEarned:       creditsEarned,
		creditsProjected:    creditsProjected,
		rateLimitDecisions:  rateLimitDecisions,
	}, nil
}

// RecordDeliverySubmitted counts accepted truck reports.
func (m *Metrics) RecordDeliverySubmitted(ctx context.Context, replayed bool) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.Bool("replayed", replayed))
	m.deliveriesSubmitted.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordMaterialSettled adds the settled quantity of one material.
func (m *Metrics) RecordMaterialSettled(ctx context.Context, material string, quantity int64) {
	if m == nil || quantity <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("material", strings.TrimSpace(material)))
	m.bottlesSettled.Add(ctx, quantity, metric.WithAttributes(attrs...))
}

// RecordCreditsEarned adds credits granted by a settlement.
func (m *Metrics) RecordCreditsEarned(ctx context.Context, pricingVersion string, credits float64) {
	if m == nil || credits <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("pricing_version", strings.TrimSpace(pricingVersion)))
	m.creditsEarned.Add(ctx, credits, metric.WithAttributes(attrs...))
}

// RecordCreditsProjected counts DeliveryCompleted events applied to player balances.
func (m *Metrics) RecordCreditsProjected(ctx context.Context, duplicate bool) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.Bool("duplicate", duplicate))
	m.creditsProjected.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimit counts intake and trigger rate limit decisions. Denied
// requests carry the reason label.
func (m *Metrics) RecordRateLimit(ctx context.Context, endpoint string, allowed bool, reason string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("endpoint", endpoint)}
	if !allowed {
		attrs = append(attrs, attribute.String("reason", reason))
	}
	attrs = append(attrs, attribute.Bool("allowed", allowed))
	m.rateLimitDecisions.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attrs...)...))
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

var allowedLabelKeys = map[attribute.Key]struct{}{
	"material":        {},
	"pricing_version": {},
	"replayed":        {},
	"duplicate":       {},
	"endpoint":        {},
	"status_code":     {},
	"event_type":      {},
	"reason":          {},
	"allowed":         {},
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
