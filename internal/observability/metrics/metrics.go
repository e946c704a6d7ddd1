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

// ExportInterval is how often the OTLP reader pushes collected metrics.
const ExportInterval = 10 * time.Second

type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// NewProvider installs the global meter provider. When metrics are
// disabled a noop provider is installed so instruments stay usable.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, fmt.Errorf("metrics exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(ExportInterval))),
	)
	otel.SetMeterProvider(provider)

	if log == nil {
		log = zap.NewNop()
	}
	if lc != nil {
		lc.Append(fx.StopHook(provider.Shutdown))
	}
	log.Info("metrics exporter started",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	ctx := context.Background()
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "", "grpc", "grpc/protobuf":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	case "http", "http/protobuf":
		var opts []otlpmetrichttp.Option
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// Metrics holds the ledger-facing OTel counters. A nil *Metrics is a valid
// no-op recorder.
type Metrics struct {
	ledgerTransactions metric.Int64Counter
	ledgerReplays      metric.Int64Counter
	paymentEvents      metric.Int64Counter
	billingRecords     metric.Int64Counter
	suspensionSignals  metric.Int64Counter
}

func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	scope := strings.TrimSpace(cfg.ServiceName)
	if scope == "" {
		scope = "computeledger"
	}
	meter := provider.Meter(scope)

	m := &Metrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.ledgerTransactions, "computeledger_ledger_transactions_total", "Ledger transactions applied to a balance."},
		{&m.ledgerReplays, "computeledger_ledger_replays_total", "Ledger writes answered from an existing external id."},
		{&m.paymentEvents, "computeledger_payment_events_total", "Payment provider events accepted."},
		{&m.billingRecords, "computeledger_billing_records_total", "Hourly billing records written."},
		{&m.suspensionSignals, "computeledger_suspension_signals_total", "Suspend and resume signals published."},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", c.name, err)
		}
		*c.dst = counter
	}
	return m, nil
}

func (m *Metrics) RecordLedgerTransaction(ctx context.Context, txType string) {
	if m != nil {
		add(ctx, m.ledgerTransactions, attribute.String("transaction_type", txType))
	}
}

// RecordLedgerReplay counts a write whose external id already existed.
func (m *Metrics) RecordLedgerReplay(ctx context.Context, txType string) {
	if m != nil {
		add(ctx, m.ledgerReplays, attribute.String("transaction_type", txType))
	}
}

func (m *Metrics) RecordPaymentEvent(ctx context.Context, provider, eventType string) {
	if m != nil {
		add(ctx, m.paymentEvents,
			attribute.String("provider", provider),
			attribute.String("event_type", eventType),
		)
	}
}

func (m *Metrics) RecordBillingRecord(ctx context.Context, currency string) {
	if m != nil {
		add(ctx, m.billingRecords, attribute.String("currency", currency))
	}
}

func (m *Metrics) RecordSuspensionSignal(ctx context.Context, action string) {
	if m != nil {
		add(ctx, m.suspensionSignals, attribute.String("action", action))
	}
}

func add(ctx context.Context, counter metric.Int64Counter, attrs ...attribute.KeyValue) {
	for i := range attrs {
		attrs[i] = attribute.String(string(attrs[i].Key), strings.TrimSpace(attrs[i].Value.AsString()))
	}
	counter.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attrs...)...))
}

// Labels outside this set are dropped; tenant and deployment ids in
// particular would explode series cardinality.
var allowedLabelKeys = map[attribute.Key]bool{
	"transaction_type": true,
	"provider":         true,
	"event_type":       true,
	"currency":         true,
	"action":           true,
	"reason":           true,
}

func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := attrs[:0:0]
	for _, attr := range attrs {
		if allowedLabelKeys[attr.Key] {
			out = append(out, attr)
		}
	}
	return out
}
