package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMeterProvider installs a Prometheus-backed MeterProvider. It returns
// the /metrics handler and a shutdown function.
func InitMeterProvider(serviceName, serviceVersion string) (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(newResource(serviceName, serviceVersion)),
	)
	otel.SetMeterProvider(mp)

	return promhttp.Handler(), mp.Shutdown, nil
}

// Outcomes recorded on the bridge counters.
const (
	OutcomeOK      = "ok"
	OutcomeSkipped = "skipped"
	OutcomeError   = "error"
)

// Metrics holds the bridge's instruments. A nil *Metrics records nothing.
type Metrics struct {
	pushes  metric.Int64Counter
	actions metric.Int64Counter
	purged  metric.Int64Counter
	checks  metric.Int64Counter
}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter("garan24-bridge")

	pushes, err := meter.Int64Counter("garan24.push.notifications",
		metric.WithDescription("Provider push notifications by outcome"))
	if err != nil {
		return nil, err
	}
	actions, err := meter.Int64Counter("garan24.order.actions",
		metric.WithDescription("Provider order actions (activate, cancel, update, refund) by outcome"))
	if err != nil {
		return nil, err
	}
	purged, err := meter.Int64Counter("garan24.orders.purged",
		metric.WithDescription("Incomplete checkout orders deleted by the purge job"))
	if err != nil {
		return nil, err
	}
	checks, err := meter.Int64Counter("garan24.pending.checks",
		metric.WithDescription("Pending reservation status checks by result"))
	if err != nil {
		return nil, err
	}

	return &Metrics{pushes: pushes, actions: actions, purged: purged, checks: checks}, nil
}

// Push records a push notification.
func (m *Metrics) Push(ctx context.Context, api, outcome string) {
	if m == nil {
		return
	}
	m.pushes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("api", api),
		attribute.String("outcome", outcome),
	))
}

// Action records a provider order action.
func (m *Metrics) Action(ctx context.Context, action, api, outcome string) {
	if m == nil {
		return
	}
	m.actions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("api", api),
		attribute.String("outcome", outcome),
	))
}

// Purged records deleted incomplete orders.
func (m *Metrics) Purged(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.purged.Add(ctx, int64(n))
}

// PendingCheck records the result of a reservation status check.
func (m *Metrics) PendingCheck(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.checks.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
