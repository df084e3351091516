package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

const meterName = "backoffice-api"

// Metrics holds the business instruments of the back office.
// With telemetry disabled the global meter is a no-op and recording costs nothing.
type Metrics struct {
	membersCreated otelmetric.Int64Counter
	renewals       otelmetric.Int64Counter
	paymentAmount  otelmetric.Float64Histogram
	requestLatency otelmetric.Float64Histogram
}

// NewMetrics creates the instruments on provider, usually otel.GetMeterProvider()
func NewMetrics(provider otelmetric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(meterName)

	membersCreated, err := meter.Int64Counter("members.created",
		otelmetric.WithDescription("Members registered at the front desk"))
	if err != nil {
		return nil, err
	}
	renewals, err := meter.Int64Counter("memberships.renewed",
		otelmetric.WithDescription("Membership renewals, by whether the period was extended or restarted"))
	if err != nil {
		return nil, err
	}
	paymentAmount, err := meter.Float64Histogram("payments.amount",
		otelmetric.WithDescription("Amounts of recorded payments"),
		otelmetric.WithUnit("ETB"))
	if err != nil {
		return nil, err
	}

	requestLatency, err := meter.Float64Histogram("http.server.request.duration",
		otelmetric.WithDescription("Latency of API requests"),
		otelmetric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		membersCreated: membersCreated,
		renewals:       renewals,
		paymentAmount:  paymentAmount,
		requestLatency: requestLatency,
	}, nil
}

// MemberCreated records a new member and their first payment
func (m *Metrics) MemberCreated(ctx context.Context, amount float64, method string) {
	if m == nil {
		return
	}
	m.membersCreated.Add(ctx, 1)
	m.paymentAmount.Record(ctx, amount, otelmetric.WithAttributes(attribute.String("payment.method", method)))
}

// MembershipRenewed records a renewal and its payment
func (m *Metrics) MembershipRenewed(ctx context.Context, months int, extended bool, amount float64, method string) {
	if m == nil {
		return
	}
	m.renewals.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.Bool("renewal.extended", extended),
		attribute.Int("renewal.months", months),
	))
	m.paymentAmount.Record(ctx, amount, otelmetric.WithAttributes(attribute.String("payment.method", method)))
}

// RequestServed records the latency of one API request
func (m *Metrics) RequestServed(ctx context.Context, method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestLatency.Record(ctx, elapsed.Seconds(), otelmetric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", status),
	))
}
