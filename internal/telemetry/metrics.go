package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/quantummint/qmintd/internal/core/domain"
)

// Metrics holds the protocol counters. They are fed from the event bus, so
// the core services never touch the meter directly.
type Metrics struct {
	minted      metric.Int64Counter
	received    metric.Int64Counter
	intercepted metric.Int64Counter
	redemptions metric.Int64Counter
	disposed    metric.Int64Counter
}

func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(serviceName)

	minted, err := meter.Int64Counter(
		"qmintd.tokens.minted",
		metric.WithDescription("Tokens recorded on the ledger"),
	)
	if err != nil {
		return nil, fmt.Errorf("create minted counter: %w", err)
	}
	received, err := meter.Int64Counter(
		"qmintd.tokens.received",
		metric.WithDescription("Tokens fully received by a holder"),
	)
	if err != nil {
		return nil, fmt.Errorf("create received counter: %w", err)
	}
	intercepted, err := meter.Int64Counter(
		"qmintd.units.intercepted",
		metric.WithDescription("Quantum units that crossed the relay"),
	)
	if err != nil {
		return nil, fmt.Errorf("create intercepted counter: %w", err)
	}
	redemptions, err := meter.Int64Counter(
		"qmintd.redemptions",
		metric.WithDescription("Redemption attempts by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("create redemptions counter: %w", err)
	}
	disposed, err := meter.Int64Counter(
		"qmintd.tokens.disposed",
		metric.WithDescription("Tokens released without redemption"),
	)
	if err != nil {
		return nil, fmt.Errorf("create disposed counter: %w", err)
	}

	return &Metrics{
		minted:      minted,
		received:    received,
		intercepted: intercepted,
		redemptions: redemptions,
		disposed:    disposed,
	}, nil
}

// Handler returns an event-bus handler that maps protocol events onto the
// counters.
func (m *Metrics) Handler() func(domain.Event) {
	return func(event domain.Event) {
		ctx := context.Background()
		switch e := event.(type) {
		case domain.TokenMinted:
			m.minted.Add(ctx, 1)
		case domain.TokenReceived:
			m.received.Add(ctx, 1)
		case domain.UnitIntercepted:
			m.intercepted.Add(ctx, 1, metric.WithAttributes(
				attribute.String("policy", e.Policy),
			))
		case domain.RedemptionVerified:
			m.redemptions.Add(ctx, 1, metric.WithAttributes(
				attribute.String("outcome", e.Report.Outcome.String()),
			))
		case domain.TokenDisposed:
			m.disposed.Add(ctx, 1)
		}
	}
}
