// Package telemetry wires protocol observability: an OTLP metric pipeline
// and the event-bus handler feeding it.
package telemetry

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const serviceName = "qmintd"

// InitOtelSDK sets up the global meter provider with an OTLP/HTTP exporter
// pushing on the given interval. It returns a shutdown function that must be
// called on application exit.
func InitOtelSDK(
	ctx context.Context, collectorEndpoint string, pushInterval time.Duration,
) (func(context.Context) error, error) {
	exporter, err := otlpmetrichttp.New(
		ctx,
		otlpmetrichttp.WithEndpoint(collectorEndpoint),
		otlpmetrichttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create otlp metric exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
		)),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(pushInterval)),
		),
	)
	otel.SetMeterProvider(provider)

	log.WithFields(log.Fields{
		"collector": collectorEndpoint,
		"interval":  pushInterval,
	}).Info("otel metrics pipeline started")

	return provider.Shutdown, nil
}
