package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Shutdown flushes and stops the providers installed by Init.
type Shutdown func(context.Context) error

// Init installs OTLP/HTTP metric and log exporters pointed at endpoint
// (a full URL such as "http://localhost:4318").  An empty endpoint
// leaves the global no-op providers in place and returns a no-op
// Shutdown.
func Init(ctx context.Context, endpoint string) (Shutdown, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	metricExp, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpointURL(endpoint))
	if err != nil {
		return nil, fmt.Errorf("metric exporter: %w", err)
	}
	logExp, err := otlploghttp.New(ctx, otlploghttp.WithEndpointURL(endpoint))
	if err != nil {
		metricExp.Shutdown(ctx) //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("log exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
	)
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
	)
	otel.SetMeterProvider(mp)
	global.SetLoggerProvider(lp)

	// Instruments registered against the previous provider would keep
	// reporting to it.
	instOnce = sync.Once{}
	initInstruments()

	return func(ctx context.Context) error {
		return errors.Join(mp.Shutdown(ctx), lp.Shutdown(ctx))
	}, nil
}
