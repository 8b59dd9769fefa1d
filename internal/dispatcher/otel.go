package dispatcher

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/wytcherly/foreman/internal/dispatcher"

// instruments are created on the global meter, a no-op until the
// extension installs a provider.
type instruments struct {
	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter
	failed    metric.Int64Counter
}

func newInstruments(d *Dispatcher) (instruments, error) {
	m := otel.Meter(instrumentationName)
	var in instruments
	var err error

	if in.queueSize, err = m.Int64ObservableGauge("dispatcher.queue.size",
		metric.WithDescription("Events waiting in a buffered command's queue")); err != nil {
		return in, fmt.Errorf("creating queue size gauge: %w", err)
	}
	if _, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for cmd, n := range d.BufferLengths() {
			o.ObserveInt64(in.queueSize, int64(n), metric.WithAttributes(attribute.String("command", cmd)))
		}
		return nil
	}, in.queueSize); err != nil {
		return in, fmt.Errorf("registering queue callback: %w", err)
	}

	if in.processed, err = m.Int64Counter("dispatcher.events.processed",
		metric.WithDescription("Events handled by buffered commands")); err != nil {
		return in, fmt.Errorf("creating processed counter: %w", err)
	}
	if in.dropped, err = m.Int64Counter("dispatcher.events.dropped",
		metric.WithDescription("Events refused because the queue was full")); err != nil {
		return in, fmt.Errorf("creating dropped counter: %w", err)
	}
	if in.failed, err = m.Int64Counter("dispatcher.events.failed",
		metric.WithDescription("Events whose handler returned an error or panicked")); err != nil {
		return in, fmt.Errorf("creating failed counter: %w", err)
	}
	return in, nil
}

func commandAttr(command string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("command", command))
}
