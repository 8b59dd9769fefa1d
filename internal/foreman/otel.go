package foreman

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wytcherly/foreman/pkg/core"
)

const instrumentationName = "github.com/wytcherly/foreman/internal/foreman"

type loopMetrics struct {
	transitions metric.Int64Counter
	assignments metric.Int64Counter
}

func newLoopMetrics() (*loopMetrics, error) {
	m := otel.Meter(instrumentationName)
	lm := &loopMetrics{}

	var err error
	lm.transitions, err = m.Int64Counter(
		"foreman.transitions",
		metric.WithDescription("Dispatch loop state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	lm.assignments, err = m.Int64Counter(
		"foreman.assignments",
		metric.WithDescription("Work orders issued by the dispatch loop"),
		metric.WithUnit("{assignment}"),
	)
	if err != nil {
		return nil, err
	}
	return lm, nil
}

func (m *loopMetrics) transitioned(id string, from, to State, result ExitResult) {
	if m == nil {
		return
	}
	m.transitions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("foreman", id),
		attribute.String("from", from.String()),
		attribute.String("to", to.String()),
		attribute.String("result", result.String()),
	))
}

func (m *loopMetrics) assigned(task core.TaskType) {
	if m == nil {
		return
	}
	m.assignments.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("task", string(task)),
	))
}
