package access

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/jamestelfer/cfaccess-gate/internal/access"

const (
	outcomeAdmitted      = "admitted"
	outcomeMisconfigured = "misconfigured"
	outcomeMissing       = "missing"
	outcomeInvalid       = "invalid"
)

// decisions counts gate outcomes by type.
type decisions struct {
	counter metric.Int64Counter
}

func newDecisions(mp metric.MeterProvider) (decisions, error) {
	counter, err := mp.Meter(instrumentationName).Int64Counter(
		"access.gate.decisions",
		metric.WithDescription("Requests admitted or rejected by the Access gate"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return decisions{}, err
	}

	return decisions{counter: counter}, nil
}

func (d decisions) record(ctx context.Context, outcome string) {
	d.counter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
