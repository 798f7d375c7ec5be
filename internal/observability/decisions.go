package observability

import (
	"context"
	"otapush/internal/update"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DecisionCounter counts update check outcomes by platform and action.
type DecisionCounter struct {
	counter metric.Int64Counter
}

// NewDecisionCounter creates the counter on the global meter provider.
func NewDecisionCounter() (*DecisionCounter, error) {
	counter, err := otel.Meter("otapush/update").Int64Counter(
		"update_check.decisions",
		metric.WithDescription("Update check outcomes by platform and action"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}
	return &DecisionCounter{counter: counter}, nil
}

// RecordDecision implements update.DecisionRecorder.
func (d *DecisionCounter) RecordDecision(ctx context.Context, platform, action string) {
	d.counter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("platform", platform),
		attribute.String("action", action),
	))
}

var _ update.DecisionRecorder = (*DecisionCounter)(nil)
