package observability

import (
	"context"
	"errors"
	"otapush/internal/models"
	"otapush/internal/storage"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedStorage wraps a storage.Storage with a span, a latency
// histogram sample and an error count per call. Missing histories and
// revision conflicts are expected outcomes and are not counted as errors.
type InstrumentedStorage struct {
	inner     storage.Storage
	tracer    trace.Tracer
	duration  metric.Float64Histogram
	errors    metric.Int64Counter
	conflicts metric.Int64Counter
}

// NewInstrumentedStorage wraps inner using the global providers.
func NewInstrumentedStorage(inner storage.Storage) (*InstrumentedStorage, error) {
	meter := otel.Meter("otapush/storage")

	duration, err := meter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Duration of history store operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"storage.operation.errors",
		metric.WithDescription("Number of failed history store operations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	conflicts, err := meter.Int64Counter(
		"storage.publish.conflicts",
		metric.WithDescription("Publishes rejected because the history changed underneath"),
		metric.WithUnit("{conflict}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStorage{
		inner:     inner,
		tracer:    otel.Tracer("otapush/storage"),
		duration:  duration,
		errors:    errCounter,
		conflicts: conflicts,
	}, nil
}

func keyAttrs(key models.HistoryKey) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("history.platform", key.Platform),
		attribute.String("history.identifier", key.Identifier),
		attribute.String("history.binary_version", key.BinaryVersion),
	}
}

func (s *InstrumentedStorage) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "storage."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("storage.operation", operation),
		}, attrs...)...),
	)
}

func (s *InstrumentedStorage) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	attrs := metric.WithAttributes(attribute.String("operation", operation))
	s.duration.Record(ctx, time.Since(start).Seconds(), attrs)

	switch {
	case err == nil, errors.Is(err, storage.ErrNotFound):
		span.SetStatus(codes.Ok, "")
	case errors.Is(err, storage.ErrConflict), errors.Is(err, storage.ErrAlreadyExists):
		s.conflicts.Add(ctx, 1, attrs)
		span.SetAttributes(attribute.Bool("storage.conflict", true))
		span.SetStatus(codes.Ok, "")
	default:
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *InstrumentedStorage) FetchReleaseHistory(ctx context.Context, key models.HistoryKey) (*models.HistoryRecord, error) {
	ctx, span := s.startSpan(ctx, "FetchReleaseHistory", keyAttrs(key)...)
	start := time.Now()
	rec, err := s.inner.FetchReleaseHistory(ctx, key)
	if rec != nil {
		span.SetAttributes(attribute.Int64("history.revision", rec.Revision))
	}
	s.record(ctx, span, "FetchReleaseHistory", start, err)
	return rec, err
}

func (s *InstrumentedStorage) PublishReleaseHistory(ctx context.Context, key models.HistoryKey, history models.ReleaseHistory, expectedRevision int64) (int64, error) {
	ctx, span := s.startSpan(ctx, "PublishReleaseHistory", append(keyAttrs(key),
		attribute.Int64("history.expected_revision", expectedRevision),
		attribute.Int("history.releases", len(history)),
	)...)
	start := time.Now()
	rev, err := s.inner.PublishReleaseHistory(ctx, key, history, expectedRevision)
	s.record(ctx, span, "PublishReleaseHistory", start, err)
	return rev, err
}

func (s *InstrumentedStorage) ListHistories(ctx context.Context, platform, identifier string) ([]string, error) {
	ctx, span := s.startSpan(ctx, "ListHistories",
		attribute.String("history.platform", platform),
		attribute.String("history.identifier", identifier),
	)
	start := time.Now()
	versions, err := s.inner.ListHistories(ctx, platform, identifier)
	s.record(ctx, span, "ListHistories", start, err)
	return versions, err
}

func (s *InstrumentedStorage) Ping(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Ping")
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.record(ctx, span, "Ping", start, err)
	return err
}

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}

var _ storage.Storage = (*InstrumentedStorage)(nil)
