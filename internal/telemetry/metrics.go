package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Outcomes recorded for each indexed file
const (
	OutcomeIndexed = "indexed"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Metrics holds the indexing instruments
type Metrics struct {
	Documents      metric.Int64Counter
	ChunksEmbedded metric.Int64Counter
	IndexDuration  metric.Float64Histogram
}

// NewMetrics creates the instruments on the global meter provider
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(InstrumentationName)

	documents, err := meter.Int64Counter(
		"docindex.documents",
		metric.WithDescription("Documents processed, by outcome"),
	)
	if err != nil {
		return nil, err
	}

	chunks, err := meter.Int64Counter(
		"docindex.chunks.embedded",
		metric.WithDescription("Chunks embedded and written to the vector store"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"docindex.index.duration",
		metric.WithDescription("Single document indexing duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		Documents:      documents,
		ChunksEmbedded: chunks,
		IndexDuration:  duration,
	}, nil
}

// RecordDocument records one file outcome. A nil receiver is a no-op.
func (m *Metrics) RecordDocument(ctx context.Context, base, outcome string, seconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("base", base),
		attribute.String("outcome", outcome),
	)
	m.Documents.Add(ctx, 1, attrs)
	m.IndexDuration.Record(ctx, seconds, attrs)
}

// RecordChunks records embedded chunk volume. A nil receiver is a no-op.
func (m *Metrics) RecordChunks(ctx context.Context, base string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.ChunksEmbedded.Add(ctx, int64(n), metric.WithAttributes(attribute.String("base", base)))
}
