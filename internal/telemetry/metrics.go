package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records the counters the chat and ingestion paths emit. The zero
// value is not usable; construct with InitMetrics.
type Metrics struct {
	TokensUsed        metric.Int64Counter
	RetrievalLookups  metric.Int64Counter
	IngestionDuration metric.Float64Histogram
	IngestedChunks    metric.Int64Counter
}

func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("docchat")

	tokens, err := meter.Int64Counter("llm.tokens.used",
		metric.WithDescription("Tokens consumed by the generation provider"))
	if err != nil {
		return nil, err
	}
	lookups, err := meter.Int64Counter("rag.retrieval.lookups",
		metric.WithDescription("Retrieval lookups by cache outcome"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("ingest.duration",
		metric.WithDescription("Document ingestion duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	chunks, err := meter.Int64Counter("ingest.chunks",
		metric.WithDescription("Chunks embedded and stored"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		TokensUsed:        tokens,
		RetrievalLookups:  lookups,
		IngestionDuration: duration,
		IngestedChunks:    chunks,
	}, nil
}

func (m *Metrics) RecordTokens(ctx context.Context, model string, input, output int) {
	if m == nil {
		return
	}
	m.TokensUsed.Add(ctx, int64(input), metric.WithAttributes(
		attribute.String("llm.model", model), attribute.String("llm.direction", "input")))
	m.TokensUsed.Add(ctx, int64(output), metric.WithAttributes(
		attribute.String("llm.model", model), attribute.String("llm.direction", "output")))
}

func (m *Metrics) RecordRetrieval(ctx context.Context, cacheHit bool, hasContext bool) {
	if m == nil {
		return
	}
	m.RetrievalLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("rag.cache_hit", cacheHit), attribute.Bool("rag.has_context", hasContext)))
}

func (m *Metrics) RecordIngestion(ctx context.Context, docType string, seconds float64, chunks int, ok bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("document.type", docType), attribute.Bool("ingest.success", ok))
	m.IngestionDuration.Record(ctx, seconds, attrs)
	if ok {
		m.IngestedChunks.Add(ctx, int64(chunks), attrs)
	}
}
