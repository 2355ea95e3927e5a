package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "homework-helper/backend"

// Outcome labels for recorded pipeline calls
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeTimeout  = "timeout"
	OutcomeFallback = "fallback"
	OutcomeRejected = "rejected"
)

// PipelineMetrics holds the instruments shared by the OCR, LLM and conversation code.
// A nil *PipelineMetrics records nothing.
type PipelineMetrics struct {
	llmDuration metric.Float64Histogram
	ocrDuration metric.Float64Histogram
	submissions metric.Int64Counter
}

// NewPipelineMetrics creates the instruments on the given meter
func NewPipelineMetrics(meter metric.Meter) *PipelineMetrics {
	fallback := noop.NewMeterProvider().Meter(instrumentationName)

	llm, err := meter.Float64Histogram("homework.llm.duration",
		metric.WithDescription("Duration of answer generation calls"),
		metric.WithUnit("s"))
	if err != nil {
		llm, _ = fallback.Float64Histogram("homework.llm.duration")
	}

	ocr, err := meter.Float64Histogram("homework.ocr.duration",
		metric.WithDescription("Duration of text extraction calls"),
		metric.WithUnit("s"))
	if err != nil {
		ocr, _ = fallback.Float64Histogram("homework.ocr.duration")
	}

	subs, err := meter.Int64Counter("homework.submissions",
		metric.WithDescription("Conversation submissions by path and outcome"))
	if err != nil {
		subs, _ = fallback.Int64Counter("homework.submissions")
	}

	return &PipelineMetrics{llmDuration: llm, ocrDuration: ocr, submissions: subs}
}

// DefaultPipelineMetrics creates the instruments on the global meter provider
func DefaultPipelineMetrics() *PipelineMetrics {
	return NewPipelineMetrics(otel.Meter(instrumentationName))
}

// RecordLLM records one generation call
func (m *PipelineMetrics) RecordLLM(ctx context.Context, provider string, elapsed time.Duration, outcome string) {
	if m == nil {
		return
	}
	m.llmDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
	))
}

// RecordOCR records one extraction call
func (m *PipelineMetrics) RecordOCR(ctx context.Context, engine string, elapsed time.Duration, outcome string) {
	if m == nil {
		return
	}
	m.ocrDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("engine", engine),
		attribute.String("outcome", outcome),
	))
}

// RecordSubmission counts one conversation submission
func (m *PipelineMetrics) RecordSubmission(ctx context.Context, path, outcome string) {
	if m == nil {
		return
	}
	m.submissions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("path", path),
		attribute.String("outcome", outcome),
	))
}

// StartSpan starts a span on the global tracer provider
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, trace.WithAttributes(attrs...))
}
