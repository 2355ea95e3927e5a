package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"homework-helper/backend/pkg/datauri"
	"homework-helper/backend/pkg/errors"
	"homework-helper/backend/pkg/logger"
	"homework-helper/backend/pkg/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// FailureNotice is shown in place of extracted text when recognition fails
const FailureNotice = "Error extracting text. Please try again."

// Worker recognizes text in images. A worker holds engine resources until Close.
type Worker interface {
	Recognize(ctx context.Context, image []byte) (string, error)
	Close() error
}

// Engine hands out workers
type Engine interface {
	Name() string
	NewWorker(ctx context.Context) (Worker, error)
}

// Extractor turns images into trimmed text, acquiring one engine worker per call
type Extractor struct {
	engine  Engine
	log     *logger.Logger
	metrics *observability.PipelineMetrics
}

// Option configures an Extractor
type Option func(*Extractor)

// WithLogger sets the extractor's logger
func WithLogger(log *logger.Logger) Option {
	return func(e *Extractor) { e.log = log }
}

// WithMetrics records call durations on m
func WithMetrics(m *observability.PipelineMetrics) Option {
	return func(e *Extractor) { e.metrics = m }
}

// NewExtractor creates an extractor over engine
func NewExtractor(engine Engine, opts ...Option) *Extractor {
	e := &Extractor{engine: engine, log: logger.Discard()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractText recognizes text in a data URI or bare base64 image
func (e *Extractor) ExtractText(ctx context.Context, source string) (string, error) {
	data, err := datauri.Decode(source)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrOCRFailure, err)
	}
	return e.ExtractBytes(ctx, data)
}

// ExtractBytes recognizes text in an encoded image. Every failure wraps
// errors.ErrOCRFailure.
func (e *Extractor) ExtractBytes(ctx context.Context, image []byte) (text string, err error) {
	ctx, span := observability.StartSpan(ctx, "ocr.extract",
		attribute.String("ocr.engine", e.engine.Name()),
		attribute.Int("ocr.image_bytes", len(image)),
	)
	start := time.Now()
	defer func() {
		outcome := observability.OutcomeSuccess
		if err != nil {
			outcome = observability.OutcomeFailure
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		e.metrics.RecordOCR(ctx, e.engine.Name(), time.Since(start), outcome)
		span.End()
	}()

	if len(image) == 0 {
		return "", fmt.Errorf("%w: empty image", errors.ErrOCRFailure)
	}

	worker, err := e.engine.NewWorker(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: start worker: %v", errors.ErrOCRFailure, err)
	}

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		t, rerr := worker.Recognize(ctx, image)
		done <- result{text: t, err: rerr}
	}()

	select {
	case r := <-done:
		e.release(worker)
		if r.err != nil {
			return "", fmt.Errorf("%w: %v", errors.ErrOCRFailure, r.err)
		}
		return strings.TrimSpace(r.text), nil

	case <-ctx.Done():
		// The engine may not honour ctx; release the worker once it returns
		go func() {
			<-done
			e.release(worker)
		}()
		return "", fmt.Errorf("%w: %v", errors.ErrOCRFailure, ctx.Err())
	}
}

func (e *Extractor) release(w Worker) {
	if err := w.Close(); err != nil {
		e.log.Warn("Failed to release OCR worker", "engine", e.engine.Name(), "error", err.Error())
	}
}
