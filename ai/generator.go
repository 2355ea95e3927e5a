package ai

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"strings"
	"time"

	"homework-helper/backend/pkg/errors"
	"homework-helper/backend/pkg/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// SystemPrompt is the fixed instruction sent with every question
const SystemPrompt = "You are a helpful homework assistant that explains concepts clearly and shows step-by-step solutions to help students learn. Answer questions in a friendly, tutoring tone using clear explanations. If a question is about math, provide all intermediate steps. If something is unclear, ask for clarification."

// DefaultImagePrompt stands in for the question when only an image is sent
const DefaultImagePrompt = "Please help me solve this problem."

// NoAnswerPlaceholder is returned when the model replies without any text
const NoAnswerPlaceholder = "No answer returned"

// Generator answers a question with an optional base64 image, which may carry a
// data-URI header. Failures wrap errors.ErrGenerationFailure, or
// errors.ErrTransportTimeout when the call ran out of time.
type Generator interface {
	GenerateAnswer(ctx context.Context, content, imageBase64 string) (string, error)
}

// questionText returns the text to send for content, defaulting for image-only questions
func questionText(content, imageBase64 string) string {
	if strings.TrimSpace(content) == "" && imageBase64 != "" {
		return DefaultImagePrompt
	}
	return content
}

// classify wraps err in the failure kind matching its cause
func classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, errors.ErrGenerationFailure) || stderrors.Is(err, errors.ErrTransportTimeout) {
		return err
	}
	if isTimeout(err) {
		return fmt.Errorf("%w: %s: %v", errors.ErrTransportTimeout, provider, err)
	}
	return fmt.Errorf("%w: %s: %v", errors.ErrGenerationFailure, provider, err)
}

func isTimeout(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr) && netErr.Timeout()
}

// call runs fn under a per-call timeout inside a span and records its duration
func call(ctx context.Context, provider string, timeout time.Duration, metrics *observability.PipelineMetrics,
	fn func(ctx context.Context) (string, error)) (string, error) {
	ctx, span := observability.StartSpan(ctx, "llm.generate", attribute.String("llm.provider", provider))
	defer span.End()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	answer, err := fn(ctx)
	err = classify(provider, err)

	outcome := observability.OutcomeSuccess
	switch {
	case stderrors.Is(err, errors.ErrTransportTimeout):
		outcome = observability.OutcomeTimeout
	case err != nil:
		outcome = observability.OutcomeFailure
	}
	metrics.RecordLLM(ctx, provider, time.Since(start), outcome)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	if strings.TrimSpace(answer) == "" {
		return NoAnswerPlaceholder, nil
	}
	return answer, nil
}
