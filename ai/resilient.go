package ai

import (
	"context"
	stderrors "errors"
	"fmt"

	"homework-helper/backend/pkg/errors"
	"homework-helper/backend/pkg/resilience"
)

// ResilientGenerator short-circuits calls while the provider keeps failing
type ResilientGenerator struct {
	next    Generator
	breaker *resilience.CircuitBreaker
}

// NewResilientGenerator wraps next with breaker
func NewResilientGenerator(next Generator, breaker *resilience.CircuitBreaker) *ResilientGenerator {
	return &ResilientGenerator{next: next, breaker: breaker}
}

// GenerateAnswer implements Generator
func (r *ResilientGenerator) GenerateAnswer(ctx context.Context, content, imageBase64 string) (string, error) {
	var answer string
	err := r.breaker.ExecuteClassified(func() error {
		var err error
		answer, err = r.next.GenerateAnswer(ctx, content, imageBase64)
		return err
	}, countsAgainstProvider(ctx))

	if stderrors.Is(err, resilience.ErrCircuitOpen) {
		return "", fmt.Errorf("%w: %w", errors.ErrGenerationFailure, err)
	}
	return answer, err
}

// countsAgainstProvider ignores failures caused by the caller giving up
func countsAgainstProvider(ctx context.Context) func(error) bool {
	return func(error) bool {
		return !stderrors.Is(ctx.Err(), context.Canceled)
	}
}

// BreakerState exposes the breaker for health reporting
func (r *ResilientGenerator) BreakerState() resilience.CircuitBreakerState {
	return r.breaker.GetState()
}
