package ai

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"homework-helper/backend/pkg/cache"
	"homework-helper/backend/pkg/config"
	"homework-helper/backend/pkg/errors"
	"homework-helper/backend/pkg/logger"
	"homework-helper/backend/pkg/resilience"
	"homework-helper/backend/pkg/secrets"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingGenerator struct {
	calls  int
	answer string
	err    error
}

func (g *countingGenerator) GenerateAnswer(context.Context, string, string) (string, error) {
	g.calls++
	return g.answer, g.err
}

func TestResilientGeneratorOpensCircuit(t *testing.T) {
	inner := &countingGenerator{err: fmt.Errorf("%w: status 500", errors.ErrGenerationFailure)}
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             "llm-test",
		FailureThreshold: 2,
		RetryTimeout:     time.Hour,
	}, nil)
	gen := NewResilientGenerator(inner, breaker)

	for i := 0; i < 2; i++ {
		_, err := gen.GenerateAnswer(context.Background(), "q", "")
		assert.True(t, stderrors.Is(err, errors.ErrGenerationFailure))
	}
	assert.Equal(t, resilience.StateOpen, gen.BreakerState())

	_, err := gen.GenerateAnswer(context.Background(), "q", "")
	assert.True(t, stderrors.Is(err, errors.ErrGenerationFailure))
	assert.True(t, stderrors.Is(err, resilience.ErrCircuitOpen))
	assert.Equal(t, 2, inner.calls)
}

func TestResilientGeneratorIgnoresCallerCancellation(t *testing.T) {
	inner := &countingGenerator{err: fmt.Errorf("%w: canceled", errors.ErrGenerationFailure)}
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "llm-test", FailureThreshold: 1, RetryTimeout: time.Hour}, nil)
	gen := NewResilientGenerator(inner, breaker)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen.GenerateAnswer(ctx, "q", "")

	assert.Equal(t, resilience.StateClosed, gen.BreakerState())
}

func TestResilientGeneratorCancellationKeepsFailureStreak(t *testing.T) {
	inner := &countingGenerator{err: fmt.Errorf("%w: status 500", errors.ErrGenerationFailure)}
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "llm-test", FailureThreshold: 2, RetryTimeout: time.Hour}, nil)
	gen := NewResilientGenerator(inner, breaker)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	gen.GenerateAnswer(context.Background(), "q", "")
	gen.GenerateAnswer(canceled, "q", "")
	assert.Equal(t, resilience.StateClosed, gen.BreakerState())

	gen.GenerateAnswer(context.Background(), "q", "")
	assert.Equal(t, resilience.StateOpen, gen.BreakerState())
}

func TestCachedGenerator(t *testing.T) {
	inner := &countingGenerator{answer: "4"}
	c := cache.New(time.Minute, 0, 10)
	defer c.Stop()
	gen := NewCachedGenerator(inner, c, "openai")

	for i := 0; i < 3; i++ {
		answer, err := gen.GenerateAnswer(context.Background(), "What is 2+2?", "")
		require.NoError(t, err)
		assert.Equal(t, "4", answer)
	}
	assert.Equal(t, 1, inner.calls)

	// image questions always go upstream
	gen.GenerateAnswer(context.Background(), "What is 2+2?", "data:image/png;base64,AAAA")
	gen.GenerateAnswer(context.Background(), "What is 2+2?", "data:image/png;base64,AAAA")
	assert.Equal(t, 3, inner.calls)
}

func TestCachedGeneratorSkipsFailuresAndPlaceholders(t *testing.T) {
	inner := &countingGenerator{answer: NoAnswerPlaceholder}
	c := cache.New(time.Minute, 0, 10)
	defer c.Stop()
	gen := NewCachedGenerator(inner, c, "openai")

	gen.GenerateAnswer(context.Background(), "q", "")
	inner.answer, inner.err = "", errors.ErrGenerationFailure
	_, err := gen.GenerateAnswer(context.Background(), "q", "")
	assert.Error(t, err)
	assert.Equal(t, 0, c.Count())
}

func TestRelayClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate-answer", r.URL.Path)
		w.Write([]byte(`{"answer":"4"}`))
	}))
	defer srv.Close()

	answer, err := NewRelayClient(srv.URL, time.Second).GenerateAnswer(context.Background(), "What is 2+2?", "")
	require.NoError(t, err)
	assert.Equal(t, "4", answer)
}

func TestRelayClientMapsStatus(t *testing.T) {
	cases := []struct {
		status int
		kind   error
	}{
		{http.StatusGatewayTimeout, errors.ErrTransportTimeout},
		{http.StatusInternalServerError, errors.ErrGenerationFailure},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			w.Write([]byte(`{"error":{"code":"X","message":"upstream"}}`))
		}))
		_, err := NewRelayClient(srv.URL, time.Second).GenerateAnswer(context.Background(), "q", "")
		srv.Close()

		assert.True(t, stderrors.Is(err, tc.kind), err.Error())
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.Provider = "gemini"
	cfg.Breaker.Failures = 3
	cfg.Breaker.RetryTimeout = time.Minute
	cfg.Cache.Enabled = true
	cfg.Cache.TTL = time.Minute

	gen, breaker, err := NewFromConfig(context.Background(), cfg, secrets.Static{"GEMINI_API_KEY": "gm"}, logger.Discard(), nil)
	require.NoError(t, err)
	assert.IsType(t, &CachedGenerator{}, gen)
	assert.Equal(t, resilience.StateClosed, breaker.GetState())

	cfg.LLM.Provider = "claude"
	_, _, err = NewFromConfig(context.Background(), cfg, secrets.Static{}, logger.Discard(), nil)
	assert.Error(t, err)
}
