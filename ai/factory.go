package ai

import (
	"context"
	"fmt"

	"homework-helper/backend/pkg/cache"
	"homework-helper/backend/pkg/config"
	"homework-helper/backend/pkg/logger"
	"homework-helper/backend/pkg/observability"
	"homework-helper/backend/pkg/resilience"
	"homework-helper/backend/pkg/secrets"
)

// NewFromConfig builds the generator named by LLM_PROVIDER, wrapped in a circuit
// breaker and, when caching is enabled, an answer cache. The breaker is returned
// for health reporting.
func NewFromConfig(ctx context.Context, cfg *config.Config, sm secrets.Manager, log *logger.Logger,
	metrics *observability.PipelineMetrics) (Generator, *resilience.CircuitBreaker, error) {
	var (
		gen    Generator
		apiKey string
	)

	provider := cfg.LLM.Provider
	switch provider {
	case "openai", "":
		provider = "openai"
		apiKey = sm.GetSecretWithDefault(ctx, "OPENAI_API_KEY", "")
		gen = NewOpenAI(OpenAIConfig{
			APIKey:      apiKey,
			Model:       cfg.LLM.OpenAIModel,
			URL:         cfg.LLM.OpenAIURL,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     cfg.LLM.Timeout,
		}, metrics)
	case "gemini":
		apiKey = sm.GetSecretWithDefault(ctx, "GEMINI_API_KEY", "")
		gen = NewGemini(GeminiConfig{
			APIKey:      apiKey,
			Model:       cfg.LLM.GeminiModel,
			URL:         cfg.LLM.GeminiURL,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     cfg.LLM.Timeout,
		}, metrics)
	default:
		return nil, nil, fmt.Errorf("unknown LLM provider %q", cfg.LLM.Provider)
	}

	if apiKey == "" {
		log.Warn("No API key configured for LLM provider, answers will fall back", "provider", provider)
	}

	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             "llm-" + provider,
		FailureThreshold: cfg.Breaker.Failures,
		SuccessThreshold: 1,
		RetryTimeout:     cfg.Breaker.RetryTimeout,
	}, log)
	gen = NewResilientGenerator(gen, breaker)

	if cfg.Cache.Enabled {
		gen = NewCachedGenerator(gen, cache.New(cfg.Cache.TTL, cfg.Cache.PurgeWindow, cfg.Cache.MaxSize), provider)
	}

	log.Info("LLM provider configured", "provider", provider, "cache", cfg.Cache.Enabled)
	return gen, breaker, nil
}
