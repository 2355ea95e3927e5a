package di

import (
	"context"
	"fmt"
	"time"

	"homework-helper/backend/ai"
	"homework-helper/backend/internal/conversation"
	"homework-helper/backend/internal/service"
	"homework-helper/backend/ocr"
	"homework-helper/backend/pkg/config"
	"homework-helper/backend/pkg/health"
	"homework-helper/backend/pkg/logger"
	"homework-helper/backend/pkg/observability"
	redispkg "homework-helper/backend/pkg/redis"
	"homework-helper/backend/pkg/resilience"
	"homework-helper/backend/pkg/secrets"

	"gorm.io/gorm"
)

// Container holds all the dependencies for the application
type Container struct {
	Config         *config.Config
	DB             *gorm.DB
	Logger         *logger.Logger
	Metrics        *observability.PipelineMetrics
	MessageService *service.MessageService
	Generator      ai.Generator
	Breaker        *resilience.CircuitBreaker
	Extractor      *ocr.Extractor
	Redis          *redispkg.Client
	Registry       *conversation.Registry
	Health         *health.Checker
}

// Options carries the pieces main decides on. Generator overrides the
// configured LLM provider; Engine is required.
type Options struct {
	Secrets     secrets.Manager
	Metrics     *observability.PipelineMetrics
	Engine      ocr.Engine
	Generator   ai.Generator
	Redis       *redispkg.Client
	CheckPeriod time.Duration
}

// New creates a new dependency injection container
func New(ctx context.Context, cfg *config.Config, db *gorm.DB, log *logger.Logger, opts Options) (*Container, error) {
	if log == nil {
		log = logger.Discard()
	}
	if opts.Engine == nil {
		return nil, fmt.Errorf("an OCR engine is required")
	}
	if opts.Secrets == nil {
		opts.Secrets = secrets.Static{}
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.DefaultPipelineMetrics()
	}
	if opts.CheckPeriod <= 0 {
		opts.CheckPeriod = 30 * time.Second
	}

	messageService := service.NewMessageService(db)
	if err := messageService.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate messages: %w", err)
	}

	redisClient := opts.Redis
	if redisClient == nil && cfg.Store.Backend == "redis" {
		redisClient = redispkg.NewClient(cfg)
	}
	factory, err := conversation.NewStoreFactory(cfg, redisClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation store: %w", err)
	}

	generator, breaker := opts.Generator, (*resilience.CircuitBreaker)(nil)
	if generator == nil {
		generator, breaker, err = ai.NewFromConfig(ctx, cfg, opts.Secrets, log, opts.Metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to create answer generator: %w", err)
		}
	}

	extractor := ocr.NewExtractor(opts.Engine,
		ocr.WithLogger(log),
		ocr.WithMetrics(opts.Metrics),
	)

	registry := conversation.NewRegistry(factory, generator,
		conversation.WithLogger(log),
		conversation.WithMetrics(opts.Metrics),
	)
	registry.SetIdleTTL(cfg.Store.IdleTTL)

	checker := health.NewChecker(log.WithComponent("health"), opts.CheckPeriod)
	checker.RegisterDatabaseCheck(func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})
	if redisClient != nil {
		checker.RegisterRedisCheck(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	if breaker != nil {
		checker.RegisterBreakerCheck("llm", breaker)
	}

	return &Container{
		Config:         cfg,
		DB:             db,
		Logger:         log,
		Metrics:        opts.Metrics,
		MessageService: messageService,
		Generator:      generator,
		Breaker:        breaker,
		Extractor:      extractor,
		Redis:          redisClient,
		Registry:       registry,
		Health:         checker,
	}, nil
}

// Close releases the database pool and the Redis client
func (c *Container) Close() error {
	var firstErr error
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			firstErr = err
		}
	}
	if sqlDB, err := c.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
