package router

import (
	"net/http"

	"homework-helper/backend/internal/api"
	"homework-helper/backend/internal/ws"
	"homework-helper/backend/pkg/config"
	"homework-helper/backend/pkg/di"
	"homework-helper/backend/pkg/errors"
	"homework-helper/backend/pkg/logger"
	"homework-helper/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Router is the main router for the application
type Router struct {
	Engine      *gin.Engine
	Container   *di.Container
	Logger      *logger.Logger
	Stream      *ws.Handler
	RateLimiter *middleware.RateLimiter
	Config      *config.Config

	metrics http.Handler
}

// New creates a new router with the given container. metrics, when set, is
// served on /metrics.
func New(container *di.Container, metrics http.Handler) *Router {
	logger.SetGlobal(container.Logger)
	cfg := container.Config

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
		container.Logger.LogError(err, "Invalid trusted proxies, trusting none")
		engine.SetTrustedProxies(nil)
	}

	// Use the logger middleware first to capture all requests
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())

	rateLimiter := middleware.NewRateLimiter(container.Logger, middleware.RateLimiterOptions{
		Limit:          rate.Limit(cfg.Security.RateLimit),
		Burst:          cfg.Security.RateLimitBurst,
		ExpiryDuration: middleware.DefaultRateLimiterOptions().ExpiryDuration,
	})
	engine.Use(rateLimiter.Middleware())

	return &Router{
		Engine:      engine,
		Container:   container,
		Logger:      container.Logger,
		Stream:      ws.NewHandler(container.Registry, container.Logger, cfg.Security.AllowedOrigins),
		RateLimiter: rateLimiter,
		Config:      cfg,
		metrics:     metrics,
	}
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() {
	r.Engine.Use(middleware.CORS(r.Config.Security.AllowedOrigins))
	r.Engine.Use(middleware.BodyLimit(r.Config.Security.MaxBodySize))

	// Middleware only applies to routes registered after it
	if r.Config.Security.OpenAPISchema != "" {
		r.AddOpenAPIValidation(r.Config.Security.OpenAPISchema)
	}

	r.setupHealthRoutes()

	maxUpload := r.Config.OCR.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = api.DefaultMaxUploadBytes
	}

	apiRoutes := r.Engine.Group("/api")
	{
		api.NewAnswerController(r.Container.Generator).RegisterRoutes(apiRoutes)
		api.NewOCRController(r.Container.Extractor, maxUpload).RegisterRoutes(apiRoutes)
		api.NewMessageController(r.Container.MessageService).RegisterRoutes(apiRoutes)
		api.NewConversationController(r.Container.Registry, r.Container.Extractor).RegisterRoutes(apiRoutes)
		api.NewHealthController(r.Container.Health).RegisterRoutes(apiRoutes)
	}

	r.Stream.RegisterRoutes(r.Engine.Group("/ws"))

	if r.metrics != nil {
		r.Engine.GET("/metrics", gin.WrapH(r.metrics))
	}
}
