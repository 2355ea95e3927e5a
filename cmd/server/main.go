package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"homework-helper/backend/ocr/tesseract"
	"homework-helper/backend/pkg/config"
	"homework-helper/backend/pkg/di"
	"homework-helper/backend/pkg/health"
	"homework-helper/backend/pkg/logger"
	"homework-helper/backend/pkg/observability"
	"homework-helper/backend/pkg/router"
	"homework-helper/backend/pkg/secrets"

	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	// Loads .env before reading the environment
	cfg := config.New()

	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format != "text"
	logConfig.File = cfg.Logging.File

	log := logger.New(logConfig)
	logger.SetGlobal(log)

	log.Info("Starting application", "version", os.Getenv("APP_VERSION"), "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Observability.TracesEnabled {
		shutdownTracing, err := setupTracing(cfg)
		if err != nil {
			log.LogError(err, "Failed to initialize tracing")
			os.Exit(1)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownTracing(flushCtx)
		}()
	}

	meterProvider, metricsHandler, err := observability.SetupPrometheusMetrics()
	if err != nil {
		log.LogError(err, "Failed to initialize metrics")
		os.Exit(1)
	}
	defer meterProvider.Shutdown(context.Background())

	sm, err := secrets.Init(log.WithComponent("secrets"))
	if err != nil {
		log.LogError(err, "Failed to initialize secrets manager")
		os.Exit(1)
	}

	db, err := config.NewDB()
	if err != nil {
		log.LogError(err, "Failed to initialize database")
		os.Exit(1)
	}

	container, err := di.New(ctx, cfg, db, log, di.Options{
		Secrets: sm,
		Metrics: observability.DefaultPipelineMetrics(),
		Engine:  tesseract.New(cfg.OCR.Language),
	})
	if err != nil {
		log.LogError(err, "Failed to initialize dependency container")
		os.Exit(1)
	}
	defer container.Close()

	if vault := secrets.ConfigFromEnv(); vault.Enabled && vault.Address != "" {
		container.Health.RegisterAPICheck("vault", vault.Address+"/v1/sys/health", &http.Client{Timeout: 3 * time.Second})
	}

	r := router.New(container, metricsHandler)
	r.SetupRoutes()

	var grpcServer *health.GRPCServer
	if cfg.Server.GRPCPort != "" {
		grpcServer = startGRPCHealth(cfg.Server.GRPCPort, container.Health, log)
	}

	go r.RateLimiter.Run(ctx)
	go container.Registry.Run(ctx)
	container.Health.Start(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		// Answers can take as long as the LLM timeout
		WriteTimeout: cfg.LLM.Timeout + cfg.Server.Timeout,
	}

	go func() {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogError(err, "Server failed to start")
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Stop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.LogError(err, "Server forced to shutdown")
	}

	log.Info("Server exited gracefully")
}

// setupTracing writes spans to OTEL_TRACES_FILE, rotated, or to stdout
func setupTracing(cfg *config.Config) (func(context.Context) error, error) {
	if cfg.Observability.TracesFile == "" {
		return observability.SetupTracing("homework-helper", os.Stdout)
	}
	return observability.SetupTracing("homework-helper", &lumberjack.Logger{
		Filename:   cfg.Observability.TracesFile,
		MaxSize:    50, // MB
		MaxBackups: 3,
	})
}

func startGRPCHealth(port string, checker *health.Checker, log *logger.Logger) *health.GRPCServer {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		log.LogError(err, "Failed to listen for gRPC health", "port", port)
		return nil
	}

	server := health.NewGRPCServer(checker, log.WithComponent("grpc"))
	go func() {
		if err := server.Serve(lis); err != nil {
			log.LogError(err, "gRPC health server stopped")
		}
	}()
	return server
}
