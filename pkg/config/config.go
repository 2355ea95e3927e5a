package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server struct {
		Port     string
		Env      string
		Timeout  time.Duration
		BaseURL  string
		GRPCPort string
	}

	// Database configuration
	Database struct {
		Driver     string
		Host       string
		Port       string
		User       string
		Password   string
		Name       string
		SSLMode    string
		SQLitePath string
		MaxConns   int
		Retries    int
		RetryDelay time.Duration
	}

	// Security configuration
	Security struct {
		RateLimit      float64
		RateLimitBurst int
		AllowedOrigins []string
		TrustedProxies []string
		MaxBodySize    int64
		OpenAPISchema  string
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
		File   string
	}

	// LLM provider settings
	LLM struct {
		Provider    string
		OpenAIModel string
		OpenAIURL   string
		GeminiModel string
		GeminiURL   string
		Timeout     time.Duration
		Temperature float64
		MaxTokens   int
	}

	// OCR settings
	OCR struct {
		Language       string
		MaxUploadBytes int64
	}

	// Conversation store settings
	Store struct {
		Backend       string
		RedisAddr     string
		RedisPassword string
		RedisDB       int
		RedisPrefix   string
		// IdleTTL drops conversations unused this long from memory; 0 keeps them
		IdleTTL       time.Duration
	}

	// Cache settings
	Cache struct {
		Enabled     bool
		TTL         time.Duration
		MaxSize     int
		PurgeWindow time.Duration
	}

	// Circuit breaker settings for the LLM provider
	Breaker struct {
		Failures     uint
		RetryTimeout time.Duration
	}

	// Observability settings
	Observability struct {
		TracesEnabled bool
		TracesFile    string
	}
}

var (
	instance *Config
	once     sync.Once
	mu       sync.Mutex
)

// New creates a new Config instance with values from environment variables
// Uses singleton pattern to ensure only one instance exists
func New() *Config {
	mu.Lock()
	defer mu.Unlock()

	once.Do(func() {
		godotenv.Load()
		instance = load()
	})

	return instance
}

func load() *Config {
	cfg := &Config{}

	cfg.Server.Port = getEnvString("PORT", "8081")
	cfg.Server.Env = getEnvString("APP_ENV", "development")
	cfg.Server.Timeout = getEnvDuration("SERVER_TIMEOUT", 30*time.Second)
	cfg.Server.BaseURL = getEnvString("BASE_URL", "http://localhost:"+cfg.Server.Port)
	cfg.Server.GRPCPort = getEnvString("GRPC_PORT", "")

	cfg.Database.Driver = getEnvString("DB_DRIVER", "postgres")
	cfg.Database.Host = getEnvString("DB_HOST", "localhost")
	cfg.Database.Port = getEnvString("DB_PORT", "5432")
	cfg.Database.User = getEnvString("DB_USER", "postgres")
	cfg.Database.Password = getEnvString("DB_PASSWORD", "postgres")
	cfg.Database.Name = getEnvString("DB_NAME", "homework-helper")
	cfg.Database.SSLMode = getEnvString("DB_SSL_MODE", "disable")
	cfg.Database.SQLitePath = getEnvString("SQLITE_PATH", "homework-helper.db")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
	cfg.Database.Retries = getEnvInt("DB_RETRIES", 5)
	cfg.Database.RetryDelay = getEnvDuration("DB_RETRY_DELAY", 5*time.Second)

	cfg.Security.RateLimit = float64(getEnvInt("RATE_LIMIT", 5))
	cfg.Security.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 10)
	cfg.Security.AllowedOrigins = getEnvStringSlice("ALLOWED_ORIGINS", []string{"*"})
	cfg.Security.TrustedProxies = getEnvStringSlice("TRUSTED_PROXIES", []string{"127.0.0.1"})
	cfg.Security.MaxBodySize = getEnvInt64("MAX_BODY_SIZE", 10<<20) // 10MB, base64 images are large
	cfg.Security.OpenAPISchema = getEnvString("OPENAPI_SCHEMA_PATH", "")

	cfg.Logging.Level = getEnvString("LOG_LEVEL", "info")
	cfg.Logging.Format = getEnvString("LOG_FORMAT", "json")
	cfg.Logging.File = getEnvString("LOG_FILE", "")

	cfg.LLM.Provider = strings.ToLower(getEnvString("LLM_PROVIDER", "openai"))
	cfg.LLM.OpenAIModel = getEnvString("OPENAI_MODEL", "gpt-4o")
	cfg.LLM.OpenAIURL = getEnvString("OPENAI_URL", "https://api.openai.com/v1/chat/completions")
	cfg.LLM.GeminiModel = getEnvString("GEMINI_MODEL", "gemini-1.5-pro")
	cfg.LLM.GeminiURL = getEnvString("GEMINI_URL", "https://generativelanguage.googleapis.com/v1beta")
	cfg.LLM.Timeout = getEnvDuration("LLM_TIMEOUT", 60*time.Second)
	cfg.LLM.Temperature = getEnvFloat("LLM_TEMPERATURE", 0.7)
	cfg.LLM.MaxTokens = getEnvInt("LLM_MAX_TOKENS", 1000)

	cfg.OCR.Language = getEnvString("OCR_LANGUAGE", "eng")
	cfg.OCR.MaxUploadBytes = getEnvInt64("OCR_MAX_UPLOAD_BYTES", 5<<20) // 5MB

	cfg.Store.Backend = strings.ToLower(getEnvString("STORE_BACKEND", "memory"))
	cfg.Store.RedisAddr = getEnvString("REDIS_ADDR", "localhost:6379")
	cfg.Store.RedisPassword = getEnvString("REDIS_PASSWORD", "")
	cfg.Store.RedisDB = getEnvInt("REDIS_DB", 0)
	cfg.Store.RedisPrefix = getEnvString("REDIS_PREFIX", "homework:")
	cfg.Store.IdleTTL = getEnvDuration("STORE_IDLE_TTL", time.Hour)

	cfg.Cache.Enabled = getEnvBool("CACHE_ENABLED", true)
	cfg.Cache.TTL = getEnvDuration("CACHE_TTL", 5*time.Minute)
	cfg.Cache.MaxSize = getEnvInt("CACHE_MAX_SIZE", 1000)
	cfg.Cache.PurgeWindow = getEnvDuration("CACHE_PURGE_WINDOW", 10*time.Minute)

	cfg.Breaker.Failures = uint(getEnvInt("BREAKER_FAILURES", 5))
	cfg.Breaker.RetryTimeout = getEnvDuration("BREAKER_RETRY_TIMEOUT", 60*time.Second)

	cfg.Observability.TracesEnabled = getEnvBool("OTEL_TRACES_ENABLED", false)
	cfg.Observability.TracesFile = getEnvString("OTEL_TRACES_FILE", "")

	return cfg
}

// Get returns the singleton Config instance
func Get() *Config {
	mu.Lock()
	cfg := instance
	mu.Unlock()
	if cfg == nil {
		return New()
	}
	return cfg
}

// Reset drops the loaded configuration so the next Get re-reads the environment
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// IsProduction reports whether APP_ENV is production
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions to read environment variables with default values

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
