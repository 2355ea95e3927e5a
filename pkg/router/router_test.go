package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"homework-helper/backend/ocr"
	"homework-helper/backend/pkg/config"
	"homework-helper/backend/pkg/di"
	"homework-helper/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type fixedGenerator struct{ answer string }

func (g fixedGenerator) GenerateAnswer(context.Context, string, string) (string, error) {
	return g.answer, nil
}

type nopEngine struct{}

func (nopEngine) Name() string { return "nop" }

func (nopEngine) NewWorker(context.Context) (ocr.Worker, error) { return nopWorker{}, nil }

type nopWorker struct{}

func (nopWorker) Recognize(context.Context, []byte) (string, error) { return "x = 2", nil }
func (nopWorker) Close() error { return nil }

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.Env = "test"
	cfg.Security.RateLimit = 100
	cfg.Security.RateLimitBurst = 100
	cfg.Security.AllowedOrigins = []string{"*"}
	cfg.Security.MaxBodySize = 10 << 20
	cfg.OCR.MaxUploadBytes = 5 << 20
	cfg.Store.Backend = "memory"
	return cfg
}

func newTestRouter(t *testing.T, cfg *config.Config, metrics http.Handler) *Router {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	container, err := di.New(context.Background(), cfg, db, logger.Discard(), di.Options{
		Engine:    nopEngine{},
		Generator: fixedGenerator{answer: "Add the numbers."},
	})
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	r := New(container, metrics)
	r.SetupRoutes()
	return r
}

func serve(r *Router, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)
	return w
}

func TestGenerateAnswerRoute(t *testing.T) {
	r := newTestRouter(t, testConfig(), nil)

	w := serve(r, http.MethodPost, "/api/generate-answer", map[string]string{"content": "1+1?"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"answer":"Add the numbers."}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestMessagesRoundTrip(t *testing.T) {
	r := newTestRouter(t, testConfig(), nil)

	w := serve(r, http.MethodPost, "/api/messages", map[string]string{
		"content": "What is 2+2?", "role": "user", "userId": "u1",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = serve(r, http.MethodGet, "/api/messages?userId=u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "What is 2+2?", got[0]["content"])
}

func TestConversationRoute(t *testing.T) {
	r := newTestRouter(t, testConfig(), nil)

	w := serve(r, http.MethodPost, "/api/conversations/u1/text", map[string]string{"text": "1+1?"})
	require.Equal(t, http.StatusOK, w.Code)

	w = serve(r, http.MethodGet, "/api/conversations/u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Add the numbers.")
}

func TestHealthRoutes(t *testing.T) {
	r := newTestRouter(t, testConfig(), nil)
	r.Container.Health.RunChecks(context.Background())

	for _, path := range []string{"/health", "/api/health"} {
		w := serve(r, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code, path)

		var body struct {
			Status     string                    `json:"status"`
			Components map[string]map[string]any `json:"components"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "up", body.Status)
		assert.Contains(t, body.Components, "database")
		assert.Contains(t, body.Components, "websocket")
		assert.Contains(t, body.Components, "memory")
	}
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("# HELP up\n"))
	})
	r := newTestRouter(t, testConfig(), metrics)

	w := serve(r, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "# HELP")
}

func TestRateLimitRejectsBurst(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RateLimit = 0.001
	cfg.Security.RateLimitBurst = 1
	r := newTestRouter(t, cfg, nil)

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/conversations/u1", nil).Code)

	w := serve(r, http.MethodGet, "/api/conversations/u1", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter(t, testConfig(), nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/generate-answer", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestOpenAPIValidationRejectsUnknownRole(t *testing.T) {
	cfg := testConfig()
	cfg.Security.OpenAPISchema = "../../api/openapi.yaml"
	r := newTestRouter(t, cfg, nil)

	w := serve(r, http.MethodPost, "/api/messages", map[string]string{
		"content": "hi", "role": "system", "userId": "u1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_FAILED")
	assert.Contains(t, w.Body.String(), "Request does not match the API schema")

	w = serve(r, http.MethodGet, "/api/docs/openapi.yaml", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMissingSchemaSkipsValidation(t *testing.T) {
	cfg := testConfig()
	cfg.Security.OpenAPISchema = "does-not-exist.yaml"
	r := newTestRouter(t, cfg, nil)

	w := serve(r, http.MethodPost, "/api/generate-answer", map[string]string{"content": "hi"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiterStopsWithContext(t *testing.T) {
	r := newTestRouter(t, testConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.RateLimiter.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("rate limiter did not stop")
	}
}
