package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"homework-helper/backend/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type errorBody struct {
	Error struct {
		Code    string              `json:"code"`
		Message string              `json:"message"`
		Details []errors.FieldError `json:"details"`
	} `json:"error"`
}

type registrar interface {
	RegisterRoutes(router *gin.RouterGroup)
}

func newTestRouter(controllers ...registrar) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(errors.ErrorHandler())
	r.Use(errors.RecoveryWithLogger())
	group := r.Group("/api")
	for _, c := range controllers {
		c.RegisterRoutes(group)
	}
	return r
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			json.NewEncoder(&buf).Encode(b)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

type stubGenerator struct {
	answer string
	err    error
	calls  []string
}

func (g *stubGenerator) GenerateAnswer(_ context.Context, content, imageBase64 string) (string, error) {
	g.calls = append(g.calls, fmt.Sprintf("%s|%s", content, imageBase64))
	return g.answer, g.err
}
