package ai

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"homework-helper/backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiImageQuestion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "gm-test", r.Header.Get("x-goog-api-key"))

		raw, _ := io.ReadAll(r.Body)
		var req geminiRequest
		require.NoError(t, json.Unmarshal(raw, &req))

		require.Len(t, req.Contents, 1)
		parts := req.Contents[0].Parts
		require.Len(t, parts, 2)
		assert.Equal(t, "What is the area?", parts[0].Text)
		require.NotNil(t, parts[1].InlineData)
		assert.Equal(t, "image/png", parts[1].InlineData.MimeType)
		assert.Equal(t, "iVBORw0KGgo=", parts[1].InlineData.Data)

		require.NotNil(t, req.SystemInstruction)
		assert.Equal(t, SystemPrompt, req.SystemInstruction.Parts[0].Text)
		require.Len(t, req.SafetySettings, 4)
		for _, s := range req.SafetySettings {
			assert.Equal(t, "BLOCK_MEDIUM_AND_ABOVE", s.Threshold)
		}

		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Area = "},{"text":"12"}]}}]}`))
	}))
	defer srv.Close()

	g := NewGemini(GeminiConfig{APIKey: "gm-test", Model: "gemini-test", URL: srv.URL, Timeout: time.Second}, nil)
	answer, err := g.GenerateAnswer(context.Background(), "What is the area?", "data:image/png;base64,iVBORw0KGgo=")
	require.NoError(t, err)
	assert.Equal(t, "Area = 12", answer)
}

func TestGeminiBlockedPromptReturnsPlaceholder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"promptFeedback":{"blockReason":"SAFETY"}}`))
	}))
	defer srv.Close()

	g := NewGemini(GeminiConfig{APIKey: "gm-test", URL: srv.URL, Timeout: time.Second}, nil)
	answer, err := g.GenerateAnswer(context.Background(), "hi", "")
	require.NoError(t, err)
	assert.Equal(t, NoAnswerPlaceholder, answer)
}

func TestGeminiError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`))
	}))
	defer srv.Close()

	g := NewGemini(GeminiConfig{APIKey: "bad", URL: srv.URL, Timeout: time.Second}, nil)
	_, err := g.GenerateAnswer(context.Background(), "hi", "")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrGenerationFailure))
	assert.Contains(t, err.Error(), "PERMISSION_DENIED")
}
