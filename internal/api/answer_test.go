package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"homework-helper/backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAnswer(t *testing.T) {
	gen := &stubGenerator{answer: "x = 3"}
	r := newTestRouter(NewAnswerController(gen))

	w := doJSON(r, http.MethodPost, "/api/generate-answer", GenerateAnswerRequest{
		Content:     "Solve 2x + 3 = 9",
		ImageBase64: "data:image/png;base64,AAAA",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "x = 3", body["answer"])
	assert.Equal(t, []string{"Solve 2x + 3 = 9|data:image/png;base64,AAAA"}, gen.calls)
}

func TestGenerateAnswerImageOnly(t *testing.T) {
	gen := &stubGenerator{answer: "ok"}
	r := newTestRouter(NewAnswerController(gen))

	w := doJSON(r, http.MethodPost, "/api/generate-answer", GenerateAnswerRequest{ImageBase64: "AAAA"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGenerateAnswerRequiresContentOrImage(t *testing.T) {
	gen := &stubGenerator{}
	r := newTestRouter(NewAnswerController(gen))

	for _, body := range []any{GenerateAnswerRequest{}, `{"content":"   "}`, `not json`} {
		w := doJSON(r, http.MethodPost, "/api/generate-answer", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "VALIDATION_FAILED", decodeError(t, w).Error.Code)
	}
	assert.Empty(t, gen.calls)
}

func TestGenerateAnswerFailures(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: openai: status 401", errors.ErrGenerationFailure), http.StatusInternalServerError, "GENERATION_FAILED"},
		{fmt.Errorf("%w: openai: deadline exceeded", errors.ErrTransportTimeout), http.StatusGatewayTimeout, "TRANSPORT_TIMEOUT"},
	}
	for _, tc := range cases {
		r := newTestRouter(NewAnswerController(&stubGenerator{err: tc.err}))

		w := doJSON(r, http.MethodPost, "/api/generate-answer", GenerateAnswerRequest{Content: "hi"})
		assert.Equal(t, tc.status, w.Code)
		assert.Equal(t, tc.code, decodeError(t, w).Error.Code)
	}
}
