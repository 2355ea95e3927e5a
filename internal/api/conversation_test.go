package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"homework-helper/backend/internal/conversation"
	"homework-helper/backend/ocr"
	"homework-helper/backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type conversationView struct {
	Messages []conversation.Message `json:"messages"`
	Busy     bool                   `json:"busy"`
}

func TestConversationTextRoundTrip(t *testing.T) {
	gen := &stubGenerator{answer: "4"}
	registry := conversation.NewRegistry(conversation.MemoryStoreFactory(), gen)
	r := newTestRouter(NewConversationController(registry, nil))

	w := doJSON(r, http.MethodPost, "/api/conversations/s1/text", SubmitTextRequest{Text: "What is 2+2?"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var exchange conversation.Exchange
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &exchange))
	assert.Equal(t, conversation.RoleUser, exchange.User.Role)
	assert.Equal(t, "4", exchange.Assistant.Content)
	assert.False(t, exchange.Fallback)

	w = doJSON(r, http.MethodGet, "/api/conversations/s1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view conversationView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	require.Len(t, view.Messages, 2)
	assert.False(t, view.Busy)

	// other conversations are independent
	w = doJSON(r, http.MethodGet, "/api/conversations/s2", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Empty(t, view.Messages)
}

func TestConversationBlankTextIsNoOp(t *testing.T) {
	gen := &stubGenerator{answer: "4"}
	registry := conversation.NewRegistry(conversation.MemoryStoreFactory(), gen)
	r := newTestRouter(NewConversationController(registry, nil))

	w := doJSON(r, http.MethodPost, "/api/conversations/s1/text", SubmitTextRequest{Text: "   "})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, gen.calls)
	assert.Equal(t, 0, registry.Len())
}

func TestConversationFallbackOnGenerationFailure(t *testing.T) {
	gen := &stubGenerator{err: fmt.Errorf("%w: status 500", errors.ErrGenerationFailure)}
	registry := conversation.NewRegistry(conversation.MemoryStoreFactory(), gen)
	r := newTestRouter(NewConversationController(registry, nil))

	w := doJSON(r, http.MethodPost, "/api/conversations/s1/image", SubmitImageRequest{ImageBase64: "AAAA", Text: "area?"})
	require.Equal(t, http.StatusOK, w.Code)

	var exchange conversation.Exchange
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &exchange))
	assert.True(t, exchange.Fallback)
	assert.Equal(t, conversation.ImageFallback, exchange.Assistant.Content)
	assert.Equal(t, "AAAA", exchange.User.ImageURL)
}

func TestConversationImageWithoutTextUsesOCR(t *testing.T) {
	gen := &stubGenerator{answer: "x = 3"}
	registry := conversation.NewRegistry(conversation.MemoryStoreFactory(), gen)

	r := newTestRouter(NewConversationController(registry, &stubExtractor{text: "2x + 3 = 9"}))
	w := doJSON(r, http.MethodPost, "/api/conversations/s1/image", SubmitImageRequest{ImageBase64: "AAAA"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"2x + 3 = 9|AAAA"}, gen.calls)

	failing := &stubExtractor{err: fmt.Errorf("%w: engine", errors.ErrOCRFailure)}
	r = newTestRouter(NewConversationController(registry, failing))
	w = doJSON(r, http.MethodPost, "/api/conversations/s2/image", SubmitImageRequest{ImageBase64: "BBBB"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ocr.FailureNotice+"|BBBB", gen.calls[1])
}

func TestConversationImageRequiresImage(t *testing.T) {
	registry := conversation.NewRegistry(conversation.MemoryStoreFactory(), &stubGenerator{})
	r := newTestRouter(NewConversationController(registry, nil))

	w := doJSON(r, http.MethodPost, "/api/conversations/s1/image", map[string]string{"text": "hi"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_FAILED", decodeError(t, w).Error.Code)
}

// blockingGenerator holds every call until release is closed
type blockingGenerator struct {
	started chan struct{}
	release chan struct{}
}

func (g *blockingGenerator) GenerateAnswer(ctx context.Context, _, _ string) (string, error) {
	g.started <- struct{}{}
	<-g.release
	return "done", nil
}

func TestConversationBusyReturnsConflict(t *testing.T) {
	gen := &blockingGenerator{started: make(chan struct{}, 1), release: make(chan struct{})}
	registry := conversation.NewRegistry(conversation.MemoryStoreFactory(), gen)
	r := newTestRouter(NewConversationController(registry, nil))

	first := make(chan int, 1)
	go func() {
		w := doJSON(r, http.MethodPost, "/api/conversations/s1/text", SubmitTextRequest{Text: "first"})
		first <- w.Code
	}()

	select {
	case <-gen.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first submission never reached the generator")
	}

	w := doJSON(r, http.MethodPost, "/api/conversations/s1/text", SubmitTextRequest{Text: "second"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "BUSY", decodeError(t, w).Error.Code)

	w = doJSON(r, http.MethodGet, "/api/conversations/s1", nil)
	var view conversationView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.True(t, view.Busy)

	close(gen.release)
	assert.Equal(t, http.StatusOK, <-first)
}

func TestConversationClear(t *testing.T) {
	registry := conversation.NewRegistry(conversation.MemoryStoreFactory(), &stubGenerator{answer: "4"})
	r := newTestRouter(NewConversationController(registry, nil))

	doJSON(r, http.MethodPost, "/api/conversations/s1/text", SubmitTextRequest{Text: "2+2"})
	w := doJSON(r, http.MethodDelete, "/api/conversations/s1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(r, http.MethodGet, "/api/conversations/s1", nil)
	var view conversationView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Empty(t, view.Messages)
}

func TestConversationUnknownIDsDoNotGrowRegistry(t *testing.T) {
	registry := conversation.NewRegistry(conversation.MemoryStoreFactory(), &stubGenerator{answer: "4"})
	r := newTestRouter(NewConversationController(registry, nil))

	for i := 0; i < 100; i++ {
		path := fmt.Sprintf("/api/conversations/unknown-%d", i)

		w := doJSON(r, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"messages":[],"busy":false}`, w.Body.String())

		w = doJSON(r, http.MethodDelete, path, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
	}
	assert.Equal(t, 0, registry.Len())
}
