package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"homework-helper/backend/internal/capture"
	"homework-helper/backend/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 13, 'I', 'H', 'D', 'R'}

// fakeRelay answers the endpoints the client calls and records what it saw
type fakeRelay struct {
	mu        sync.Mutex
	questions []map[string]string
	saved     []map[string]any
	queried   []string
}

func (f *fakeRelay) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/generate-answer", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.questions = append(f.questions, body)
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"answer": "Subtract 3, then divide by 2."})
	})
	mux.HandleFunc("/api/ocr", func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := r.FormFile("image"); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"code": "UPLOAD_REJECTED", "message": err.Error()}})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "  2x + 3 = 7 \n"})
	})
	mux.HandleFunc("/api/messages", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if r.Method == http.MethodPost {
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			f.saved = append(f.saved, body)
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(body)
			return
		}
		userID := r.URL.Query().Get("userId")
		f.queried = append(f.queried, userID)
		out := make([]map[string]any, 0, len(f.saved))
		for i, m := range f.saved {
			if m["userId"] != userID {
				continue
			}
			out = append(out, map[string]any{
				"id": i + 1, "content": m["content"], "role": m["role"], "userId": m["userId"],
				"timestamp": time.Date(2024, 3, 1, 12, 0, i, 0, time.UTC),
			})
		}
		json.NewEncoder(w).Encode(out)
	})
	upgrader := websocket.Upgrader{}
	mux.HandleFunc("/ws/conversations/u1", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteJSON(map[string]any{"type": "history", "content": map[string]any{
			"messages": []map[string]string{{"role": "user", "content": "What is 7 squared?"}},
			"busy":     true,
		}})
		conn.WriteJSON(map[string]any{"type": "cleared"})
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.ReadMessage()
	})
	return mux
}

func newTestClient(t *testing.T, user string) (*client, *fakeRelay, *bytes.Buffer) {
	t.Helper()
	relay := &fakeRelay{}
	srv := httptest.NewServer(relay.handler())
	t.Cleanup(srv.Close)

	out := &bytes.Buffer{}
	c := newClient(srv.URL, user, 5*time.Second, logger.Discard(), out)
	t.Cleanup(c.surface.Close)
	return c, relay, out
}

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestAskPrintsAnswerAndSavesHistory(t *testing.T) {
	c, relay, out := newTestClient(t, "u1")

	require.NoError(t, c.ask(context.Background(), "Solve 2x + 3 = 7"))

	assert.Contains(t, out.String(), "Subtract 3, then divide by 2.")
	require.Len(t, relay.questions, 1)
	assert.Equal(t, "Solve 2x + 3 = 7", relay.questions[0]["content"])

	require.Len(t, relay.saved, 2)
	assert.Equal(t, "user", relay.saved[0]["role"])
	assert.Equal(t, "assistant", relay.saved[1]["role"])
	assert.Equal(t, "u1", relay.saved[1]["userId"])
}

func TestAskBlankIsNoOp(t *testing.T) {
	c, relay, out := newTestClient(t, "")

	require.NoError(t, c.ask(context.Background(), "   "))

	assert.Contains(t, out.String(), "Nothing to send.")
	assert.Empty(t, relay.questions)
}

func TestImageIsExtractedThenSent(t *testing.T) {
	c, relay, out := newTestClient(t, "")
	path := writeTemp(t, "worksheet.png", pngHeader)
	ctx := context.Background()

	session, err := c.loadImage(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "2x + 3 = 7", session.Text)
	assert.True(t, session.Ready)
	assert.Contains(t, out.String(), "Extracted text:\n2x + 3 = 7")

	require.NoError(t, c.sendImage(ctx, ""))

	require.Len(t, relay.questions, 1)
	assert.Equal(t, "2x + 3 = 7", relay.questions[0]["content"])
	assert.True(t, strings.HasPrefix(relay.questions[0]["imageBase64"], "data:image/png;base64,"))
	assert.Equal(t, capture.StateIdle, c.surface.State())
}

func TestImageRejectsNonImageFiles(t *testing.T) {
	c, _, _ := newTestClient(t, "")
	path := writeTemp(t, "notes.txt", []byte("just some notes"))

	_, err := c.loadImage(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only JPEG and PNG")
	assert.Equal(t, capture.StateIdle, c.surface.State())
}

func TestREPL(t *testing.T) {
	c, relay, out := newTestClient(t, "")
	path := writeTemp(t, "worksheet.png", pngHeader)

	input := strings.Join([]string{
		"What is 7 squared?",
		"/image " + path,
		"Only the first step please",
		"/history",
		"/quit",
		"never read",
	}, "\n")

	require.NoError(t, c.repl(context.Background(), strings.NewReader(input)))

	require.Len(t, relay.questions, 2)
	assert.Equal(t, "Only the first step please", relay.questions[1]["content"])
	assert.NotEmpty(t, relay.questions[1]["imageBase64"])
	assert.Contains(t, out.String(), "user: What is 7 squared?")
	assert.Contains(t, out.String(), "assistant: Subtract 3, then divide by 2.")
	assert.NotContains(t, out.String(), "never read")
}

func TestREPLHistoryFromRelay(t *testing.T) {
	c, _, out := newTestClient(t, "u1")

	input := "Solve it\n/history\n"
	require.NoError(t, c.repl(context.Background(), strings.NewReader(input)))

	assert.Contains(t, out.String(), "user: Solve it")
	assert.Contains(t, out.String(), "assistant: Subtract 3, then divide by 2.")
}

func TestHistoryEscapesUserID(t *testing.T) {
	c, relay, _ := newTestClient(t, "a&b c#1")

	require.NoError(t, c.ask(context.Background(), "What is 3 cubed?"))
	messages, err := c.history(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a&b c#1"}, relay.queried)
	require.Len(t, messages, 2)
	assert.Equal(t, "What is 3 cubed?", messages[0].Content)
}

func TestREPLDiscardAndErrors(t *testing.T) {
	c, relay, out := newTestClient(t, "")

	input := "/discard\n/image\n"
	require.NoError(t, c.repl(context.Background(), strings.NewReader(input)))

	assert.Contains(t, out.String(), "Error: "+capture.ErrInvalidTransition.Error())
	assert.Contains(t, out.String(), "usage: /image <path>")
	assert.Empty(t, relay.questions)
}

func TestWatchPrintsFrames(t *testing.T) {
	c, _, out := newTestClient(t, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.watch(ctx, "u1"))

	assert.Contains(t, out.String(), "user: What is 7 squared?")
	assert.Contains(t, out.String(), "(answering...)")
	assert.Contains(t, out.String(), "-- conversation cleared --")
}
