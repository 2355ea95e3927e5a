// Package tesseract provides an OCR engine backed by libtesseract through gosseract.
// Building it needs cgo and the tesseract and leptonica headers.
package tesseract

import (
	"context"
	"fmt"

	"homework-helper/backend/ocr"

	"github.com/otiai10/gosseract/v2"
)

// Engine creates one gosseract client per worker
type Engine struct {
	language string
}

// New creates an engine for the given tesseract language code
func New(language string) *Engine {
	if language == "" {
		language = "eng"
	}
	return &Engine{language: language}
}

// Name identifies the engine in logs and metrics
func (e *Engine) Name() string {
	return "tesseract"
}

// NewWorker allocates a tesseract client
func (e *Engine) NewWorker(context.Context) (ocr.Worker, error) {
	client := gosseract.NewClient()
	if err := client.SetLanguage(e.language); err != nil {
		client.Close()
		return nil, fmt.Errorf("set language %q: %w", e.language, err)
	}
	return &worker{client: client}, nil
}

type worker struct {
	client *gosseract.Client
}

func (w *worker) Recognize(_ context.Context, image []byte) (string, error) {
	if err := w.client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("load image: %w", err)
	}
	return w.client.Text()
}

func (w *worker) Close() error {
	return w.client.Close()
}
