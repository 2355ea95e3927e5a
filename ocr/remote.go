package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// RemoteEngine runs recognition on a relay's /api/ocr endpoint
type RemoteEngine struct {
	client  *http.Client
	baseURL string
}

// NewRemoteEngine creates an engine posting to baseURL
func NewRemoteEngine(baseURL string, timeout time.Duration) *RemoteEngine {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &RemoteEngine{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Name identifies the engine in logs and metrics
func (e *RemoteEngine) Name() string {
	return "remote"
}

// NewWorker returns a worker bound to this engine's HTTP client
func (e *RemoteEngine) NewWorker(context.Context) (Worker, error) {
	return &remoteWorker{engine: e}, nil
}

type remoteWorker struct {
	engine *RemoteEngine
}

type ocrResponse struct {
	Text  string `json:"text"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Recognize uploads image as the multipart "image" field
func (w *remoteWorker) Recognize(ctx context.Context, image []byte) (string, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	mtype := mimetype.Detect(image)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="capture%s"`, mtype.Extension()))
	header.Set("Content-Type", mtype.String())

	part, err := form.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("create form part: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return "", fmt.Errorf("write form part: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.engine.baseURL+"/api/ocr", &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := w.engine.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocr request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read ocr response: %w", err)
	}

	var out ocrResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode ocr response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		if out.Error != nil {
			return "", fmt.Errorf("ocr status %d: %s: %s", resp.StatusCode, out.Error.Code, out.Error.Message)
		}
		return "", fmt.Errorf("ocr status %d", resp.StatusCode)
	}
	return out.Text, nil
}

// Close is a no-op; the HTTP client is shared by the engine
func (w *remoteWorker) Close() error {
	return nil
}
