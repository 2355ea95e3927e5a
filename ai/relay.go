package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"homework-helper/backend/pkg/errors"
)

// RelayClient asks a relay server's /api/generate-answer endpoint
type RelayClient struct {
	client  *http.Client
	baseURL string
	timeout time.Duration
}

// NewRelayClient creates a client for the relay at baseURL
func NewRelayClient(baseURL string, timeout time.Duration) *RelayClient {
	return &RelayClient{
		client:  &http.Client{},
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
	}
}

type relayRequest struct {
	Content     string `json:"content"`
	ImageBase64 string `json:"imageBase64,omitempty"`
}

type relayResponse struct {
	Answer string `json:"answer"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// GenerateAnswer implements Generator
func (r *RelayClient) GenerateAnswer(ctx context.Context, content, imageBase64 string) (string, error) {
	return call(ctx, "relay", r.timeout, nil, func(ctx context.Context) (string, error) {
		return r.post(ctx, content, imageBase64)
	})
}

func (r *RelayClient) post(ctx context.Context, content, imageBase64 string) (string, error) {
	jsonData, err := json.Marshal(relayRequest{Content: content, ImageBase64: imageBase64})
	if err != nil {
		return "", fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/generate-answer", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("relay request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response body: %w", err)
	}

	var out relayResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("relay status %d: undecodable body: %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := http.StatusText(resp.StatusCode)
		if out.Error != nil {
			msg = out.Error.Code + ": " + out.Error.Message
		}
		if resp.StatusCode == http.StatusGatewayTimeout {
			return "", fmt.Errorf("%w: relay: %s", errors.ErrTransportTimeout, msg)
		}
		return "", fmt.Errorf("%w: relay status %d: %s", errors.ErrGenerationFailure, resp.StatusCode, msg)
	}
	return out.Answer, nil
}
