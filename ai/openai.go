package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"homework-helper/backend/pkg/datauri"
	"homework-helper/backend/pkg/observability"
)

const defaultOpenAIURL = "https://api.openai.com/v1/chat/completions"

// OpenAIConfig configures the chat-completions adapter
type OpenAIConfig struct {
	APIKey      string
	Model       string
	URL         string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// OpenAI answers questions with the chat-completions API
type OpenAI struct {
	config     OpenAIConfig
	httpClient *http.Client
	metrics    *observability.PipelineMetrics
}

// NewOpenAI creates the adapter. The timeout is applied per call through the
// request context, so the HTTP client itself has none.
func NewOpenAI(config OpenAIConfig, metrics *observability.PipelineMetrics) *OpenAI {
	if config.Model == "" {
		config.Model = "gpt-4o"
	}
	if config.URL == "" {
		config.URL = defaultOpenAIURL
	}
	return &OpenAI{
		config:     config,
		httpClient: &http.Client{},
		metrics:    metrics,
	}
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

// openAIMessage content is either a string or a list of parts
type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// GenerateAnswer implements Generator
func (o *OpenAI) GenerateAnswer(ctx context.Context, content, imageBase64 string) (string, error) {
	return call(ctx, "openai", o.config.Timeout, o.metrics, func(ctx context.Context) (string, error) {
		return o.complete(ctx, content, imageBase64)
	})
}

func (o *OpenAI) buildRequest(content, imageBase64 string) openAIRequest {
	user := openAIMessage{Role: "user", Content: content}
	if imageBase64 != "" {
		mime, payload := datauri.Split(imageBase64)
		user.Content = []contentPart{
			{Type: "text", Text: questionText(content, imageBase64)},
			{Type: "image_url", ImageURL: &imageURL{URL: "data:" + mime + ";base64," + payload}},
		}
	}

	return openAIRequest{
		Model: o.config.Model,
		Messages: []openAIMessage{
			{Role: "system", Content: SystemPrompt},
			user,
		},
		Temperature: o.config.Temperature,
		MaxTokens:   o.config.MaxTokens,
	}
}

func (o *OpenAI) complete(ctx context.Context, content, imageBase64 string) (string, error) {
	if o.config.APIKey == "" {
		return "", fmt.Errorf("OpenAI API key is not configured")
	}

	jsonData, err := json.Marshal(o.buildRequest(content, imageBase64))
	if err != nil {
		return "", fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.config.URL, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.config.APIKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error making API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response body: %w", err)
	}

	var openAIResp openAIResponse
	if err := json.Unmarshal(body, &openAIResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("API request failed with status code %d", resp.StatusCode)
		}
		return "", fmt.Errorf("error unmarshaling response: %w", err)
	}

	if openAIResp.Error != nil {
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, openAIResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API request failed with status code %d", resp.StatusCode)
	}

	if len(openAIResp.Choices) == 0 || openAIResp.Choices[0].Message.Content == nil {
		return "", nil
	}
	return *openAIResp.Choices[0].Message.Content, nil
}
