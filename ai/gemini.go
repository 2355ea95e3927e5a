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

	"homework-helper/backend/pkg/datauri"
	"homework-helper/backend/pkg/observability"
)

const defaultGeminiURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiConfig configures the generateContent adapter
type GeminiConfig struct {
	APIKey      string
	Model       string
	URL         string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Gemini answers questions with the Generative Language REST API
type Gemini struct {
	config     GeminiConfig
	httpClient *http.Client
	metrics    *observability.PipelineMetrics
}

// NewGemini creates the adapter
func NewGemini(config GeminiConfig, metrics *observability.PipelineMetrics) *Gemini {
	if config.Model == "" {
		config.Model = "gemini-1.5-pro"
	}
	if config.URL == "" {
		config.URL = defaultGeminiURL
	}
	config.URL = strings.TrimRight(config.URL, "/")
	return &Gemini{
		config:     config,
		httpClient: &http.Client{},
		metrics:    metrics,
	}
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiRequest struct {
	Contents          []geminiContent       `json:"contents"`
	SystemInstruction *geminiContent        `json:"systemInstruction,omitempty"`
	SafetySettings    []geminiSafetySetting `json:"safetySettings"`
	GenerationConfig  struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

var geminiHarmCategories = []string{
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

// GenerateAnswer implements Generator
func (g *Gemini) GenerateAnswer(ctx context.Context, content, imageBase64 string) (string, error) {
	return call(ctx, "gemini", g.config.Timeout, g.metrics, func(ctx context.Context) (string, error) {
		return g.generate(ctx, content, imageBase64)
	})
}

func (g *Gemini) buildRequest(content, imageBase64 string) geminiRequest {
	parts := []geminiPart{{Text: questionText(content, imageBase64)}}
	if imageBase64 != "" {
		mime, payload := datauri.Split(imageBase64)
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{MimeType: mime, Data: payload}})
	}

	req := geminiRequest{
		Contents:          []geminiContent{{Role: "user", Parts: parts}},
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: SystemPrompt}}},
	}
	for _, category := range geminiHarmCategories {
		req.SafetySettings = append(req.SafetySettings, geminiSafetySetting{
			Category:  category,
			Threshold: "BLOCK_MEDIUM_AND_ABOVE",
		})
	}
	req.GenerationConfig.Temperature = g.config.Temperature
	req.GenerationConfig.MaxOutputTokens = g.config.MaxTokens
	return req
}

func (g *Gemini) generate(ctx context.Context, content, imageBase64 string) (string, error) {
	if g.config.APIKey == "" {
		return "", fmt.Errorf("Gemini API key is not configured")
	}

	jsonData, err := json.Marshal(g.buildRequest(content, imageBase64))
	if err != nil {
		return "", fmt.Errorf("error marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.config.URL, g.config.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.config.APIKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error making API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response body: %w", err)
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("API request failed with status code %d", resp.StatusCode)
		}
		return "", fmt.Errorf("error unmarshaling response: %w", err)
	}

	if geminiResp.Error != nil {
		return "", fmt.Errorf("API error (%s): %s", geminiResp.Error.Status, geminiResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API request failed with status code %d", resp.StatusCode)
	}

	if len(geminiResp.Candidates) == 0 {
		return "", nil
	}
	var sb strings.Builder
	for _, part := range geminiResp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}
