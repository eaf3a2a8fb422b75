// Package provider is the boundary to the external LLM completion service.
// The provider is treated as untrusted and unreliable: it may time out, fail
// outright, or return arbitrarily formatted text. Nothing here interprets
// response content; that is the parse package's job.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/0Reliance/maeple/internal/logging"
)

// Client is the single operation consumed from the provider. No contract is
// assumed about the formatting of the returned text.
type Client interface {
	CompleteText(ctx context.Context, prompt string) (string, error)
}

// HTTPConfig holds configuration for the HTTP client.
type HTTPConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
	MaxRetries  int // retries on 429 responses
}

// DefaultHTTPConfig returns sensible defaults.
func DefaultHTTPConfig(apiKey string) HTTPConfig {
	return HTTPConfig{
		APIKey:      apiKey,
		BaseURL:     "https://api.anthropic.com/v1",
		Model:       "claude-sonnet-4-20250514",
		Timeout:     120 * time.Second,
		MaxTokens:   4096,
		Temperature: 0.1, // low temperature for structured output
		MaxRetries:  3,
	}
}

// HTTPClient implements Client against an Anthropic-style messages endpoint.
type HTTPClient struct {
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	maxRetries  int
	httpClient  *http.Client

	mu          sync.Mutex
	lastRequest time.Time
}

// NewHTTPClient creates a client with default config.
func NewHTTPClient(apiKey string) *HTTPClient {
	return NewHTTPClientWithConfig(DefaultHTTPConfig(apiKey))
}

// NewHTTPClientWithConfig creates a client with custom config.
func NewHTTPClientWithConfig(cfg HTTPConfig) *HTTPClient {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	return &HTTPClient{
		apiKey:      cfg.APIKey,
		baseURL:     cfg.BaseURL,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		maxRetries:  cfg.MaxRetries,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// apiRequest represents the messages API request structure.
type apiRequest struct {
	Model       string       `json:"model"`
	MaxTokens   int          `json:"max_tokens"`
	Messages    []apiMessage `json:"messages"`
	Temperature float64      `json:"temperature,omitempty"`
}

// apiMessage represents a message in the conversation.
type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// apiResponse represents the messages API response structure.
type apiResponse struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// CompleteText sends the prompt and returns the raw completion text.
func (c *HTTPClient) CompleteText(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("API key not configured")
	}

	// Rate limiting: at least 500ms between requests.
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < 500*time.Millisecond {
		time.Sleep(500*time.Millisecond - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	reqBody := apiRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []apiMessage{
			{Role: "user", Content: prompt},
		},
		Temperature: c.temperature,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	// Retry loop for 429 responses.
	var lastErr error
	for i := 0; i <= c.maxRetries; i++ {
		if i > 0 {
			// Exponential backoff: 1s, 2s, 4s.
			backoff := time.Duration(1<<uint(i-1)) * time.Second
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		text, retryable, err := c.doRequest(ctx, jsonData)
		if err == nil {
			return text, nil
		}
		if !retryable {
			return "", err
		}
		lastErr = err
		logging.ProviderDebug("retryable provider error (attempt %d/%d): %v", i+1, c.maxRetries+1, err)
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// doRequest performs one HTTP round trip. The second return reports whether
// the failure is retryable (rate limit or transport error).
func (c *HTTPClient) doRequest(ctx context.Context, jsonData []byte) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/messages", bytes.NewReader(jsonData))
	if err != nil {
		return "", false, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", true, fmt.Errorf("failed to read response: %w", err)
	}

	logging.Provider("completion status=%d duration=%v bytes=%d", resp.StatusCode, time.Since(start), len(body))

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", true, fmt.Errorf("rate limit exceeded (429)")
	}
	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", false, fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.Error != nil {
		return "", false, fmt.Errorf("API error: %s", parsed.Error.Message)
	}
	if len(parsed.Content) == 0 {
		return "", false, fmt.Errorf("no completion returned")
	}

	var result strings.Builder
	for _, content := range parsed.Content {
		if content.Type == "text" {
			result.WriteString(content.Text)
		}
	}
	return strings.TrimSpace(result.String()), false, nil
}

// SetModel changes the model used for completions.
func (c *HTTPClient) SetModel(model string) {
	c.model = model
}

// Model returns the current model.
func (c *HTTPClient) Model() string {
	return c.model
}
