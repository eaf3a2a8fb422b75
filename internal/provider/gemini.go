package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/0Reliance/maeple/internal/logging"
)

// GeminiClient implements Client using Google's Gemini API.
type GeminiClient struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGeminiClient creates a new Gemini completion client.
func NewGeminiClient(apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}

	if model == "" {
		model = "gemini-2.0-flash"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client:      client,
		model:       model,
		temperature: 0.1,
	}, nil
}

// CompleteText sends the prompt and returns the raw completion text.
// Responses are requested as JSON, but the output is still passed through
// normalization downstream since models do not always honor the MIME type.
func (c *GeminiClient) CompleteText(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	start := time.Now()
	result, err := c.client.Models.GenerateContent(ctx,
		c.model,
		contents,
		&genai.GenerateContentConfig{
			Temperature:      genai.Ptr(c.temperature),
			ResponseMIMEType: "application/json",
		},
	)
	if err != nil {
		return "", fmt.Errorf("Gemini completion failed: %w", err)
	}

	text := result.Text()
	logging.Provider("gemini completion model=%s duration=%v bytes=%d", c.model, time.Since(start), len(text))

	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no completion returned")
	}
	return text, nil
}

// Model returns the current model.
func (c *GeminiClient) Model() string {
	return c.model
}
