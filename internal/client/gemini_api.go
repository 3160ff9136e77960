package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiAPIClient wraps the Gemini Developer API client authenticated with
// an API key.
type GeminiAPIClient struct {
	client *genai.Client
	model  string
}

// NewGeminiAPIClient creates a new Gemini API client.
func NewGeminiAPIClient(ctx context.Context, apiKey string) (*GeminiAPIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key not configured")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiAPIClient{
		client: client,
		model:  "gemini-2.0-flash",
	}, nil
}

// WithModel sets the model to use.
func (c *GeminiAPIClient) WithModel(model string) *GeminiAPIClient {
	if model != "" {
		c.model = model
	}
	return c
}

// Close closes the client.
func (c *GeminiAPIClient) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// Name identifies the provider in logs and metrics.
func (c *GeminiAPIClient) Name() string {
	return "gemini"
}

// CompleteJSON asks the model for a JSON object answering prompt.
func (c *GeminiAPIClient) CompleteJSON(ctx context.Context, systemPrompt, prompt string) (string, error) {
	model := c.client.GenerativeModel(c.model)
	model.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt))
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(0.2)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini api: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini api: empty response")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String(), nil
}
