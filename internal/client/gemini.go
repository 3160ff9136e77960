package client

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiClient wraps the Google Vertex AI Gemini client.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a new Gemini client using Vertex AI and
// application default credentials.
func NewGeminiClient(ctx context.Context, projectID, location string) (*GeminiClient, error) {
	cfg := &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &GeminiClient{
		client: client,
		model:  "gemini-2.0-flash",
	}, nil
}

// WithModel sets the model to use.
func (c *GeminiClient) WithModel(model string) *GeminiClient {
	if model != "" {
		c.model = model
	}
	return c
}

// Name identifies the provider in logs and metrics.
func (c *GeminiClient) Name() string {
	return "vertex"
}

// CompleteJSON asks the model for a JSON object answering prompt.
func (c *GeminiClient) CompleteJSON(ctx context.Context, systemPrompt, prompt string) (string, error) {
	temperature := float32(0.2)
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       &temperature,
	})
	if err != nil {
		return "", fmt.Errorf("vertex gemini: %w", err)
	}
	return resp.Text(), nil
}
