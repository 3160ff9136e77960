package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/windfall/engapp_service/internal/errors"
)

// AzureChatClient wraps the Azure OpenAI Chat Completions REST API.
type AzureChatClient struct {
	url    string
	apiKey string
	client *http.Client
}

type chatRequest struct {
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

// NewAzureChatClient creates a new Azure OpenAI Chat Completions client for
// one deployment, e.g. endpoint https://your-resource.openai.azure.com.
func NewAzureChatClient(endpoint, apiKey, deployment, apiVersion string) *AzureChatClient {
	u := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		strings.TrimRight(endpoint, "/"), url.PathEscape(deployment), url.QueryEscape(apiVersion))
	return &AzureChatClient{
		url:    u,
		apiKey: apiKey,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// Name identifies the provider in logs and metrics.
func (c *AzureChatClient) Name() string {
	return "azure"
}

// CompleteJSON sends a system prompt and user message in JSON mode and
// returns the assistant's response text.
func (c *AzureChatClient) CompleteJSON(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	if c.apiKey == "" {
		return "", errors.New(errors.ErrUpstreamService, "Azure OpenAI Chat credentials not configured")
	}

	reqBody := chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userMessage},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	bodyJSON, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(bodyJSON))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("azure openai chat api error %d: %s", resp.StatusCode, string(respBody))
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from azure openai")
	}

	return result.Choices[0].Message.Content, nil
}
