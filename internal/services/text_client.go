package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPTextClient is an HTTP implementation of the TextClient interface,
// talking to an OpenAI-compatible chat completions endpoint.
type HTTPTextClient struct {
	url    string
	client *http.Client
}

// NewHTTPTextClient creates a new HTTPTextClient.
func NewHTTPTextClient(url string) *HTTPTextClient {
	return &HTTPTextClient{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages []chatMessage `json:"messages"`
}

// Summarize sends text as a single user message and returns the decoded
// response body.
func (c *HTTPTextClient) Summarize(ctx context.Context, text string) (map[string]any, error) {
	requestBody, err := json.Marshal(chatRequest{
		Messages: []chatMessage{{Role: "user", Content: text}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/chat/completions", bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to summarize text: status code %d", resp.StatusCode)
	}

	var response map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return response, nil
}
