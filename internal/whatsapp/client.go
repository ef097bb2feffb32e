// Package whatsapp is a thin HTTP client for the WhatsApp message provider.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Config holds provider credentials.
type Config struct {
	BaseURL string
	APIKey  string
}

// Client sends outbound messages through the provider API.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a provider client.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

type sendRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
}

// Send delivers one message and returns the provider's message id.
func (c *Client) Send(ctx context.Context, to, body string) (string, error) {
	if c.cfg.BaseURL == "" || c.cfg.APIKey == "" {
		return "", fmt.Errorf("whatsapp: base_url and api_key required")
	}
	payload, err := json.Marshal(sendRequest{To: to, Body: body})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("whatsapp send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("whatsapp send status: %d", resp.StatusCode)
	}
	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("whatsapp decode response: %w", err)
	}
	return out.MessageID, nil
}
