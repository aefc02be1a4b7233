package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Notifier delivers a text message to one chat webhook.
type Notifier interface {
	Name() string
	Send(ctx context.Context, message string) error
}

type webhookClient struct {
	name       string
	webhookURL string
	client     *http.Client
	payload    func(message string) any
	accepted   func(status int) bool
}

// NewSlackClient posts {"text": message} to a Slack incoming webhook.
func NewSlackClient(webhookURL string) Notifier {
	return &webhookClient{
		name:       "slack",
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		payload: func(message string) any {
			return map[string]string{"text": message}
		},
		accepted: func(status int) bool { return status == http.StatusOK },
	}
}

// NewDiscordClient posts {"content": message} to a Discord webhook.
func NewDiscordClient(webhookURL string) Notifier {
	return &webhookClient{
		name:       "discord",
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		payload: func(message string) any {
			return map[string]string{"content": message}
		},
		accepted: func(status int) bool {
			return status == http.StatusOK || status == http.StatusNoContent
		},
	}
}

func (c *webhookClient) Name() string { return c.name }

func (c *webhookClient) Send(ctx context.Context, message string) error {
	jsonData, err := json.Marshal(c.payload(message))
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if !c.accepted(resp.StatusCode) {
		return fmt.Errorf("%s: unexpected status code: %d", c.name, resp.StatusCode)
	}
	return nil
}
