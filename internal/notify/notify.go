// Package notify posts delivered message summaries to a webhook.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"mailwatch/pkg/message"
)

const webhookNotifyPath = "/notifications"

type Option func(*webhookNotifier)

// WithWebhookURL sets the base URL notifications are posted under.
func WithWebhookURL(webhookURL string) Option {
	return func(n *webhookNotifier) {
		n.baseURL = strings.TrimSpace(webhookURL)
	}
}

// WithHTTPClient overrides the HTTP client used for posting.
func WithHTTPClient(client *http.Client) Option {
	return func(n *webhookNotifier) {
		n.client = client
	}
}

type webhookNotifier struct {
	baseURL string
	client  *http.Client
}

func New(opts ...Option) *webhookNotifier {
	notifier := &webhookNotifier{
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(notifier)
	}
	return notifier
}

// Notify posts a summary of msg. It is a no-op when no URL is configured.
func (n *webhookNotifier) Notify(msg message.Message) error {
	if n.baseURL == "" {
		return nil
	}
	baseURL := strings.TrimRight(n.baseURL, "/")

	payload, err := json.Marshal(map[string]any{
		"message": fmt.Sprintf("New mail from %q: %q", msg.Sender, msg.Subject),
		"uid":     msg.UID,
		"date":    msg.Date.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+webhookNotifyPath, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification webhook returned status %s", resp.Status)
	}
	return nil
}
