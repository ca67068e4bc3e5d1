// Package mailrelay forwards queued mail to an HTTP mail relay (an SMTP gateway exposing a JSON
// send endpoint).
package mailrelay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"identity-core/backend/internal/notify"
)

const defaultTimeout = 10 * time.Second

// sendRequest is the relay's request body.
type sendRequest struct {
	From    string            `json:"from"`
	To      []string          `json:"to"`
	Subject string            `json:"subject"`
	Text    string            `json:"text"`
	Headers map[string]string `json:"headers,omitempty"`
}

var headerSanitize = regexp.MustCompile(`[^a-zA-Z0-9_\-:.@]`)

// Client posts messages to BaseURL + "/send".
type Client struct {
	BaseURL    string
	Source     string // value of the X-Mail-Source header; identifies this service to the relay
	HTTPClient *http.Client
}

// NewClient returns a relay client for baseURL.
func NewClient(baseURL, source string) *Client {
	return &Client{
		BaseURL:    baseURL,
		Source:     source,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// SendEmail delivers msg. Returns an error if the request fails or the relay answers non-2xx.
func (c *Client) SendEmail(ctx context.Context, msg notify.Message) error {
	if c.BaseURL == "" {
		return fmt.Errorf("mailrelay: base URL is empty")
	}
	body := sendRequest{
		From:    msg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Text:    msg.Text,
	}
	if src := headerSanitize.ReplaceAllString(strings.TrimSpace(c.Source), "_"); src != "" {
		body.Headers = map[string]string{"X-Mail-Source": src}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	url := strings.TrimSuffix(c.BaseURL, "/") + "/send"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("mailrelay: send returned %s", resp.Status)
	}
	return nil
}

// Forward decodes a queued message value and sends it.
func (c *Client) Forward(ctx context.Context, value []byte) error {
	msg, err := notify.DecodeMessage(value)
	if err != nil {
		return fmt.Errorf("mailrelay: %w", err)
	}
	return c.SendEmail(ctx, msg)
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient == nil {
		return http.DefaultClient
	}
	return c.HTTPClient
}
