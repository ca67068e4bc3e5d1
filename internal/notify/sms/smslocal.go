// Package sms sends text messages through the SMS Local HTTP API.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"identity-core/backend/internal/notify"
)

const (
	defaultBaseURL = "https://www.smslocal.com/dev/bulkV2"
	defaultTimeout = 15 * time.Second
)

// SMSLocalClient sends SMS via the SMS Local bulk API.
type SMSLocalClient struct {
	APIKey     string
	BaseURL    string
	Sender     string
	HTTPClient *http.Client
}

// NewSMSLocalClient returns a client that uses the given API key and optional base URL/sender.
func NewSMSLocalClient(apiKey, baseURL, sender string) *SMSLocalClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &SMSLocalClient{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		Sender:     sender,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// SendSMS posts text to phone (digits, country code first). The provider's reason is returned in
// Result.Error on failure; the text itself is never included.
func (c *SMSLocalClient) SendSMS(ctx context.Context, phone, text string) notify.Result {
	if err := c.send(ctx, phone, text); err != nil {
		return notify.Result{Success: false, Error: err.Error()}
	}
	return notify.Result{Success: true}
}

func (c *SMSLocalClient) send(ctx context.Context, phone, text string) error {
	if c.APIKey == "" {
		return fmt.Errorf("sms: API key not configured")
	}
	body := map[string]string{
		"route":   "q",
		"numbers": phone,
		"message": text,
	}
	if c.Sender != "" {
		body["sender_id"] = c.Sender
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.APIKey)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("sms: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms: request failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}
