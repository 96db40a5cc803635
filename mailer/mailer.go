// Package mailer delivers transactional mail through a Resend-style
// HTTP API, with a logging no-op used when no API key is configured.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	atrium "github.com/atriumhq/atrium"
)

const defaultEndpoint = "https://api.resend.com/emails"

// Client sends mail through the HTTP API.
type Client struct {
	apiKey   string
	from     string
	endpoint string
	http     *http.Client
}

var _ atrium.Mailer = (*Client)(nil)

// Option configures the Client.
type Option func(*Client)

// WithEndpoint overrides the API endpoint. Intended for tests.
func WithEndpoint(u string) Option {
	return func(c *Client) { c.endpoint = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// New creates a Client. If apiKey is empty, a logging no-op mailer is
// returned instead so the rest of the service keeps working in
// development environments.
func New(apiKey, from string, logger *slog.Logger, opts ...Option) atrium.Mailer {
	if apiKey == "" {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("no mail API key configured, outbound mail will only be logged")
		return &logMailer{logger: logger}
	}

	c := &Client{
		apiKey:   apiKey,
		from:     from,
		endpoint: defaultEndpoint,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// Send delivers one message. A non-2xx response is an error; the body
// is truncated into the message for diagnosis.
func (c *Client) Send(ctx context.Context, to, subject, html string) error {
	payload, err := json.Marshal(sendRequest{
		From:    c.from,
		To:      []string{to},
		Subject: subject,
		HTML:    html,
	})
	if err != nil {
		return fmt.Errorf("atrium/mailer: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("atrium/mailer: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("atrium/mailer: sending: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("atrium/mailer: provider returned %d: %s", resp.StatusCode, body)
	}
	return nil
}

// logMailer records the send without delivering anything.
type logMailer struct {
	logger *slog.Logger
}

var _ atrium.Mailer = (*logMailer)(nil)

func (m *logMailer) Send(_ context.Context, to, subject, _ string) error {
	m.logger.Info("mail suppressed (no API key)", "to", to, "subject", subject)
	return nil
}
