// Package mail delivers transactional email through the hosted email
// dispatch function.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

var ErrMissingField = errors.New("missing required fields")

// Message is the request body the dispatch function accepts.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" || strings.TrimSpace(m.Subject) == "" || strings.TrimSpace(m.HTML) == "" {
		return ErrMissingField
	}
	return nil
}

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// HTTPSender posts messages as JSON to the dispatch function URL.
type HTTPSender struct {
	url    string
	apiKey string
	client *http.Client
}

func NewHTTPSender(url, apiKey string, timeout time.Duration) *HTTPSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSender{url: url, apiKey: apiKey, client: &http.Client{Timeout: timeout}}
}

func (s *HTTPSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			return fmt.Errorf("email dispatch returned %d: %s", resp.StatusCode, payload.Error)
		}
		return fmt.Errorf("email dispatch returned %d", resp.StatusCode)
	}
	return nil
}

// LogSender logs messages instead of sending them. Used when no dispatch URL
// is configured.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Email not sent (log sender)", "to", msg.To, "subject", msg.Subject)
	return nil
}
