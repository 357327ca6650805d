// Package whatsapp sends text messages through the WhatsApp Business Cloud
// API and normalizes Peruvian phone numbers.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

const countryCode = "51"

var digitsOnly = regexp.MustCompile(`^\d+$`)

// Config holds WhatsApp Cloud API credentials.
type Config struct {
	BaseURL       string // e.g. https://graph.facebook.com
	APIVersion    string // e.g. v19.0
	PhoneNumberID string
	AccessToken   string
	Timeout       time.Duration
}

// Client is a WhatsApp Cloud API sender.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// New creates a WhatsApp client.
func New(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type textPayload struct {
	Body string `json:"body"`
}

type messageRequest struct {
	MessagingProduct string      `json:"messaging_product"`
	RecipientType    string      `json:"recipient_type"`
	To               string      `json:"to"`
	Type             string      `json:"type"`
	Text             textPayload `json:"text"`
}

type messageResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendMessage posts one text message and returns the provider message id.
// Any transport error, non-2xx status or missing message id is a failure;
// the caller marks the reminder FALLIDO and never retries.
func (c *Client) SendMessage(ctx context.Context, to, body string) (string, error) {
	payload := messageRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             textPayload{Body: body},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/messages", c.cfg.BaseURL, c.cfg.APIVersion, c.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	c.logger.Info("sending whatsapp message",
		zap.String("to", to),
		zap.Int("length", len(body)),
	)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("whatsapp request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("whatsapp api returned %d: %s", resp.StatusCode, respBody)
	}

	var parsed messageResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Messages) == 0 || parsed.Messages[0].ID == "" {
		return "", fmt.Errorf("whatsapp response carried no message id")
	}

	return parsed.Messages[0].ID, nil
}

// FormatLocalPhone turns a 9-digit Peruvian local number into its
// country-code-prefixed form. Numbers already carrying the code pass
// through; anything else is returned unchanged.
func FormatLocalPhone(local string) string {
	local = strings.TrimSpace(local)
	if local == "" {
		return ""
	}

	if len(local) == 11 && local[:2] == countryCode && digitsOnly.MatchString(local) {
		return local
	}
	if len(local) == 9 && digitsOnly.MatchString(local) {
		return countryCode + local
	}
	return local
}

// LogSender logs messages instead of delivering them, for development and
// tests. It always succeeds with a synthetic provider id.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// SendMessage logs the message and returns a synthetic id.
func (s *LogSender) SendMessage(ctx context.Context, to, body string) (string, error) {
	s.logger.Info("logging whatsapp message (development mode)",
		zap.String("to", to),
		zap.String("body", body),
	)
	return fmt.Sprintf("dev-%d", time.Now().UnixNano()), nil
}
