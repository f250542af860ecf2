// Package telegram sends formatted alert text to a single Telegram chat
// through the Bot API sendMessage method.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	// DefaultAPIURL is the public Bot API endpoint.
	DefaultAPIURL = "https://api.telegram.org"
	// MaxMessageLength is the longest text sendMessage accepts.
	MaxMessageLength = 4096
	// DefaultTimeout bounds one sendMessage call when no timeout is set.
	DefaultTimeout = 30 * time.Second
)

// Sender is an interface for sending text messages
type Sender interface {
	SendText(ctx context.Context, text string) error
}

// Client sends messages to one chat via the Bot API.
type Client struct {
	http      *resty.Client
	token     string
	chatID    string
	parseMode ParseMode
}

// NewClient creates a new Client for chatID.
// If baseURL is empty, defaults to the official Bot API URL. A zero timeout
// uses the 30s default.
func NewClient(token, chatID string, mode ParseMode, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json").
			SetLogger(restyLogger{}),
		token:     token,
		chatID:    chatID,
		parseMode: mode,
	}
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

// APIError is returned when the Bot API rejects a request.
type APIError struct {
	StatusCode  int
	ErrorCode   int
	Description string
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("telegram: API error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("telegram: API error (status %d): %s", e.StatusCode, e.Description)
}

// SendText sends text to the configured chat. It makes exactly one
// request and does not retry.
func (c *Client) SendText(ctx context.Context, text string) error {
	var out apiResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(sendMessageRequest{
			ChatID:    c.chatID,
			Text:      text,
			ParseMode: string(c.parseMode),
		}).
		SetResult(&out).
		SetError(&out).
		Post("/bot" + c.token + "/sendMessage")
	if err != nil {
		return fmt.Errorf("telegram: failed to send HTTP request: %w", c.redact(err))
	}

	if resp.IsError() || !out.OK {
		apiErr := &APIError{
			StatusCode:  resp.StatusCode(),
			ErrorCode:   out.ErrorCode,
			Description: out.Description,
		}
		if apiErr.Description == "" && resp.IsError() {
			apiErr.Description = strings.TrimSpace(resp.String())
		}
		return apiErr
	}

	slog.Debug("telegram: message sent", "chat_id", c.chatID, "message_id", out.Result.MessageID)
	return nil
}

// redactedError hides the bot token, which is part of every request URL.
type redactedError struct {
	err   error
	token string
}

func (e *redactedError) Error() string {
	return strings.ReplaceAll(e.err.Error(), e.token, "<redacted>")
}

func (e *redactedError) Unwrap() error { return e.err }

func (c *Client) redact(err error) error {
	if c.token == "" {
		return err
	}
	return &redactedError{err: err, token: c.token}
}

// restyLogger routes resty's internal messages to slog.
type restyLogger struct{}

func (restyLogger) Errorf(format string, v ...any) {
	slog.Error("telegram: " + fmt.Sprintf(format, v...))
}

func (restyLogger) Warnf(format string, v ...any) {
	slog.Warn("telegram: " + fmt.Sprintf(format, v...))
}

func (restyLogger) Debugf(format string, v ...any) {
	slog.Debug("telegram: " + fmt.Sprintf(format, v...))
}
