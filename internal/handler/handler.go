package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/aria3ppp/alertmanager-telegram-webhook/internal/alert"
	"github.com/aria3ppp/alertmanager-telegram-webhook/internal/config"
	"github.com/aria3ppp/alertmanager-telegram-webhook/internal/telegram"
)

// maxBodySize is the maximum allowed request body size (5 MB).
// Alertmanager batches can be large, anything beyond this is rejected.
const maxBodySize = 5 << 20

// responseGrace is added to the worst-case batch duration when extending
// the write deadline of a webhook response.
const responseGrace = 10 * time.Second

// Handler handles HTTP requests for the webhook service
type Handler struct {
	Config    *config.Config
	Sender    telegram.Sender
	Markup    telegram.Markup
	Auth      *Credentials
	StartTime time.Time
	Version   string
	metrics   *Metrics
}

// New creates a new Handler with the given configuration
func New(cfg *config.Config, version string) (*Handler, error) {
	mode, err := telegram.ParseParseMode(cfg.Telegram.ParseMode)
	if err != nil {
		return nil, err
	}
	client := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, mode, cfg.Telegram.APIURL, cfg.Telegram.Timeout)
	return NewWithSender(cfg, client, version)
}

// NewWithSender creates a new Handler with a custom Sender (useful for testing)
func NewWithSender(cfg *config.Config, sender telegram.Sender, version string) (*Handler, error) {
	mode, err := telegram.ParseParseMode(cfg.Telegram.ParseMode)
	if err != nil {
		return nil, err
	}
	creds, err := NewCredentials(cfg.Webhook.Username, cfg.Webhook.Password)
	if err != nil {
		return nil, err
	}
	return &Handler{
		Config:    cfg,
		Sender:    sender,
		Markup:    telegram.MarkupFor(mode),
		Auth:      creds,
		StartTime: time.Now(),
		Version:   version,
		metrics:   NewMetrics(),
	}, nil
}

// RegisterRoutes registers all HTTP routes on the given mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.Ping)
	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("GET /metrics", h.metrics.Handler())

	var webhook http.Handler = http.HandlerFunc(h.Webhook)
	webhook = RequireBasicAuth(h.Auth, webhook)
	webhook = h.metrics.InstrumentWebhook(webhook)
	mux.Handle("POST /webhook", webhook)
}

// Ping handles the ping endpoint
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	if _, err := io.WriteString(w, "ping"); err != nil {
		slog.Error("ping: failed to write response", "error", err)
	}
}

// Health handles the health check endpoint
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.StartTime).Round(time.Second)
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: h.Version,
		Uptime:  uptime.String(),
	})
}

// Webhook handles an Alertmanager notification. Credentials are checked by
// RequireBasicAuth before this runs. Every alert in the batch is formatted
// and sent one at a time, in order; the first failed send ends the batch.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err != nil || !strings.EqualFold(mediaType, "application/json") {
		slog.Error("webhook: invalid Content-Type", "content_type", contentType)
		writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}

	defer func() {
		if err := r.Body.Close(); err != nil {
			slog.Error("webhook: failed to close request body", "error", err)
		}
	}()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		slog.Error("webhook: failed to read request body", "error", err)
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	batch, err := alert.ParseBatch(body)
	if err != nil {
		slog.Error("webhook: rejected payload", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	total := len(batch.Alerts)
	h.metrics.alertsReceived.Add(float64(total))
	slog.Info("webhook: received alerts",
		"count", total,
		"status", batch.Status,
		"receiver", batch.Receiver,
		"group_key", batch.GroupKey,
	)

	// Each send may take up to the client timeout; the response must still
	// be writable after the last one.
	if total > 0 {
		h.extendWriteDeadline(w, total)
	}

	// The batch is finished even if the caller goes away.
	ctx := context.WithoutCancel(r.Context())
	for i := range batch.Alerts {
		if err := h.sendAlert(ctx, &batch.Alerts[i]); err != nil {
			writeJSON(w, http.StatusBadGateway, RelayErrorResponse{
				ErrorResponse: ErrorResponse{
					Status: "error",
					Error:  fmt.Sprintf("alerts[%d]: %v", i, err),
				},
				Sent:  i,
				Total: total,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, WebhookResponse{Status: "success"})
}

// extendWriteDeadline moves the connection write deadline past the
// worst-case duration of n sequential sends.
func (h *Handler) extendWriteDeadline(w http.ResponseWriter, n int) {
	timeout := h.Config.Telegram.Timeout
	if timeout <= 0 {
		timeout = telegram.DefaultTimeout
	}
	deadline := time.Now().Add(time.Duration(n)*timeout + responseGrace)
	if err := http.NewResponseController(w).SetWriteDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
		slog.Warn("webhook: failed to extend write deadline", "error", err)
	}
}

func (h *Handler) sendAlert(ctx context.Context, a *alert.Alert) error {
	text := alert.FormatLimit(a, h.Markup, telegram.MaxMessageLength)

	if h.Config.DryRun {
		slog.Info("dry-run: would send message", "alertname", a.Name(), "text", text)
		return nil
	}

	start := time.Now()
	err := h.Sender.SendText(ctx, text)
	h.metrics.sendDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		h.metrics.messagesFailed.Inc()
		var apiErr *telegram.APIError
		if errors.As(err, &apiErr) {
			slog.Error("telegram: message rejected",
				"alertname", a.Name(),
				"status_code", apiErr.StatusCode,
				"error_code", apiErr.ErrorCode,
				"description", apiErr.Description,
			)
		} else {
			slog.Error("telegram: failed to send message", "alertname", a.Name(), "error", err)
		}
		return err
	}

	h.metrics.messagesSent.Inc()
	slog.Info("Message sent", "alertname", a.Name(), "status", a.Status)
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Status: "error", Error: msg})
}
