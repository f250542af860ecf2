package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aria3ppp/alertmanager-telegram-webhook/internal/telegram"
)

const highCPUPayload = `{"alerts":[{"status":"firing","labels":{"severity":"critical"},"annotations":{"summary":"High CPU"}}]}`

// postWebhook sends body through the full route table, auth included.
func postWebhook(h *Handler, body, username, password, contentType string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if username != "" || password != "" {
		req.SetBasicAuth(username, password)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestWebhook(t *testing.T) {
	tests := []struct {
		name          string
		payload       string
		username      string
		password      string
		contentType   string
		mockErr       error
		wantStatus    int
		wantCallCount int
		checkBody     func(t *testing.T, body []byte)
		checkCalls    func(t *testing.T, mock *MockSender)
	}{
		{
			name:          "success",
			payload:       highCPUPayload,
			username:      testUsername,
			password:      testPassword,
			wantStatus:    http.StatusOK,
			wantCallCount: 1,
			checkBody: func(t *testing.T, body []byte) {
				if strings.TrimSpace(string(body)) != `{"status":"success"}` {
					t.Errorf("unexpected body %q", body)
				}
			},
			checkCalls: func(t *testing.T, mock *MockSender) {
				text := mock.GetCall(0)
				for _, want := range []string{"Alert: FIRING", "Summary: High CPU", "Description: N/A", "- severity: critical"} {
					if !strings.Contains(text, want) {
						t.Errorf("expected message to contain %q, got %q", want, text)
					}
				}
				expected := "*Alert: FIRING*\nSummary: High CPU\nDescription: N/A\n\nLabels:\n- severity: critical\n"
				if text != expected {
					t.Errorf("expected message %q, got %q", expected, text)
				}
			},
		},
		{
			name:       "wrong password",
			payload:    highCPUPayload,
			username:   testUsername,
			password:   "wrong",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "unknown user",
			payload:    highCPUPayload,
			username:   "someone",
			password:   testPassword,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "missing credentials",
			payload:    highCPUPayload,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "bad credentials are checked before the body",
			payload:    `not json at all`,
			username:   testUsername,
			password:   "wrong",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:        "invalid content type",
			payload:     highCPUPayload,
			username:    testUsername,
			password:    testPassword,
			contentType: "text/plain",
			wantStatus:  http.StatusUnsupportedMediaType,
		},
		{
			name:          "content type with charset",
			payload:       highCPUPayload,
			username:      testUsername,
			password:      testPassword,
			contentType:   "application/json; charset=utf-8",
			wantStatus:    http.StatusOK,
			wantCallCount: 1,
		},
		{
			name:          "content type case insensitive",
			payload:       highCPUPayload,
			username:      testUsername,
			password:      testPassword,
			contentType:   "Application/JSON",
			wantStatus:    http.StatusOK,
			wantCallCount: 1,
		},
		{
			name:       "missing status",
			payload:    `{"alerts":[{"labels":{},"annotations":{}}]}`,
			username:   testUsername,
			password:   testPassword,
			wantStatus: http.StatusBadRequest,
			checkBody: func(t *testing.T, body []byte) {
				var resp ErrorResponse
				if err := json.Unmarshal(body, &resp); err != nil {
					t.Fatalf("failed to decode response: %v", err)
				}
				if resp.Status != "error" {
					t.Errorf("expected status 'error', got %q", resp.Status)
				}
				if !strings.Contains(resp.Error, "alerts[0].status") {
					t.Errorf("expected error to name alerts[0].status, got %q", resp.Error)
				}
			},
		},
		{
			name:       "missing alerts",
			payload:    `{"status":"firing"}`,
			username:   testUsername,
			password:   testPassword,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "alerts not an array",
			payload:    `{"alerts":"not-an-array"}`,
			username:   testUsername,
			password:   testPassword,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid JSON",
			payload:    `{"alerts":[`,
			username:   testUsername,
			password:   testPassword,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bad element after a good one sends nothing",
			payload:    `{"alerts":[{"status":"firing"},{"labels":{}}]}`,
			username:   testUsername,
			password:   testPassword,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:          "empty batch",
			payload:       `{"alerts":[]}`,
			username:      testUsername,
			password:      testPassword,
			wantStatus:    http.StatusOK,
			wantCallCount: 0,
		},
		{
			name:          "telegram error",
			payload:       highCPUPayload,
			username:      testUsername,
			password:      testPassword,
			mockErr:       &telegram.APIError{StatusCode: 400, ErrorCode: 400, Description: "Bad Request: chat not found"},
			wantStatus:    http.StatusBadGateway,
			wantCallCount: 1,
			checkBody: func(t *testing.T, body []byte) {
				var resp RelayErrorResponse
				if err := json.Unmarshal(body, &resp); err != nil {
					t.Fatalf("failed to decode response: %v", err)
				}
				if resp.Sent != 0 || resp.Total != 1 {
					t.Errorf("expected sent 0 of 1, got %d of %d", resp.Sent, resp.Total)
				}
				if !strings.Contains(resp.Error, "chat not found") {
					t.Errorf("expected error to carry the API description, got %q", resp.Error)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockSender{}
			if tt.mockErr != nil {
				mock.SendTextFunc = func(ctx context.Context, text string) error {
					return tt.mockErr
				}
			}
			h := newTestHandler(t, testConfig(), mock)

			ct := "application/json"
			if tt.contentType != "" {
				ct = tt.contentType
			}

			w := postWebhook(h, tt.payload, tt.username, tt.password, ct)

			if w.Code != tt.wantStatus {
				t.Fatalf("status: got %d, want %d (body %q)", w.Code, tt.wantStatus, w.Body.String())
			}
			if mock.CallCount() != tt.wantCallCount {
				t.Fatalf("call count: got %d, want %d", mock.CallCount(), tt.wantCallCount)
			}
			if tt.checkBody != nil {
				tt.checkBody(t, w.Body.Bytes())
			}
			if tt.checkCalls != nil {
				tt.checkCalls(t, mock)
			}
		})
	}
}

func TestWebhook_Unauthorized(t *testing.T) {
	h := newTestHandler(t, testConfig(), &MockSender{})

	w := postWebhook(h, highCPUPayload, testUsername, "wrong", "application/json")

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if got := w.Header().Get("WWW-Authenticate"); got != `Basic realm="Authentication Required"` {
		t.Errorf("WWW-Authenticate: got %q", got)
	}
	if w.Body.String() != "Unauthorized Access" {
		t.Errorf("body: got %q", w.Body.String())
	}
}

func TestWebhook_SequentialInOrder(t *testing.T) {
	const n = 5

	var inFlight, maxInFlight atomic.Int32
	mock := &MockSender{
		SendTextFunc: func(ctx context.Context, text string) error {
			cur := inFlight.Add(1)
			defer inFlight.Add(-1)
			if cur > maxInFlight.Load() {
				maxInFlight.Store(cur)
			}
			time.Sleep(5 * time.Millisecond)
			return nil
		},
	}
	h := newTestHandler(t, testConfig(), mock)

	alerts := make([]string, 0, n)
	for i := range n {
		alerts = append(alerts, fmt.Sprintf(`{"status":"firing","labels":{"idx":"%d"},"annotations":{"summary":"alert %d"}}`, i, i))
	}
	payload := `{"alerts":[` + strings.Join(alerts, ",") + `]}`

	w := postWebhook(h, payload, testUsername, testPassword, "application/json")

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", w.Code, http.StatusOK)
	}
	if mock.CallCount() != n {
		t.Fatalf("call count: got %d, want %d", mock.CallCount(), n)
	}
	for i := range n {
		if !strings.Contains(mock.GetCall(i), fmt.Sprintf("Summary: alert %d\n", i)) {
			t.Errorf("call %d out of order: %q", i, mock.GetCall(i))
		}
	}
	if maxInFlight.Load() != 1 {
		t.Errorf("expected sends to be sequential, saw %d in flight", maxInFlight.Load())
	}
}

func TestWebhook_StopsAtFirstFailure(t *testing.T) {
	mock := &MockSender{
		SendTextFunc: func(ctx context.Context, text string) error {
			if strings.Contains(text, "Summary: second") {
				return errors.New("connection reset")
			}
			return nil
		},
	}
	h := newTestHandler(t, testConfig(), mock)

	payload := `{"alerts":[
		{"status":"firing","annotations":{"summary":"first"}},
		{"status":"firing","annotations":{"summary":"second"}},
		{"status":"firing","annotations":{"summary":"third"}}
	]}`

	w := postWebhook(h, payload, testUsername, testPassword, "application/json")

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status: got %d, want %d", w.Code, http.StatusBadGateway)
	}
	if mock.CallCount() != 2 {
		t.Fatalf("call count: got %d, want 2 (third alert must not be sent)", mock.CallCount())
	}

	var resp RelayErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Sent != 1 || resp.Total != 3 {
		t.Errorf("expected sent 1 of 3, got %d of %d", resp.Sent, resp.Total)
	}
	if !strings.HasPrefix(resp.Error, "alerts[1]:") {
		t.Errorf("expected error for alerts[1], got %q", resp.Error)
	}
}

func TestWebhook_ContextSurvivesCallerCancel(t *testing.T) {
	mock := &MockSender{
		SendTextFunc: func(ctx context.Context, text string) error {
			return ctx.Err()
		},
	}
	h := newTestHandler(t, testConfig(), mock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewBufferString(highCPUPayload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.Webhook(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", w.Code, http.StatusOK)
	}
}

func TestWebhook_DryRun(t *testing.T) {
	cfg := testConfig()
	cfg.DryRun = true
	mock := &MockSender{}
	h := newTestHandler(t, cfg, mock)

	w := postWebhook(h, highCPUPayload, testUsername, testPassword, "application/json")

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", w.Code, http.StatusOK)
	}
	if mock.CallCount() != 0 {
		t.Errorf("dry-run must not send, got %d calls", mock.CallCount())
	}
}

func TestWebhook_TruncatesLongMessages(t *testing.T) {
	tests := []struct {
		parseMode string
		suffix    string
		checkTail func(t *testing.T, body string)
	}{
		{
			parseMode: "Markdown",
			suffix:    "...",
			checkTail: func(t *testing.T, body string) {
				checkBackslashEscapes(t, body, "_*`[")
			},
		},
		{
			parseMode: "MarkdownV2",
			suffix:    `\.\.\.`,
			checkTail: func(t *testing.T, body string) {
				checkBackslashEscapes(t, body, "_*[]()~`>#+-=|{}.!")
			},
		},
		{
			parseMode: "HTML",
			suffix:    "...",
			checkTail: func(t *testing.T, body string) {
				if strings.ContainsAny(body, "<>") {
					t.Errorf("body contains a raw tag character")
				}
				for i := strings.Index(body, "&"); i >= 0; {
					if !strings.HasPrefix(body[i:], "&amp;") {
						t.Fatalf("split or unknown entity at %d: %q", i, body[i:min(i+6, len(body))])
					}
					next := strings.Index(body[i+1:], "&")
					if next < 0 {
						break
					}
					i += 1 + next
				}
			},
		},
		{
			parseMode: "none",
			suffix:    "...",
			checkTail: func(t *testing.T, body string) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.parseMode, func(t *testing.T) {
			cfg := testConfig()
			cfg.Telegram.ParseMode = tt.parseMode

			// Shift the cut across a few prefix lengths.
			for pad := range 3 {
				mock := &MockSender{}
				h := newTestHandler(t, cfg, mock)

				desc := strings.Repeat("x", pad) + strings.Repeat("a&_.", 3000)
				payload := `{"alerts":[{"status":"firing","annotations":{"description":"` + desc + `"}}]}`

				w := postWebhook(h, payload, testUsername, testPassword, "application/json")
				if w.Code != http.StatusOK {
					t.Fatalf("status: got %d, want %d", w.Code, http.StatusOK)
				}

				text := mock.GetCall(0)
				if n := len([]rune(text)); n > telegram.MaxMessageLength {
					t.Errorf("expected at most %d characters, got %d", telegram.MaxMessageLength, n)
				}
				if !strings.HasSuffix(text, tt.suffix) {
					t.Fatalf("expected message to end with %q, tail %q", tt.suffix, text[len(text)-16:])
				}
				_, body, _ := strings.Cut(strings.TrimSuffix(text, tt.suffix), "\n")
				tt.checkTail(t, body)
			}
		})
	}
}

// checkBackslashEscapes fails if any character of reserved appears in s
// without a preceding backslash, or if s ends inside an escape.
func checkBackslashEscapes(t *testing.T, s, reserved string) {
	t.Helper()
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '\\':
			if i+1 == len(s) {
				t.Fatalf("dangling backslash at end of %q", s[max(0, len(s)-16):])
			}
			i++
		case strings.IndexByte(reserved, s[i]) >= 0:
			t.Fatalf("unescaped %q at %d in %q", s[i], i, s[max(0, i-8):min(len(s), i+8)])
		}
	}
}

func TestWebhook_ResponseOutlivesServerWriteTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Telegram.Timeout = 150 * time.Millisecond
	mock := &MockSender{
		SendTextFunc: func(ctx context.Context, text string) error {
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	h := newTestHandler(t, cfg, mock)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	srv := httptest.NewUnstartedServer(LogRequests("simple", mux))
	srv.Config.WriteTimeout = 200 * time.Millisecond
	srv.Start()
	defer srv.Close()

	payload := `{"alerts":[{"status":"firing"},{"status":"firing"},{"status":"firing"}]}`
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/webhook", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(testUsername, testPassword)

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("response lost after %d sends: %v", mock.CallCount(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status: got %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if mock.CallCount() != 3 {
		t.Errorf("call count: got %d, want 3", mock.CallCount())
	}
}

func TestWebhook_BodySizeLimitEnforced(t *testing.T) {
	mock := &MockSender{}
	h := newTestHandler(t, testConfig(), mock)

	largePayload := make([]byte, maxBodySize+1000)
	for i := range largePayload {
		largePayload[i] = 'x'
	}

	w := postWebhook(h, string(largePayload), testUsername, testPassword, "application/json")

	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", w.Code, http.StatusBadRequest)
	}
	if mock.CallCount() != 0 {
		t.Errorf("call count: got %d, want 0", mock.CallCount())
	}
}
