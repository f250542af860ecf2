// Command mock-telegram is a stand-in for the Telegram Bot API used in
// local end-to-end runs. It accepts sendMessage calls for any token and
// keeps them in memory for inspection.
//
//	GET    /messages   list received messages
//	DELETE /messages   clear the store
//	POST   /fail?n=N   reject the next N sendMessage calls with 400
package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"
)

// Message is one sendMessage call as received.
type Message struct {
	MessageID int64     `json:"message_id"`
	Token     string    `json:"token"`
	ChatID    string    `json:"chat_id"`
	Text      string    `json:"text"`
	ParseMode string    `json:"parse_mode,omitempty"`
	Date      time.Time `json:"date"`
}

type sendMessageRequest struct {
	ChatID    json.RawMessage `json:"chat_id"`
	Text      string          `json:"text"`
	ParseMode string          `json:"parse_mode"`
}

// MessageStore stores sent messages for verification
type MessageStore struct {
	mu       sync.RWMutex
	messages []Message
	nextID   int64
	failNext int
}

// Add records msg and assigns it the next message id.
func (s *MessageStore) Add(msg Message) Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	msg.MessageID = s.nextID
	s.messages = append(s.messages, msg)
	return msg
}

func (s *MessageStore) GetAll() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]Message, len(s.messages))
	copy(result, s.messages)
	return result
}

func (s *MessageStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.failNext = 0
}

// FailNext makes the next n sendMessage calls fail.
func (s *MessageStore) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

func (s *MessageStore) takeFailure() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext > 0 {
		s.failNext--
		return true
	}
	return false
}

type apiResponse struct {
	OK          bool     `json:"ok"`
	ErrorCode   int      `json:"error_code,omitempty"`
	Description string   `json:"description,omitempty"`
	Result      *Message `json:"result,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// newMux returns the mock API routes backed by store.
func newMux(store *MessageStore) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("mock-telegram healthy"))
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("mock-telegram healthy"))
	})

	mux.HandleFunc("GET /messages", func(w http.ResponseWriter, r *http.Request) {
		messages := store.GetAll()
		writeJSON(w, http.StatusOK, map[string]any{
			"count":    len(messages),
			"messages": messages,
		})
	})
	mux.HandleFunc("DELETE /messages", func(w http.ResponseWriter, r *http.Request) {
		store.Clear()
		w.WriteHeader(http.StatusNoContent)
		slog.Info("message store cleared")
	})

	mux.HandleFunc("POST /fail", func(w http.ResponseWriter, r *http.Request) {
		n := 1
		if v := r.URL.Query().Get("n"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil || parsed < 0 {
				http.Error(w, "n must be a non-negative integer", http.StatusBadRequest)
				return
			}
			n = parsed
		}
		store.FailNext(n)
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /{bot}/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		bot := r.PathValue("bot")
		if len(bot) <= len("bot") || bot[:3] != "bot" {
			writeJSON(w, http.StatusNotFound, apiResponse{ErrorCode: 404, Description: "Not Found"})
			return
		}

		var req sendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, apiResponse{ErrorCode: 400, Description: "Bad Request: invalid JSON"})
			return
		}
		chatID := string(req.ChatID)
		if unquoted, err := strconv.Unquote(chatID); err == nil {
			chatID = unquoted
		}
		if chatID == "" {
			writeJSON(w, http.StatusBadRequest, apiResponse{ErrorCode: 400, Description: "Bad Request: chat_id is empty"})
			return
		}
		if req.Text == "" {
			writeJSON(w, http.StatusBadRequest, apiResponse{ErrorCode: 400, Description: "Bad Request: message text is empty"})
			return
		}
		if store.takeFailure() {
			writeJSON(w, http.StatusBadRequest, apiResponse{ErrorCode: 400, Description: "Bad Request: chat not found"})
			return
		}

		msg := store.Add(Message{
			Token:     bot[3:],
			ChatID:    chatID,
			Text:      req.Text,
			ParseMode: req.ParseMode,
			Date:      time.Now().UTC(),
		})
		slog.Info("received sendMessage", "chat_id", chatID, "parse_mode", req.ParseMode, "message_id", msg.MessageID)
		writeJSON(w, http.StatusOK, apiResponse{OK: true, Result: &msg})
	})

	return mux
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	slog.Info("mock Telegram server starting", "port", port)
	if err := http.ListenAndServe(":"+port, newMux(&MessageStore{})); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
