package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mistakeknot/hivewatch/internal/core"
)

type sendMessageRequest struct {
	Sender string          `json:"sender"`
	Body   json.RawMessage `json:"message"`
}

type sendMessageResponse struct {
	ID int64 `json:"id"`
}

type apiMessage struct {
	Sender    string          `json:"sender"`
	Body      json.RawMessage `json:"message"`
	CreatedAt time.Time       `json:"created_at"`
	Notified  []string        `json:"notified,omitempty"`
}

func (s *Service) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidPayload(w)
		return
	}
	if strings.TrimSpace(req.Sender) == "" {
		writeStoreError(w, core.MissingField("sender"))
		return
	}
	if len(req.Body) == 0 {
		writeStoreError(w, core.MissingField("message"))
		return
	}
	if !json.Valid(req.Body) {
		writeStoreError(w, core.InvalidPayload("message"))
		return
	}

	msg, err := s.store.SendMessage(r.Context(), req.Sender, req.Body)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.publish(core.Notification{
		Type: core.NotifyAgentMessage,
		Data: apiMessage{Sender: msg.Sender, Body: msg.Body, CreatedAt: msg.CreatedAt},
	})
	writeJSON(w, http.StatusOK, sendMessageResponse{ID: msg.ID})
}

type unreadRequest struct {
	Name string `json:"name"`
}

type unreadResponse struct {
	Messages []apiMessage `json:"messages"`
}

// handleUnread consumes the recipient's unread messages: anything returned
// here will not be returned again.
func (s *Service) handleUnread(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req unreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidPayload(w)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeStoreError(w, core.MissingField("name"))
		return
	}

	msgs, err := s.store.UnreadMessages(r.Context(), req.Name)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	out := make([]apiMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, apiMessage{Sender: m.Sender, Body: m.Body, CreatedAt: m.CreatedAt})
	}
	writeJSON(w, http.StatusOK, unreadResponse{Messages: out})
}

// handleRecentMessages is the read-only global feed; it never marks anything
// notified.
func (s *Service) handleRecentMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	msgs, err := s.store.RecentMessages(r.Context(), limit)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	out := make([]apiMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, apiMessage{Sender: m.Sender, Body: m.Body, CreatedAt: m.CreatedAt, Notified: m.Notified})
	}
	writeJSON(w, http.StatusOK, out)
}
