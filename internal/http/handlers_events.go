package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/mistakeknot/hivewatch/internal/core"
	"github.com/mistakeknot/hivewatch/internal/storage"
)

type ingestEventRequest struct {
	SourceApp     string          `json:"source_app"`
	SessionID     string          `json:"session_id"`
	HookEventType string          `json:"hook_event_type"`
	Payload       json.RawMessage `json:"payload"`
	Chat          json.RawMessage `json:"chat,omitempty"`
	Summary       string          `json:"summary,omitempty"`
	Timestamp     *int64          `json:"timestamp,omitempty"` // epoch ms; defaults to now
}

func (s *Service) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req ingestEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidPayload(w)
		return
	}
	ev := core.Event{
		SourceApp:     req.SourceApp,
		SessionID:     req.SessionID,
		HookEventType: req.HookEventType,
		Payload:       req.Payload,
		Chat:          req.Chat,
		Summary:       req.Summary,
	}
	if req.Timestamp != nil {
		ev.Timestamp = time.UnixMilli(*req.Timestamp).UTC()
	}
	stored, err := s.store.AppendEvent(r.Context(), ev)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.publish(core.Notification{Type: core.NotifyEvent, SessionID: stored.SessionID, Data: stored})
	writeJSON(w, http.StatusOK, stored)
}

func (s *Service) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	f := storage.EventFilter{
		SourceApp:     q.Get("source_app"),
		SessionID:     q.Get("session_id"),
		HookEventType: q.Get("hook_event_type"),
		Limit:         100,
		Descending:    q.Get("order") == "desc",
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			f.Limit = n
		}
	}
	if v := q.Get("since_id"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.SinceID = n
		}
	}
	events, err := s.store.QueryEvents(r.Context(), f)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if events == nil {
		events = []core.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Service) handleFilterOptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	opts, err := s.store.FilterOptions(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if opts.SourceApps == nil {
		opts.SourceApps = []string{}
	}
	if opts.SessionIDs == nil {
		opts.SessionIDs = []string{}
	}
	if opts.HookEventTypes == nil {
		opts.HookEventTypes = []string{}
	}
	writeJSON(w, http.StatusOK, opts)
}
