package httpapi

import (
	"net/http"
)

// NewRouter wires the full API surface. streamHandler serves the websocket
// subscription endpoint; pass nil to omit it.
func NewRouter(svc *Service, streamHandler http.HandlerFunc) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", svc.handleIngestEvent)
	mux.HandleFunc("/events/recent", svc.handleRecentEvents)
	mux.HandleFunc("/events/filter-options", svc.handleFilterOptions)
	mux.HandleFunc("/subagents/register", svc.handleRegisterAgent)
	mux.HandleFunc("/subagents/update-completion", svc.handleUpdateCompletion)
	mux.HandleFunc("/subagents/message", svc.handleSendMessage)
	mux.HandleFunc("/subagents/unread", svc.handleUnread)
	mux.HandleFunc("/subagents/messages", svc.handleRecentMessages)
	mux.HandleFunc("/subagents/", svc.handleAgentSubtree)
	mux.HandleFunc("/sessions", svc.handleListSessions)
	if streamHandler != nil {
		mux.Handle("/stream", streamHandler)
	}
	return CORS(mux)
}
