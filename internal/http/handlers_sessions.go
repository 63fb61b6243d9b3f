package httpapi

import (
	"net/http"

	"github.com/mistakeknot/hivewatch/internal/core"
)

func (s *Service) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sessions, err := s.store.ListSessions(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if sessions == nil {
		sessions = []core.SessionSummary{}
	}
	writeJSON(w, http.StatusOK, sessions)
}
