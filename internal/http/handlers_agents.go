package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mistakeknot/hivewatch/internal/core"
)

type registerAgentRequest struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
	AgentKind string `json:"agent_kind"`
}

type registerAgentResponse struct {
	ID int64 `json:"id"`
}

func (s *Service) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req registerAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidPayload(w)
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeStoreError(w, core.MissingField("session_id"))
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeStoreError(w, core.MissingField("name"))
		return
	}
	if strings.TrimSpace(req.AgentKind) == "" {
		writeStoreError(w, core.MissingField("agent_kind"))
		return
	}

	agent, err := s.store.RegisterAgent(r.Context(), req.SessionID, req.Name, req.AgentKind)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.publish(core.Notification{
		Type:      core.NotifyAgentRegistered,
		SessionID: agent.SessionID,
		Data:      agent,
	})
	writeJSON(w, http.StatusOK, registerAgentResponse{ID: agent.ID})
}

type updateCompletionRequest struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
	core.CompletionUpdate
}

func (s *Service) handleUpdateCompletion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req updateCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidPayload(w)
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeStoreError(w, core.MissingField("session_id"))
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeStoreError(w, core.MissingField("name"))
		return
	}

	ok, err := s.store.UpdateCompletion(r.Context(), req.SessionID, req.Name, req.CompletionUpdate)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !ok {
		writeNotFound(w)
		return
	}
	s.publish(core.Notification{
		Type:      core.NotifyAgentStatusUpdate,
		SessionID: req.SessionID,
		Data: map[string]any{
			"session_id": req.SessionID,
			"name":       req.Name,
			"update":     req.CompletionUpdate,
		},
	})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleAgentSubtree dispatches /subagents/{session_id} and
// /subagents/{session_id}/{name}[/full] by method and path shape.
func (s *Service) handleAgentSubtree(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/subagents/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] != "" && r.Method == http.MethodGet:
		s.listAgents(w, r, parts[0])
	case len(parts) == 2 && r.Method == http.MethodPatch:
		s.patchAgentText(w, r, parts[0], parts[1])
	case len(parts) == 3 && parts[2] == "full" && r.Method == http.MethodGet:
		s.getAgentFull(w, r, parts[0], parts[1])
	case len(parts) >= 1 && parts[0] == "":
		w.WriteHeader(http.StatusBadRequest)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Service) listAgents(w http.ResponseWriter, r *http.Request, sessionID string) {
	agents, err := s.store.ListAgents(r.Context(), sessionID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if agents == nil {
		agents = []core.Agent{}
	}
	writeJSON(w, http.StatusOK, agents)
}

func (s *Service) getAgentFull(w http.ResponseWriter, r *http.Request, sessionID, name string) {
	detail, err := s.store.GetAgent(r.Context(), sessionID, name)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

type patchAgentRequest struct {
	InitialPrompt *string `json:"initial_prompt,omitempty"`
	FinalResponse *string `json:"final_response,omitempty"`
}

func (s *Service) patchAgentText(w http.ResponseWriter, r *http.Request, sessionID, name string) {
	var req patchAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidPayload(w)
		return
	}
	if req.InitialPrompt == nil && req.FinalResponse == nil {
		writeStoreError(w, core.MissingField("initial_prompt or final_response"))
		return
	}
	// Validate both fields up front so a rejected request applies nothing.
	if req.InitialPrompt != nil {
		if err := core.CheckTextLen("initial_prompt", *req.InitialPrompt); err != nil {
			writeStoreError(w, err)
			return
		}
	}
	if req.FinalResponse != nil {
		if err := core.CheckTextLen("final_response", *req.FinalResponse); err != nil {
			writeStoreError(w, err)
			return
		}
	}

	var updated []string
	if req.InitialPrompt != nil {
		ok, err := s.store.SetPrompt(r.Context(), sessionID, name, *req.InitialPrompt)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		if !ok {
			writeNotFound(w)
			return
		}
		updated = append(updated, "initial_prompt")
	}
	if req.FinalResponse != nil {
		ok, err := s.store.SetResponse(r.Context(), sessionID, name, *req.FinalResponse)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		if !ok {
			writeNotFound(w)
			return
		}
		updated = append(updated, "final_response")
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated_fields": updated})
}
