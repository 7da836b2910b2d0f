package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/quickcall/quickcall/internal/agentapi"
	"github.com/quickcall/quickcall/internal/transcript"
)

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.agents.ListAgents(r.Context())
	if err != nil {
		s.platformError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.agents.GetAgent(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.platformError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	messages, err := s.agents.ListMessages(r.Context(), mux.Vars(r)["id"], r.URL.Query().Get("after"), limit)
	if err != nil {
		s.platformError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntries(messages))
}

// sendMessageRequest posts a user message into the conversation.
type sendMessageRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	messages, err := s.agents.SendMessage(r.Context(), mux.Vars(r)["id"], req.Text)
	if err != nil {
		s.platformError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntries(messages))
}

func (s *Server) handleGetContext(w http.ResponseWriter, r *http.Request) {
	block, err := s.agents.GetBlock(r.Context(), mux.Vars(r)["id"], agentapi.ContextBlockLabel)
	if err != nil {
		s.platformError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, block)
}

// putContextRequest replaces the agent's context string.
type putContextRequest struct {
	Value string `json:"value"`
}

func (s *Server) handlePutContext(w http.ResponseWriter, r *http.Request) {
	var req putContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	block, err := s.agents.UpdateBlock(r.Context(), mux.Vars(r)["id"], agentapi.ContextBlockLabel, req.Value)
	if err != nil {
		s.platformError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, block)
}

// toEntries converts platform messages to display entries, dropping
// internal message types.
func toEntries(messages []agentapi.Message) []transcript.Entry {
	entries := make([]transcript.Entry, 0, len(messages))
	for _, m := range messages {
		if entry, ok := transcript.FromMessage(m); ok {
			entries = append(entries, entry)
		}
	}
	return entries
}

// platformError maps agent-platform failures onto panel responses.
func (s *Server) platformError(w http.ResponseWriter, err error) {
	if errors.Is(err, agentapi.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	var apiErr *agentapi.APIError
	if errors.As(err, &apiErr) {
		s.logger.Warn("Agent platform error.", "status", apiErr.StatusCode, "detail", apiErr.Detail)
		writeError(w, http.StatusBadGateway, "agent platform error: "+apiErr.Detail)
		return
	}
	s.logger.Error("Agent platform unreachable.", "error", err)
	writeError(w, http.StatusBadGateway, "agent platform unreachable")
}
