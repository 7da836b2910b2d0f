package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/quickcall/quickcall/internal/bridgeclient"
)

// startCallRequest asks for an outbound call to a phone number.
type startCallRequest struct {
	AgentID     string `json:"agent_id"`
	PhoneNumber string `json:"phone_number"`
}

func (s *Server) handleStartCall(w http.ResponseWriter, r *http.Request) {
	var req startCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.AgentID == "" || req.PhoneNumber == "" {
		writeError(w, http.StatusBadRequest, "agent_id and phone_number are required")
		return
	}
	call, err := s.calls.StartCall(r.Context(), req.AgentID, req.PhoneNumber)
	if err != nil {
		s.bridgeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, call)
}

func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	calls, err := s.calls.ListCalls(r.Context())
	if err != nil {
		s.bridgeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, calls)
}

func (s *Server) handleGetCall(w http.ResponseWriter, r *http.Request) {
	call, err := s.calls.GetCall(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.bridgeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

func (s *Server) handleHangup(w http.ResponseWriter, r *http.Request) {
	call, err := s.calls.Hangup(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.bridgeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	room := r.URL.Query().Get("room")
	identity := r.URL.Query().Get("identity")
	if room == "" || identity == "" {
		writeError(w, http.StatusBadRequest, "room and identity query parameters are required")
		return
	}
	token, err := s.calls.Token(r.Context(), room, identity)
	if err != nil {
		s.bridgeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

// bridgeError maps bridge failures onto panel responses.
func (s *Server) bridgeError(w http.ResponseWriter, err error) {
	if errors.Is(err, bridgeclient.ErrNotFound) {
		writeError(w, http.StatusNotFound, "call not found")
		return
	}
	s.logger.Error("Bridge request failed.", "error", err)
	writeError(w, http.StatusBadGateway, err.Error())
}
