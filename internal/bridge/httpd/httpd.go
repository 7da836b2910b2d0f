// Package httpd exposes the bridge companion over HTTP: signed room tokens
// plus the outbound-call endpoints the panel delegates to.
package httpd

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/quickcall/quickcall/internal/bridge"
)

// TokenIssuer mints signed gateway join tokens.
type TokenIssuer interface {
	AccessToken(room, identity string, ttl time.Duration) (string, error)
	URL() string
}

// CallService is the slice of the orchestrator the HTTP layer drives.
type CallService interface {
	Start(ctx context.Context, agentID, phoneNumber string) (bridge.Call, error)
	Hangup(ctx context.Context, id string) (bridge.Call, error)
}

// Config holds the HTTP-layer settings.
type Config struct {
	AuthToken string // shared secret; empty disables auth
	TokenTTL  time.Duration
}

// Server handles the bridge's HTTP API.
type Server struct {
	cfg    Config
	tokens TokenIssuer
	calls  CallService
	store  *bridge.Store
	logger *slog.Logger
}

// NewServer wires the bridge HTTP server.
func NewServer(cfg Config, tokens TokenIssuer, calls CallService, store *bridge.Store, logger *slog.Logger) *Server {
	return &Server{cfg: cfg, tokens: tokens, calls: calls, store: store, logger: logger}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(s.authMiddleware)
	api.HandleFunc("/token", s.handleToken).Methods(http.MethodPost)
	api.HandleFunc("/calls", s.handleStartCall).Methods(http.MethodPost)
	api.HandleFunc("/calls", s.handleListCalls).Methods(http.MethodGet)
	api.HandleFunc("/calls/{id}", s.handleGetCall).Methods(http.MethodGet)
	api.HandleFunc("/calls/{id}", s.handleHangup).Methods(http.MethodDelete)
	return r
}

// AuthHeader carries the shared secret between panel and bridge.
const AuthHeader = "X-Bridge-Token"

// authMiddleware rejects requests without the shared secret, when one is
// configured.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AuthToken != "" && r.Header.Get(AuthHeader) != s.cfg.AuthToken {
			writeError(w, http.StatusUnauthorized, "missing or invalid bridge token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK\n"))
}

// TokenRequest asks for a join token for a room.
type TokenRequest struct {
	Room     string `json:"room"`
	Identity string `json:"identity"`
}

// TokenResponse returns the signed token and the gateway URL to join with.
type TokenResponse struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Room == "" || req.Identity == "" {
		writeError(w, http.StatusBadRequest, "room and identity are required")
		return
	}
	token, err := s.tokens.AccessToken(req.Room, req.Identity, s.cfg.TokenTTL)
	if err != nil {
		s.logger.Error("Failed to sign token.", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to sign token")
		return
	}
	s.logger.Debug("Issued room token.", "room", req.Room, "identity", req.Identity)
	writeJSON(w, http.StatusOK, TokenResponse{Token: token, URL: s.tokens.URL()})
}

// StartCallRequest asks the bridge to place an outbound call.
type StartCallRequest struct {
	AgentID     string `json:"agent_id"`
	PhoneNumber string `json:"phone_number"`
}

func (s *Server) handleStartCall(w http.ResponseWriter, r *http.Request) {
	var req StartCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	call, err := s.calls.Start(r.Context(), req.AgentID, req.PhoneNumber)
	if err != nil {
		if errors.Is(err, bridge.ErrNoWorker) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, call)
}

func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.List())
}

func (s *Server) handleGetCall(w http.ResponseWriter, r *http.Request) {
	call, ok := s.store.Get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "call not found")
		return
	}
	writeJSON(w, http.StatusOK, call)
}

func (s *Server) handleHangup(w http.ResponseWriter, r *http.Request) {
	call, err := s.calls.Hangup(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, bridge.ErrNotFound) {
			writeError(w, http.StatusNotFound, "call not found")
			return
		}
		s.logger.Error("Hangup failed.", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, call)
}

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
