// Package httpapi serves the control panel: the embedded single-page UI
// and the JSON API it drives.
package httpapi

import (
	"bufio"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/quickcall/quickcall/internal/agentapi"
	"github.com/quickcall/quickcall/internal/bridge"
	"github.com/quickcall/quickcall/internal/bridge/httpd"
	"github.com/quickcall/quickcall/internal/transcript"
	"github.com/quickcall/quickcall/internal/uploads"
)

//go:embed static
var staticFS embed.FS

// AgentService is the slice of the agent-platform client the panel uses.
type AgentService interface {
	ListAgents(ctx context.Context) ([]agentapi.Agent, error)
	GetAgent(ctx context.Context, agentID string) (*agentapi.Agent, error)
	ListMessages(ctx context.Context, agentID, after string, limit int) ([]agentapi.Message, error)
	SendMessage(ctx context.Context, agentID, text string) ([]agentapi.Message, error)
	GetBlock(ctx context.Context, agentID, label string) (*agentapi.Block, error)
	UpdateBlock(ctx context.Context, agentID, label, value string) (*agentapi.Block, error)
}

// FileStore manages uploaded knowledge files.
type FileStore interface {
	Save(ctx context.Context, name string, r io.Reader) (uploads.Item, error)
	List(ctx context.Context) ([]uploads.Item, error)
	Delete(ctx context.Context, fileID string) error
	Attach(ctx context.Context, agentID string) error
}

// CallClient reaches the bridge companion.
type CallClient interface {
	Token(ctx context.Context, room, identity string) (*httpd.TokenResponse, error)
	StartCall(ctx context.Context, agentID, phoneNumber string) (*bridge.Call, error)
	ListCalls(ctx context.Context) ([]bridge.Call, error)
	GetCall(ctx context.Context, id string) (*bridge.Call, error)
	Hangup(ctx context.Context, id string) (*bridge.Call, error)
}

// TranscriptHub provides live transcript subscriptions.
type TranscriptHub interface {
	Subscribe(agentID string) *transcript.Subscription
}

// Config holds the panel HTTP settings.
type Config struct {
	MaxUploadSize int64
	StaticDir     string // overrides the embedded UI when set
}

// Server handles the panel's HTTP surface.
type Server struct {
	cfg    Config
	agents AgentService
	files  FileStore
	calls  CallClient
	hub    TranscriptHub
	logger *slog.Logger
}

// NewServer wires the panel server.
func NewServer(cfg Config, agents AgentService, files FileStore, calls CallClient, hub TranscriptHub, logger *slog.Logger) *Server {
	return &Server{cfg: cfg, agents: agents, files: files, calls: calls, hub: hub, logger: logger}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logMiddleware)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/agents", s.handleListAgents).Methods(http.MethodGet)
	api.HandleFunc("/agents/{id}", s.handleGetAgent).Methods(http.MethodGet)
	api.HandleFunc("/agents/{id}/messages", s.handleListMessages).Methods(http.MethodGet)
	api.HandleFunc("/agents/{id}/messages", s.handleSendMessage).Methods(http.MethodPost)
	api.HandleFunc("/agents/{id}/context", s.handleGetContext).Methods(http.MethodGet)
	api.HandleFunc("/agents/{id}/context", s.handlePutContext).Methods(http.MethodPut)
	api.HandleFunc("/agents/{id}/files", s.handleAttachFiles).Methods(http.MethodPost)
	api.HandleFunc("/files", s.handleListFiles).Methods(http.MethodGet)
	api.HandleFunc("/files", s.handleUploadFile).Methods(http.MethodPost)
	api.HandleFunc("/files/{id}", s.handleDeleteFile).Methods(http.MethodDelete)
	api.HandleFunc("/calls", s.handleStartCall).Methods(http.MethodPost)
	api.HandleFunc("/calls", s.handleListCalls).Methods(http.MethodGet)
	api.HandleFunc("/calls/{id}", s.handleGetCall).Methods(http.MethodGet)
	api.HandleFunc("/calls/{id}", s.handleHangup).Methods(http.MethodDelete)
	api.HandleFunc("/token", s.handleToken).Methods(http.MethodGet)

	r.HandleFunc("/ws/agents/{id}/transcript", s.handleTranscriptWS).Methods(http.MethodGet)

	r.PathPrefix("/").Handler(s.staticHandler())
	return r
}

// staticHandler serves the panel UI, embedded by default.
func (s *Server) staticHandler() http.Handler {
	if s.cfg.StaticDir != "" {
		return http.FileServer(http.Dir(s.cfg.StaticDir))
	}
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK\n"))
}

// logMiddleware logs each request with its duration and status.
func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("Request handled.",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack keeps websocket upgrades working through the middleware.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
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
