// Package app assembles the quickcall binaries: the control panel and the
// bridge companion. Each constructor builds a fully wired instance with its
// own isolated logger.
package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/quickcall/quickcall/internal/agentapi"
	"github.com/quickcall/quickcall/internal/bridgeclient"
	"github.com/quickcall/quickcall/internal/config"
	"github.com/quickcall/quickcall/internal/ctxlog"
	"github.com/quickcall/quickcall/internal/httpapi"
	"github.com/quickcall/quickcall/internal/transcript"
	"github.com/quickcall/quickcall/internal/uploads"
)

// Panel is the control-panel application: the browser UI, its JSON API and
// the clients reaching the agent platform and the bridge.
type Panel struct {
	cfg    *config.Config
	logger *slog.Logger
	agents *agentapi.Client
	bridge *bridgeclient.Client
	hub    *transcript.Hub
	server *http.Server
}

// NewPanel wires a panel instance from resolved configuration.
func NewPanel(outW io.Writer, cfg *config.Config) *Panel {
	logger := newLogger(cfg.Logging.Level, cfg.Logging.Format, outW)

	agents := agentapi.New(agentapi.Config{
		BaseURL: cfg.AgentAPI.BaseURL,
		Token:   cfg.AgentAPI.Token,
		Timeout: cfg.AgentAPI.Timeout,
	})
	bridge := bridgeclient.New(cfg.Bridge.URL, cfg.Bridge.AuthToken, cfg.AgentAPI.Timeout)
	hub := transcript.NewHub(agents, cfg.AgentAPI.PollInterval, logger)
	files := uploads.New(cfg.Uploads.Dir, cfg.Uploads.MaxSize, cfg.AgentAPI.SourceName, agents)

	srv := httpapi.NewServer(httpapi.Config{
		MaxUploadSize: cfg.Uploads.MaxSize,
		StaticDir:     cfg.Server.StaticDir,
	}, agents, files, bridge, hub, logger)

	return &Panel{
		cfg:    cfg,
		logger: logger,
		agents: agents,
		bridge: bridge,
		hub:    hub,
		server: &http.Server{
			Addr:    cfg.Server.Listen,
			Handler: srv.Handler(),
		},
	}
}

// Logger returns the panel's logger, for the binary's own messages.
func (p *Panel) Logger() *slog.Logger {
	return p.logger
}

// Run serves the panel until the context is canceled.
func (p *Panel) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, p.logger)
	p.logger.Info("Panel starting.",
		"agent_api", p.cfg.AgentAPI.BaseURL,
		"bridge", p.cfg.Bridge.URL,
	)

	err := serve(ctx, p.server, p.logger)

	p.hub.Close()
	_ = p.agents.Close()
	_ = p.bridge.Close()
	p.logger.Info("Panel stopped.")
	return err
}
