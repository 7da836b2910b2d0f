package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/quickcall/quickcall/internal/bridge"
	"github.com/quickcall/quickcall/internal/bridge/httpd"
	"github.com/quickcall/quickcall/internal/config"
	"github.com/quickcall/quickcall/internal/ctxlog"
	"github.com/quickcall/quickcall/internal/gateway"
)

// Bridge is the companion application: it signs gateway join tokens and
// orchestrates outbound phone calls.
type Bridge struct {
	cfg        *config.Config
	logger     *slog.Logger
	orch       *bridge.Orchestrator
	supervisor *bridge.Supervisor
	server     *http.Server
}

// NewBridge wires a bridge instance from resolved configuration.
func NewBridge(outW io.Writer, cfg *config.Config) *Bridge {
	logger := newLogger(cfg.Logging.Level, cfg.Logging.Format, outW)

	gw := gateway.New(gateway.Config{
		URL:        cfg.Gateway.URL,
		APIKey:     cfg.Gateway.APIKey,
		APISecret:  cfg.Gateway.APISecret,
		SIPTrunkID: cfg.Gateway.SIPTrunkID,
	})
	store := bridge.NewStore()
	runner := bridge.ExecRunner{}
	orch := bridge.NewOrchestrator(bridge.Config{
		SettleDelay:   cfg.Bridge.SettleDelay,
		DialMode:      cfg.Bridge.DialMode,
		CLIPath:       cfg.Bridge.CLIPath,
		SIPTrunkID:    cfg.Gateway.SIPTrunkID,
		WorkerCommand: cfg.Worker.Command,
		WorkerDir:     cfg.Worker.Dir,
	}, gw, runner, store, logger)

	srv := httpd.NewServer(httpd.Config{
		AuthToken: cfg.Bridge.AuthToken,
		TokenTTL:  cfg.Bridge.TokenTTL,
	}, gw, orch, store, logger)

	var supervisor *bridge.Supervisor
	if cfg.Worker.Persistent && len(cfg.Worker.Command) > 0 {
		cmd := cfg.Worker.Command
		supervisor = bridge.NewSupervisor(runner, bridge.CommandSpec{
			Path: cmd[0],
			Args: append([]string{}, cmd[1:]...),
			Dir:  cfg.Worker.Dir,
		})
	}

	return &Bridge{
		cfg:        cfg,
		logger:     logger,
		orch:       orch,
		supervisor: supervisor,
		server: &http.Server{
			Addr:    cfg.Bridge.Listen,
			Handler: srv.Handler(),
		},
	}
}

// Logger returns the bridge's logger, for the binary's own messages.
func (b *Bridge) Logger() *slog.Logger {
	return b.logger
}

// Run serves the bridge until the context is canceled. When a persistent
// worker is configured it runs alongside the HTTP server to take inbound
// calls dispatched by the gateway.
func (b *Bridge) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, b.logger)
	b.logger.Info("Bridge starting.",
		"gateway", b.cfg.Gateway.URL,
		"dial_mode", b.cfg.Bridge.DialMode,
	)

	var wg sync.WaitGroup
	if b.supervisor != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.supervisor.Run(ctx)
		}()
	}

	err := serve(ctx, b.server, b.logger)

	b.orch.Close()
	wg.Wait()
	b.logger.Info("Bridge stopped.")
	return err
}
