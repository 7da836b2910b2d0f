package app

import (
	"bytes"
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quickcall/quickcall/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(context.Background(), "")
	require.NoError(t, err)
	cfg.Gateway.URL = "wss://gw.example.com"
	cfg.Gateway.APIKey = "key"
	cfg.Gateway.APISecret = "secret"
	cfg.Gateway.SIPTrunkID = "ST_trunk"
	cfg.Uploads.Dir = t.TempDir()
	return cfg
}

func TestNewLogger_JSONFormat(t *testing.T) {
	t.Parallel()
	// Arrange
	var buf bytes.Buffer
	logger := newLogger("info", "json", &buf)

	// Act
	logger.Info("hello")

	// Assert
	require.Contains(t, buf.String(), `"msg":"hello"`)
}

func TestNewLogger_LevelFilter(t *testing.T) {
	t.Parallel()
	// Arrange
	var buf bytes.Buffer
	logger := newLogger("warn", "text", &buf)

	// Act
	logger.Info("quiet")
	logger.Warn("loud")

	// Assert
	require.NotContains(t, buf.String(), "quiet")
	require.Contains(t, buf.String(), "loud")
}

func TestNewLogger_UnknownLevelDefaultsToInfo(t *testing.T) {
	t.Parallel()
	// Arrange
	var buf bytes.Buffer
	logger := newLogger("chatty", "text", &buf)

	// Act
	logger.Debug("hidden")
	logger.Info("visible")

	// Assert
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "visible")
}

func TestServe_GracefulShutdown(t *testing.T) {
	t.Parallel()
	// Arrange
	var buf bytes.Buffer
	logger := newLogger("error", "text", &buf)
	srv := &http.Server{
		Addr:    "127.0.0.1:0",
		Handler: http.NewServeMux(),
	}
	ctx, cancel := context.WithCancel(context.Background())

	// Act: cancel shortly after startup; serve should return cleanly.
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	err := serve(ctx, srv, logger)

	// Assert
	require.NoError(t, err)
}

func TestNewPanel(t *testing.T) {
	t.Parallel()
	// Arrange
	cfg := testConfig(t)
	var buf bytes.Buffer

	// Act
	panel := NewPanel(&buf, cfg)

	// Assert
	require.NotNil(t, panel)
	require.NotNil(t, panel.Logger())
	require.NotNil(t, panel.server.Handler)
}

func TestNewBridge(t *testing.T) {
	t.Parallel()
	// Arrange
	cfg := testConfig(t)
	cfg.Worker.Command = []string{"sleep", "infinity"}
	cfg.Worker.Persistent = true
	var buf bytes.Buffer

	// Act
	b := NewBridge(&buf, cfg)

	// Assert
	require.NotNil(t, b)
	require.NotNil(t, b.supervisor, "persistent worker should get a supervisor")
	require.NotNil(t, b.server.Handler)
}

func TestNewBridge_NoPersistentWorker(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Worker.Command = nil
	cfg.Worker.Persistent = true

	b := NewBridge(&bytes.Buffer{}, cfg)

	require.Nil(t, b.supervisor, "no worker command means nothing to supervise")
}
