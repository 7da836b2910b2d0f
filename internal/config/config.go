// Package config loads and validates the panel and bridge configuration
// from an HCL file, with environment variables as the fallback for every
// secret-bearing field.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config is the fully resolved configuration shared by both binaries.
type Config struct {
	Server   Server
	AgentAPI AgentAPI
	Gateway  Gateway
	Bridge   Bridge
	Worker   Worker
	Uploads  Uploads
	Logging  Logging
}

// Server configures the panel's HTTP listener.
type Server struct {
	Listen    string
	StaticDir string // overrides the embedded UI when set
}

// AgentAPI configures the stateful-agent platform client.
type AgentAPI struct {
	BaseURL      string
	Token        string
	Timeout      time.Duration
	PollInterval time.Duration
	SourceName   string // platform source holding the panel's uploaded files
}

// Gateway configures the real-time audio/SIP gateway.
type Gateway struct {
	URL        string
	APIKey     string
	APISecret  string
	SIPTrunkID string
}

// Bridge configures the token/call companion process.
type Bridge struct {
	Listen      string
	URL         string // how the panel reaches the bridge
	AuthToken   string // shared secret; empty disables auth
	TokenTTL    time.Duration
	SettleDelay time.Duration
	DialMode    string // "cli" or "api"
	CLIPath     string
}

// Worker configures the agent-worker subprocess spawned per outbound call.
type Worker struct {
	Command    []string
	Dir        string
	Persistent bool // keep one worker running for inbound calls
}

// Uploads configures the local staging area for uploaded files.
type Uploads struct {
	Dir     string
	MaxSize int64
}

// Logging configures slog output.
type Logging struct {
	Level  string
	Format string
}

// DialModeCLI shells out to the gateway CLI to place the SIP leg.
// DialModeAPI calls the gateway's SIP API directly.
const (
	DialModeCLI = "cli"
	DialModeAPI = "api"
)

// ValidatePanel checks the fields the panel binary depends on.
func (c *Config) ValidatePanel() error {
	if c.Server.Listen == "" {
		return errors.New("server.listen must not be empty")
	}
	if c.AgentAPI.BaseURL == "" {
		return errors.New("agent_api.base_url is required (or set LETTA_BASE_URL)")
	}
	if c.Bridge.URL == "" {
		return errors.New("bridge.url is required")
	}
	if c.AgentAPI.PollInterval <= 0 {
		return errors.New("agent_api.poll_interval must be positive")
	}
	return nil
}

// ValidateBridge checks the fields the bridge binary depends on.
func (c *Config) ValidateBridge() error {
	if c.Bridge.Listen == "" {
		return errors.New("bridge.listen must not be empty")
	}
	if c.Gateway.URL == "" {
		return errors.New("gateway.url is required (or set LIVEKIT_URL)")
	}
	if c.Gateway.APIKey == "" || c.Gateway.APISecret == "" {
		return errors.New("gateway.api_key and gateway.api_secret are required (or set LIVEKIT_API_KEY / LIVEKIT_API_SECRET)")
	}
	switch c.Bridge.DialMode {
	case DialModeCLI, DialModeAPI:
	default:
		return fmt.Errorf("bridge.dial_mode must be %q or %q, got %q", DialModeCLI, DialModeAPI, c.Bridge.DialMode)
	}
	if c.Bridge.DialMode == DialModeCLI && c.Bridge.CLIPath == "" {
		return errors.New("bridge.cli_path is required in cli dial mode")
	}
	if c.Gateway.SIPTrunkID == "" {
		return errors.New("gateway.sip_trunk_id is required for outbound calls (or set LIVEKIT_SIP_TRUNK_ID)")
	}
	return nil
}
