package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"

	"github.com/quickcall/quickcall/internal/ctxlog"
)

// DefaultPath is consulted when no --config flag is given.
const DefaultPath = "quickcall.hcl"

// fileRoot decodes the top-level blocks of a config file. Every block is
// optional; anything omitted falls back to environment variables and defaults.
type fileRoot struct {
	Server   *serverBlock   `hcl:"server,block"`
	AgentAPI *agentAPIBlock `hcl:"agent_api,block"`
	Gateway  *gatewayBlock  `hcl:"gateway,block"`
	Bridge   *bridgeBlock   `hcl:"bridge,block"`
	Worker   *workerBlock   `hcl:"worker,block"`
	Uploads  *uploadsBlock  `hcl:"uploads,block"`
	Logging  *loggingBlock  `hcl:"logging,block"`
}

type serverBlock struct {
	Listen    string `hcl:"listen,optional"`
	StaticDir string `hcl:"static_dir,optional"`
}

type agentAPIBlock struct {
	BaseURL      string `hcl:"base_url,optional"`
	Token        string `hcl:"token,optional"`
	Timeout      string `hcl:"timeout,optional"`
	PollInterval string `hcl:"poll_interval,optional"`
	SourceName   string `hcl:"source_name,optional"`
}

type gatewayBlock struct {
	URL        string `hcl:"url,optional"`
	APIKey     string `hcl:"api_key,optional"`
	APISecret  string `hcl:"api_secret,optional"`
	SIPTrunkID string `hcl:"sip_trunk_id,optional"`
}

type bridgeBlock struct {
	Listen      string `hcl:"listen,optional"`
	URL         string `hcl:"url,optional"`
	AuthToken   string `hcl:"auth_token,optional"`
	TokenTTL    string `hcl:"token_ttl,optional"`
	SettleDelay string `hcl:"settle_delay,optional"`
	DialMode    string `hcl:"dial_mode,optional"`
	CLIPath     string `hcl:"cli_path,optional"`
}

type workerBlock struct {
	Command    []string `hcl:"command,optional"`
	Dir        string   `hcl:"dir,optional"`
	Persistent bool     `hcl:"persistent,optional"`
}

type uploadsBlock struct {
	Dir     string `hcl:"dir,optional"`
	MaxSize int64  `hcl:"max_size,optional"`
}

type loggingBlock struct {
	Level  string `hcl:"level,optional"`
	Format string `hcl:"format,optional"`
}

// envFunc exposes env("NAME") inside config expressions so the file can
// reference secrets without embedding them.
var envFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "name", Type: cty.String},
	},
	Type: function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		return cty.StringVal(os.Getenv(args[0].AsString())), nil
	},
})

// Load reads the HCL file at path and resolves the full configuration. An
// empty path means "use DefaultPath if it exists, otherwise env-only".
func Load(ctx context.Context, path string) (*Config, error) {
	logger := ctxlog.FromContext(ctx)

	var root fileRoot
	if path == "" {
		if _, err := os.Stat(DefaultPath); err == nil {
			path = DefaultPath
		}
	}
	if path != "" {
		parser := hclparse.NewParser()
		hclFile, diags := parser.ParseHCLFile(path)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, diags)
		}
		evalCtx := &hcl.EvalContext{
			Functions: map[string]function.Function{"env": envFunc},
		}
		if diags := gohcl.DecodeBody(hclFile.Body, evalCtx, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode config file %s: %w", path, diags)
		}
		logger.Debug("Config file loaded.", "path", path)
	} else {
		logger.Debug("No config file found, using environment and defaults.")
	}

	cfg, err := resolve(&root)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolve merges decoded blocks with environment fallbacks and defaults.
func resolve(root *fileRoot) (*Config, error) {
	cfg := &Config{
		Server: Server{
			Listen: ":8088",
		},
		AgentAPI: AgentAPI{
			BaseURL:      envOr("LETTA_BASE_URL", "http://localhost:8283"),
			Token:        os.Getenv("LETTA_TOKEN"),
			Timeout:      30 * time.Second,
			PollInterval: 2 * time.Second,
			SourceName:   "quickcall-uploads",
		},
		Gateway: Gateway{
			URL:        os.Getenv("LIVEKIT_URL"),
			APIKey:     os.Getenv("LIVEKIT_API_KEY"),
			APISecret:  os.Getenv("LIVEKIT_API_SECRET"),
			SIPTrunkID: os.Getenv("LIVEKIT_SIP_TRUNK_ID"),
		},
		Bridge: Bridge{
			Listen:      ":8089",
			URL:         "http://localhost:8089",
			AuthToken:   os.Getenv("BRIDGE_AUTH_TOKEN"),
			TokenTTL:    6 * time.Hour,
			SettleDelay: 2 * time.Second,
			DialMode:    DialModeCLI,
			CLIPath:     "lk",
		},
		Uploads: Uploads{
			Dir:     "uploads",
			MaxSize: 25 << 20,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
	}

	if b := root.Server; b != nil {
		setIf(&cfg.Server.Listen, b.Listen)
		setIf(&cfg.Server.StaticDir, b.StaticDir)
	}
	if b := root.AgentAPI; b != nil {
		setIf(&cfg.AgentAPI.BaseURL, b.BaseURL)
		setIf(&cfg.AgentAPI.Token, b.Token)
		setIf(&cfg.AgentAPI.SourceName, b.SourceName)
		if err := parseIf(&cfg.AgentAPI.Timeout, b.Timeout, "agent_api.timeout"); err != nil {
			return nil, err
		}
		if err := parseIf(&cfg.AgentAPI.PollInterval, b.PollInterval, "agent_api.poll_interval"); err != nil {
			return nil, err
		}
	}
	if b := root.Gateway; b != nil {
		setIf(&cfg.Gateway.URL, b.URL)
		setIf(&cfg.Gateway.APIKey, b.APIKey)
		setIf(&cfg.Gateway.APISecret, b.APISecret)
		setIf(&cfg.Gateway.SIPTrunkID, b.SIPTrunkID)
	}
	if b := root.Bridge; b != nil {
		setIf(&cfg.Bridge.Listen, b.Listen)
		setIf(&cfg.Bridge.URL, b.URL)
		setIf(&cfg.Bridge.AuthToken, b.AuthToken)
		setIf(&cfg.Bridge.DialMode, b.DialMode)
		setIf(&cfg.Bridge.CLIPath, b.CLIPath)
		if err := parseIf(&cfg.Bridge.TokenTTL, b.TokenTTL, "bridge.token_ttl"); err != nil {
			return nil, err
		}
		if err := parseIf(&cfg.Bridge.SettleDelay, b.SettleDelay, "bridge.settle_delay"); err != nil {
			return nil, err
		}
	}
	if b := root.Worker; b != nil {
		cfg.Worker.Command = b.Command
		cfg.Worker.Dir = b.Dir
		cfg.Worker.Persistent = b.Persistent
	}
	if b := root.Uploads; b != nil {
		setIf(&cfg.Uploads.Dir, b.Dir)
		if b.MaxSize > 0 {
			cfg.Uploads.MaxSize = b.MaxSize
		}
	}
	if b := root.Logging; b != nil {
		setIf(&cfg.Logging.Level, b.Level)
		setIf(&cfg.Logging.Format, b.Format)
	}

	return cfg, nil
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func parseIf(dst *time.Duration, v, field string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid duration for %s: %w", field, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", field, d)
	}
	*dst = d
	return nil
}
