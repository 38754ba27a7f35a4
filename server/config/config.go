// Package config loads the wrapper process's configuration from the
// environment, following spec.md §6's CLI/environment surface.
package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds all configuration for one synapse-agentd process.
type Config struct {
	Profile   string `env:"SYNAPSE_PROFILE,required"`
	Port      int    `env:"SYNAPSE_PORT,default=8100"`
	ToolArgs  string `env:"SYNAPSE_TOOL_ARGS" description:"NUL-separated extra args appended to the profile's command"`
	Debug     bool   `env:"SYNAPSE_DEBUG,default=false"`

	AgentType  string `env:"SYNAPSE_AGENT_TYPE"`
	WorkingDir string `env:"SYNAPSE_WORKING_DIR"`

	Server   ServerConfig   `env:",prefix=SYNAPSE_"`
	Auth     AuthConfig     `env:",prefix=SYNAPSE_"`
	Board    BoardConfig    `env:",prefix=SYNAPSE_"`
	History  HistoryConfig  `env:",prefix=SYNAPSE_"`
	Webhook  WebhookConfig  `env:",prefix=SYNAPSE_WEBHOOK_"`
	Registry RegistryConfig `env:",prefix=SYNAPSE_"`
}

// ServerConfig holds HTTP server configuration (spec.md §4.2, §6).
type ServerConfig struct {
	Host                  string        `env:"HOST,default=127.0.0.1"`
	ReadTimeout           time.Duration `env:"READ_TIMEOUT,default=60s"`
	WriteTimeout          time.Duration `env:"WRITE_TIMEOUT,default=60s"`
	IdleTimeout           time.Duration `env:"IDLE_TIMEOUT,default=120s"`
	DisableHealthcheckLog bool          `env:"DISABLE_HEALTHCHECK_LOG,default=true"`
	UDSPath               string        `env:"UDS_PATH" description:"optional unix domain socket path, served alongside TCP"`
	TLSCertPath           string        `env:"TLS_CERT_PATH"`
	TLSKeyPath            string        `env:"TLS_KEY_PATH"`
}

// AuthConfig holds the static shared-secret authentication configuration
// used in place of the OIDC scheme this system's domain has no IdP for
// (see DESIGN.md).
type AuthConfig struct {
	APIKey          string   `env:"API_KEY" description:"shared secret required in the X-Synapse-Api-Key header"`
	AllowedCIDRs    []string `env:"ALLOWED_CIDRS,default=127.0.0.1/32,::1/128"`
}

// BoardConfig configures the shared SQLite Task Board (spec.md §4.5).
type BoardConfig struct {
	TaskBoardEnabled bool   `env:"TASK_BOARD_ENABLED,default=true"`
	TaskBoardDBPath  string `env:"TASK_BOARD_DB_PATH,default=.synapse/task_board.db"`
}

// HistoryConfig configures the optional observation log (spec.md §3).
type HistoryConfig struct {
	HistoryEnabled bool          `env:"HISTORY_ENABLED,default=false"`
	HistoryDBPath  string        `env:"HISTORY_DB_PATH,default=.synapse/history.db"`
	HistoryMaxAge  time.Duration `env:"HISTORY_MAX_AGE,default=168h"`
	HistoryMaxRows int           `env:"HISTORY_MAX_ROWS,default=10000"`
}

// WebhookConfig configures outbound webhook delivery defaults (spec.md §4.6).
type WebhookConfig struct {
	Secret     string        `env:"SECRET"`
	Timeout    time.Duration `env:"TIMEOUT,default=10s"`
	MaxRetries int           `env:"MAX_RETRIES,default=3"`
}

// RegistryConfig configures the cross-process Agent Registry (spec.md §4.7).
type RegistryConfig struct {
	RegistryDir string `env:"REGISTRY_DIR" description:"defaults to ~/.a2a/registry when empty"`
}

// Load loads configuration from the real OS environment.
func Load(ctx context.Context) (*Config, error) {
	return LoadWithLookuper(ctx, envconfig.OsLookuper())
}

// LoadWithLookuper loads configuration using a custom lookuper, so tests can
// inject fake environments without mutating the process's real one.
func LoadWithLookuper(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate applies small corrections and rejects configurations that can
// never produce a working wrapper.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Webhook.MaxRetries < 0 {
		c.Webhook.MaxRetries = 0
	}
	return nil
}
