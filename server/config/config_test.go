package config_test

import (
	"context"
	"testing"
	"time"

	envconfig "github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synapse-a2a/synapse/server/config"
)

func TestConfig_LoadWithLookuper(t *testing.T) {
	tests := []struct {
		name         string
		envVars      map[string]string
		validateFunc func(t *testing.T, cfg *config.Config)
	}{
		{
			name: "loads defaults given only the required profile",
			envVars: map[string]string{
				"SYNAPSE_PROFILE": "claude.yaml",
			},
			validateFunc: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, "claude.yaml", cfg.Profile)
				assert.Equal(t, 8100, cfg.Port)
				assert.False(t, cfg.Debug)
				assert.Equal(t, "", cfg.AgentType)
				assert.Equal(t, "", cfg.WorkingDir)

				assert.Equal(t, "127.0.0.1", cfg.Server.Host)
				assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, 60*time.Second, cfg.Server.WriteTimeout)
				assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
				assert.True(t, cfg.Server.DisableHealthcheckLog)
				assert.Equal(t, "", cfg.Server.UDSPath)

				assert.Equal(t, "", cfg.Auth.APIKey)
				assert.Equal(t, []string{"127.0.0.1/32", "::1/128"}, cfg.Auth.AllowedCIDRs)

				assert.True(t, cfg.Board.TaskBoardEnabled)
				assert.Equal(t, ".synapse/task_board.db", cfg.Board.TaskBoardDBPath)

				assert.False(t, cfg.History.HistoryEnabled)
				assert.Equal(t, 168*time.Hour, cfg.History.HistoryMaxAge)
				assert.Equal(t, 10000, cfg.History.HistoryMaxRows)

				assert.Equal(t, 10*time.Second, cfg.Webhook.Timeout)
				assert.Equal(t, 3, cfg.Webhook.MaxRetries)

				assert.Equal(t, "", cfg.Registry.RegistryDir)
			},
		},
		{
			name: "overrides from the environment",
			envVars: map[string]string{
				"SYNAPSE_PROFILE":              "codex.yaml",
				"SYNAPSE_PORT":                 "9100",
				"SYNAPSE_DEBUG":                "true",
				"SYNAPSE_AGENT_TYPE":           "codex",
				"SYNAPSE_API_KEY":              "test-key",
				"SYNAPSE_ALLOWED_CIDRS":        "10.0.0.0/8",
				"SYNAPSE_UDS_PATH":             "/tmp/synapse.sock",
				"SYNAPSE_TASK_BOARD_ENABLED":   "false",
				"SYNAPSE_HISTORY_ENABLED":      "true",
				"SYNAPSE_WEBHOOK_MAX_RETRIES":  "5",
				"SYNAPSE_REGISTRY_DIR":         "/var/run/synapse/registry",
			},
			validateFunc: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, "codex.yaml", cfg.Profile)
				assert.Equal(t, 9100, cfg.Port)
				assert.True(t, cfg.Debug)
				assert.Equal(t, "codex", cfg.AgentType)
				assert.Equal(t, "test-key", cfg.Auth.APIKey)
				assert.Equal(t, []string{"10.0.0.0/8"}, cfg.Auth.AllowedCIDRs)
				assert.Equal(t, "/tmp/synapse.sock", cfg.Server.UDSPath)
				assert.False(t, cfg.Board.TaskBoardEnabled)
				assert.True(t, cfg.History.HistoryEnabled)
				assert.Equal(t, 5, cfg.Webhook.MaxRetries)
				assert.Equal(t, "/var/run/synapse/registry", cfg.Registry.RegistryDir)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			lookuper := envconfig.MapLookuper(tt.envVars)
			cfg, err := config.LoadWithLookuper(ctx, lookuper)
			require.NoError(t, err)
			tt.validateFunc(t, cfg)
		})
	}
}

func TestConfig_LoadWithLookuper_MissingProfile(t *testing.T) {
	ctx := context.Background()
	lookuper := envconfig.MapLookuper(map[string]string{})
	_, err := config.LoadWithLookuper(ctx, lookuper)
	require.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
	}{
		{
			name: "valid port",
			envVars: map[string]string{
				"SYNAPSE_PROFILE": "claude.yaml",
				"SYNAPSE_PORT":    "8100",
			},
			wantErr: false,
		},
		{
			name: "port zero is invalid",
			envVars: map[string]string{
				"SYNAPSE_PROFILE": "claude.yaml",
				"SYNAPSE_PORT":    "0",
			},
			wantErr: true,
		},
		{
			name: "port above range is invalid",
			envVars: map[string]string{
				"SYNAPSE_PROFILE": "claude.yaml",
				"SYNAPSE_PORT":    "70000",
			},
			wantErr: true,
		},
		{
			name: "negative max retries is clamped, not rejected",
			envVars: map[string]string{
				"SYNAPSE_PROFILE":             "claude.yaml",
				"SYNAPSE_WEBHOOK_MAX_RETRIES": "-1",
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			lookuper := envconfig.MapLookuper(tt.envVars)
			cfg, err := config.LoadWithLookuper(ctx, lookuper)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.name == "negative max retries is clamped, not rejected" {
				assert.Equal(t, 0, cfg.Webhook.MaxRetries)
			}
		})
	}
}
