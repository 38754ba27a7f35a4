// Command synapse-agentd wraps one interactive CLI coding-assistant
// process behind the A2A HTTP router (spec.md §1, §4).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/synapse-a2a/synapse/internal/board"
	"github.com/synapse-a2a/synapse/internal/history"
	"github.com/synapse-a2a/synapse/internal/profile"
	"github.com/synapse-a2a/synapse/internal/ptyctl"
	"github.com/synapse-a2a/synapse/internal/registry"
	"github.com/synapse-a2a/synapse/server"
	"github.com/synapse-a2a/synapse/server/config"
	"github.com/synapse-a2a/synapse/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "synapse-agentd:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	agentType := cfg.AgentType
	if agentType == "" {
		agentType = strings.TrimSuffix(filepath.Base(cfg.Profile), filepath.Ext(cfg.Profile))
	}

	prof, err := profile.Load(cfg.Profile)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}

	workingDir := cfg.WorkingDir
	if workingDir == "" {
		workingDir, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve working dir: %w", err)
		}
	}

	reg, err := registry.New(cfg.Registry.RegistryDir, logger)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	portManager := registry.NewPortManager(reg)

	boardStore, err := board.Open(cfg.Board.TaskBoardDBPath, cfg.Board.TaskBoardEnabled)
	if err != nil {
		return fmt.Errorf("open task board: %w", err)
	}
	defer func() { _ = boardStore.Close() }()

	historyLog := &history.Store{}
	if cfg.History.HistoryEnabled {
		historyLog = history.Open(cfg.History.HistoryDBPath, cfg.History.HistoryMaxAge, cfg.History.HistoryMaxRows)
		if !historyLog.Enabled() {
			logger.Warn("history store failed to open, continuing with history disabled")
		}
	}
	defer func() { _ = historyLog.Close() }()

	agentID := registry.AgentID(agentType, cfg.Port)
	endpoint := fmt.Sprintf("http://%s:%d", loopbackHost(cfg.Server.Host), cfg.Port)

	card := buildAgentCard(agentID, agentType, endpoint)

	idle := ptyctl.IdleConfig{
		Strategy:     string(prof.IdleDetection.Strategy),
		Pattern:      prof.IdleDetection.Pattern,
		Timeout:      time.Duration(prof.IdleDetection.Timeout * float64(time.Second)),
		WaitingRegex: prof.WaitingDetection.Regex,
	}
	args := prof.Args
	if cfg.ToolArgs != "" {
		args = append(append([]string{}, prof.Args...), strings.Split(cfg.ToolArgs, "\x00")...)
	}
	controller := ptyctl.New(prof.Command, args, envSlice(prof.Env), workingDir, idle, logger)
	if err := controller.Start(); err != nil {
		return fmt.Errorf("start wrapped process: %w", err)
	}
	defer func() { _ = controller.Stop() }()

	identity := resolveIdentity(agentID, agentType, cfg.Port)

	srv := server.New(cfg, logger, card, controller, reg, portManager, boardStore, historyLog, identity)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	record := types.AgentRecord{
		AgentID:    agentID,
		AgentType:  agentType,
		Port:       cfg.Port,
		Endpoint:   endpoint,
		UDSPath:    cfg.Server.UDSPath,
		PID:        os.Getpid(),
		WorkingDir: workingDir,
		Status:     types.AgentProcessing,
		Transport:  "http",
		CreatedAt:  timeNow(),
		UpdatedAt:  timeNow(),
	}
	if err := reg.Register(record); err != nil {
		logger.Warn("failed to register agent record", zap.Error(err))
	}
	defer func() { _ = reg.Unregister(agentID) }()

	logger.Info("synapse-agentd ready", zap.String("agent_id", agentID), zap.Int("port", cfg.Port))

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Stop(shutdownCtx)
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func loopbackHost(host string) string {
	if host == "" || host == "0.0.0.0" {
		return "127.0.0.1"
	}
	return host
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// resolveIdentity renders the one-shot identity/initial-instruction message
// injected once the wrapped process is first idle (spec.md §4.1).
func resolveIdentity(agentID, agentType string, port int) string {
	return fmt.Sprintf("[A2A:%s:synapse-system] You are agent %s (type: %s) listening on port %d via the A2A protocol.",
		shortID(agentID), agentID, agentType, port)
}

func shortID(agentID string) string {
	if len(agentID) <= 8 {
		return agentID
	}
	return agentID[len(agentID)-8:]
}

func buildAgentCard(agentID, agentType, endpoint string) types.AgentCard {
	return types.AgentCard{
		ID:          agentID,
		Name:        agentType,
		Description: fmt.Sprintf("Synapse A2A wrapper around %s", agentType),
		Version:     "1.0.0",
		URL:         endpoint,
		Capabilities: types.AgentCapabilities{
			Streaming:         false,
			PushNotifications: true,
		},
		DefaultInputModes:  []string{"text"},
		DefaultOutputModes: []string{"text"},
		Skills:             []types.AgentSkill{},
	}
}

func timeNow() time.Time { return time.Now().UTC() }
