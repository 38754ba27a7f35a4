// Package registry implements the cross-process Agent Registry (spec.md
// §4.7), ported from original_source's registry.py: one JSON file per agent
// under a shared directory, written atomically via temp-then-rename.
//
// Unlike the original, agent ids here follow spec.md's deterministic
// "synapse-<type>-<port>" format rather than a sha256 hash of
// hostname|working_dir|type — spec.md's REDESIGN FLAGS supersede the
// original on this point (see DESIGN.md).
package registry

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/synapse-a2a/synapse/types"
)

// AgentID builds the deterministic id spec.md §4.7 requires.
func AgentID(agentType string, port int) string {
	return fmt.Sprintf("synapse-%s-%d", agentType, port)
}

// Registry manages AgentRecord documents persisted under dir.
type Registry struct {
	dir    string
	logger *zap.Logger
}

// New creates a Registry rooted at dir, creating it if necessary. An empty
// dir defaults to ~/.a2a/registry.
func New(dir string, logger *zap.Logger) (*Registry, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		dir = filepath.Join(home, ".a2a", "registry")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create registry dir: %w", err)
	}
	return &Registry{dir: dir, logger: logger}, nil
}

func (r *Registry) path(agentID string) string {
	return filepath.Join(r.dir, agentID+".json")
}

// Register writes or replaces the record for an agent, atomically.
func (r *Registry) Register(rec types.AgentRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal agent record: %w", err)
	}

	final := r.path(rec.AgentID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp registry file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("rename registry file: %w", err)
	}
	return nil
}

// Unregister removes an agent's record, ignoring a missing file.
func (r *Registry) Unregister(agentID string) error {
	if err := os.Remove(r.path(agentID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove registry file: %w", err)
	}
	return nil
}

// Get reads one agent's record.
func (r *Registry) Get(agentID string) (types.AgentRecord, bool) {
	data, err := os.ReadFile(r.path(agentID))
	if err != nil {
		return types.AgentRecord{}, false
	}
	var rec types.AgentRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return types.AgentRecord{}, false
	}
	return rec, true
}

// List returns every valid agent record in the registry directory,
// silently skipping corrupt entries the way the original does.
func (r *Registry) List() []types.AgentRecord {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil
	}

	var records []types.AgentRecord
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.dir, entry.Name()))
		if err != nil {
			continue
		}
		var rec types.AgentRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			r.logger.Warn("skipping corrupt registry entry", zap.String("file", entry.Name()))
			continue
		}
		records = append(records, rec)
	}
	return records
}

// IsAlive reports whether an agent record represents a live agent:
// its PID must be running, and either its port must be bound or it must
// self-report as PROCESSING (spec.md §4.7).
func IsAlive(rec types.AgentRecord) bool {
	if !processAlive(rec.PID) {
		return false
	}
	if rec.Status == types.AgentProcessing {
		return true
	}
	return !portAvailable(rec.Port)
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

func portAvailable(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

// CleanupStale removes registry entries whose agent is no longer alive.
func (r *Registry) CleanupStale() {
	for _, rec := range r.List() {
		if !IsAlive(rec) {
			r.logger.Info("cleaning up stale registry entry",
				zap.String("agent_id", rec.AgentID), zap.Int("pid", rec.PID))
			_ = r.Unregister(rec.AgentID)
		}
	}
}
