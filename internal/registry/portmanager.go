package registry

import (
	"fmt"
	"sort"
)

// portRange is an inclusive [Low, High] band of ports reserved for one
// agent type.
type portRange struct {
	Low, High int
}

// knownRanges mirrors original_source's port_manager.py PORT_RANGES, with
// opencode and copilot bands added per spec.md §4.7 (the original predates
// those agent types).
var knownRanges = map[string]portRange{
	"claude":   {8100, 8109},
	"gemini":   {8110, 8119},
	"codex":    {8120, 8129},
	"opencode": {8130, 8139},
	"copilot":  {8140, 8149},
	"dummy":    {8190, 8199},
}

const (
	defaultBasePort      = 8200
	defaultRangeSize     = 10
)

// PortManager allocates deterministic, per-agent-type ports.
type PortManager struct {
	registry *Registry
}

// NewPortManager builds a PortManager backed by registry.
func NewPortManager(registry *Registry) *PortManager {
	return &PortManager{registry: registry}
}

// RangeFor returns the port band for agentType, computing a stable band for
// unknown types based on their alphabetical position among known types
// (original_source's get_port_range behavior).
func RangeFor(agentType string) portRange {
	if r, ok := knownRanges[agentType]; ok {
		return r
	}

	names := make([]string, 0, len(knownRanges))
	for name := range knownRanges {
		names = append(names, name)
	}
	names = append(names, agentType)
	sort.Strings(names)

	index := 0
	for i, name := range names {
		if name == agentType {
			index = i
			break
		}
	}
	low := defaultBasePort + index*defaultRangeSize
	return portRange{Low: low, High: low + defaultRangeSize - 1}
}

// Acquire returns the first free port in agentType's band, cleaning up
// stale registry entries for dead processes as it scans.
func (pm *PortManager) Acquire(agentType string) (int, error) {
	r := RangeFor(agentType)

	for port := r.Low; port <= r.High; port++ {
		id := AgentID(agentType, port)
		rec, exists := pm.registry.Get(id)
		if !exists {
			if portAvailable(port) {
				return port, nil
			}
			continue
		}

		if IsAlive(rec) {
			continue
		}

		_ = pm.registry.Unregister(id)
		if portAvailable(port) {
			return port, nil
		}
	}

	return 0, fmt.Errorf("%s", pm.formatExhaustion(agentType, r))
}

// RunningInstances returns the ports of the live agents of agentType,
// ascending.
func (pm *PortManager) RunningInstances(agentType string) []int {
	r := RangeFor(agentType)
	var ports []int
	for _, rec := range pm.registry.List() {
		if rec.AgentType != agentType || !IsAlive(rec) {
			continue
		}
		if rec.Port >= r.Low && rec.Port <= r.High {
			ports = append(ports, rec.Port)
		}
	}
	sort.Ints(ports)
	return ports
}

func (pm *PortManager) formatExhaustion(agentType string, r portRange) string {
	running := pm.RunningInstances(agentType)
	return fmt.Sprintf(
		"no free port for agent type %q in range %d-%d (running on: %v); run `synapse stop` on an idle instance to free one",
		agentType, r.Low, r.High, running,
	)
}
