package registry

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/synapse-a2a/synapse/types"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	dir := t.TempDir()
	r, err := New(dir, zap.NewNop())
	require.NoError(t, err)
	return r
}

func TestAgentIDFormat(t *testing.T) {
	assert.Equal(t, "synapse-claude-8100", AgentID("claude", 8100))
}

func TestRegisterGetUnregister(t *testing.T) {
	r := newTestRegistry(t)
	rec := types.AgentRecord{AgentID: "synapse-claude-8100", AgentType: "claude", Port: 8100, PID: os.Getpid(), Status: types.AgentProcessing}

	require.NoError(t, r.Register(rec))

	got, ok := r.Get(rec.AgentID)
	require.True(t, ok)
	assert.Equal(t, rec.Port, got.Port)

	require.NoError(t, r.Unregister(rec.AgentID))
	_, ok = r.Get(rec.AgentID)
	assert.False(t, ok)
}

func TestListSkipsCorruptEntries(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Register(types.AgentRecord{AgentID: "synapse-claude-8100", PID: os.Getpid()}))
	require.NoError(t, os.WriteFile(r.path("synapse-broken-1"), []byte("not json"), 0o644))

	records := r.List()
	require.Len(t, records, 1)
	assert.Equal(t, "synapse-claude-8100", records[0].AgentID)
}

func TestIsAliveRequiresLivePID(t *testing.T) {
	rec := types.AgentRecord{PID: 1 << 30, Status: types.AgentProcessing}
	assert.False(t, IsAlive(rec))
}

func TestRangeForKnownAndUnknownTypes(t *testing.T) {
	r := RangeFor("claude")
	assert.Equal(t, 8100, r.Low)

	r2 := RangeFor("aider")
	r3 := RangeFor("aider")
	assert.Equal(t, r2, r3, "range computation must be stable")
}
