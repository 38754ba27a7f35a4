package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synapse-a2a/synapse/types"
)

func TestRecordAndRecent(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "history.db"), time.Hour, 100)
	require.True(t, s.Enabled())
	t.Cleanup(func() { _ = s.Close() })

	s.Record(types.Observation{AgentID: "synapse-claude-8100", Kind: "task.completed", Payload: map[string]any{"task_id": "abc"}})

	obs, err := s.Recent("synapse-claude-8100", 10)
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, "task.completed", obs[0].Kind)
}

func TestPruneByRowCount(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "history.db"), 0, 2)
	t.Cleanup(func() { _ = s.Close() })

	for i := 0; i < 5; i++ {
		s.Record(types.Observation{AgentID: "a", Kind: "k"})
	}

	obs, err := s.Recent("a", 100)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(obs), 2)
}
