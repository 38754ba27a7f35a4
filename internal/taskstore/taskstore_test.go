package taskstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/synapse-a2a/synapse/types"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	return New(zap.NewNop())
}

func textMessage(text string) *types.Message {
	return &types.Message{Role: types.RoleUser, Parts: []types.Part{types.NewTextPart(text)}}
}

func TestCreateAndResolveByFullID(t *testing.T) {
	s := newStore(t)
	task := s.Create(textMessage("hi"), types.TaskStateSubmitted, nil)

	got, err := s.Resolve(task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, types.TaskStateSubmitted, got.Status.State)
}

func TestResolveByUniquePrefix(t *testing.T) {
	s := newStore(t)
	task := s.Create(textMessage("hi"), types.TaskStateSubmitted, nil)

	got, err := s.Resolve(task.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)
}

func TestResolveNotFound(t *testing.T) {
	s := newStore(t)
	_, err := s.Resolve("nonexistent")
	require.Error(t, err)
	assert.True(t, NotFound(err))
}

func TestUpdateStatusRefusesLeavingTerminal(t *testing.T) {
	s := newStore(t)
	task := s.Create(textMessage("hi"), types.TaskStateSubmitted, nil)

	require.NoError(t, s.UpdateStatus(task.ID, types.TaskStateCompleted, nil))
	err := s.UpdateStatus(task.ID, types.TaskStateWorking, nil)
	require.Error(t, err)
	assert.True(t, Terminal(err))
}

func TestListFiltersByState(t *testing.T) {
	s := newStore(t)
	a := s.Create(textMessage("a"), types.TaskStateSubmitted, nil)
	b := s.Create(textMessage("b"), types.TaskStateSubmitted, nil)
	require.NoError(t, s.UpdateStatus(b.ID, types.TaskStateCompleted, nil))

	completed := types.TaskStateCompleted
	tasks, total := s.List(&completed, 10, 0)
	require.Len(t, tasks, 1)
	assert.Equal(t, b.ID, tasks[0].ID)
	assert.Equal(t, 1, total)
	_ = a
}

func TestAppendArtifact(t *testing.T) {
	s := newStore(t)
	task := s.Create(textMessage("hi"), types.TaskStateWorking, nil)

	require.NoError(t, s.AppendArtifact(task.ID, []types.Part{types.NewTextPart("output chunk")}))

	got, err := s.Resolve(task.ID)
	require.NoError(t, err)
	require.Len(t, got.Artifacts, 1)
	assert.Equal(t, 0, got.Artifacts[0].Index)
}
