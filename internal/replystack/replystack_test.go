package replystack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synapse-a2a/synapse/types"
)

func TestSetGetDoesNotRemove(t *testing.T) {
	s := New()
	s.Set("alice", types.SenderInfo{SenderEndpoint: "http://alice"})

	target, ok := s.Get("alice")
	require.True(t, ok)
	assert.Equal(t, "http://alice", target.SenderEndpoint)

	_, ok = s.Get("alice")
	assert.True(t, ok, "Get must be non-destructive")
}

func TestPopByKey(t *testing.T) {
	s := New()
	s.Set("alice", types.SenderInfo{SenderEndpoint: "http://alice"})

	target, ok := s.Pop("alice")
	require.True(t, ok)
	assert.Equal(t, "http://alice", target.SenderEndpoint)

	_, ok = s.Pop("alice")
	assert.False(t, ok)
}

func TestPopKeylessIsLIFOAcrossSenders(t *testing.T) {
	s := New()
	s.Set("alice", types.SenderInfo{SenderEndpoint: "http://alice"})
	s.Set("bob", types.SenderInfo{SenderEndpoint: "http://bob"})

	target, ok := s.Pop("")
	require.True(t, ok)
	assert.Equal(t, "http://bob", target.SenderEndpoint)

	target, ok = s.Pop("")
	require.True(t, ok)
	assert.Equal(t, "http://alice", target.SenderEndpoint)

	_, ok = s.Pop("")
	assert.False(t, ok)
}

func TestPopUnknownKey(t *testing.T) {
	s := New()
	_, ok := s.Pop("missing")
	assert.False(t, ok)
}
