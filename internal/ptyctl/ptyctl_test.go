package ptyctl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStartWriteAndStop(t *testing.T) {
	c := New("/bin/sh", []string{"-i"}, nil, "", IdleConfig{Strategy: "timeout", Timeout: 200 * time.Millisecond}, zap.NewNop())
	require.NoError(t, c.Start())
	defer c.Stop()

	require.NoError(t, c.Write("echo hi-from-shell\r", ""))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(c.Context()) > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	assert.Contains(t, c.Context(), "hi-from-shell")
}

func TestPollTimeoutDeclaresDoneAfterQuiet(t *testing.T) {
	c := New("/bin/sh", []string{"-i"}, nil, "", IdleConfig{Strategy: "timeout", Timeout: 100 * time.Millisecond}, zap.NewNop())
	require.NoError(t, c.Start())
	defer c.Stop()

	require.NoError(t, c.Write("echo settle\r", ""))
	time.Sleep(300 * time.Millisecond)
	c.PollTimeout()

	assert.Equal(t, StatusDone, c.Status())
}

func TestInjectIdentityOnlyOnce(t *testing.T) {
	c := New("/bin/sh", []string{"-i"}, nil, "", IdleConfig{Strategy: "timeout", Timeout: time.Second}, zap.NewNop())
	require.NoError(t, c.Start())
	defer c.Stop()

	sent, err := c.InjectIdentity("echo hello\r", "")
	require.NoError(t, err)
	assert.True(t, sent)
	assert.True(t, c.IdentitySent())

	sentAgain, err := c.InjectIdentity("echo again\r", "")
	require.NoError(t, err)
	assert.False(t, sentAgain, "identity handshake must run at most once")
}

func TestInvalidIdlePatternFallsBackToTimeout(t *testing.T) {
	c := New("/bin/sh", []string{"-i"}, nil, "", IdleConfig{Strategy: "pattern", Pattern: "(unterminated", Timeout: time.Second}, zap.NewNop())
	assert.Equal(t, "timeout", c.idle.Strategy)
}
