package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWithIdleDetection(t *testing.T) {
	p, err := Parse([]byte(`
command: claude
args: ["--dangerously-skip-permissions"]
submit_sequence: "\r"
idle_detection:
  strategy: hybrid
  pattern: "\\$\\s*$"
  timeout: 2.0
`))
	require.NoError(t, err)
	assert.Equal(t, "claude", p.Command)
	assert.Equal(t, "\r", p.SubmitSequence)
	assert.Equal(t, StrategyHybrid, p.IdleDetection.Strategy)
}

func TestParseLegacyIdleRegexFallback(t *testing.T) {
	p, err := Parse([]byte(`
command: gemini
idle_regex: "\\$\\s*$"
`))
	require.NoError(t, err)
	assert.Equal(t, StrategyPattern, p.IdleDetection.Strategy)
	assert.Equal(t, 1.5, p.IdleDetection.Timeout)
}

func TestParseDefaultsToTimeoutStrategy(t *testing.T) {
	p, err := Parse([]byte(`command: codex`))
	require.NoError(t, err)
	assert.Equal(t, StrategyTimeout, p.IdleDetection.Strategy)
}

func TestParseRequiresCommand(t *testing.T) {
	_, err := Parse([]byte(`args: ["x"]`))
	require.Error(t, err)
}

func TestDecodeEscapes(t *testing.T) {
	assert.Equal(t, "\r\n", decodeEscapes(`\r\n`))
	assert.Equal(t, "\x1b", decodeEscapes(`\x1b`))
}
