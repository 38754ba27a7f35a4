// Package profile parses the narrow slice of a Synapse profile file the
// core reads: command, args, submit sequence and idle/waiting detection
// settings (spec.md §6). The broader on-disk settings merge and template
// resolution system original_source's settings.py implements is explicitly
// out of scope (spec.md §1); this package only parses an already-resolved
// profile YAML document.
package profile

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// IdleStrategy selects how the Terminal Controller infers that the wrapped
// process is idle (spec.md §4.1).
type IdleStrategy string

const (
	StrategyPattern IdleStrategy = "pattern"
	StrategyTimeout IdleStrategy = "timeout"
	StrategyHybrid  IdleStrategy = "hybrid"
)

// IdleDetection configures the idle-detection finite state machine.
type IdleDetection struct {
	Strategy IdleStrategy `yaml:"strategy"`
	Pattern  string       `yaml:"pattern"`
	Timeout  float64      `yaml:"timeout"`
}

// WaitingDetection configures the separate WAITING-state regex
// (spec.md §4.1).
type WaitingDetection struct {
	Regex string `yaml:"regex"`
}

// rawProfile mirrors the on-disk YAML shape, including the legacy
// top-level idle_regex field original_source's profiles still use.
type rawProfile struct {
	Command          string            `yaml:"command"`
	Args             []string          `yaml:"args"`
	SubmitSequence   string            `yaml:"submit_sequence"`
	Env              map[string]string `yaml:"env"`
	IdleRegex        string            `yaml:"idle_regex"`
	IdleDetection    *IdleDetection    `yaml:"idle_detection"`
	WaitingDetection *WaitingDetection `yaml:"waiting_detection"`
}

// Profile is the resolved configuration for one wrapped CLI tool.
type Profile struct {
	Command          string
	Args             []string
	SubmitSequence   string
	Env              map[string]string
	IdleDetection    IdleDetection
	WaitingDetection WaitingDetection
}

// Load reads and parses a profile YAML file at path.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses profile YAML content, applying the legacy idle_regex
// fallback original_source's server.py implements when idle_detection is
// absent.
func Parse(data []byte) (*Profile, error) {
	var raw rawProfile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse profile yaml: %w", err)
	}
	if raw.Command == "" {
		return nil, fmt.Errorf("profile must set command")
	}

	p := &Profile{
		Command:        raw.Command,
		Args:           raw.Args,
		SubmitSequence: decodeEscapes(raw.SubmitSequence),
		Env:            raw.Env,
	}

	switch {
	case raw.IdleDetection != nil:
		p.IdleDetection = *raw.IdleDetection
	case raw.IdleRegex != "":
		p.IdleDetection = IdleDetection{Strategy: StrategyPattern, Pattern: raw.IdleRegex, Timeout: 1.5}
	default:
		p.IdleDetection = IdleDetection{Strategy: StrategyTimeout, Timeout: 1.5}
	}

	if raw.WaitingDetection != nil {
		p.WaitingDetection = *raw.WaitingDetection
	}

	return p, nil
}

// decodeEscapes interprets backslash escapes (\n, \r, \x1b, ...) in a
// submit sequence the way original_source's
// `.encode().decode("unicode_escape")` does, since the child CLI often
// needs raw control bytes like carriage return or ESC.
func decodeEscapes(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i == len(s)-1 {
			out = append(out, s[i])
			continue
		}
		switch s[i+1] {
		case 'n':
			out = append(out, '\n')
			i++
		case 'r':
			out = append(out, '\r')
			i++
		case 't':
			out = append(out, '\t')
			i++
		case 'x':
			if i+3 < len(s) {
				if v, err := strconv.ParseUint(s[i+2:i+4], 16, 8); err == nil {
					out = append(out, byte(v))
					i += 3
					continue
				}
			}
			out = append(out, s[i])
		default:
			out = append(out, s[i], s[i+1])
			i++
		}
	}
	return string(out)
}
