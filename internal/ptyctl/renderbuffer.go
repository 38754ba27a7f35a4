package ptyctl

import "strconv"

// renderBuffer is a minimal terminal emulator that tracks what would
// actually be visible on screen, distinct from the raw append-only output
// buffer. It understands carriage return, backspace, and the small subset
// of ANSI CSI sequences interactive CLIs use for progress redraws (cursor
// movement and line/screen erase) — not a general-purpose VT100
// emulator (spec.md §9 Non-goals explicitly excludes cursor-perfect
// fidelity).
type renderBuffer struct {
	lines []*[]rune
	row   int
	col   int
}

const maxRenderLines = 2000

func newRenderBuffer() *renderBuffer {
	line := make([]rune, 0, 80)
	return &renderBuffer{lines: []*[]rune{&line}}
}

// Write feeds a chunk of raw PTY output through the emulator.
func (b *renderBuffer) Write(data []byte) {
	runes := []rune(string(data))
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch r {
		case '\r':
			b.col = 0
			i++
		case '\n':
			b.newline()
			i++
		case '\b':
			if b.col > 0 {
				b.col--
			}
			i++
		case 0x1b:
			consumed := b.handleEscape(runes[i:])
			if consumed == 0 {
				i++
			} else {
				i += consumed
			}
		default:
			b.put(r)
			i++
		}
	}
}

func (b *renderBuffer) newline() {
	b.row++
	b.col = 0
	if b.row >= len(b.lines) {
		line := make([]rune, 0, 80)
		b.lines = append(b.lines, &line)
	}
	if len(b.lines) > maxRenderLines {
		b.lines = b.lines[len(b.lines)-maxRenderLines:]
		b.row = len(b.lines) - 1
	}
}

func (b *renderBuffer) put(r rune) {
	line := b.lines[b.row]
	for len(*line) <= b.col {
		*line = append(*line, ' ')
	}
	(*line)[b.col] = r
	b.col++
}

// handleEscape interprets a CSI sequence starting at seq[0]=='\x1b' and
// returns how many runes it consumed, or 0 if seq isn't a recognized
// escape (in which case the caller advances by one and resyncs on the next
// byte).
func (b *renderBuffer) handleEscape(seq []rune) int {
	if len(seq) < 2 || seq[1] != '[' {
		return 0
	}

	i := 2
	for i < len(seq) && (seq[i] == '?' || (seq[i] >= '0' && seq[i] <= '9') || seq[i] == ';') {
		i++
	}
	if i >= len(seq) {
		return 0
	}

	params := string(seq[2:i])
	final := seq[i]

	switch final {
	case 'A': // cursor up
		n := parseIntOr(params, 1)
		b.row -= n
		if b.row < 0 {
			b.row = 0
		}
	case 'B': // cursor down
		n := parseIntOr(params, 1)
		b.row += n
		for b.row >= len(b.lines) {
			line := make([]rune, 0, 80)
			b.lines = append(b.lines, &line)
		}
	case 'C': // cursor forward
		b.col += parseIntOr(params, 1)
	case 'D': // cursor back
		b.col -= parseIntOr(params, 1)
		if b.col < 0 {
			b.col = 0
		}
	case 'K': // erase in line
		b.eraseLine(parseIntOr(params, 0))
	case 'J': // erase in display
		b.eraseDisplay(parseIntOr(params, 0))
	case 'H', 'f': // cursor position
		// not tracked precisely; ignored beyond consuming the sequence
	}

	return i + 1
}

func (b *renderBuffer) eraseLine(mode int) {
	line := b.lines[b.row]
	switch mode {
	case 0: // cursor to end of line
		if b.col < len(*line) {
			*line = (*line)[:b.col]
		}
	case 1: // start of line to cursor
		for i := 0; i < b.col && i < len(*line); i++ {
			(*line)[i] = ' '
		}
	case 2: // entire line
		*line = (*line)[:0]
	}
}

func (b *renderBuffer) eraseDisplay(mode int) {
	switch mode {
	case 2, 3:
		line := make([]rune, 0, 80)
		b.lines = []*[]rune{&line}
		b.row, b.col = 0, 0
	default:
		b.eraseLine(mode)
	}
}

// String renders the current screen as a single newline-joined string.
func (b *renderBuffer) String() string {
	out := make([]byte, 0, 4096)
	for i, line := range b.lines {
		if i > 0 {
			out = append(out, '\n')
		}
		out = append(out, []byte(string(*line))...)
	}
	return string(out)
}

func parseIntOr(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
