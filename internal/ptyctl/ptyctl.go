// Package ptyctl implements the Terminal Controller (spec.md §4.1): it
// spawns a child CLI behind a PTY, maintains a render buffer of its screen
// output, infers WAITING/DONE liveness via a pluggable idle-detection
// strategy, and performs a one-shot identity-injection handshake.
//
// The spawn/reader-loop lifecycle is grounded on
// other_examples' grove daemon Instance (pty.Start, a reader goroutine,
// process-group SIGINT); the idle state machine and identity handshake are
// ported from original_source's controller.py, generalized from its single
// BUSY/IDLE regex check to spec.md's pattern/timeout/hybrid strategies.
package ptyctl

import (
	"bytes"
	"os"
	"os/exec"
	"regexp"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"go.uber.org/zap"
)

// Status is the Terminal Controller's inferred liveness state for the
// wrapped process.
type Status string

const (
	StatusProcessing Status = "PROCESSING"
	StatusWaiting    Status = "WAITING"
	StatusDone       Status = "DONE"
)

// bracketedPasteMode is stripped from idle-pattern matching since many
// CLIs toggle it on every redraw, which would otherwise look like fresh
// output and defeat idle detection (spec.md §4.1).
const bracketedPasteMode = "\x1b[?2004"

const (
	maxOutputBuffer = 1 << 20 // 1 MiB raw output ring
	readChunkSize   = 4096
)

// IdleConfig configures the idle-detection strategy (spec.md §4.1).
type IdleConfig struct {
	Strategy      string // "pattern" | "timeout" | "hybrid"
	Pattern       string
	Timeout       time.Duration
	WaitingRegex  string
}

// Controller wraps one child CLI process behind a PTY.
type Controller struct {
	command string
	args    []string
	env     []string
	dir     string
	idle    IdleConfig
	logger  *zap.Logger

	idlePattern    *regexp.Regexp
	waitingPattern *regexp.Regexp

	mu          sync.Mutex
	ptm         *os.File
	cmd         *exec.Cmd
	running     bool
	status      Status
	outputBuf   []byte
	renderBuf   *renderBuffer
	lastOutput  time.Time
	hasOutput   bool
	writeMu     sync.Mutex
	identitySent    bool
	identitySending bool

	done chan struct{}
}

// New builds a Controller for the given command. idle.Pattern is compiled
// if non-empty; a regexp compile failure falls back to the timeout
// strategy rather than failing the whole wrapper (spec.md §4.1 edge case).
func New(command string, args, env []string, dir string, idle IdleConfig, logger *zap.Logger) *Controller {
	c := &Controller{
		command:   command,
		args:      args,
		env:       env,
		dir:       dir,
		idle:      idle,
		logger:    logger,
		status:    StatusProcessing,
		renderBuf: newRenderBuffer(),
	}

	if idle.Pattern != "" {
		if re, err := regexp.Compile(idle.Pattern); err == nil {
			c.idlePattern = re
		} else {
			logger.Warn("invalid idle pattern, falling back to timeout strategy", zap.Error(err))
			c.idle.Strategy = "timeout"
		}
	}
	if idle.WaitingRegex != "" {
		if re, err := regexp.Compile(idle.WaitingRegex); err == nil {
			c.waitingPattern = re
		}
	}

	return c
}

// Start spawns the child process behind a PTY and begins the reader loop.
func (c *Controller) Start() error {
	cmd := exec.Command(c.command, c.args...)
	cmd.Dir = c.dir
	cmd.Env = append(os.Environ(), c.env...)

	// pty.Start sets Setsid:true on the child; do not also set Setpgid,
	// calling setpgid() after setsid() on the session leader returns EPERM.
	ptm, err := pty.Start(cmd)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.ptm = ptm
	c.cmd = cmd
	c.running = true
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.readLoop()
	return nil
}

// RunInteractive calls Start and then sets the PTY size to cols x rows. It
// does not relay a controlling terminal or change any terminal modes.
func (c *Controller) RunInteractive(cols, rows uint16) error {
	if err := c.Start(); err != nil {
		return err
	}
	return c.Resize(cols, rows)
}

// Resize changes the PTY window size.
func (c *Controller) Resize(cols, rows uint16) error {
	c.mu.Lock()
	ptm := c.ptm
	c.mu.Unlock()
	if ptm == nil {
		return nil
	}
	return pty.Setsize(ptm, &pty.Winsize{Cols: cols, Rows: rows})
}

func (c *Controller) readLoop() {
	defer close(c.done)

	buf := make([]byte, readChunkSize)
	for {
		n, err := c.ptm.Read(buf)
		if n > 0 {
			c.onOutput(buf[:n])
		}
		if err != nil {
			break
		}
	}

	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

func (c *Controller) onOutput(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.outputBuf = append(c.outputBuf, data...)
	if len(c.outputBuf) > maxOutputBuffer {
		c.outputBuf = c.outputBuf[len(c.outputBuf)-maxOutputBuffer:]
	}
	c.renderBuf.Write(data)
	c.lastOutput = time.Now()
	c.hasOutput = true

	c.checkIdleLocked()
}

// checkIdleLocked updates c.status from the last 1000 bytes of raw output,
// the way original_source's _check_idle_state inspects a trailing window
// rather than the whole buffer. Must be called with c.mu held.
func (c *Controller) checkIdleLocked() {
	window := c.outputBuf
	if len(window) > 1000 {
		window = window[len(window)-1000:]
	}
	clean := bytes.ReplaceAll(window, []byte(bracketedPasteMode+"h"), nil)
	clean = bytes.ReplaceAll(clean, []byte(bracketedPasteMode+"l"), nil)

	if c.waitingPattern != nil && c.waitingPattern.Match(clean) {
		c.status = StatusWaiting
		return
	}

	switch c.idle.Strategy {
	case "pattern":
		if c.idlePattern != nil && c.idlePattern.Match(clean) {
			c.status = StatusDone
		} else {
			c.status = StatusProcessing
		}
	case "hybrid":
		if c.idlePattern != nil && c.idlePattern.Match(clean) {
			c.status = StatusDone
		} else {
			c.status = StatusProcessing
		}
	default:
		c.status = StatusProcessing
	}
}

// PollTimeout re-evaluates idle status for the timeout and hybrid
// strategies, which declare DONE once no output has arrived for the
// configured duration. c.lastOutput starts zero-valued until the first
// byte arrives, so a process that has not produced any output yet is never
// mistaken for idle.
func (c *Controller) PollTimeout() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.idle.Strategy != "timeout" && c.idle.Strategy != "hybrid" {
		return
	}
	if !c.hasOutput {
		return
	}
	if c.status == StatusWaiting {
		return
	}
	if time.Since(c.lastOutput) >= c.idle.Timeout {
		c.status = StatusDone
	}
}

// Status returns the controller's current inferred status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Context returns a snapshot of the rendered terminal screen.
func (c *Controller) Context() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.renderBuf.String()
}

// RawOutput returns a snapshot of the raw, unrendered output buffer.
func (c *Controller) RawOutput() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.outputBuf)
}

// Write sends data to the child process, optionally followed by a submit
// sequence, marking the controller busy again.
func (c *Controller) Write(data, submitSequence string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	ptm := c.ptm
	c.status = StatusProcessing
	c.mu.Unlock()

	if ptm == nil {
		return os.ErrClosed
	}
	if _, err := ptm.Write([]byte(data)); err != nil {
		return err
	}
	if submitSequence != "" {
		_, err := ptm.Write([]byte(submitSequence))
		return err
	}
	return nil
}

// Interrupt sends SIGINT to the child's process group, matching
// original_source's os.killpg(os.getpgid(pid), SIGINT).
func (c *Controller) Interrupt() error {
	c.mu.Lock()
	cmd := c.cmd
	c.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		return cmd.Process.Signal(syscall.SIGINT)
	}
	return syscall.Kill(-pgid, syscall.SIGINT)
}

// InjectIdentity performs the one-shot identity/initial-instruction
// handshake. It is a no-op on every call after the first, and refuses
// concurrent injection attempts (identity_sent/identity_sending guard).
func (c *Controller) InjectIdentity(text, submitSequence string) (bool, error) {
	c.mu.Lock()
	if c.identitySent || c.identitySending {
		c.mu.Unlock()
		return false, nil
	}
	c.identitySending = true
	c.mu.Unlock()

	err := c.Write(text, submitSequence)

	c.mu.Lock()
	c.identitySending = false
	if err == nil {
		c.identitySent = true
	}
	c.mu.Unlock()

	return err == nil, err
}

// IdentitySent reports whether the identity handshake has completed.
func (c *Controller) IdentitySent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identitySent
}

// Running reports whether the child process is still alive.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Stop terminates the child process and waits for the reader loop to
// finish. Safe to call more than once.
func (c *Controller) Stop() error {
	c.mu.Lock()
	cmd := c.cmd
	ptm := c.ptm
	done := c.done
	running := c.running
	c.mu.Unlock()

	if cmd == nil {
		return nil
	}

	if running && cmd.Process != nil {
		if pgid, err := syscall.Getpgid(cmd.Process.Pid); err == nil {
			_ = syscall.Kill(-pgid, syscall.SIGTERM)
		} else {
			_ = cmd.Process.Signal(syscall.SIGTERM)
		}
	}

	if ptm != nil {
		_ = ptm.Close()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
		}
	}
	_ = cmd.Wait()
	return nil
}
