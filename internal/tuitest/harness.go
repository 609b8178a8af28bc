// Package tuitest drives a terminal program through a pseudo terminal and
// records what it draws.
package tuitest

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/pkg/errors"
)

const (
	defaultWidth   = 120
	defaultHeight  = 32
	defaultTimeout = 10 * time.Second
	pollInterval   = 25 * time.Millisecond
)

// Step is one scripted interaction. The harness first waits Delay, then waits
// until Expect has been drawn (when set), then writes Input.
type Step struct {
	Delay  time.Duration
	Expect string
	Input  []byte
}

// Config configures how the harness spawns and drives the program.
type Config struct {
	Command          []string
	Dir              string
	Env              []string
	Width            int
	Height           int
	Steps            []Step
	Timeout          time.Duration
	AllowedExitCodes []int
	AllowInterrupt   bool
}

// Recording contains the raw terminal stream plus parsed frames.
type Recording struct {
	Raw      []byte
	Frames   []Frame
	Duration time.Duration
}

// Contains reports whether text was ever drawn, once ANSI codes are removed.
func (r *Recording) Contains(text string) bool {
	if r == nil {
		return false
	}
	return strings.Contains(normalizeLines(stripANSI(strings.ReplaceAll(string(r.Raw), "\r", ""))), text)
}

// transcript collects program output and replays it onto a screen, keeping one
// frame per distinct screen state.
type transcript struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	screen *screen
	frames []Frame
}

func newTranscript(width, height int) *transcript {
	return &transcript{screen: newScreen(width, height)}
}

func (t *transcript) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	_, _ = t.screen.Write(p)
	text := t.screen.Text()
	if strings.TrimSpace(text) == "" {
		return len(p), nil
	}
	if n := len(t.frames); n > 0 && t.frames[n-1].Plain == text {
		return len(p), nil
	}
	t.frames = append(t.frames, Frame{Index: len(t.frames), Plain: text})
	return len(p), nil
}

func (t *transcript) recording(started time.Time) *Recording {
	t.mu.Lock()
	defer t.mu.Unlock()
	return &Recording{
		Raw:      append([]byte(nil), t.buf.Bytes()...),
		Frames:   append([]Frame(nil), t.frames...),
		Duration: time.Since(started),
	}
}

// shows reports whether text is on screen now, or was drawn at any point.
func (t *transcript) shows(text string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if strings.Contains(t.screen.Text(), text) {
		return true
	}
	return strings.Contains(stripANSI(strings.ReplaceAll(t.buf.String(), "\r", "")), text)
}

// Run executes the configured command inside a PTY, replays the scripted
// steps and captures every byte written to the terminal.
func Run(ctx context.Context, cfg Config) (*Recording, error) {
	if len(cfg.Command) == 0 {
		return nil, errors.New("tuitest: command is required")
	}
	width := cfg.Width
	if width <= 0 {
		width = defaultWidth
	}
	height := cfg.Height
	if height <= 0 {
		height = defaultHeight
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, cfg.Command[0], cfg.Command[1:]...)
	cmd.Dir = cfg.Dir
	cmd.Env = buildEnv(cfg.Env)

	allowedCodes := map[int]struct{}{0: {}}
	for _, code := range cfg.AllowedExitCodes {
		allowedCodes[code] = struct{}{}
	}

	winsize := &pty.Winsize{Rows: uint16(height), Cols: uint16(width)}
	ptmx, err := pty.StartWithSize(cmd, winsize)
	if err != nil {
		return nil, errors.Wrap(err, "tuitest: start program")
	}
	defer func() { _ = ptmx.Close() }()

	output := newTranscript(width, height)
	copyDone := make(chan struct{})
	go func() {
		defer close(copyDone)
		responder := newTerminalResponder(ptmx)
		buf := make([]byte, 4096)
		for {
			n, readErr := ptmx.Read(buf)
			if n > 0 {
				chunk := buf[:n]
				responder.Process(chunk)
				_, _ = output.Write(chunk)
			}
			if readErr != nil {
				return
			}
		}
	}()

	start := time.Now()
	for idx, step := range cfg.Steps {
		if step.Delay > 0 {
			select {
			case <-ctx.Done():
				return nil, errors.Wrapf(ctx.Err(), "tuitest: cancelled before step %d", idx)
			case <-time.After(step.Delay):
			}
		}
		if step.Expect != "" {
			if err := waitFor(ctx, output, step.Expect); err != nil {
				return output.recording(start), errors.Wrapf(err, "tuitest: step %d waiting for %q", idx, step.Expect)
			}
		}
		if len(step.Input) > 0 {
			if _, err := ptmx.Write(step.Input); err != nil {
				return nil, errors.Wrap(err, "tuitest: write input")
			}
		}
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	select {
	case err := <-waitErr:
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				if _, ok := allowedCodes[exitErr.ExitCode()]; ok {
					break
				}
			}
			if cfg.AllowInterrupt && strings.Contains(err.Error(), "signal: interrupt") {
				break
			}
			return nil, errors.Wrap(err, "tuitest: program exited with error")
		}
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "tuitest: timeout waiting for program exit")
	}

	// Closing the PTY lets the reader goroutine finish draining.
	_ = ptmx.Close()
	<-copyDone

	return output.recording(start), nil
}

func waitFor(ctx context.Context, output *transcript, text string) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if output.shows(text) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func buildEnv(extra []string) []string {
	env := os.Environ()
	env = append(env, extra...)
	termSet := false
	for _, entry := range env {
		if strings.HasPrefix(entry, "TERM=") {
			termSet = true
			break
		}
	}
	if !termSet {
		env = append(env, "TERM=xterm-256color")
	}
	return env
}

var (
	// KeyEnter sends a carriage return to the PTY.
	KeyEnter = []byte{'\r'}
	// KeyCtrlC requests the program to terminate.
	KeyCtrlC = []byte{3}
	// KeyCtrlN starts a new chat session.
	KeyCtrlN = []byte{14}
)
