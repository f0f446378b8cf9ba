// Package tmux wraps the tmux binary, the only process-control primitive
// dispatch uses. Every worker runs inside a named, detached tmux session that
// survives operator disconnects and can be reattached for inspection.
package tmux

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Runner abstracts command execution so session behavior can be tested
// without a live tmux server.
type Runner interface {
	Run(name string, args ...string) (string, error)
}

// ExecRunner executes commands via os/exec and returns trimmed combined output.
type ExecRunner struct{}

// Run executes the command and returns its combined output.
func (ExecRunner) Run(name string, args ...string) (string, error) {
	out, err := exec.Command(name, args...).CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

// ErrSessionExists is returned when creating a session whose name is taken.
// Names are never auto-renamed; a collision is a conflict the caller handles.
var ErrSessionExists = errors.New("tmux: session already exists")

// ErrInvalidSessionName rejects names tmux would mis-parse as targets.
var ErrInvalidSessionName = errors.New("tmux: invalid session name")

var validSessionName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateSessionName checks that a name contains only characters tmux
// handles unambiguously. Dots and colons in particular make tmux interpret
// the name as a window/pane target.
func ValidateSessionName(name string) error {
	if name == "" || !validSessionName.MatchString(name) {
		return fmt.Errorf("%w: %q must match %s", ErrInvalidSessionName, name, validSessionName.String())
	}
	return nil
}

// Client issues tmux commands through a Runner.
type Client struct {
	runner Runner
}

// NewClient builds a client backed by the real tmux binary.
func NewClient() *Client {
	return &Client{runner: ExecRunner{}}
}

// NewClientWithRunner builds a client over a custom runner (tests).
func NewClientWithRunner(r Runner) *Client {
	return &Client{runner: r}
}

// HasSession reports whether a session with the given name is running.
func (c *Client) HasSession(name string) bool {
	_, err := c.runner.Run("tmux", "has-session", "-t", name)
	return err == nil
}

// NewSession creates a detached session at fixed dimensions running the
// default shell in dir. Fixed dimensions keep captured buffers reproducible
// regardless of the operator's terminal. A name collision returns
// ErrSessionExists and starts nothing.
func (c *Client) NewSession(name, dir string, width, height int) error {
	if err := ValidateSessionName(name); err != nil {
		return err
	}
	if c.HasSession(name) {
		return fmt.Errorf("%w: %s", ErrSessionExists, name)
	}
	args := []string{"new-session", "-d", "-s", name,
		"-x", strconv.Itoa(width), "-y", strconv.Itoa(height)}
	if dir != "" {
		args = append(args, "-c", dir)
	}
	if out, err := c.runner.Run("tmux", args...); err != nil {
		return fmt.Errorf("tmux new-session %s: %w (%s)", name, err, out)
	}
	return nil
}

// KillSession destroys the named session.
func (c *Client) KillSession(name string) error {
	if out, err := c.runner.Run("tmux", "kill-session", "-t", name); err != nil {
		return fmt.Errorf("tmux kill-session %s: %w (%s)", name, err, out)
	}
	return nil
}

// ListSessions returns the names of all running sessions. A missing server
// (no sessions at all) is reported as an empty list, not an error.
func (c *Client) ListSessions() ([]string, error) {
	out, err := c.runner.Run("tmux", "list-sessions", "-F", "#{session_name}")
	if err != nil {
		if strings.Contains(strings.ToLower(out), "no server running") {
			return nil, nil
		}
		return nil, fmt.Errorf("tmux list-sessions: %w (%s)", err, out)
	}
	var names []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// Capture returns up to lines of rendered scroll-back plus the visible
// screen for the session's active pane.
func (c *Client) Capture(name string, lines int) (string, error) {
	if lines <= 0 {
		lines = 200
	}
	out, err := c.runner.Run("tmux", "capture-pane", "-p", "-t", name,
		"-S", fmt.Sprintf("-%d", lines))
	if err != nil {
		return "", fmt.Errorf("tmux capture-pane %s: %w (%s)", name, err, out)
	}
	return out, nil
}

// SendText delivers literal text to the session without any activation key.
// Single-line text goes through send-keys -l; multiline text is staged in a
// uniquely named tmux buffer and pasted, which survives bracketed-paste
// handling in interactive CLIs.
func (c *Client) SendText(name, text string) error {
	if !strings.Contains(text, "\n") {
		if out, err := c.runner.Run("tmux", "send-keys", "-t", name, "-l", "--", text); err != nil {
			return fmt.Errorf("tmux send-keys %s: %w (%s)", name, err, out)
		}
		return nil
	}
	return c.pasteBuffer(name, text)
}

// SendKey delivers a single named key event (for example "Enter" or "Escape")
// as its own tmux call, deliberately separate from SendText.
func (c *Client) SendKey(name, key string) error {
	if out, err := c.runner.Run("tmux", "send-keys", "-t", name, key); err != nil {
		return fmt.Errorf("tmux send-keys %s %s: %w (%s)", name, key, err, out)
	}
	return nil
}

// SetTitle renames the session's active pane title and stops the worker from
// overwriting it through OSC escape sequences.
func (c *Client) SetTitle(name, title string) error {
	if out, err := c.runner.Run("tmux", "select-pane", "-t", name, "-T", title); err != nil {
		return fmt.Errorf("tmux select-pane %s: %w (%s)", name, err, out)
	}
	_, _ = c.runner.Run("tmux", "set-option", "-p", "-t", name, "allow-set-title", "off")
	return nil
}

// SetWindowStyle applies a window foreground style, used for best-effort
// color coding of worker sessions.
func (c *Client) SetWindowStyle(name, style string) error {
	if out, err := c.runner.Run("tmux", "set-option", "-t", name, "window-style", style); err != nil {
		return fmt.Errorf("tmux set-option %s: %w (%s)", name, err, out)
	}
	return nil
}

// Attach replaces the current terminal with an interactive attachment to the
// session. It bypasses the Runner so stdin/stdout wire up directly.
func (c *Client) Attach(name string) error {
	cmd := exec.Command("tmux", "attach-session", "-t", name)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("tmux attach-session %s: %w", name, err)
	}
	return nil
}

func (c *Client) pasteBuffer(name, content string) error {
	bufferName := "dispatch-" + uuid.NewString()
	load := exec.Command("tmux", "load-buffer", "-b", bufferName, "-")
	load.Stdin = strings.NewReader(content)
	var stderr bytes.Buffer
	load.Stderr = &stderr
	if err := load.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return fmt.Errorf("tmux load-buffer: %s", msg)
	}
	if out, err := c.runner.Run("tmux", "paste-buffer", "-p", "-d", "-b", bufferName, "-t", name); err != nil {
		_, _ = c.runner.Run("tmux", "delete-buffer", "-b", bufferName)
		return fmt.Errorf("tmux paste-buffer %s: %w (%s)", name, err, out)
	}
	return nil
}
