package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/kingrea/dispatch/internal/logbook"
	"github.com/kingrea/dispatch/internal/tmux"
	"github.com/kingrea/dispatch/internal/worker"
)

// ErrDuplicateSession is returned when a launch targets a name already in
// use. The caller asked for a specific name; renaming behind its back would
// hide a real conflict.
var ErrDuplicateSession = errors.New("session: name already in use")

// LaunchFailedError means the worker never took over the terminal: a bare
// shell prompt with no trace of the worker's command. The session is left
// running so the operator can read what the shell printed.
type LaunchFailedError struct {
	Session string
	Buffer  string
}

func (e *LaunchFailedError) Error() string {
	return fmt.Sprintf("session: %s: worker did not start (shell prompt visible)", e.Session)
}

// ErrPendingManualAcceptance is a needs-human result, not a failure: the
// worker is showing a first-run permission dialog that must never be
// auto-accepted.
var ErrPendingManualAcceptance = errors.New("session: worker awaits manual dialog acceptance")

// ReadyState is the outcome of a readiness wait.
type ReadyState int

const (
	// StateReady means a worker ready marker was observed.
	StateReady ReadyState = iota
	// StatePendingDialog means a first-run dialog is on screen.
	StatePendingDialog
	// StateUncertain means the wait timed out with no conclusive evidence;
	// callers proceed optimistically and must tolerate an unready worker.
	StateUncertain
)

// Terminal is the slice of tmux the session layer uses.
type Terminal interface {
	HasSession(name string) bool
	NewSession(name, dir string, width, height int) error
	Capture(name string, lines int) (string, error)
	SendText(name, text string) error
	SendKey(name, key string) error
}

// Dims is the fixed initial terminal size. Captures are only comparable
// across sessions when every session renders at the same dimensions.
type Dims struct {
	Width  int
	Height int
}

// DefaultDims matches a generous modern terminal.
var DefaultDims = Dims{Width: 220, Height: 50}

// Launcher creates worker sessions and waits for readiness.
type Launcher struct {
	term  Terminal
	log   *logbook.Logbook
	sleep Sleeper
	clock Clock
}

// LauncherOption tunes a Launcher.
type LauncherOption func(*Launcher)

// WithSleeper replaces the sleep function, used in tests.
func WithSleeper(s Sleeper) LauncherOption {
	return func(l *Launcher) { l.sleep = s }
}

// WithClock replaces the time source, used in tests.
func WithClock(c Clock) LauncherOption {
	return func(l *Launcher) { l.clock = c }
}

// NewLauncher returns a launcher over the given terminal.
func NewLauncher(term Terminal, log *logbook.Logbook, opts ...LauncherOption) *Launcher {
	l := &Launcher{term: term, log: log, sleep: time.Sleep, clock: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Launch creates a detached session at fixed dimensions and types the worker
// command into it. A name collision returns ErrDuplicateSession and starts
// nothing.
func (l *Launcher) Launch(name, dir, shellCommand string, dims Dims) error {
	if l.term.HasSession(name) {
		return fmt.Errorf("%w: %s", ErrDuplicateSession, name)
	}
	if dims.Width <= 0 || dims.Height <= 0 {
		dims = DefaultDims
	}
	if err := l.term.NewSession(name, dir, dims.Width, dims.Height); err != nil {
		if errors.Is(err, tmux.ErrSessionExists) {
			return fmt.Errorf("%w: %s", ErrDuplicateSession, name)
		}
		return err
	}
	if err := l.term.SendText(name, shellCommand); err != nil {
		return fmt.Errorf("session: %s: send command: %w", name, err)
	}
	if err := l.term.SendKey(name, "Enter"); err != nil {
		return fmt.Errorf("session: %s: submit command: %w", name, err)
	}
	l.log.With(name).Info("launched: %s", shellCommand)
	return nil
}

// WaitReady polls the rendered screen until the worker looks ready, a
// first-run dialog appears, the launch demonstrably failed, or the policy's
// maximum wait elapses.
//
// Classification per tick, in priority order: dialog, ready, shell prompt.
// A shell prompt is only trusted after the grace period; before that the
// shell is still echoing the command line. On timeout the launcher proceeds
// optimistically with a warning rather than blocking forever.
func (l *Launcher) WaitReady(name string, patterns worker.ScreenPatterns, policy PollPolicy) (ReadyState, error) {
	start := l.clock()
	for {
		buffer, err := l.term.Capture(name, 0)
		if err != nil {
			return StateUncertain, fmt.Errorf("session: %s: capture: %w", name, err)
		}
		cls := patterns.Classify(buffer)
		elapsed := l.clock().Sub(start)
		switch {
		case cls.DialogPending:
			l.log.With(name).Info("first-run dialog on screen, waiting for a human")
			return StatePendingDialog, ErrPendingManualAcceptance
		case cls.Ready:
			l.log.With(name).Info("worker ready after %s", elapsed.Round(time.Millisecond))
			return StateReady, nil
		case cls.ShellPrompt && elapsed >= policy.Grace:
			return StateUncertain, &LaunchFailedError{Session: name, Buffer: buffer}
		}
		if elapsed >= policy.MaxWait {
			l.log.With(name).Warn("no readiness evidence after %s, proceeding optimistically", policy.MaxWait)
			return StateUncertain, nil
		}
		l.sleep(policy.Interval)
	}
}
