package session

import (
	"errors"
	"testing"
	"time"

	"github.com/kingrea/dispatch/internal/worker"
)

// fakeTerminal scripts capture output per call and records everything sent.
type fakeTerminal struct {
	existing   map[string]bool
	captures   []string
	captured   int
	created    []string
	sentText   []string
	sentKeys   []string
	captureErr error
}

func newFakeTerminal() *fakeTerminal {
	return &fakeTerminal{existing: map[string]bool{}}
}

func (f *fakeTerminal) HasSession(name string) bool { return f.existing[name] }

func (f *fakeTerminal) NewSession(name, dir string, width, height int) error {
	f.existing[name] = true
	f.created = append(f.created, name)
	return nil
}

func (f *fakeTerminal) Capture(name string, lines int) (string, error) {
	if f.captureErr != nil {
		return "", f.captureErr
	}
	if len(f.captures) == 0 {
		return "", nil
	}
	i := f.captured
	if i >= len(f.captures) {
		i = len(f.captures) - 1
	}
	f.captured++
	return f.captures[i], nil
}

func (f *fakeTerminal) SendText(name, text string) error {
	f.sentText = append(f.sentText, text)
	return nil
}

func (f *fakeTerminal) SendKey(name, key string) error {
	f.sentKeys = append(f.sentKeys, key)
	return nil
}

// fakeClock advances a fixed step per call so grace and timeout branches are
// deterministic.
func fakeClock(step time.Duration) Clock {
	now := time.Unix(0, 0)
	return func() time.Time {
		now = now.Add(step)
		return now
	}
}

func noSleep(time.Duration) {}

func testPatterns(t *testing.T) worker.ScreenPatterns {
	t.Helper()
	p, err := worker.NewCatalog().Get("claude")
	if err != nil {
		t.Fatal(err)
	}
	return worker.PatternsFor(p)
}

func TestLaunchCreatesSessionAndTypesCommand(t *testing.T) {
	ft := newFakeTerminal()
	l := NewLauncher(ft, nil, WithSleeper(noSleep))
	if err := l.Launch("dispatch-quiet-heron", "/srv/project", "claude --model opus", DefaultDims); err != nil {
		t.Fatal(err)
	}
	if len(ft.created) != 1 || ft.created[0] != "dispatch-quiet-heron" {
		t.Fatalf("created = %v", ft.created)
	}
	if len(ft.sentText) != 1 || ft.sentText[0] != "claude --model opus" {
		t.Fatalf("sentText = %v", ft.sentText)
	}
	if len(ft.sentKeys) != 1 || ft.sentKeys[0] != "Enter" {
		t.Fatalf("sentKeys = %v", ft.sentKeys)
	}
}

func TestLaunchDuplicateNameStartsNothing(t *testing.T) {
	ft := newFakeTerminal()
	ft.existing["dispatch-quiet-heron"] = true
	l := NewLauncher(ft, nil, WithSleeper(noSleep))
	err := l.Launch("dispatch-quiet-heron", "", "claude", DefaultDims)
	if !errors.Is(err, ErrDuplicateSession) {
		t.Fatalf("err = %v", err)
	}
	if len(ft.created) != 0 || len(ft.sentText) != 0 {
		t.Fatal("conflicting launch must not create a session or send anything")
	}
}

func TestWaitReadyStopsOnReadyMarker(t *testing.T) {
	ft := newFakeTerminal()
	ft.captures = []string{
		"$ claude --model opus",
		"Loading...",
		"Welcome to Claude\n> \n? for shortcuts",
	}
	l := NewLauncher(ft, nil, WithSleeper(noSleep), WithClock(fakeClock(time.Second)))
	state, err := l.WaitReady("s", testPatterns(t), PollPolicy{Interval: time.Second, MaxWait: 30 * time.Second, Grace: 5 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if state != StateReady {
		t.Fatalf("state = %v", state)
	}
	if ft.captured != 3 {
		t.Fatalf("captures consumed = %d", ft.captured)
	}
}

func TestWaitReadyDialogIsNeedsHuman(t *testing.T) {
	ft := newFakeTerminal()
	ft.captures = []string{"Do you trust the files in this folder?"}
	l := NewLauncher(ft, nil, WithSleeper(noSleep), WithClock(fakeClock(time.Second)))
	state, err := l.WaitReady("s", testPatterns(t), DefaultLaunchPolicy())
	if state != StatePendingDialog {
		t.Fatalf("state = %v", state)
	}
	if !errors.Is(err, ErrPendingManualAcceptance) {
		t.Fatalf("err = %v", err)
	}
}

func TestWaitReadyShellPromptRespectsGrace(t *testing.T) {
	ft := newFakeTerminal()
	// A bare prompt from the start: trusted only once the grace period passes.
	ft.captures = []string{"bash: no such command\nuser@host:~$ "}
	l := NewLauncher(ft, nil, WithSleeper(noSleep), WithClock(fakeClock(2*time.Second)))
	_, err := l.WaitReady("s", testPatterns(t), PollPolicy{Interval: time.Second, MaxWait: 30 * time.Second, Grace: 5 * time.Second})
	var failed *LaunchFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("err = %v", err)
	}
	if ft.captured < 2 {
		t.Fatal("shell prompt before the grace period must not fail the launch")
	}
}

func TestWaitReadyTimeoutProceedsOptimistically(t *testing.T) {
	ft := newFakeTerminal()
	ft.captures = []string{"$ claude\nstill drawing..."}
	l := NewLauncher(ft, nil, WithSleeper(noSleep), WithClock(fakeClock(3*time.Second)))
	state, err := l.WaitReady("s", testPatterns(t), PollPolicy{Interval: time.Second, MaxWait: 9 * time.Second, Grace: 2 * time.Second})
	if err != nil {
		t.Fatalf("timeout must be soft: %v", err)
	}
	if state != StateUncertain {
		t.Fatalf("state = %v", state)
	}
}
