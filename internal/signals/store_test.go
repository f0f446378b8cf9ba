package signals

import (
	"os"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	calls := 0
	s, err := NewStore(t.TempDir(), WithClock(func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Minute)
	}))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestPublishAndLoad(t *testing.T) {
	s := testStore(t)
	sig := Signal{
		Session: "dispatch-quiet-heron",
		State:   StateStarting,
		TaskID:  "demo-1",
		Worker:  "claude",
		Payload: map[string]string{"model": "opus"},
	}
	if err := s.Publish(sig); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load("dispatch-quiet-heron")
	if err != nil {
		t.Fatal(err)
	}
	if got.State != StateStarting || got.TaskID != "demo-1" {
		t.Fatalf("loaded %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Fatal("publish must stamp the document")
	}
}

func TestLastWriteWinsWithoutTransitionChecks(t *testing.T) {
	s := testStore(t)
	name := "dispatch-quiet-heron"
	// completed back to working is not a legal transition in the state
	// diagram, and the store must not care.
	for _, st := range []State{StateCompleted, StateWorking} {
		if err := s.Publish(Signal{Session: name, State: st}); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.Load(name)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != StateWorking {
		t.Fatalf("state = %s, want the last write", got.State)
	}
}

func TestLoadMissingIsNotExist(t *testing.T) {
	s := testStore(t)
	if _, err := s.Load("never-published"); !os.IsNotExist(err) {
		t.Fatalf("err = %v", err)
	}
}

func TestListSortsAndSkipsStrays(t *testing.T) {
	s := testStore(t)
	for _, name := range []string{"dispatch-b", "dispatch-a"} {
		if err := s.Publish(Signal{Session: name, State: StateWorking}); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(s.path("broken"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	list, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Session != "dispatch-a" || list[1].Session != "dispatch-b" {
		t.Fatalf("list = %+v", list)
	}
}

func TestPublishRejectsEmptySession(t *testing.T) {
	s := testStore(t)
	if err := s.Publish(Signal{State: StateWorking}); err == nil {
		t.Fatal("empty session name must be rejected")
	}
}

func TestRemoveMissingIsNoop(t *testing.T) {
	s := testStore(t)
	if err := s.Remove("never-published"); err != nil {
		t.Fatal(err)
	}
}

func TestResumableStates(t *testing.T) {
	resumable := map[State]bool{
		StateStarting:   false,
		StateWorking:    true,
		StateNeedsInput: true,
		StateReview:     true,
		StateCompleted:  false,
		StatePlanning:   false,
	}
	for st, want := range resumable {
		if got := st.Resumable(); got != want {
			t.Errorf("%s.Resumable() = %v, want %v", st, got, want)
		}
	}
}
