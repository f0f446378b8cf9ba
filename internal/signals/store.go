// Package signals persists per-session lifecycle state for observers. The
// store is deliberately dumb: one JSON document per session, last write wins,
// no transition-legality checks. Whether a worker is actually alive is a
// tmux question, not a store question.
package signals

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// State is a session's lifecycle phase.
type State string

const (
	StateStarting   State = "starting"
	StateWorking    State = "working"
	StateNeedsInput State = "needs_input"
	StateReview     State = "review"
	StateCompleted  State = "completed"
	// StatePlanning marks advisory sessions launched in plan mode.
	StatePlanning State = "planning"
)

// Resumable reports whether a session last seen in this state is worth a
// native resume. Completed work has nothing to resume; a starting worker
// never saved state.
func (s State) Resumable() bool {
	switch s {
	case StateWorking, StateNeedsInput, StateReview:
		return true
	}
	return false
}

// Signal is one session's current lifecycle document.
type Signal struct {
	Session   string            `json:"session"`
	State     State             `json:"state"`
	TaskID    string            `json:"task_id,omitempty"`
	Worker    string            `json:"worker,omitempty"`
	Model     string            `json:"model,omitempty"`
	Payload   map[string]string `json:"payload,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Store writes signal documents under a directory, one file per session.
type Store struct {
	dir   string
	clock func() time.Time
}

// StoreOption tunes a Store.
type StoreOption func(*Store)

// WithClock replaces the timestamp source, used in tests.
func WithClock(clock func() time.Time) StoreOption {
	return func(s *Store) { s.clock = clock }
}

// NewStore returns a store rooted at dir, creating it if needed.
func NewStore(dir string, opts ...StoreOption) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("signals: create %s: %w", dir, err)
	}
	s := &Store{dir: dir, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Publish overwrites the session's document atomically: the new content is
// written to a temp file in the same directory and renamed into place, so
// readers never observe a torn write.
func (s *Store) Publish(sig Signal) error {
	if strings.TrimSpace(sig.Session) == "" {
		return fmt.Errorf("signals: signal without a session name")
	}
	sig.UpdatedAt = s.clock()
	data, err := json.MarshalIndent(sig, "", "  ")
	if err != nil {
		return fmt.Errorf("signals: encode %s: %w", sig.Session, err)
	}
	final := s.path(sig.Session)
	tmp, err := os.CreateTemp(s.dir, "."+sig.Session+"-*")
	if err != nil {
		return fmt.Errorf("signals: temp file for %s: %w", sig.Session, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("signals: write %s: %w", sig.Session, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("signals: close %s: %w", sig.Session, err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("signals: publish %s: %w", sig.Session, err)
	}
	return nil
}

// Load reads one session's document. A missing document returns os.ErrNotExist.
func (s *Store) Load(session string) (Signal, error) {
	data, err := os.ReadFile(s.path(session))
	if err != nil {
		return Signal{}, err
	}
	var sig Signal
	if err := json.Unmarshal(data, &sig); err != nil {
		return Signal{}, fmt.Errorf("signals: decode %s: %w", session, err)
	}
	return sig, nil
}

// List returns every session document sorted by session name. Unreadable or
// half-written stray files are skipped rather than failing the listing.
func (s *Store) List() ([]Signal, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("signals: list %s: %w", s.dir, err)
	}
	var out []Signal
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		sig, err := s.Load(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		out = append(out, sig)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Session < out[j].Session })
	return out, nil
}

// Remove deletes a session's document. Missing documents are not an error.
func (s *Store) Remove(session string) error {
	err := os.Remove(s.path(session))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("signals: remove %s: %w", session, err)
	}
	return nil
}

func (s *Store) path(session string) string {
	return filepath.Join(s.dir, session+".json")
}
