// Package identity assigns deterministic friendly names to worker sessions
// and hands them off through a file the worker's own startup hook reads, so
// a resumed or restarted worker never re-registers under a fresh name.
package identity

import (
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

var adjectives = []string{
	"amber", "bold", "calm", "clever", "eager", "gentle", "keen", "lively",
	"mellow", "noble", "quick", "quiet", "rapid", "sharp", "steady", "swift",
	"tidy", "vivid", "warm", "wise",
}

var nouns = []string{
	"badger", "crane", "falcon", "fox", "heron", "lark", "lynx", "marten",
	"otter", "owl", "pike", "raven", "robin", "seal", "stoat", "swan",
	"tern", "vole", "wolf", "wren",
}

// Name derives a friendly identity from a seed: adjective-noun plus a short
// hash suffix. The same seed always yields the same name, so respawning a
// worker for the same project and program reclaims its identity instead of
// minting a new one. The word lists alone span only 400 combinations; the
// suffix keeps distinct seeds from sharing a name.
func Name(seed string) string {
	sum := sha1.Sum([]byte(seed))
	adj := adjectives[int(sum[0])%len(adjectives)]
	noun := nouns[int(sum[1])%len(nouns)]
	return fmt.Sprintf("%s-%s-%02x%02x", adj, noun, sum[2], sum[3])
}

// SessionName derives the tmux session name for a worker. Deriving it from
// the identity makes duplicate spawns for the same worker collide on the
// session namespace instead of racing.
func SessionName(project, workerID string) string {
	return "dispatch-" + Name(project+"/"+workerID)
}

// Handoff is the document a worker reads once at startup.
type Handoff struct {
	Session   string    `json:"session"`
	Identity  string    `json:"identity"`
	Worker    string    `json:"worker"`
	TaskID    string    `json:"task_id,omitempty"`
	Project   string    `json:"project,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Write persists the hand-off atomically under dir, one file per session.
func Write(dir string, h Handoff) error {
	if h.Session == "" || h.Identity == "" {
		return fmt.Errorf("identity: hand-off needs a session and an identity")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("identity: create %s: %w", dir, err)
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("identity: encode %s: %w", h.Session, err)
	}
	tmp, err := os.CreateTemp(dir, "."+h.Session+"-*")
	if err != nil {
		return fmt.Errorf("identity: temp file for %s: %w", h.Session, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("identity: write %s: %w", h.Session, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("identity: close %s: %w", h.Session, err)
	}
	final := filepath.Join(dir, h.Session+".json")
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("identity: publish %s: %w", h.Session, err)
	}
	return nil
}

// Read loads a session's hand-off. Missing files return os.ErrNotExist.
func Read(dir, session string) (Handoff, error) {
	data, err := os.ReadFile(filepath.Join(dir, session+".json"))
	if err != nil {
		return Handoff{}, err
	}
	var h Handoff
	if err := json.Unmarshal(data, &h); err != nil {
		return Handoff{}, fmt.Errorf("identity: decode %s: %w", session, err)
	}
	return h, nil
}
