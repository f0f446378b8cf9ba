package worker

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"

	"github.com/BurntSushi/toml"
)

// ErrUnknownWorker is returned when a lookup names a program not in the catalog.
var ErrUnknownWorker = errors.New("worker: unknown program")

// Catalog maintains the known worker programs. Lookups are read-mostly; the
// mutex only guards against a reload racing a lookup.
type Catalog struct {
	mu       sync.RWMutex
	programs map[string]Program
}

// NewCatalog returns a catalog seeded with the built-in programs.
func NewCatalog() *Catalog {
	c := &Catalog{programs: map[string]Program{}}
	for _, p := range builtinPrograms() {
		c.programs[p.ID] = p
	}
	return c
}

// catalogFile models .dispatch/workers.toml.
type catalogFile struct {
	Workers []Program `toml:"workers"`
}

// LoadFile overlays operator-defined programs from a TOML catalog. Entries
// with an id matching a built-in replace it wholesale. A missing file leaves
// the built-ins untouched.
func (c *Catalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("worker: read %s: %w", path, err)
	}
	var file catalogFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("worker: parse %s: %w", path, err)
	}
	for _, p := range file.Workers {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("worker: %s: %w", path, err)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range file.Workers {
		c.programs[p.ID] = p
	}
	return nil
}

// Get resolves a program by id.
func (c *Catalog) Get(id string) (Program, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.programs[id]
	if !ok {
		return Program{}, fmt.Errorf("%w: %s", ErrUnknownWorker, id)
	}
	return p, nil
}

// IDs returns the sorted identifiers of all catalogued programs.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.programs))
	for id := range c.programs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Programs returns all programs sorted by id.
func (c *Catalog) Programs() []Program {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Program, 0, len(c.programs))
	for _, p := range c.programs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// builtinPrograms covers the worker CLIs dispatch ships support for. Each
// exercises a different initial-delivery convention.
func builtinPrograms() []Program {
	return []Program{
		{
			ID:              "claude",
			Name:            "Claude Code",
			Command:         "claude",
			Convention:      ConventionInject,
			ModelFlag:       "--model",
			ModelStyle:      StyleSpace,
			PermissionFlag:  "--dangerously-skip-permissions",
			AuthRequirement: "ANTHROPIC_API_KEY",
			ResumeArgs:      []string{"--continue"},
			Enabled:         true,
		},
		{
			ID:             "codex",
			Name:           "Codex CLI",
			Command:        "codex",
			Convention:     ConventionArgument,
			ModelFlag:      "-m",
			ModelStyle:     StyleShort,
			PermissionFlag: "--dangerously-bypass-approvals-and-sandbox",
			Enabled:        true,
		},
		{
			ID:             "opencode",
			Name:           "OpenCode",
			Command:        "opencode",
			Convention:     ConventionFlag,
			PromptFlag:     "--prompt",
			ModelFlag:      "--model",
			ModelStyle:     StyleEquals,
			PermissionFlag: "--yolo",
			Enabled:        true,
		},
	}
}
