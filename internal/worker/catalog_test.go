package worker

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCatalogBuiltins(t *testing.T) {
	c := NewCatalog()
	for _, id := range []string{"claude", "codex", "opencode"} {
		p, err := c.Get(id)
		if err != nil {
			t.Fatalf("Get(%s): %v", id, err)
		}
		if !p.Enabled {
			t.Errorf("builtin %s should be enabled", id)
		}
		if err := p.Validate(); err != nil {
			t.Errorf("builtin %s invalid: %v", id, err)
		}
	}
	if _, err := c.Get("nope"); err == nil {
		t.Fatal("expected ErrUnknownWorker")
	}
}

func TestCatalogConventionsCovered(t *testing.T) {
	c := NewCatalog()
	seen := map[Convention]bool{}
	for _, p := range c.Programs() {
		seen[p.Convention] = true
	}
	for _, conv := range []Convention{ConventionArgument, ConventionFlag, ConventionInject} {
		if !seen[conv] {
			t.Errorf("no builtin exercises convention %q", conv)
		}
	}
}

func TestLoadFileOverlaysAndValidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "workers.toml")
	body := `
[[workers]]
id = "claude"
name = "Claude Code"
command = "claude"
convention = "inject"
model_flag = "--model"
model_style = "space"
resume_args = ["--continue"]
enabled = false

[[workers]]
id = "aider"
name = "Aider"
command = "aider"
convention = "flag"
prompt_flag = "--message"
model_flag = "--model"
model_style = "space"
enabled = true
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewCatalog()
	if err := c.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	claude, err := c.Get("claude")
	if err != nil {
		t.Fatal(err)
	}
	if claude.Enabled {
		t.Error("operator file should have disabled claude")
	}
	aider, err := c.Get("aider")
	if err != nil {
		t.Fatal(err)
	}
	if aider.Convention != ConventionFlag || aider.PromptFlag != "--message" {
		t.Errorf("aider not loaded as declared: %+v", aider)
	}
}

func TestLoadFileMissingIsNoop(t *testing.T) {
	c := NewCatalog()
	if err := c.LoadFile(filepath.Join(t.TempDir(), "absent.toml")); err != nil {
		t.Fatalf("missing catalog file must not error: %v", err)
	}
	if len(c.IDs()) != 3 {
		t.Fatalf("builtins disturbed: %v", c.IDs())
	}
}

func TestLoadFileRejectsInvalidProgram(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "workers.toml")
	body := `
[[workers]]
id = "broken"
command = "broken"
convention = "flag"
enabled = true
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	c := NewCatalog()
	if err := c.LoadFile(path); err == nil {
		t.Fatal("flag convention without prompt_flag must be rejected")
	}
}
