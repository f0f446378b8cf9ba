package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadProjectConfigDefaultsWhenMissing(t *testing.T) {
	projectDir := t.TempDir()
	dispatchDir := filepath.Join(projectDir, ".dispatch")
	if err := os.MkdirAll(dispatchDir, 0755); err != nil {
		t.Fatal(err)
	}
	c := &Config{ProjectDir: projectDir, DispatchProjectDir: dispatchDir, Project: defaultProjectConfig()}
	if err := c.loadProjectConfig(); err != nil {
		t.Fatalf("loadProjectConfig returned error: %v", err)
	}
	if c.Project.Version != 1 {
		t.Fatalf("expected default version == 1, got %d", c.Project.Version)
	}
	if c.Project.TaskBinary != defaultTaskBinary {
		t.Fatalf("expected default task binary %q, got %q", defaultTaskBinary, c.Project.TaskBinary)
	}
	if c.Project.Autonomous {
		t.Fatal("autonomous mode must default to off")
	}
}

func TestLoadProjectConfigParsesYaml(t *testing.T) {
	projectDir := t.TempDir()
	dispatchDir := filepath.Join(projectDir, ".dispatch")
	if err := os.MkdirAll(dispatchDir, 0755); err != nil {
		t.Fatal(err)
	}
	configYAML := strings.TrimSpace(`
version: 1
autonomous: true
task_binary: bd
terminal:
  width: 200
  height: 60
timeouts:
  launch_wait: 30s
  poll_interval: 1s
credentials:
  OPENAI_API_KEY:
    env: WORK_OPENAI_KEY
`)
	if err := os.WriteFile(filepath.Join(dispatchDir, "config.yaml"), []byte(configYAML), 0644); err != nil {
		t.Fatal(err)
	}
	c := &Config{ProjectDir: projectDir, DispatchProjectDir: dispatchDir, Project: defaultProjectConfig()}
	if err := c.loadProjectConfig(); err != nil {
		t.Fatalf("loadProjectConfig returned error: %v", err)
	}
	if !c.Project.Autonomous {
		t.Fatal("autonomous not parsed")
	}
	if c.Project.Terminal.Width != 200 || c.Project.Terminal.Height != 60 {
		t.Fatalf("terminal = %+v", c.Project.Terminal)
	}
	if c.Project.Timeouts.LaunchWait.D() != 30*time.Second {
		t.Fatalf("launch_wait = %s", c.Project.Timeouts.LaunchWait.D())
	}
	// Unspecified timeouts fall back to defaults.
	if c.Project.Timeouts.LaunchGrace.D() != 6*time.Second {
		t.Fatalf("launch_grace = %s", c.Project.Timeouts.LaunchGrace.D())
	}
	if src, ok := c.Project.Credentials["OPENAI_API_KEY"]; !ok || src.Env != "WORK_OPENAI_KEY" {
		t.Fatalf("credentials = %+v", c.Project.Credentials)
	}
}

func TestLoadProjectConfigValidation(t *testing.T) {
	projectDir := t.TempDir()
	dispatchDir := filepath.Join(projectDir, ".dispatch")
	if err := os.MkdirAll(dispatchDir, 0755); err != nil {
		t.Fatal(err)
	}
	configYAML := strings.TrimSpace(`
version: 1
terminal:
  width: 20
  height: 5
`)
	if err := os.WriteFile(filepath.Join(dispatchDir, "config.yaml"), []byte(configYAML), 0644); err != nil {
		t.Fatal(err)
	}
	c := &Config{ProjectDir: projectDir, DispatchProjectDir: dispatchDir, Project: defaultProjectConfig()}
	if err := c.loadProjectConfig(); err == nil {
		t.Fatalf("expected validation error but got none")
	}
}

func TestInitDispatchDirCreatesStructure(t *testing.T) {
	projectDir := t.TempDir()
	if err := InitDispatchDir(projectDir); err != nil {
		t.Fatal(err)
	}
	for _, sub := range []string{"signals", "identity", "logs"} {
		if _, err := os.Stat(filepath.Join(projectDir, ".dispatch", sub)); err != nil {
			t.Fatalf("missing %s: %v", sub, err)
		}
	}
	cfgPath := filepath.Join(projectDir, ".dispatch", "config.yaml")
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "autonomous: false") {
		t.Fatal("seeded config should default autonomous off")
	}
	// Re-init must not clobber an edited config.
	if err := os.WriteFile(cfgPath, []byte("version: 1\nautonomous: true\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := InitDispatchDir(projectDir); err != nil {
		t.Fatal(err)
	}
	data, _ = os.ReadFile(cfgPath)
	if !strings.Contains(string(data), "autonomous: true") {
		t.Fatal("re-init overwrote the operator's config")
	}
}

func TestConventionsPathResolvesAndChecksExistence(t *testing.T) {
	projectDir := t.TempDir()
	c := &Config{ProjectDir: projectDir, Project: defaultProjectConfig()}
	if got := c.ConventionsPath(); got != "" {
		t.Fatalf("missing conventions file should yield empty, got %q", got)
	}
	path := filepath.Join(projectDir, "CONVENTIONS.md")
	if err := os.WriteFile(path, []byte("# conventions\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if got := c.ConventionsPath(); got != path {
		t.Fatalf("ConventionsPath = %q, want %q", got, path)
	}
}
