// internal/config/config.go
//
// This package handles configuration and the .dispatch directory structure.
// Every project that delegates work through dispatch gets a .dispatch/ folder
// created in its root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/dispatch/internal/credentials"
)

const (
	// DispatchDir is the name of the directory we create in each project.
	DispatchDir = ".dispatch"

	defaultTaskBinary = "bd"
)

const defaultProjectConfigYAML = `# dispatch project configuration
version: 1

# Autonomous mode is the single global toggle for permission-bypass flags.
# Leave false to launch workers in their own supervised approval flows.
autonomous: false

# External task tracker CLI.
task_binary: bd

# Fixed terminal dimensions for every worker session.
terminal:
  width: 220
  height: 50

# Bounded waits. All polling stops at these ceilings.
timeouts:
  launch_wait: 45s
  poll_interval: 2s
  launch_grace: 6s
  inject_attempts: 3
  resume_wait: 20s
  resume_settle: 5s

# Credential sources per worker auth requirement. By default requirements
# pass through from the ambient environment.
# credentials:
#   OPENAI_API_KEY:
#     env: WORK_OPENAI_KEY

# Path to the project conventions file handed to workers, relative to the
# project root.
conventions: CONVENTIONS.md
`

// TerminalConfig fixes the session dimensions.
type TerminalConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Duration wraps time.Duration so "45s"-style values parse from YAML.
type Duration time.Duration

// UnmarshalYAML accepts Go duration strings and bare integers (seconds).
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		var secs int
		if err2 := value.Decode(&secs); err2 != nil {
			return err
		}
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration as its string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// D returns the wrapped time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// TimeoutConfig bounds every polling wait in the spawn and resume paths.
type TimeoutConfig struct {
	LaunchWait     Duration `yaml:"launch_wait"`
	PollInterval   Duration `yaml:"poll_interval"`
	LaunchGrace    Duration `yaml:"launch_grace"`
	InjectAttempts int      `yaml:"inject_attempts"`
	ResumeWait     Duration `yaml:"resume_wait"`
	ResumeSettle   Duration `yaml:"resume_settle"`
}

// ProjectConfig models .dispatch/config.yaml.
type ProjectConfig struct {
	Version     int                           `yaml:"version"`
	Autonomous  bool                          `yaml:"autonomous"`
	TaskBinary  string                        `yaml:"task_binary"`
	Terminal    TerminalConfig                `yaml:"terminal"`
	Timeouts    TimeoutConfig                 `yaml:"timeouts"`
	Credentials map[string]credentials.Source `yaml:"credentials"`
	Conventions string                        `yaml:"conventions"`
}

// Config holds the runtime configuration for dispatch.
type Config struct {
	// ProjectDir is the directory where the user ran `dispatch` from.
	ProjectDir string

	// DispatchProjectDir is ProjectDir/.dispatch.
	DispatchProjectDir string

	Project ProjectConfig
}

// InitDispatchDir creates the .dispatch directory structure in the given
// project directory.
//
// Structure created:
// .dispatch/
// ├── signals/   <- lifecycle signal documents, one per session
// ├── identity/  <- identity hand-off files read by worker startup hooks
// └── logs/      <- orchestration logbook
func InitDispatchDir(projectDir string) error {
	dispatchDir := filepath.Join(projectDir, DispatchDir)

	dirs := []string{
		filepath.Join(dispatchDir, "signals"),
		filepath.Join(dispatchDir, "identity"),
		filepath.Join(dispatchDir, "logs"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	return ensureProjectConfig(filepath.Join(dispatchDir, "config.yaml"))
}

// NewConfig creates a new Config instance populated with project settings.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:         projectDir,
		DispatchProjectDir: filepath.Join(projectDir, DispatchDir),
		Project:            defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SignalsDir returns the path to the lifecycle signal documents.
func (c *Config) SignalsDir() string {
	return filepath.Join(c.DispatchProjectDir, "signals")
}

// IdentityDir returns the path to the identity hand-off files.
func (c *Config) IdentityDir() string {
	return filepath.Join(c.DispatchProjectDir, "identity")
}

// LogbookPath returns the orchestration log file.
func (c *Config) LogbookPath() string {
	return filepath.Join(c.DispatchProjectDir, "logs", "dispatch.log")
}

// RoutingPath returns the on-disk location for the routing rules.
func (c *Config) RoutingPath() string {
	return filepath.Join(c.DispatchProjectDir, "routing.yaml")
}

// WorkersPath returns the on-disk location for the worker catalog overlay.
func (c *Config) WorkersPath() string {
	return filepath.Join(c.DispatchProjectDir, "workers.toml")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.DispatchProjectDir, "config.yaml")
}

// ConventionsPath returns the absolute path to the project conventions file,
// or empty when none is configured or the file does not exist.
func (c *Config) ConventionsPath() string {
	if c.Project.Conventions == "" {
		return ""
	}
	path := c.Project.Conventions
	if !filepath.IsAbs(path) {
		path = filepath.Join(c.ProjectDir, path)
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Version:    1,
		TaskBinary: defaultTaskBinary,
		Terminal:   TerminalConfig{Width: 220, Height: 50},
		Timeouts: TimeoutConfig{
			LaunchWait:     Duration(45 * time.Second),
			PollInterval:   Duration(2 * time.Second),
			LaunchGrace:    Duration(6 * time.Second),
			InjectAttempts: 3,
			ResumeWait:     Duration(20 * time.Second),
			ResumeSettle:   Duration(5 * time.Second),
		},
		Conventions: "CONVENTIONS.md",
	}
}

func (pc *ProjectConfig) applyDefaults() {
	def := defaultProjectConfig()
	if pc.Version == 0 {
		pc.Version = def.Version
	}
	if pc.TaskBinary == "" {
		pc.TaskBinary = def.TaskBinary
	}
	if pc.Terminal.Width == 0 {
		pc.Terminal.Width = def.Terminal.Width
	}
	if pc.Terminal.Height == 0 {
		pc.Terminal.Height = def.Terminal.Height
	}
	if pc.Timeouts.LaunchWait == 0 {
		pc.Timeouts.LaunchWait = def.Timeouts.LaunchWait
	}
	if pc.Timeouts.PollInterval == 0 {
		pc.Timeouts.PollInterval = def.Timeouts.PollInterval
	}
	if pc.Timeouts.LaunchGrace == 0 {
		pc.Timeouts.LaunchGrace = def.Timeouts.LaunchGrace
	}
	if pc.Timeouts.InjectAttempts == 0 {
		pc.Timeouts.InjectAttempts = def.Timeouts.InjectAttempts
	}
	if pc.Timeouts.ResumeWait == 0 {
		pc.Timeouts.ResumeWait = def.Timeouts.ResumeWait
	}
	if pc.Timeouts.ResumeSettle == 0 {
		pc.Timeouts.ResumeSettle = def.Timeouts.ResumeSettle
	}
	if pc.Credentials == nil {
		pc.Credentials = map[string]credentials.Source{}
	}
}

func (pc *ProjectConfig) normalize() {
	pc.TaskBinary = strings.TrimSpace(pc.TaskBinary)
	pc.Conventions = strings.TrimSpace(pc.Conventions)
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if pc.TaskBinary == "" {
		return fmt.Errorf("task_binary is required")
	}
	if pc.Terminal.Width < 80 || pc.Terminal.Height < 10 {
		return fmt.Errorf("terminal dimensions %dx%d are too small for worker CLIs",
			pc.Terminal.Width, pc.Terminal.Height)
	}
	if pc.Timeouts.PollInterval > pc.Timeouts.LaunchWait {
		return fmt.Errorf("timeouts.poll_interval exceeds timeouts.launch_wait")
	}
	if pc.Timeouts.InjectAttempts < 1 {
		return fmt.Errorf("timeouts.inject_attempts must be >= 1")
	}
	return nil
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0644)
}
