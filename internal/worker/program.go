// Package worker defines the static catalog of coding-agent programs dispatch
// can delegate to, the screen-pattern library used to read their terminal
// output, and the launch-command builder.
//
// Workers are uncontrolled third-party CLIs with no structured IPC: everything
// dispatch knows about one is declared here up front (how to launch it, how to
// hand it the task, what its screen looks like when ready) and is read-only at
// runtime.
package worker

import (
	"fmt"
	"strings"
)

// Convention describes how a worker receives its initial task brief.
// Exactly one applies per program.
type Convention string

const (
	// ConventionArgument passes a self-contained brief as a positional
	// argument, for workers without a native resume mechanism.
	ConventionArgument Convention = "argument"
	// ConventionFlag passes the same brief behind a dedicated prompt flag.
	ConventionFlag Convention = "flag"
	// ConventionInject defers delivery to post-launch injection, for workers
	// with native resume that must be told their pre-assigned identity
	// instead of re-registering a new one.
	ConventionInject Convention = "inject"
)

// ModelFlagStyle describes the syntax a worker uses for model selection.
type ModelFlagStyle string

const (
	// StyleSpace renders "--model NAME".
	StyleSpace ModelFlagStyle = "space"
	// StyleEquals renders "--model=NAME".
	StyleEquals ModelFlagStyle = "equals"
	// StyleShort renders "-m NAME".
	StyleShort ModelFlagStyle = "short"
)

// Program is one worker CLI the orchestrator knows how to drive.
// Static, operator-edited, never mutated at runtime.
type Program struct {
	ID             string         `toml:"id"`
	Name           string         `toml:"name"`
	Command        string         `toml:"command"`
	BaseArgs       []string       `toml:"base_args"`
	Convention     Convention     `toml:"convention"`
	PromptFlag     string         `toml:"prompt_flag"`
	ModelFlag      string         `toml:"model_flag"`
	ModelStyle     ModelFlagStyle `toml:"model_style"`
	PermissionFlag string         `toml:"permission_flag"`
	// AuthRequirement names the environment variable the worker needs, or is
	// empty for login/session based auth handled outside dispatch.
	AuthRequirement string `toml:"auth_requirement"`
	// ResumeArgs launches a replacement session reusing the worker's saved
	// state. Empty means the worker has no native resume.
	ResumeArgs []string `toml:"resume_args"`
	Enabled    bool     `toml:"enabled"`
}

// SupportsResume reports whether the worker has a native resume mechanism.
func (p Program) SupportsResume() bool {
	return len(p.ResumeArgs) > 0
}

// Validate checks a program definition for internal consistency.
func (p Program) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("worker: program id is required")
	}
	if strings.TrimSpace(p.Command) == "" {
		return fmt.Errorf("worker: %s: command is required", p.ID)
	}
	switch p.Convention {
	case ConventionArgument, ConventionInject:
	case ConventionFlag:
		if strings.TrimSpace(p.PromptFlag) == "" {
			return fmt.Errorf("worker: %s: prompt_flag is required for the flag convention", p.ID)
		}
	default:
		return fmt.Errorf("worker: %s: unknown convention %q", p.ID, p.Convention)
	}
	switch p.ModelStyle {
	case "", StyleSpace, StyleEquals, StyleShort:
	default:
		return fmt.Errorf("worker: %s: unknown model_style %q", p.ID, p.ModelStyle)
	}
	return nil
}
