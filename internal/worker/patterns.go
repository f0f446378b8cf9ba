package worker

import (
	"regexp"
	"strings"
)

// Classification is the readiness evidence derived from one captured buffer.
// It is computed per poll tick and never persisted.
type Classification struct {
	// DialogPending means a first-run permission/trust dialog is on screen
	// waiting for a human. Highest priority: injecting into a dialog would
	// answer it blind.
	DialogPending bool
	// Ready means a worker-specific ready marker is visible.
	Ready bool
	// ShellPrompt means the buffer looks like a bare shell with no trace of
	// the worker's own command: the launch most likely failed.
	ShellPrompt bool
}

// ScreenPatterns holds the per-worker text heuristics for reading a captured
// terminal buffer. All matching is case-insensitive substring or regexp work
// on rendered text; there is no structured channel to these CLIs.
type ScreenPatterns struct {
	// ReadyMarkers indicate the worker is idle at its input prompt.
	ReadyMarkers []string
	// DialogMarkers indicate a first-run permission dialog.
	DialogMarkers []string
	// AckMarkers indicate the worker accepted input and is running tools.
	AckMarkers []string
	// CommandName is the worker binary name; a shell prompt only counts as a
	// failed launch when the buffer never mentions it.
	CommandName string
}

// shellPromptLine matches a trailing bare shell prompt: "user@host:~$",
// "%", "❯" and similar line endings.
var shellPromptLine = regexp.MustCompile(`(?m)^[^\n]*[$%❯#]\s*$`)

// Classify reduces a captured buffer to readiness evidence. Pure; all timing
// and process concerns live in the launcher.
//
// Priority when markers co-occur: dialog, then ready, then shell prompt. A
// buffer can legitimately contain "$" inside a printed path next to a ready
// marker; treating ready as stronger avoids declaring a healthy worker dead.
func (sp ScreenPatterns) Classify(buffer string) Classification {
	lower := strings.ToLower(buffer)
	var cls Classification
	for _, marker := range sp.DialogMarkers {
		if marker != "" && strings.Contains(lower, strings.ToLower(marker)) {
			cls.DialogPending = true
			break
		}
	}
	for _, marker := range sp.ReadyMarkers {
		if marker != "" && strings.Contains(lower, strings.ToLower(marker)) {
			cls.Ready = true
			break
		}
	}
	if !cls.DialogPending && !cls.Ready {
		mentionsCommand := sp.CommandName != "" && strings.Contains(lower, strings.ToLower(sp.CommandName))
		if !mentionsCommand && shellPromptLine.MatchString(buffer) {
			cls.ShellPrompt = true
		}
	}
	return cls
}

// Acknowledged reports whether the buffer shows the worker running tools or
// otherwise processing input.
func (sp ScreenPatterns) Acknowledged(buffer string) bool {
	lower := strings.ToLower(buffer)
	for _, marker := range sp.AckMarkers {
		if marker != "" && strings.Contains(lower, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

// PatternsFor returns the screen-pattern library entry for a program.
// Unknown programs get a generic entry keyed on the command name only.
func PatternsFor(p Program) ScreenPatterns {
	switch p.ID {
	case "claude":
		return ScreenPatterns{
			CommandName:   p.Command,
			ReadyMarkers:  []string{"? for shortcuts", "bypassing permissions", "welcome to claude"},
			DialogMarkers: []string{"do you trust the files in this folder", "yes, i accept", "press enter to continue"},
			AckMarkers:    []string{"esc to interrupt", "tokens", "thinking"},
		}
	case "codex":
		return ScreenPatterns{
			CommandName:   p.Command,
			ReadyMarkers:  []string{"ctrl+c to exit", "send a message", "openai codex"},
			DialogMarkers: []string{"allow codex to work in this folder", "approval required"},
			AckMarkers:    []string{"working", "running", "esc to interrupt"},
		}
	case "opencode":
		return ScreenPatterns{
			CommandName:   p.Command,
			ReadyMarkers:  []string{"opencode", "ask anything"},
			DialogMarkers: []string{"grant permission", "trust this workspace"},
			AckMarkers:    []string{"thinking", "running tool"},
		}
	default:
		return ScreenPatterns{CommandName: p.Command}
	}
}
