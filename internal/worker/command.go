package worker

import (
	"fmt"
	"sort"
	"strings"
)

// Brief is the self-contained task hand-off embedded in the launch command
// (argument/flag conventions) or injected after launch (inject convention).
type Brief struct {
	TaskID      string
	Title       string
	Description string
	// Identity is the pre-assigned worker identity for mailbox registration.
	Identity string
	// ConventionsPath points the worker at the project's conventions file.
	ConventionsPath string
}

// BuildOptions tunes command composition.
type BuildOptions struct {
	// Autonomous is the single global toggle gating permission-bypass flags.
	// Per-worker flag lists never decide this on their own.
	Autonomous bool
	// Plan launches the worker read-only/advisory: no bypass flag, no task
	// brief, a generic advisory prompt instead.
	Plan bool
	// Env carries credential-derived variables resolved by the caller.
	Env map[string]string
}

// Launch is the composed result handed to the session launcher.
type Launch struct {
	ShellCommand string
	Env          map[string]string
	// RequiresPostLaunchInjection is true only for the inject convention:
	// the initial prompt goes through the injector once the worker is ready.
	RequiresPostLaunchInjection bool
	// InitialPrompt is the text the injector delivers when
	// RequiresPostLaunchInjection is set.
	InitialPrompt string
}

// BuildCommand composes the full shell command for launching a worker:
// directory change, credential env exports, binary, model flag, permission
// flag, then initial task delivery per the worker's convention.
func BuildCommand(p Program, model, projectPath string, opts BuildOptions, brief Brief) (Launch, error) {
	if err := p.Validate(); err != nil {
		return Launch{}, err
	}
	var parts []string
	if projectPath != "" {
		parts = append(parts, "cd "+shellQuote(projectPath), "&&")
	}
	for _, kv := range sortedEnv(opts.Env) {
		parts = append(parts, kv)
	}
	parts = append(parts, p.Command)
	parts = append(parts, p.BaseArgs...)
	if model != "" && p.ModelFlag != "" {
		switch p.ModelStyle {
		case StyleEquals:
			parts = append(parts, p.ModelFlag+"="+shellQuote(model))
		default:
			parts = append(parts, p.ModelFlag, shellQuote(model))
		}
	}
	if opts.Autonomous && !opts.Plan && p.PermissionFlag != "" {
		parts = append(parts, p.PermissionFlag)
	}

	prompt := renderBrief(brief, opts.Plan)
	launch := Launch{Env: opts.Env}
	switch p.Convention {
	case ConventionArgument:
		parts = append(parts, shellQuote(prompt))
	case ConventionFlag:
		parts = append(parts, p.PromptFlag, shellQuote(prompt))
	case ConventionInject:
		launch.RequiresPostLaunchInjection = true
		launch.InitialPrompt = prompt
	}
	launch.ShellCommand = strings.Join(parts, " ")
	return launch, nil
}

// BuildResumeCommand composes the command that revives a paused worker from
// its own saved state. Only valid for programs with native resume.
func BuildResumeCommand(p Program, projectPath string, opts BuildOptions) (string, error) {
	if !p.SupportsResume() {
		return "", fmt.Errorf("worker: %s has no native resume", p.ID)
	}
	var parts []string
	if projectPath != "" {
		parts = append(parts, "cd "+shellQuote(projectPath), "&&")
	}
	for _, kv := range sortedEnv(opts.Env) {
		parts = append(parts, kv)
	}
	parts = append(parts, p.Command)
	parts = append(parts, p.ResumeArgs...)
	if opts.Autonomous && p.PermissionFlag != "" {
		parts = append(parts, p.PermissionFlag)
	}
	return strings.Join(parts, " "), nil
}

func renderBrief(brief Brief, plan bool) string {
	var b strings.Builder
	if plan {
		b.WriteString("You are running in plan mode: review the repository, propose a plan, ")
		b.WriteString("and make no changes until a human approves it.\n")
		if brief.Identity != "" {
			fmt.Fprintf(&b, "You are registered as %s; do not create a new identity.\n", brief.Identity)
		}
		return strings.TrimRight(b.String(), "\n")
	}
	fmt.Fprintf(&b, "TASK %s: %s\n", brief.TaskID, brief.Title)
	if desc := strings.TrimSpace(brief.Description); desc != "" {
		fmt.Fprintf(&b, "DESCRIPTION:\n%s\n", desc)
	}
	if brief.Identity != "" {
		fmt.Fprintf(&b, "You are registered as %s; use this identity and do not create a new one.\n", brief.Identity)
	}
	if brief.ConventionsPath != "" {
		fmt.Fprintf(&b, "Project conventions: %s\n", brief.ConventionsPath)
	}
	return strings.TrimRight(b.String(), "\n")
}

func sortedEnv(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+shellQuote(env[k]))
	}
	return out
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n\"'\\$&|;<>(){}[]*?~#`") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
