package worker

import (
	"strings"
	"testing"
)

func program(t *testing.T, id string) Program {
	t.Helper()
	p, err := NewCatalog().Get(id)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestBuildCommandArgumentConvention(t *testing.T) {
	brief := Brief{TaskID: "demo-1", Title: "Wire the parser", Description: "See notes."}
	launch, err := BuildCommand(program(t, "codex"), "gpt-5", "/srv/project", BuildOptions{Autonomous: true}, brief)
	if err != nil {
		t.Fatal(err)
	}
	cmd := launch.ShellCommand
	if !strings.HasPrefix(cmd, "cd /srv/project && codex ") {
		t.Fatalf("command prefix wrong: %q", cmd)
	}
	if !strings.Contains(cmd, "-m gpt-5") {
		t.Errorf("short model flag missing: %q", cmd)
	}
	if !strings.Contains(cmd, "--dangerously-bypass-approvals-and-sandbox") {
		t.Errorf("autonomous launch must carry the bypass flag: %q", cmd)
	}
	if !strings.Contains(cmd, "TASK demo-1: Wire the parser") {
		t.Errorf("brief must be embedded as the positional argument: %q", cmd)
	}
	if launch.RequiresPostLaunchInjection {
		t.Error("argument convention never requires injection")
	}
}

func TestBuildCommandFlagConvention(t *testing.T) {
	brief := Brief{TaskID: "demo-2", Title: "Fix the cache"}
	launch, err := BuildCommand(program(t, "opencode"), "big-model", "", BuildOptions{Autonomous: true}, brief)
	if err != nil {
		t.Fatal(err)
	}
	cmd := launch.ShellCommand
	if !strings.Contains(cmd, "--model=big-model") {
		t.Errorf("equals model style missing: %q", cmd)
	}
	if !strings.Contains(cmd, "--prompt ") {
		t.Errorf("prompt flag missing: %q", cmd)
	}
	if strings.HasPrefix(cmd, "cd ") {
		t.Errorf("empty project path must not emit a cd: %q", cmd)
	}
}

func TestBuildCommandInjectConvention(t *testing.T) {
	brief := Brief{TaskID: "demo-3", Title: "Review signals", Identity: "quiet-heron"}
	launch, err := BuildCommand(program(t, "claude"), "opus", "/srv/project", BuildOptions{Autonomous: true}, brief)
	if err != nil {
		t.Fatal(err)
	}
	if !launch.RequiresPostLaunchInjection {
		t.Fatal("inject convention must defer the prompt to the injector")
	}
	if !strings.Contains(launch.InitialPrompt, "TASK demo-3") {
		t.Errorf("initial prompt missing brief: %q", launch.InitialPrompt)
	}
	if !strings.Contains(launch.InitialPrompt, "quiet-heron") {
		t.Errorf("identity pin missing: %q", launch.InitialPrompt)
	}
	if strings.Contains(launch.ShellCommand, "TASK demo-3") {
		t.Errorf("inject convention must not embed the brief in the command: %q", launch.ShellCommand)
	}
	if !strings.Contains(launch.ShellCommand, "--model opus") {
		t.Errorf("space model style missing: %q", launch.ShellCommand)
	}
}

func TestBuildCommandAutonomousToggleGatesPermissionFlag(t *testing.T) {
	launch, err := BuildCommand(program(t, "claude"), "", "", BuildOptions{Autonomous: false}, Brief{TaskID: "t", Title: "t"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(launch.ShellCommand, "--dangerously-skip-permissions") {
		t.Fatalf("supervised launch must not bypass permissions: %q", launch.ShellCommand)
	}
}

func TestBuildCommandPlanModeIsReadOnly(t *testing.T) {
	brief := Brief{TaskID: "demo-4", Title: "Secret task", Identity: "calm-otter"}
	launch, err := BuildCommand(program(t, "claude"), "", "", BuildOptions{Autonomous: true, Plan: true}, brief)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(launch.ShellCommand, "--dangerously-skip-permissions") {
		t.Errorf("plan mode must suppress the bypass flag even when autonomous: %q", launch.ShellCommand)
	}
	if strings.Contains(launch.InitialPrompt, "Secret task") {
		t.Errorf("plan mode must not hand over the task brief: %q", launch.InitialPrompt)
	}
	if !strings.Contains(launch.InitialPrompt, "plan mode") {
		t.Errorf("plan prompt missing advisory framing: %q", launch.InitialPrompt)
	}
	if !strings.Contains(launch.InitialPrompt, "calm-otter") {
		t.Errorf("plan prompt should still pin identity: %q", launch.InitialPrompt)
	}
}

func TestBuildCommandExportsEnvSorted(t *testing.T) {
	env := map[string]string{"ZED": "z", "ANTHROPIC_API_KEY": "sk-test"}
	launch, err := BuildCommand(program(t, "codex"), "", "", BuildOptions{Env: env}, Brief{TaskID: "t", Title: "t"})
	if err != nil {
		t.Fatal(err)
	}
	a := strings.Index(launch.ShellCommand, "ANTHROPIC_API_KEY=")
	z := strings.Index(launch.ShellCommand, "ZED=")
	if a < 0 || z < 0 || a > z {
		t.Fatalf("env exports missing or unsorted: %q", launch.ShellCommand)
	}
}

func TestBuildResumeCommand(t *testing.T) {
	cmd, err := BuildResumeCommand(program(t, "claude"), "/srv/project", BuildOptions{Autonomous: true})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(cmd, "claude --continue") {
		t.Fatalf("resume args missing: %q", cmd)
	}
	if !strings.Contains(cmd, "--dangerously-skip-permissions") {
		t.Fatalf("autonomous resume must carry the bypass flag: %q", cmd)
	}
}

func TestBuildResumeCommandRejectsNonResumable(t *testing.T) {
	if _, err := BuildResumeCommand(program(t, "codex"), "", BuildOptions{}); err == nil {
		t.Fatal("codex has no resume args and must be rejected")
	}
}

func TestShellQuote(t *testing.T) {
	cases := map[string]string{
		"plain":        "plain",
		"":             "''",
		"two words":    "'two words'",
		"it's":         `'it'\''s'`,
		"a$b":          "'a$b'",
		"/srv/project": "/srv/project",
	}
	for in, want := range cases {
		if got := shellQuote(in); got != want {
			t.Errorf("shellQuote(%q) = %q, want %q", in, got, want)
		}
	}
}
