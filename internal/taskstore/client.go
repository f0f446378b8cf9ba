// Package taskstore wraps the external task-tracker CLI. The tracker owns the
// CRUD semantics; dispatch only reads tasks by id and writes back assignment
// and status changes.
package taskstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Task is the descriptor handed to routing and the command builder. Routing
// treats it as immutable; only Assignee and Status are mutated on assignment.
type Task struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
	Labels      []string `json:"labels"`
	Priority    int      `json:"priority"`
	Project     string   `json:"project"`
	Assignee    string   `json:"assignee"`
	Status      string   `json:"status"`
}

// Task statuses dispatch cares about. The tracker may define more; anything
// unrecognized is passed through untouched.
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusClosed     = "closed"
)

// Closed reports whether the task is finished from the tracker's point of view.
func (t Task) Closed() bool {
	return t.Status == StatusClosed
}

// UpdateFields names the mutable task fields dispatch writes back.
type UpdateFields struct {
	Status   string
	Assignee string
	Worker   string
	Model    string
}

// Runner executes the tracker binary. Injectable so tests never shell out.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner invokes the tracker via os/exec, surfacing trimmed stderr on
// non-zero exit.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = strings.TrimSpace(stdout.String())
		}
		if detail != "" {
			return "", fmt.Errorf("taskstore: %s %s: %w: %s", name, strings.Join(args, " "), err, detail)
		}
		return "", fmt.Errorf("taskstore: %s %s: %w", name, strings.Join(args, " "), err)
	}
	return stdout.String(), nil
}

// Client talks to the tracker CLI with a fixed per-call timeout.
type Client struct {
	binary  string
	timeout time.Duration
	runner  Runner
}

// ClientOption tunes a Client.
type ClientOption func(*Client)

// WithRunner replaces the subprocess runner, used in tests.
func WithRunner(r Runner) ClientOption {
	return func(c *Client) { c.runner = r }
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewClient returns a client for the given tracker binary.
func NewClient(binary string, opts ...ClientOption) *Client {
	c := &Client{
		binary:  binary,
		timeout: 10 * time.Second,
		runner:  ExecRunner{},
	}
	if c.binary == "" {
		c.binary = "bd"
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Show reads one task by id. The tracker emits a single JSON object for
// `show <id> --json`.
func (c *Client) Show(id string) (Task, error) {
	out, err := c.run("show", id, "--json")
	if err != nil {
		return Task{}, err
	}
	var task Task
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &task); err != nil {
		return Task{}, fmt.Errorf("taskstore: parse task %s: %w", id, err)
	}
	if task.ID == "" {
		task.ID = id
	}
	return task, nil
}

// Update writes back the non-empty fields. A fully-empty update is a no-op.
func (c *Client) Update(id string, fields UpdateFields) error {
	args := []string{"update", id}
	if fields.Status != "" {
		args = append(args, "--status", fields.Status)
	}
	if fields.Assignee != "" {
		args = append(args, "--assignee", fields.Assignee)
	}
	if fields.Worker != "" {
		args = append(args, "--meta", "worker="+fields.Worker)
	}
	if fields.Model != "" {
		args = append(args, "--meta", "model="+fields.Model)
	}
	if len(args) == 2 {
		return nil
	}
	_, err := c.run(args...)
	return err
}

// Close marks the task finished in the tracker.
func (c *Client) Close(id string) error {
	_, err := c.run("close", id)
	return err
}

func (c *Client) run(args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	return c.runner.Run(ctx, c.binary, args...)
}
