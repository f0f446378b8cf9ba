// Package routing resolves which worker program and model a task should be
// delegated to. Resolution is a pure function of the task descriptor, the
// ordered rule list, and the configured fallback.
package routing

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/dispatch/internal/taskstore"
)

// Rule is one ordered routing predicate. All non-empty predicate fields must
// match for the rule to fire; the first firing rule wins.
type Rule struct {
	// Name identifies the rule in logs and selection reasons.
	Name string `yaml:"name"`
	// TaskType matches the task's type exactly (case-insensitive).
	TaskType string `yaml:"task_type"`
	// Label matches when the task carries the label (case-insensitive).
	Label string `yaml:"label"`
	// Project matches the task's project exactly (case-insensitive).
	Project string `yaml:"project"`
	// MinPriority matches tasks at or above this priority. Zero disables it.
	MinPriority int `yaml:"min_priority"`

	// Worker and Model are the routing outcome when the rule fires.
	Worker string `yaml:"worker"`
	Model  string `yaml:"model"`
}

// Matches reports whether every declared predicate holds for the task.
// A rule with no predicates matches everything, which makes it a catch-all.
func (r Rule) Matches(task taskstore.Task) bool {
	if r.TaskType != "" && !strings.EqualFold(r.TaskType, task.Type) {
		return false
	}
	if r.Project != "" && !strings.EqualFold(r.Project, task.Project) {
		return false
	}
	if r.MinPriority > 0 && task.Priority < r.MinPriority {
		return false
	}
	if r.Label != "" {
		found := false
		for _, l := range task.Labels {
			if strings.EqualFold(r.Label, l) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Fallback is the routing outcome when no rule matches.
type Fallback struct {
	Worker string `yaml:"worker"`
	Model  string `yaml:"model"`
}

// Table is the parsed routing configuration.
type Table struct {
	Rules    []Rule   `yaml:"rules"`
	Fallback Fallback `yaml:"fallback"`
}

// LoadTable reads routing.yaml. A missing file yields an empty table with no
// fallback; Select then requires an explicit worker.
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Table{}, nil
		}
		return Table{}, fmt.Errorf("routing: read %s: %w", path, err)
	}
	var table Table
	if err := yaml.Unmarshal(data, &table); err != nil {
		return Table{}, fmt.Errorf("routing: parse %s: %w", path, err)
	}
	table.normalize()
	if err := table.validate(); err != nil {
		return Table{}, fmt.Errorf("routing: %s: %w", path, err)
	}
	return table, nil
}

func (t *Table) normalize() {
	for i := range t.Rules {
		r := &t.Rules[i]
		r.Name = strings.TrimSpace(r.Name)
		r.TaskType = strings.TrimSpace(r.TaskType)
		r.Label = strings.TrimSpace(r.Label)
		r.Project = strings.TrimSpace(r.Project)
		r.Worker = strings.TrimSpace(r.Worker)
		r.Model = strings.TrimSpace(r.Model)
		if r.Name == "" {
			r.Name = fmt.Sprintf("rule-%d", i+1)
		}
	}
	t.Fallback.Worker = strings.TrimSpace(t.Fallback.Worker)
	t.Fallback.Model = strings.TrimSpace(t.Fallback.Model)
}

func (t *Table) validate() error {
	for _, r := range t.Rules {
		if r.Worker == "" {
			return fmt.Errorf("rule %q names no worker", r.Name)
		}
	}
	return nil
}
