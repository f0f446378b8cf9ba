package routing

import (
	"errors"
	"fmt"

	"github.com/kingrea/dispatch/internal/taskstore"
	"github.com/kingrea/dispatch/internal/worker"
)

// ConfigurationError marks a routing configuration defect: an unavailable
// fallback or an explicit request for a worker that cannot serve. Fatal,
// never retried.
type ConfigurationError struct {
	Detail string
}

func (e *ConfigurationError) Error() string {
	return "routing: configuration error: " + e.Detail
}

// RoutingUnavailableError means a rule matched but its worker is disabled or
// unknown. Distinct from "no rule matched": a human configured that specific
// rule, so falling through silently would hide the breakage.
type RoutingUnavailableError struct {
	Rule   string
	Worker string
	Cause  error
}

func (e *RoutingUnavailableError) Error() string {
	return fmt.Sprintf("routing: rule %q routed to unavailable worker %q", e.Rule, e.Worker)
}

func (e *RoutingUnavailableError) Unwrap() error { return e.Cause }

// Selection is the routing outcome.
type Selection struct {
	Worker worker.Program
	Model  string
	// MatchedRule is the name of the rule that fired, empty for explicit or
	// fallback selection.
	MatchedRule string
	// Reason is a one-line human explanation for logs.
	Reason string
}

// ProgramResolver resolves worker ids to programs. *worker.Catalog satisfies it.
type ProgramResolver interface {
	Get(id string) (worker.Program, error)
}

// Selector binds a program catalog to a routing table.
type Selector struct {
	catalog ProgramResolver
	table   Table
}

// NewSelector returns a selector over the given catalog and table.
func NewSelector(catalog ProgramResolver, table Table) *Selector {
	return &Selector{catalog: catalog, table: table}
}

// Select resolves (worker, model) for a task.
//
// Precedence: an explicit worker id always wins and must resolve to an
// enabled program; otherwise rules fire in order, first match wins; no match
// falls to the table's fallback. An explicit model override replaces whatever
// model the rule or fallback chose. Well-formed but unrecognized model
// identifiers pass through verbatim; external model catalogs move faster
// than this binary ships.
func (s *Selector) Select(explicitID, explicitModel string, task *taskstore.Task) (Selection, error) {
	if explicitID != "" {
		p, err := s.resolve(explicitID)
		if err != nil {
			return Selection{}, &ConfigurationError{
				Detail: fmt.Sprintf("requested worker %q is unavailable: %v", explicitID, err),
			}
		}
		sel := Selection{Worker: p, Model: explicitModel, Reason: "explicit worker " + explicitID}
		return sel, nil
	}

	if task != nil {
		for _, rule := range s.table.Rules {
			if !rule.Matches(*task) {
				continue
			}
			p, err := s.resolve(rule.Worker)
			if err != nil {
				return Selection{}, &RoutingUnavailableError{Rule: rule.Name, Worker: rule.Worker, Cause: err}
			}
			sel := Selection{
				Worker:      p,
				Model:       rule.Model,
				MatchedRule: rule.Name,
				Reason:      fmt.Sprintf("rule %s matched task %s", rule.Name, task.ID),
			}
			if explicitModel != "" {
				sel.Model = explicitModel
			}
			return sel, nil
		}
	}

	if s.table.Fallback.Worker == "" {
		return Selection{}, &ConfigurationError{Detail: "no rule matched and no fallback worker is configured"}
	}
	p, err := s.resolve(s.table.Fallback.Worker)
	if err != nil {
		return Selection{}, &ConfigurationError{
			Detail: fmt.Sprintf("fallback worker %q is unavailable: %v", s.table.Fallback.Worker, err),
		}
	}
	sel := Selection{Worker: p, Model: s.table.Fallback.Model, Reason: "fallback"}
	if explicitModel != "" {
		sel.Model = explicitModel
	}
	return sel, nil
}

func (s *Selector) resolve(id string) (worker.Program, error) {
	p, err := s.catalog.Get(id)
	if err != nil {
		return worker.Program{}, err
	}
	if !p.Enabled {
		return worker.Program{}, errors.New("worker is disabled")
	}
	return p, nil
}
