// Package credentials maps worker auth requirements to environment-ready
// secrets. Secrets are never logged and never written anywhere; they only
// travel into the worker's launch environment.
package credentials

import (
	"fmt"
	"os"
	"strings"
)

// Source names where one requirement's secret comes from.
type Source struct {
	// Env is an environment variable to read the secret from, when it
	// differs from the requirement itself.
	Env string `yaml:"env"`
	// Value is a literal secret configured directly. Wins over Env.
	Value string `yaml:"value"`
}

// Resolver resolves auth requirements against configured sources and the
// ambient environment.
type Resolver struct {
	sources map[string]Source
	lookup  func(string) (string, bool)
}

// ResolverOption tunes a Resolver.
type ResolverOption func(*Resolver)

// WithLookup replaces the environment lookup, used in tests.
func WithLookup(lookup func(string) (string, bool)) ResolverOption {
	return func(r *Resolver) { r.lookup = lookup }
}

// NewResolver returns a resolver over the configured sources. A nil map is
// valid; everything then falls through to the ambient environment.
func NewResolver(sources map[string]Source, opts ...ResolverOption) *Resolver {
	r := &Resolver{sources: sources, lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve maps a worker's auth requirement to the env pairs its launch needs.
//
// An empty requirement means the worker authenticates on its own (login
// session, keychain) and gets nothing. A configured source wins over the
// ambient environment. A requirement with no source and no ambient value
// resolves to nil without error: plenty of workers fall back to their own
// login flow, and refusing to launch would be guessing.
func (r *Resolver) Resolve(requirement string) (map[string]string, error) {
	requirement = strings.TrimSpace(requirement)
	if requirement == "" {
		return nil, nil
	}
	if src, ok := r.sources[requirement]; ok {
		if src.Value != "" {
			return map[string]string{requirement: src.Value}, nil
		}
		if src.Env != "" {
			value, ok := r.lookup(src.Env)
			if !ok {
				return nil, fmt.Errorf("credentials: %s: source env %s is unset", requirement, src.Env)
			}
			return map[string]string{requirement: value}, nil
		}
	}
	if value, ok := r.lookup(requirement); ok {
		return map[string]string{requirement: value}, nil
	}
	return nil, nil
}
