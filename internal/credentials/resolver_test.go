package credentials

import "testing"

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestResolveEmptyRequirementIsNil(t *testing.T) {
	r := NewResolver(nil, WithLookup(lookupFrom(nil)))
	env, err := r.Resolve("")
	if err != nil || env != nil {
		t.Fatalf("env = %v, err = %v", env, err)
	}
}

func TestResolveAmbientPassThrough(t *testing.T) {
	r := NewResolver(nil, WithLookup(lookupFrom(map[string]string{"ANTHROPIC_API_KEY": "sk-test"})))
	env, err := r.Resolve("ANTHROPIC_API_KEY")
	if err != nil {
		t.Fatal(err)
	}
	if env["ANTHROPIC_API_KEY"] != "sk-test" {
		t.Fatalf("env = %v", env)
	}
}

func TestResolveConfiguredLiteralWinsOverAmbient(t *testing.T) {
	sources := map[string]Source{"ANTHROPIC_API_KEY": {Value: "sk-configured"}}
	r := NewResolver(sources, WithLookup(lookupFrom(map[string]string{"ANTHROPIC_API_KEY": "sk-ambient"})))
	env, err := r.Resolve("ANTHROPIC_API_KEY")
	if err != nil {
		t.Fatal(err)
	}
	if env["ANTHROPIC_API_KEY"] != "sk-configured" {
		t.Fatalf("env = %v", env)
	}
}

func TestResolveSourceEnvRedirect(t *testing.T) {
	sources := map[string]Source{"OPENAI_API_KEY": {Env: "WORK_OPENAI_KEY"}}
	r := NewResolver(sources, WithLookup(lookupFrom(map[string]string{"WORK_OPENAI_KEY": "sk-work"})))
	env, err := r.Resolve("OPENAI_API_KEY")
	if err != nil {
		t.Fatal(err)
	}
	if env["OPENAI_API_KEY"] != "sk-work" {
		t.Fatalf("env = %v", env)
	}
}

func TestResolveSourceEnvUnsetIsError(t *testing.T) {
	sources := map[string]Source{"OPENAI_API_KEY": {Env: "WORK_OPENAI_KEY"}}
	r := NewResolver(sources, WithLookup(lookupFrom(nil)))
	if _, err := r.Resolve("OPENAI_API_KEY"); err == nil {
		t.Fatal("explicitly configured but unset source must error")
	}
}

func TestResolveUnsatisfiedIsNilNotError(t *testing.T) {
	r := NewResolver(nil, WithLookup(lookupFrom(nil)))
	env, err := r.Resolve("ANTHROPIC_API_KEY")
	if err != nil {
		t.Fatal(err)
	}
	if env != nil {
		t.Fatalf("env = %v", env)
	}
}
