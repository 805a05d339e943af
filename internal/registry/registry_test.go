package registry

import "testing"

func TestBuildResolvesRegisteredBuilder(t *testing.T) {
	r := New[int]()
	r.Register("double", func(cfg map[string]any) (int, error) {
		n, _ := cfg["n"].(int)
		return n * 2, nil
	})

	got, err := r.Build("double", map[string]any{"n": 21})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
}

func TestBuildUnknownNameErrors(t *testing.T) {
	r := New[string]()
	r.Register("known", func(map[string]any) (string, error) { return "ok", nil })

	_, err := r.Build("unknown", nil)
	if err == nil {
		t.Fatal("expected an error for an unregistered builder name")
	}
}

func TestHasAndNames(t *testing.T) {
	r := New[int]()
	if r.Has("memory") {
		t.Fatal("expected Has to be false before registration")
	}
	r.Register("redis", func(map[string]any) (int, error) { return 0, nil })
	r.Register("memory", func(map[string]any) (int, error) { return 0, nil })

	if !r.Has("memory") {
		t.Error("expected Has to be true after registration")
	}
	names := r.Names()
	if len(names) != 2 || names[0] != "memory" || names[1] != "redis" {
		t.Errorf("expected sorted names [memory redis], got %v", names)
	}
}
