package metrics

import (
	"context"
	"testing"
)

func TestRuntimeCollector(t *testing.T) {
	c := NewRuntimeCollector()
	m, err := c.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"goroutines", "heap_alloc", "gc_cycles", "uptime_seconds"} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing key %q", key)
		}
	}
	if m["goroutines"].(int) < 1 {
		t.Error("goroutines must be at least 1")
	}
}

func TestCollectorFunc(t *testing.T) {
	f := CollectorFunc(func(ctx context.Context) (map[string]any, error) {
		return map[string]any{"cpu": 0.25}, nil
	})
	m, err := f.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if m["cpu"] != 0.25 {
		t.Errorf("got %v", m["cpu"])
	}
}
