// Package metrics provides the default collaborator behind the bus's
// get_metrics endpoint.
package metrics

import (
	"context"
	"runtime"
	"time"
)

// Collector supplies the get_metrics payload. Implementations may report
// anything JSON-serializable; the channel treats the result as opaque.
type Collector interface {
	Collect(ctx context.Context) (map[string]any, error)
}

// RuntimeCollector reports Go runtime stats: goroutines, heap, GC cycles,
// and process uptime.
type RuntimeCollector struct {
	start time.Time
}

func NewRuntimeCollector() *RuntimeCollector {
	return &RuntimeCollector{start: time.Now()}
}

func (c *RuntimeCollector) Collect(ctx context.Context) (map[string]any, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return map[string]any{
		"goroutines":     runtime.NumGoroutine(),
		"heap_alloc":     ms.HeapAlloc,
		"heap_objects":   ms.HeapObjects,
		"gc_cycles":      ms.NumGC,
		"uptime_seconds": time.Since(c.start).Seconds(),
	}, nil
}

// CollectorFunc adapts a function to the Collector interface.
type CollectorFunc func(ctx context.Context) (map[string]any, error)

func (f CollectorFunc) Collect(ctx context.Context) (map[string]any, error) {
	return f(ctx)
}
