package eval

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

// MemoryStats is a snapshot of the Go heap.
type MemoryStats struct {
	AllocBytes      uint64  `json:"alloc_bytes"`
	TotalAllocBytes uint64  `json:"total_alloc_bytes"`
	SysBytes        uint64  `json:"sys_bytes"`
	NumGC           uint32  `json:"num_gc"`
	GCCPUFraction   float64 `json:"gc_cpu_fraction"`
}

// ReadMemoryStats returns current memory statistics.
func ReadMemoryStats() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemoryStats{
		AllocBytes:      m.Alloc,
		TotalAllocBytes: m.TotalAlloc,
		SysBytes:        m.Sys,
		NumGC:           m.NumGC,
		GCCPUFraction:   m.GCCPUFraction,
	}
}

func (m MemoryStats) String() string {
	return fmt.Sprintf("Alloc: %d KB, Total: %d KB, Sys: %d KB, GC: %d (%.2f%% CPU)",
		m.AllocBytes/1024, m.TotalAllocBytes/1024, m.SysBytes/1024, m.NumGC, m.GCCPUFraction*100)
}

// Timing is the outcome of repeating an extraction.
type Timing struct {
	Name         string        `json:"name"`
	Iterations   int           `json:"iterations"`
	Duration     time.Duration `json:"duration"`
	MemoryBefore MemoryStats   `json:"memory_before"`
	MemoryAfter  MemoryStats   `json:"memory_after"`
	Err          error         `json:"-"`
}

// Average is the mean duration of a completed iteration.
func (t Timing) Average() time.Duration {
	if t.Iterations == 0 {
		return 0
	}
	return t.Duration / time.Duration(t.Iterations)
}

func (t Timing) String() string {
	if t.Err != nil {
		return fmt.Sprintf("%s: ERROR - %v", t.Name, t.Err)
	}
	allocated := t.MemoryAfter.TotalAllocBytes - t.MemoryBefore.TotalAllocBytes
	return fmt.Sprintf("%s: %d iterations, avg: %v, total: %v, alloc: %d KB",
		t.Name, t.Iterations, t.Average(), t.Duration, allocated/1024)
}

// Measure runs fn up to iterations times and stops at the first error or
// when ctx is done. Iterations counts completed runs.
func Measure(ctx context.Context, name string, iterations int, fn func(context.Context) error) Timing {
	if iterations < 1 {
		iterations = 1
	}
	runtime.GC()
	t := Timing{Name: name, MemoryBefore: ReadMemoryStats()}
	start := time.Now()
	for range iterations {
		if err := ctx.Err(); err != nil {
			t.Err = err
			break
		}
		if err := fn(ctx); err != nil {
			t.Err = err
			break
		}
		t.Iterations++
	}
	t.Duration = time.Since(start)
	t.MemoryAfter = ReadMemoryStats()
	return t
}
