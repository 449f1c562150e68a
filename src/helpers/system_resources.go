package helpers

import (
	"runtime"
	"time"
)

// ProcessStats is a point-in-time view of the process, served on /api/stats
type ProcessStats struct {
	Goroutines  int     `json:"goroutines"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	SysMB       float64 `json:"sys_mb"`
	NumGC       uint32  `json:"num_gc"`
	GoVersion   string  `json:"go_version"`
	CollectedAt int64   `json:"collected_at"`
}

// ReadProcessStats samples the Go runtime. It briefly stops the world, so
// callers should not poll it in a tight loop.
func ReadProcessStats() ProcessStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return ProcessStats{
		Goroutines:  runtime.NumGoroutine(),
		HeapAllocMB: float64(m.HeapAlloc) / 1024 / 1024,
		SysMB:       float64(m.Sys) / 1024 / 1024,
		NumGC:       m.NumGC,
		GoVersion:   runtime.Version(),
		CollectedAt: time.Now().UTC().Unix(),
	}
}
