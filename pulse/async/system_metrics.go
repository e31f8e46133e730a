package async

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/teranos/PTX/errors"
)

// SystemMetrics tracks resource usage for worker pool monitoring
type SystemMetrics struct {
	WorkersActive int     `json:"workers_active"`  // Workers currently executing jobs
	WorkersTotal  int     `json:"workers_total"`   // Configured workers
	JobsPending   int     `json:"jobs_pending"`    // Submitted jobs waiting for a worker
	JobsRunning   int     `json:"jobs_running"`    // Jobs not yet terminal
	JobsRetained  int     `json:"jobs_retained"`   // Jobs held by the registry
	MemoryUsedGB  float64 `json:"memory_used_gb"`  // Current memory usage in GB
	MemoryTotalGB float64 `json:"memory_total_gb"` // Total system memory in GB
	MemoryPercent float64 `json:"memory_percent"`  // Memory utilization percentage
	JobsProcessed int     `json:"jobs_processed"`  // Jobs taken by a worker since Start
}

// getMemoryStats is swapped out by tests
var getMemoryStats = func() (total uint64, available uint64, err error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to get memory stats")
	}
	return v.Total, v.Available, nil
}

// calculateSafeWorkerCount recommends a worker count for the available
// memory. A batch holds its dataset and results in memory, so each worker is
// budgeted a fixed share.
func calculateSafeWorkerCount(availableGB float64) int {
	const memoryPerWorker = 0.5 // GB per concurrent batch
	const memoryBuffer = 1.0    // GB reserved for the rest of the system

	if availableGB < memoryBuffer {
		return 1 // Always allow at least 1 worker
	}

	recommended := int((availableGB - memoryBuffer) / memoryPerWorker)
	if recommended < 1 {
		return 1
	}
	return recommended
}

// GetSystemMetrics returns current system resource usage
func (wp *WorkerPool) GetSystemMetrics() SystemMetrics {
	total, available, err := getMemoryStats()

	var memUsedGB, memTotalGB, memPercent float64
	if err == nil && total > 0 {
		memTotalGB = float64(total) / 1024 / 1024 / 1024
		memUsedGB = float64(total-available) / 1024 / 1024 / 1024
		memPercent = (memUsedGB / memTotalGB) * 100
	}

	stats := wp.queue.GetStats()

	wp.mu.Lock()
	defer wp.mu.Unlock()
	return SystemMetrics{
		WorkersActive: wp.activeWorkers,
		WorkersTotal:  wp.workers,
		JobsPending:   len(wp.pending),
		JobsRunning:   stats.Running,
		JobsRetained:  stats.Total,
		MemoryUsedGB:  memUsedGB,
		MemoryTotalGB: memTotalGB,
		MemoryPercent: memPercent,
		JobsProcessed: wp.jobsProcessed,
	}
}

// checkMemoryPressure validates the worker count against available memory.
// Returns a warning and the recommended count when it is too high.
func (wp *WorkerPool) checkMemoryPressure() (string, int) {
	total, available, err := getMemoryStats()
	if err != nil {
		return "", wp.workers // Can't check, assume OK
	}

	availableGB := float64(available) / 1024 / 1024 / 1024
	totalGB := float64(total) / 1024 / 1024 / 1024
	recommended := calculateSafeWorkerCount(availableGB)

	if wp.workers > recommended {
		return fmt.Sprintf(
			"Worker count (%d) exceeds recommended (%d) for available memory (%.1f/%.1fGB); reducing.",
			wp.workers, recommended, totalGB-availableGB, totalGB), recommended
	}
	return "", wp.workers
}
