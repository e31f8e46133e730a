package async

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateSafeWorkerCount(t *testing.T) {
	assert.Equal(t, 1, calculateSafeWorkerCount(0.5))
	assert.Equal(t, 1, calculateSafeWorkerCount(1.2))
	assert.Equal(t, 6, calculateSafeWorkerCount(4))
}

func TestStart_ReducesWorkersUnderMemoryPressure(t *testing.T) {
	orig := getMemoryStats
	t.Cleanup(func() { getMemoryStats = orig })
	getMemoryStats = func() (uint64, uint64, error) {
		return 8 << 30, 2 << 30, nil // 2GB available
	}

	pool := NewWorkerPool(context.Background(), NewQueue(NewMemoryStore(nil)), NewHandlerRegistry(),
		WorkerPoolConfig{Workers: 16}, nil)
	pool.Start()
	defer pool.Stop()

	assert.Equal(t, 2, pool.Workers())

	metrics := pool.GetSystemMetrics()
	assert.Equal(t, 2, metrics.WorkersTotal)
	assert.InDelta(t, 8.0, metrics.MemoryTotalGB, 0.001)
	assert.InDelta(t, 75.0, metrics.MemoryPercent, 0.001)
}

func TestGetSystemMetrics_CountsJobs(t *testing.T) {
	pool := NewWorkerPool(context.Background(), NewQueue(NewMemoryStore(nil)), NewHandlerRegistry(),
		WorkerPoolConfig{Workers: 1}, nil)

	// not started, so the job stays pending
	require.NoError(t, pool.Submit(context.Background(), newJobNamed(t, "x")))

	metrics := pool.GetSystemMetrics()
	assert.Equal(t, 1, metrics.JobsPending)
	assert.Equal(t, 1, metrics.JobsRunning)
	assert.Equal(t, 1, metrics.JobsRetained)
}
