package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/PTX/errors"
	"github.com/teranos/PTX/logger"
)

// pulseLogger wraps zap.SugaredLogger with special methods for Pulse operations
// Uses different log levels to create visual distinction:
// - DEBUG level → STARTING (✿ Opening operations)
// - WARN level → CLOSING (❀ Closing operations)
// - INFO level → PULSE (general worker operations)
type pulseLogger struct {
	*zap.SugaredLogger
}

// Starting logs an Opening (✿) event
func (l pulseLogger) Starting(msg string, keysAndValues ...interface{}) {
	l.Debugw("✿ "+msg, keysAndValues...)
}

// Closing logs a Closing (❀) event
func (l pulseLogger) Closing(msg string, keysAndValues ...interface{}) {
	l.Warnw("❀ "+msg, keysAndValues...)
}

// Pulse logs general worker operations
func (l pulseLogger) Pulse(msg string, keysAndValues ...interface{}) {
	l.Infow(msg, keysAndValues...)
}

// WorkerPoolConfig contains configuration for the worker pool
type WorkerPoolConfig struct {
	Workers       int           `json:"workers"`        // Concurrent jobs
	QueueSize     int           `json:"queue_size"`     // Backlog above which Submit logs a warning; never blocks
	SweepInterval time.Duration `json:"sweep_interval"` // How often the eviction policy runs (0 = never)
	StopTimeout   time.Duration `json:"stop_timeout"`   // How long Stop waits for in-flight jobs
}

// DefaultWorkerPoolConfig returns sensible defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		Workers:       4,
		QueueSize:     64,
		SweepInterval: time.Minute,
		StopTimeout:   30 * time.Second,
	}
}

// WorkerPool runs submitted jobs on a fixed number of goroutines
type WorkerPool struct {
	queue    *Queue
	registry *HandlerRegistry
	config   WorkerPoolConfig
	workers  int
	wake     chan struct{} // holds one token while pending may be non-empty

	parentCtx context.Context
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	logger pulseLogger

	mu            sync.Mutex
	pending       []string // FIFO of submitted job IDs
	started       bool
	activeWorkers int
	jobsProcessed int
	startTime     time.Time
}

// NewWorkerPool creates a pool over queue. Register handlers on registry
// before calling Start. Cancelling ctx stops the pool.
func NewWorkerPool(ctx context.Context, queue *Queue, registry *HandlerRegistry, cfg WorkerPoolConfig, log *zap.SugaredLogger) *WorkerPool {
	defaults := DefaultWorkerPoolConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaults.StopTimeout
	}
	if log == nil {
		log = logger.ComponentLogger("pulse")
	}

	workerCtx, cancel := context.WithCancel(ctx)
	return &WorkerPool{
		queue:     queue,
		registry:  registry,
		config:    cfg,
		workers:   cfg.Workers,
		wake:      make(chan struct{}, 1),
		parentCtx: ctx,
		ctx:       workerCtx,
		cancel:    cancel,
		logger:    pulseLogger{log.Named("pulse")},
	}
}

// Start launches the workers and the eviction janitor
// ✿ Opening: the worker count is reduced when memory is short
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.started {
		return
	}

	// Check if context was cancelled (after Stop()) - if so, create new one
	select {
	case <-wp.ctx.Done():
		wp.ctx, wp.cancel = context.WithCancel(wp.parentCtx)
		wp.logger.Starting("Recreated worker context after previous shutdown")
	default:
	}

	if warning, recommended := wp.checkMemoryPressure(); warning != "" {
		wp.logger.Warnw("Memory pressure warning", "warning", warning, "workers", wp.workers)
		wp.workers = recommended
	}

	wp.started = true
	wp.startTime = time.Now()
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(wp.ctx, i)
	}
	if wp.config.SweepInterval > 0 {
		wp.wg.Add(1)
		go wp.janitor(wp.ctx)
	}
	wp.logger.Starting("Worker pool started", "workers", wp.workers, "handlers", wp.registry.Names(), "backlog", len(wp.pending))
}

// Stop cancels in-flight jobs and waits for workers to exit. Jobs still
// waiting for a worker are failed.
// ❀ Closing: handlers see a cancelled context and finish their bookkeeping
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	wp.started = false
	cancel := wp.cancel
	wp.mu.Unlock()
	cancel()
	wp.failPending(errors.New("worker pool stopped before the job ran"))

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.logger.Pulse("❀ WorkerPool.Stop() complete - all workers exited cleanly")
	case <-time.After(wp.config.StopTimeout):
		wp.logger.Closing("WorkerPool.Stop() timeout - workers may still be running", "timeout", wp.config.StopTimeout)
	}
}

// Submit registers job and queues it for a worker without waiting. The
// job is failed straight away if the pool has been stopped.
func (wp *WorkerPool) Submit(_ context.Context, job *Job) error {
	if err := wp.queue.Enqueue(job); err != nil {
		return err
	}

	wp.mu.Lock()
	if wp.ctx.Err() != nil {
		wp.mu.Unlock()
		err := errors.New("worker pool is shutting down")
		_ = wp.queue.FailJob(job.ID, err)
		return err
	}
	wp.pending = append(wp.pending, job.ID)
	backlog := len(wp.pending)
	wp.mu.Unlock()
	wp.signal()

	if backlog > wp.config.QueueSize {
		wp.logger.Warnw("Job backlog above queue_size", logger.FieldJobID, job.ID, "backlog", backlog, "queue_size", wp.config.QueueSize)
	}
	return nil
}

// signal wakes one idle worker
func (wp *WorkerPool) signal() {
	select {
	case wp.wake <- struct{}{}:
	default:
	}
}

// next pops the oldest pending job ID
func (wp *WorkerPool) next() (string, bool) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if len(wp.pending) == 0 {
		return "", false
	}
	id := wp.pending[0]
	wp.pending[0] = ""
	wp.pending = wp.pending[1:]
	if len(wp.pending) > 0 {
		wp.signal()
	}
	return id, true
}

// failPending fails every job that never reached a worker
func (wp *WorkerPool) failPending(cause error) {
	wp.mu.Lock()
	ids := wp.pending
	wp.pending = nil
	wp.mu.Unlock()

	for _, id := range ids {
		if err := wp.queue.FailJob(id, cause); err != nil {
			wp.logger.Warnw("Failed to fail pending job", logger.FieldJobID, id, logger.FieldError, err)
		}
	}
	if len(ids) > 0 {
		wp.logger.Closing("Failed jobs still waiting for a worker", logger.FieldCount, len(ids))
	}
}

// Backlog returns the number of submitted jobs waiting for a worker
func (wp *WorkerPool) Backlog() int {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return len(wp.pending)
}

// worker runs pending jobs until the pool stops
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}
		jobID, ok := wp.next()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-wp.wake:
			}
			continue
		}
		wp.process(ctx, id, jobID)
	}
}

func (wp *WorkerPool) process(ctx context.Context, workerID int, jobID string) {
	job, err := wp.queue.GetJob(jobID)
	if err != nil {
		// evicted while waiting
		wp.logger.Warnw("Pending job vanished", logger.FieldJobID, jobID, logger.FieldError, err)
		return
	}

	wp.mu.Lock()
	wp.activeWorkers++
	wp.jobsProcessed++
	wp.mu.Unlock()
	defer func() {
		wp.mu.Lock()
		wp.activeWorkers--
		wp.mu.Unlock()
	}()

	start := time.Now()
	log := wp.logger.With(logger.FieldJobID, jobID, logger.FieldHandler, job.HandlerName, "worker_id", workerID)
	emitter := NewJobProgressEmitter(jobID, wp.queue, wp.logger.SugaredLogger)

	if err := wp.run(ctx, job, emitter); err != nil {
		log.Warnw("Job failed", logger.FieldError, err, logger.FieldDurationMS, time.Since(start).Milliseconds())
		if failErr := wp.queue.FailJob(jobID, err); failErr != nil {
			log.Errorw("Failed to record job failure", logger.FieldError, failErr)
		}
		return
	}
	if err := wp.queue.CompleteJob(jobID); err != nil {
		log.Errorw("Failed to complete job", logger.FieldError, err)
		return
	}
	log.Infow("Job completed", logger.FieldDurationMS, time.Since(start).Milliseconds())
}

// run executes the handler, turning a panic into a job failure
func (wp *WorkerPool) run(ctx context.Context, job *Job, emitter *JobProgressEmitter) (err error) {
	defer func() {
		if r := recover(); r != nil {
			wp.logger.Errorw("Job handler panicked", logger.FieldJobID, job.ID, "panic", r, "stack", string(debug.Stack()))
			err = errors.Newf("job handler panicked: %v", r)
		}
	}()
	return wp.registry.execute(ctx, job, emitter)
}

// janitor applies the eviction policy on an interval
func (wp *WorkerPool) janitor(ctx context.Context) {
	defer wp.wg.Done()

	ticker := time.NewTicker(wp.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if evicted := wp.queue.Sweep(now); len(evicted) > 0 {
				wp.logger.Debugw("Evicted jobs", logger.FieldCount, len(evicted))
			}
		}
	}
}

// GetQueue returns the job queue
func (wp *WorkerPool) GetQueue() *Queue {
	return wp.queue
}

// Workers returns the number of concurrent workers
func (wp *WorkerPool) Workers() int {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return wp.workers
}

// Registry returns the handler registry
func (wp *WorkerPool) Registry() *HandlerRegistry {
	return wp.registry
}

// Uptime returns how long the pool has been running
func (wp *WorkerPool) Uptime() time.Duration {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if !wp.started {
		return 0
	}
	return time.Since(wp.startTime)
}

func (wp *WorkerPool) String() string {
	return fmt.Sprintf("WorkerPool(workers=%d, backlog=%d)", wp.Workers(), wp.Backlog())
}
