package run

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/PTX/ai/model"
	"github.com/teranos/PTX/errors"
	"github.com/teranos/PTX/logger"
	"github.com/teranos/PTX/pulse"
	"github.com/teranos/PTX/pulse/async"
	"github.com/teranos/PTX/run/bind"
)

// BatchHandlerName routes batch jobs to the engine's handler
const BatchHandlerName = "llm.batch"

// Entry is one record's outcome in a batch
type Entry struct {
	InputRecord any `json:"input_record"`
	Result
}

// JobStatus is the pollable view of a batch job
type JobStatus struct {
	JobID     string          `json:"job_id"`
	Status    async.JobStatus `json:"status"`
	Progress  int             `json:"progress"`
	Total     int             `json:"total"`
	Percent   float64         `json:"percent"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func statusOf(job *async.Job) JobStatus {
	return JobStatus{
		JobID:     job.ID,
		Status:    job.Status,
		Progress:  job.Progress.Current,
		Total:     job.Progress.Total,
		Percent:   job.Progress.Percentage(),
		Error:     job.Error,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
}

// Sink persists the results of a completed job under a name and returns
// where they went. Saving an existing name fails with NameCollision.
type Sink interface {
	Save(ctx context.Context, name string, entries []any) (string, error)
}

// Engine runs requests over every record of a dataset as background jobs
type Engine struct {
	executor *Executor
	datasets bind.DatasetSource
	pool     *async.WorkerPool
	sink     Sink
	metrics  *Metrics
	log      *zap.SugaredLogger
}

// NewEngine creates an Engine and registers its handler on pool. sink may
// be nil, in which case Save is unavailable.
func NewEngine(executor *Executor, datasets bind.DatasetSource, pool *async.WorkerPool, sink Sink) *Engine {
	e := &Engine{
		executor: executor,
		datasets: datasets,
		pool:     pool,
		sink:     sink,
		metrics:  executor.metrics,
		log:      logger.ComponentLogger("batch"),
	}
	pool.Registry().Register(&batchHandler{engine: e})
	return e
}

// Submit starts a batch job and returns its id without waiting for it
func (e *Engine) Submit(ctx context.Context, req Request) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode batch request")
	}
	job, err := async.NewJobWithPayload(BatchHandlerName, payload, 0)
	if err != nil {
		return "", err
	}
	if err := e.pool.Submit(ctx, job); err != nil {
		return "", errors.Wrap(err, "failed to submit batch job")
	}
	e.log.Infow("Batch submitted", logger.FieldJobID, job.ID, logger.FieldTemplateID, req.TemplateID)
	return job.ID, nil
}

// Status returns the job's progress, or a JobNotFound error
func (e *Engine) Status(jobID string) (JobStatus, error) {
	job, err := e.pool.GetQueue().GetJob(jobID)
	if err != nil {
		return JobStatus{}, err
	}
	return statusOf(job), nil
}

// Jobs lists retained jobs, newest first. A non-empty status keeps only
// jobs in that state.
func (e *Engine) Jobs(status string) ([]JobStatus, error) {
	var filter *async.JobStatus
	if status != "" {
		if !async.IsValidStatus(status) {
			return nil, errors.NewInvalidInputf("unknown job status %q (want running, completed or failed)", status)
		}
		s := async.JobStatus(status)
		filter = &s
	}
	jobs := e.pool.GetQueue().ListJobs(filter, 0)
	out := make([]JobStatus, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, statusOf(job))
	}
	return out, nil
}

// Result returns a completed job's entries in record order. It fails with
// JobNotFound for unknown ids and JobNotComplete until the job completes.
func (e *Engine) Result(jobID string) ([]Entry, error) {
	job, err := e.pool.GetQueue().GetJobWithResults(jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != async.JobStatusCompleted {
		err := errors.Wrapf(errors.ErrJobNotComplete, "job %s is %s", jobID, job.Status)
		return nil, errors.WithDetail(err, fmt.Sprintf("Progress: %d/%d", job.Progress.Current, job.Progress.Total))
	}

	entries := make([]Entry, 0, len(job.Results))
	for _, r := range job.Results {
		entry, ok := r.(Entry)
		if !ok {
			return nil, errors.AssertionFailedf("job %s holds a %T result", jobID, r)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Save writes a completed job's entries to the sink under name
func (e *Engine) Save(ctx context.Context, jobID, name string) (string, error) {
	entries, err := e.Result(jobID)
	if err != nil {
		return "", err
	}
	if err := ValidateResultName(name); err != nil {
		return "", err
	}
	if e.sink == nil {
		return "", errors.WithHint(errors.New("no result sink configured"), "set sink.type in am.toml")
	}

	items := make([]any, len(entries))
	for i, entry := range entries {
		items[i] = entry
	}
	location, err := e.sink.Save(ctx, name, items)
	if err != nil {
		return "", err
	}
	e.log.Infow("Batch results saved", logger.FieldJobID, jobID, logger.FieldCount, len(items), "location", location)
	return location, nil
}

// ValidateResultName rejects names that could escape the sink's namespace
func ValidateResultName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.NewInvalidInputf("filename cannot be empty")
	}
	if strings.ContainsAny(name, `/\`) {
		return errors.NewInvalidInputf("filename cannot contain slashes")
	}
	return nil
}

const watchPollInterval = time.Second

// Watch streams status snapshots of one job until it is terminal or ctx
// ends. The first value is the current status.
func (e *Engine) Watch(ctx context.Context, jobID string) (<-chan JobStatus, error) {
	queue := e.pool.GetQueue()
	sub := queue.Subscribe()

	current, err := queue.GetJob(jobID)
	if err != nil {
		queue.Unsubscribe(sub)
		return nil, err
	}

	out := make(chan JobStatus, 1)
	out <- statusOf(current)
	if current.Status.Terminal() {
		queue.Unsubscribe(sub)
		close(out)
		return out, nil
	}

	go func() {
		defer close(out)
		defer queue.Unsubscribe(sub)

		// Notifications are dropped when a subscriber lags, so the job is
		// also polled to guarantee the terminal snapshot is delivered.
		poll := time.NewTicker(watchPollInterval)
		defer poll.Stop()

		last := current.UpdatedAt
		for {
			var job *async.Job
			select {
			case <-ctx.Done():
				return
			case job = <-sub:
				if job.ID != jobID {
					continue
				}
			case <-poll.C:
				polled, err := queue.GetJob(jobID)
				if err != nil {
					return
				}
				if !polled.UpdatedAt.After(last) && !polled.Status.Terminal() {
					continue
				}
				job = polled
			}
			last = job.UpdatedAt
			select {
			case out <- statusOf(job):
			case <-ctx.Done():
				return
			}
			if job.Status.Terminal() {
				return
			}
		}
	}()
	return out, nil
}

// batchHandler runs one batch job on a worker
type batchHandler struct {
	engine *Engine
}

func (h *batchHandler) Name() string { return BatchHandlerName }

// Execute fails the job only for setup problems. Once iteration starts every
// record gets an entry, including records skipped because ctx ended.
func (h *batchHandler) Execute(ctx context.Context, job *async.Job, progress pulse.ProgressEmitter) error {
	e := h.engine
	ctx = logger.WithJobID(ctx, job.ID)
	log := logger.LoggerFromContext(ctx).Named("batch")

	var req Request
	if err := json.Unmarshal(job.Payload, &req); err != nil {
		return errors.Wrap(err, "failed to decode batch request")
	}

	driver, ok := bind.FirstRecordBinding(req.Bindings)
	if !ok {
		return errors.NewInvalidInputf("batch run requires at least one 'record' scoped dataset binding")
	}
	records, err := e.datasets.Records(ctx, driver.SourceID)
	if err != nil {
		return errors.Wrapf(err, "record-scoped dataset %s", driver.SourceID)
	}

	e.metrics.batchStarted()
	progress.EmitInfo(fmt.Sprintf("Batch started: %d records from dataset %s", len(records), driver.SourceID))
	progress.SetTotal(len(records))

	tracking := model.Tracking{Operation: "batch", EntityType: "job", EntityID: job.ID}
	failed := 0
	for i, record := range records {
		var result Result
		if ctx.Err() != nil {
			result = failure("", errors.Wrap(ctx.Err(), "batch cancelled before this record ran"))
		} else {
			result = e.executor.execute(ctx, req, record, tracking)
		}
		if result.Failed() {
			failed++
			log.Debugw("Record failed", logger.FieldRecordIndex, i, logger.FieldErrorKind, result.ErrorKind)
		}
		e.metrics.observeRecord(result.ErrorKind)

		if err := progress.Record(Entry{InputRecord: record, Result: result}); err != nil {
			e.metrics.batchFinished(string(async.JobStatusFailed))
			return errors.Wrapf(err, "failed to record result %d", i)
		}
	}

	e.metrics.batchFinished(string(async.JobStatusCompleted))
	log.Infow("Batch finished", logger.FieldTotal, len(records), "failed", failed)
	return nil
}
