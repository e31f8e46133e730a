package async

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/PTX/logger"
)

// progressLogInterval throttles per-item progress logs for one job
const progressLogInterval = 2 * time.Second

// JobProgressEmitter implements pulse.ProgressEmitter for one job in a Queue
type JobProgressEmitter struct {
	jobID     string
	queue     *Queue
	log       *zap.SugaredLogger // job_id pre-configured
	sometimes rate.Sometimes
}

// NewJobProgressEmitter creates a progress emitter for the job with jobID
func NewJobProgressEmitter(jobID string, queue *Queue, baseLogger *zap.SugaredLogger) *JobProgressEmitter {
	return &JobProgressEmitter{
		jobID:     jobID,
		queue:     queue,
		log:       baseLogger.With(logger.FieldJobID, jobID),
		sometimes: rate.Sometimes{First: 1, Interval: progressLogInterval},
	}
}

// SetTotal fixes the job's item count. A job with nothing to do completes
// right here.
func (e *JobProgressEmitter) SetTotal(total int) {
	if _, err := e.queue.Update(e.jobID, func(j *Job) error {
		j.SetTotal(total)
		if total == 0 {
			j.Complete()
		}
		return nil
	}); err != nil {
		e.log.Warnw("Failed to set job total", logger.FieldTotal, total, logger.FieldError, err)
	}
}

// Record appends one result to the job. The update that records the last
// item also completes the job, so no reader sees progress == total on a
// running job. Progress is logged at most once per interval.
func (e *JobProgressEmitter) Record(result any) error {
	snap, err := e.queue.Update(e.jobID, func(j *Job) error {
		j.Record(result)
		if j.Progress.Total > 0 && j.Progress.Current >= j.Progress.Total {
			j.Complete()
		}
		return nil
	})
	if err != nil {
		return err
	}

	if snap.Progress.Current == snap.Progress.Total {
		e.log.Debugw("All items recorded", logger.FieldTotal, snap.Progress.Total)
		return nil
	}
	e.sometimes.Do(func() {
		e.log.Infow("Job progress",
			logger.FieldProgress, snap.Progress.Current,
			logger.FieldTotal, snap.Progress.Total)
	})
	return nil
}

// EmitInfo logs a milestone of the job
func (e *JobProgressEmitter) EmitInfo(message string) {
	e.log.Info(message)
}
