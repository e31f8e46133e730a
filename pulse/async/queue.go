package async

import (
	"fmt"
	"sync"
	"time"

	"github.com/teranos/PTX/errors"
)

// SubscriberChannelBufferSize is the buffer size for subscriber channels
const SubscriberChannelBufferSize = 100

// Queue wraps a Store and fans job updates out to subscribers
type Queue struct {
	store       Store
	mu          sync.RWMutex
	subscribers []chan *Job // Channels to notify of job updates
}

// NewQueue creates a job queue over store
func NewQueue(store Store) *Queue {
	return &Queue{
		store:       store,
		subscribers: make([]chan *Job, 0),
	}
}

// Enqueue registers a new job
func (q *Queue) Enqueue(job *Job) error {
	snap := job.Snapshot(false)
	if err := q.store.Create(job); err != nil {
		err = errors.Wrap(err, "failed to enqueue job")
		err = errors.WithDetail(err, fmt.Sprintf("Job ID: %s", job.ID))
		err = errors.WithDetail(err, fmt.Sprintf("Handler: %s", job.HandlerName))
		return err
	}

	q.notifySubscribers(snap)
	return nil
}

// GetJob returns a status snapshot of a job
func (q *Queue) GetJob(id string) (*Job, error) {
	return q.store.Get(id, false)
}

// GetJobWithResults returns a snapshot that includes the results so far
func (q *Queue) GetJobWithResults(id string) (*Job, error) {
	return q.store.Get(id, true)
}

// Update applies fn to the live job and notifies subscribers
func (q *Queue) Update(id string, fn func(*Job) error) (*Job, error) {
	snap, err := q.store.Update(id, fn)
	if err != nil {
		return nil, err
	}
	q.notifySubscribers(snap)
	return snap, nil
}

// CompleteJob marks a job as completed. A terminal job keeps its status.
func (q *Queue) CompleteJob(id string) error {
	_, err := q.Update(id, func(j *Job) error {
		if j.Status.Terminal() {
			return nil
		}
		j.Complete()
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "failed to complete job %s", id)
	}
	return nil
}

// FailJob marks a job as failed with an error. A terminal job keeps its
// status.
func (q *Queue) FailJob(id string, jobErr error) error {
	_, err := q.Update(id, func(j *Job) error {
		if j.Status.Terminal() {
			return nil
		}
		j.Fail(jobErr)
		return nil
	})
	if err != nil {
		err = errors.Wrapf(err, "failed to mark job %s as failed", id)
		return errors.WithDetail(err, fmt.Sprintf("Job error: %s", jobErr.Error()))
	}
	return nil
}

// ListJobs returns status snapshots, newest first, optionally filtered by
// status. limit <= 0 returns all.
func (q *Queue) ListJobs(status *JobStatus, limit int) []*Job {
	var out []*Job
	for _, job := range q.store.List() {
		if status != nil && job.Status != *status {
			continue
		}
		out = append(out, job)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Subscribe returns a channel that receives job snapshots after every
// change. The caller is responsible for calling Unsubscribe when done.
func (q *Queue) Subscribe() chan *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch := make(chan *Job, SubscriberChannelBufferSize)
	q.subscribers = append(q.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber channel from the queue.
// The channel is NOT closed by this method - callers should close it themselves
// after unsubscribing if needed. This prevents double-close panics.
func (q *Queue) Unsubscribe(ch chan *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, sub := range q.subscribers {
		if sub == ch {
			q.subscribers = append(q.subscribers[:i], q.subscribers[i+1:]...)
			return
		}
	}
}

// notifySubscribers sends a snapshot to every subscriber without blocking.
// A full subscriber misses the update.
func (q *Queue) notifySubscribers(job *Job) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for _, ch := range q.subscribers {
		select {
		case ch <- job:
		default:
		}
	}
}

// Sweep runs the store's eviction policy
func (q *Queue) Sweep(now time.Time) []string {
	return q.store.Sweep(now)
}

// QueueStats returns statistics about the queue
type QueueStats struct {
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}

// GetStats counts retained jobs by status
func (q *Queue) GetStats() QueueStats {
	var stats QueueStats
	for _, job := range q.store.List() {
		switch job.Status {
		case JobStatusRunning:
			stats.Running++
		case JobStatusCompleted:
			stats.Completed++
		case JobStatusFailed:
			stats.Failed++
		}
		stats.Total++
	}
	return stats
}
