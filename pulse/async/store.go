package async

import (
	"fmt"
	"sync"
	"time"

	"github.com/teranos/PTX/errors"
)

// Store keeps jobs by id. Implementations must be safe for concurrent use.
type Store interface {
	// Create registers a new job
	Create(job *Job) error
	// Get returns a snapshot of the job, with results when withResults is set
	Get(id string, withResults bool) (*Job, error)
	// Update runs fn on the live job under the store's lock and returns a
	// snapshot of the result
	Update(id string, fn func(*Job) error) (*Job, error)
	// List returns status snapshots, newest first
	List() []*Job
	// Delete forgets a job
	Delete(id string)
	// Sweep applies the eviction policy and returns the evicted ids
	Sweep(now time.Time) []string
}

// MemoryStore is a Store backed by a map. Each job has its own lock so a
// busy job never blocks readers of another.
type MemoryStore struct {
	policy EvictionPolicy

	mu   sync.RWMutex
	jobs map[string]*entry
}

type entry struct {
	mu  sync.RWMutex
	job *Job
}

// NewMemoryStore creates a store that evicts according to policy (nil keeps
// everything).
func NewMemoryStore(policy EvictionPolicy) *MemoryStore {
	if policy == nil {
		policy = NoEviction{}
	}
	return &MemoryStore{policy: policy, jobs: make(map[string]*entry)}
}

// Create registers a job and then enforces the eviction policy
func (s *MemoryStore) Create(job *Job) error {
	s.mu.Lock()
	if _, exists := s.jobs[job.ID]; exists {
		s.mu.Unlock()
		return errors.Newf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = &entry{job: job}
	s.mu.Unlock()

	s.Sweep(time.Now())
	return nil
}

// Get returns a snapshot of a job
func (s *MemoryStore) Get(id string, withResults bool) (*Job, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.job.Snapshot(withResults), nil
}

// Update applies fn to the live job. Returning an error from fn leaves the
// job as fn left it.
func (s *MemoryStore) Update(id string, fn func(*Job) error) (*Job, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := fn(e.job); err != nil {
		return nil, err
	}
	return e.job.Snapshot(false), nil
}

// List returns status snapshots of every job, newest first
func (s *MemoryStore) List() []*Job {
	jobs := s.snapshots()
	for i, k := 0, len(jobs)-1; i < k; i, k = i+1, k-1 {
		jobs[i], jobs[k] = jobs[k], jobs[i]
	}
	return jobs
}

// Delete forgets a job. Deleting an unknown id is a no-op.
func (s *MemoryStore) Delete(id string) {
	s.mu.Lock()
	delete(s.jobs, id)
	s.mu.Unlock()
}

// Sweep offers terminal jobs to the policy and deletes what it picks
func (s *MemoryStore) Sweep(now time.Time) []string {
	all := s.snapshots()
	terminal := make([]*Job, 0, len(all))
	for _, job := range all {
		if job.Status.Terminal() {
			terminal = append(terminal, job)
		}
	}

	ids := s.policy.Evict(terminal, len(all), now)
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	for _, id := range ids {
		delete(s.jobs, id)
	}
	s.mu.Unlock()
	return ids
}

// Len returns the number of retained jobs
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func (s *MemoryStore) entry(id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		err := errors.Mark(errors.Newf("job %s not found", id), errors.ErrJobNotFound)
		return nil, errors.WithDetail(err, fmt.Sprintf("Job ID: %s", id))
	}
	return e, nil
}

// snapshots returns status snapshots ordered oldest first
func (s *MemoryStore) snapshots() []*Job {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.jobs))
	for _, e := range s.jobs {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	jobs := make([]*Job, 0, len(entries))
	for _, e := range entries {
		e.mu.RLock()
		jobs = append(jobs, e.job.Snapshot(false))
		e.mu.RUnlock()
	}
	oldestFirst(jobs)
	return jobs
}
