package async

import (
	"sort"
	"time"
)

// EvictionPolicy chooses which jobs a registry should forget. Candidates are
// snapshots ordered oldest first; running jobs are never offered.
type EvictionPolicy interface {
	Evict(terminal []*Job, retained int, now time.Time) []string
}

// NoEviction keeps every job for the life of the process
type NoEviction struct{}

// Evict implements EvictionPolicy
func (NoEviction) Evict([]*Job, int, time.Time) []string { return nil }

// TTLPolicy forgets terminal jobs that finished more than TTL ago
type TTLPolicy struct {
	TTL time.Duration
}

// Evict implements EvictionPolicy
func (p TTLPolicy) Evict(terminal []*Job, _ int, now time.Time) []string {
	if p.TTL <= 0 {
		return nil
	}
	var ids []string
	for _, job := range terminal {
		finished := job.UpdatedAt
		if job.CompletedAt != nil {
			finished = *job.CompletedAt
		}
		if now.Sub(finished) > p.TTL {
			ids = append(ids, job.ID)
		}
	}
	return ids
}

// CapacityPolicy bounds the number of retained jobs by forgetting the
// oldest terminal jobs first. Running jobs count toward the bound but are
// kept, so the registry may exceed Max while many jobs are in flight.
type CapacityPolicy struct {
	Max int
}

// Evict implements EvictionPolicy
func (p CapacityPolicy) Evict(terminal []*Job, retained int, _ time.Time) []string {
	if p.Max <= 0 || retained <= p.Max {
		return nil
	}
	excess := min(retained-p.Max, len(terminal))
	ids := make([]string, 0, excess)
	for _, job := range terminal[:excess] {
		ids = append(ids, job.ID)
	}
	return ids
}

// Chain applies policies in order; each sees what the previous ones left
func Chain(policies ...EvictionPolicy) EvictionPolicy {
	return chain(policies)
}

type chain []EvictionPolicy

func (c chain) Evict(terminal []*Job, retained int, now time.Time) []string {
	var evicted []string
	remaining := terminal
	for _, p := range c {
		ids := p.Evict(remaining, retained, now)
		if len(ids) == 0 {
			continue
		}
		gone := make(map[string]bool, len(ids))
		for _, id := range ids {
			gone[id] = true
		}
		kept := remaining[:0:0]
		for _, job := range remaining {
			if !gone[job.ID] {
				kept = append(kept, job)
			}
		}
		evicted = append(evicted, ids...)
		retained -= len(remaining) - len(kept)
		remaining = kept
	}
	return evicted
}

// PolicyFromConfig builds the policy for a TTL and a capacity, either of
// which may be zero to disable it.
func PolicyFromConfig(ttl time.Duration, capacity int) EvictionPolicy {
	var policies []EvictionPolicy
	if ttl > 0 {
		policies = append(policies, TTLPolicy{TTL: ttl})
	}
	if capacity > 0 {
		policies = append(policies, CapacityPolicy{Max: capacity})
	}
	switch len(policies) {
	case 0:
		return NoEviction{}
	case 1:
		return policies[0]
	}
	return Chain(policies...)
}

func oldestFirst(jobs []*Job) {
	sort.SliceStable(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.Before(jobs[k].CreatedAt)
	})
}
