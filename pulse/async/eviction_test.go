package async

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func terminalJob(id string, created time.Time, finished time.Time) *Job {
	return &Job{ID: id, Status: JobStatusCompleted, CreatedAt: created, UpdatedAt: finished, CompletedAt: &finished}
}

func TestTTLPolicy(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	jobs := []*Job{
		terminalJob("old", now.Add(-2*time.Hour), now.Add(-90*time.Minute)),
		terminalJob("fresh", now.Add(-time.Hour), now.Add(-5*time.Minute)),
	}

	assert.Equal(t, []string{"old"}, TTLPolicy{TTL: time.Hour}.Evict(jobs, 2, now))
	assert.Empty(t, TTLPolicy{}.Evict(jobs, 2, now))
}

func TestCapacityPolicy(t *testing.T) {
	now := time.Now()
	jobs := []*Job{
		terminalJob("a", now.Add(-3*time.Minute), now),
		terminalJob("b", now.Add(-2*time.Minute), now),
		terminalJob("c", now.Add(-time.Minute), now),
	}

	assert.Equal(t, []string{"a", "b"}, CapacityPolicy{Max: 2}.Evict(jobs, 4, now))
	assert.Empty(t, CapacityPolicy{Max: 5}.Evict(jobs, 4, now))
	// retained counts running jobs, which are never candidates
	assert.Equal(t, []string{"a", "b", "c"}, CapacityPolicy{Max: 1}.Evict(jobs, 10, now))
}

func TestChain(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	jobs := []*Job{
		terminalJob("expired", now.Add(-3*time.Hour), now.Add(-2*time.Hour)),
		terminalJob("b", now.Add(-2*time.Minute), now),
		terminalJob("c", now.Add(-time.Minute), now),
	}

	policy := Chain(TTLPolicy{TTL: time.Hour}, CapacityPolicy{Max: 1})
	assert.Equal(t, []string{"expired", "b"}, policy.Evict(jobs, 3, now))
}

func TestPolicyFromConfig(t *testing.T) {
	assert.Equal(t, NoEviction{}, PolicyFromConfig(0, 0))
	assert.Equal(t, TTLPolicy{TTL: time.Minute}, PolicyFromConfig(time.Minute, 0))
	assert.Equal(t, CapacityPolicy{Max: 3}, PolicyFromConfig(0, 3))
	assert.IsType(t, chain{}, PolicyFromConfig(time.Minute, 3))
}
