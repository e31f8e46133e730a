package async

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/PTX/errors"
)

func TestNewJobWithPayload(t *testing.T) {
	job, err := NewJobWithPayload("llm.batch", []byte(`{}`), 3)
	require.NoError(t, err)

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, JobStatusRunning, job.Status)
	assert.Equal(t, Progress{Current: 0, Total: 3}, job.Progress)
	assert.Nil(t, job.CompletedAt)

	_, err = NewJobWithPayload("", nil, 0)
	assert.Error(t, err)
}

func TestJob_RecordKeepsProgressInStep(t *testing.T) {
	job, err := NewJobWithPayload("llm.batch", nil, 3)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		job.Record(i)
		assert.Equal(t, len(job.Results), job.Progress.Current)
	}
	assert.Equal(t, 100.0, job.Progress.Percentage())
}

func TestJob_TerminalTransitions(t *testing.T) {
	job, _ := NewJobWithPayload("llm.batch", nil, 0)
	job.Fail(errors.New("no record binding"))

	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "no record binding", job.Error)
	assert.NotNil(t, job.CompletedAt)
	assert.True(t, job.Status.Terminal())
	assert.False(t, JobStatusRunning.Terminal())
}

func TestJob_SnapshotIsIndependent(t *testing.T) {
	job, _ := NewJobWithPayload("llm.batch", nil, 2)
	job.Record("a")

	status := job.Snapshot(false)
	full := job.Snapshot(true)
	job.Record("b")

	assert.Nil(t, status.Results)
	assert.Equal(t, 1, status.Progress.Current)
	assert.Equal(t, []any{"a"}, full.Results)
}

func TestIsValidStatus(t *testing.T) {
	assert.True(t, IsValidStatus("running"))
	assert.True(t, IsValidStatus("completed"))
	assert.False(t, IsValidStatus("paused"))
}

func TestProgressPercentageEmpty(t *testing.T) {
	assert.Equal(t, 0.0, Progress{}.Percentage())
}
