package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (r *recordingEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.tasks = append(r.tasks, task)
	r.opts = append(r.opts, opts)
	return &asynq.TaskInfo{ID: "job:1", Queue: "default"}, nil
}

func TestNewScanConfigTask(t *testing.T) {
	task, err := NewScanConfigTask(7)
	require.NoError(t, err)
	assert.Equal(t, TypeScanConfig, task.Type())

	var p ScanConfigTaskPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	assert.Equal(t, int64(7), p.ConfigID)
}

func TestDispatchJob(t *testing.T) {
	enq := &recordingEnqueuer{}
	d := NewDispatcher(enq)

	require.NoError(t, d.DispatchJob(context.Background(), 1))
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, TypeProcessJob, enq.tasks[0].Type())

	var p ProcessJobTaskPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &p))
	assert.Equal(t, int64(1), p.JobID)

	var types []asynq.OptionType
	for _, o := range enq.opts[0] {
		types = append(types, o.Type())
	}
	assert.Contains(t, types, asynq.TaskIDOpt)
	assert.Contains(t, types, asynq.MaxRetryOpt)
	for _, o := range enq.opts[0] {
		if o.Type() == asynq.TaskIDOpt {
			assert.Equal(t, "job:1", o.Value())
		}
	}
}

func TestDispatchJobAlreadyQueued(t *testing.T) {
	d := NewDispatcher(&recordingEnqueuer{err: asynq.ErrTaskIDConflict})
	assert.NoError(t, d.DispatchJob(context.Background(), 1))
}

func TestDispatchJobFailure(t *testing.T) {
	d := NewDispatcher(&recordingEnqueuer{err: errors.New("redis down")})
	err := d.DispatchJob(context.Background(), 1)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
}
