package tasks

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
)

// TaskEnqueuer is the part of asynq.Client the dispatcher needs.
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher hands conversion jobs to the worker queue.
type Dispatcher struct {
	client TaskEnqueuer
}

func NewDispatcher(client TaskEnqueuer) *Dispatcher {
	return &Dispatcher{client: client}
}

// DispatchJob enqueues the job without waiting for it to run. A job that is
// already queued is not enqueued twice.
func (d *Dispatcher) DispatchJob(ctx context.Context, jobID int64) error {
	task, err := NewProcessJobTask(jobID)
	if err != nil {
		return fmt.Errorf("failed to create process job task: %w", err)
	}
	info, err := d.client.Enqueue(task, asynq.TaskID(ProcessJobTaskID(jobID)), asynq.MaxRetry(0))
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		log.Printf("Job %d is already queued", jobID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue job %d: %w", jobID, err)
	}
	log.Printf("Enqueued job %d as task %s", jobID, info.ID)
	return nil
}
