package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"pod2tube/internal/models"
	"pod2tube/pkg/tasks"
)

// ScanRunner runs a discovery scan of one configuration.
type ScanRunner interface {
	RunScan(ctx context.Context, configID int64) (int, error)
}

// JobRunner runs the conversion pipeline of one job.
type JobRunner interface {
	Run(ctx context.Context, jobID int64) (*models.ConversionJob, error)
}

type TaskHandler struct {
	scanner ScanRunner
	runner  JobRunner
}

func NewTaskHandler(scanner ScanRunner, runner JobRunner) *TaskHandler {
	return &TaskHandler{scanner: scanner, runner: runner}
}

// HandleScanConfigTask runs a scheduled scan. Scans are not retried; the
// next tick is the retry.
func (h *TaskHandler) HandleScanConfigTask(ctx context.Context, t *asynq.Task) error {
	var p tasks.ScanConfigTaskPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	log.Printf("Scanning configuration: %d", p.ConfigID)
	n, err := h.scanner.RunScan(ctx, p.ConfigID)
	if err != nil {
		return fmt.Errorf("scan of configuration %d failed: %v: %w", p.ConfigID, err, asynq.SkipRetry)
	}
	log.Printf("Scan of configuration %d found %d new episodes", p.ConfigID, n)
	return nil
}

// HandleProcessJobTask runs the pipeline of a job. Failures of the pipeline
// itself are recorded on the job and do not fail the task.
func (h *TaskHandler) HandleProcessJobTask(ctx context.Context, t *asynq.Task) error {
	var p tasks.ProcessJobTaskPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	log.Printf("Processing job: %d", p.JobID)
	job, err := h.runner.Run(ctx, p.JobID)
	if err != nil {
		return fmt.Errorf("job %d: %v: %w", p.JobID, err, asynq.SkipRetry)
	}
	log.Printf("Job %d finished with status %s", job.ID, job.Status)
	return nil
}
