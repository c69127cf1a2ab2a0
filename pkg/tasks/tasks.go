package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	TypeScanConfig = "config:scan"
	TypeProcessJob = "job:process"
)

type ScanConfigTaskPayload struct {
	ConfigID int64
}

func NewScanConfigTask(configID int64) (*asynq.Task, error) {
	payload, err := json.Marshal(ScanConfigTaskPayload{ConfigID: configID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeScanConfig, payload), nil
}

type ProcessJobTaskPayload struct {
	JobID int64
}

func NewProcessJobTask(jobID int64) (*asynq.Task, error) {
	payload, err := json.Marshal(ProcessJobTaskPayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeProcessJob, payload), nil
}

// ProcessJobTaskID is the asynq task id of a job, so a job can be in the
// queue at most once.
func ProcessJobTaskID(jobID int64) string {
	return fmt.Sprintf("job:%d", jobID)
}
