// Package jobs defines the background tasks processed by the worker.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSagaSweep is the periodic scan for stalled invite/activation
	// sequences.
	TaskSagaSweep = "saga:sweep"
)

// SagaSweepPayload configures one sweep run.
type SagaSweepPayload struct {
	// StallAfterMinutes is how long a sequence may sit in an intermediate
	// state before the sweep flags it.
	StallAfterMinutes int `json:"stall_after_minutes"`
}

// NewSagaSweepTask constructs an Asynq task.
func NewSagaSweepTask(payload SagaSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSagaSweep, data), nil
}
