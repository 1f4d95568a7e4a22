package tasks

import "time"

// Kind identifies which background operation a task runs. The set is closed:
// every kind maps to exactly one step constructor in this package.
type Kind string

const (
	KindBucketDelete  Kind = "bucket-delete"
	KindPrefixDelete  Kind = "prefix-delete"
	KindBulkDelete    Kind = "bulk-delete"
	KindCalculateSize Kind = "calculate-size"
)

// Status is the lifecycle state of a task.
// pending -> running -> completed | failed | cancelled
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is absorbing.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// TaskError carries the failure reported for a failed task.
type TaskError struct {
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Task is one unit of asynchronous, trackable work.
//
// Result is populated only on completed tasks, Error only on failed ones.
// Metadata is captured at creation and read-only afterwards.
type Task struct {
	ID              string                 `json:"task_id"`
	Kind            Kind                   `json:"kind"`
	Status          Status                 `json:"status"`
	Progress        int                    `json:"progress"`
	CurrentStep     string                 `json:"current_step,omitempty"`
	Metadata        map[string]interface{} `json:"metadata"`
	Result          map[string]interface{} `json:"result,omitempty"`
	Error           *TaskError             `json:"error,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
	CancelRequested bool                   `json:"-"`
}
