package task

import (
	"time"

	"gorm.io/datatypes"
)

type JobStatus string

const (
	JobRunning JobStatus = "running"
	JobSuccess JobStatus = "success"
	JobFailed  JobStatus = "failed"
	JobSkipped JobStatus = "skipped"
)

// Task is the registry row of a scheduled job. Setting IsActive to false
// pauses it without a redeploy.
type Task struct {
	ID          string    `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	Name        string    `gorm:"column:name;uniqueIndex;type:varchar(100);not null" json:"name"`
	Description string    `gorm:"column:description;type:text" json:"description"`
	Schedule    string    `gorm:"column:schedule;type:varchar(50)" json:"schedule"` // cron format
	IsActive    bool      `gorm:"column:is_active;not null" json:"is_active"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Task) TableName() string { return "scheduled_tasks" }

// Job is the execution record of one run of a task.
type Job struct {
	ID             string         `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	TaskName       string         `gorm:"column:task_name;index;type:varchar(100);not null" json:"task_name"`
	Status         JobStatus      `gorm:"column:status;type:varchar(20);not null" json:"status"`
	ItemsProcessed int            `gorm:"column:items_processed;not null;default:0" json:"items_processed"`
	ItemsSucceeded int            `gorm:"column:items_succeeded;not null;default:0" json:"items_succeeded"`
	ItemsFailed    int            `gorm:"column:items_failed;not null;default:0" json:"items_failed"`
	DurationMs     int64          `gorm:"column:duration_ms;not null;default:0" json:"duration_ms"`
	ErrorMsg       string         `gorm:"column:error_msg;type:text" json:"error_msg,omitempty"`
	StartedAt      time.Time      `gorm:"column:started_at" json:"started_at"`
	CompletedAt    *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	Metadata       datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
}

func (Job) TableName() string { return "job_executions" }

func Models() []any {
	return []any{&Task{}, &Job{}}
}

// Result is what a job body reports back to the execution log.
type Result struct {
	Processed int
	Succeeded int
	Failed    int
	Metadata  map[string]any
}
