package model

import "time"

// TaskStatus is the execution status of a bulk task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

// Terminal reports whether the task can no longer make progress.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// Task is a bulk templated-message task.
type Task struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      TaskStatus `json:"status"`
	UseTemplate bool       `json:"useTemplate"`
	TemplateID  string     `json:"templateId,omitempty"`
	Message     string     `json:"message,omitempty"`
	PhoneCount  int        `json:"phoneCount"`
	ReplyCount  int        `json:"replyCount"`
	RunAt       *time.Time `json:"runAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// TaskProgress is a snapshot of a task's delivery progress.
type TaskProgress struct {
	TaskID       string     `json:"task_id"`
	Status       TaskStatus `json:"status"`
	SuccessCount int        `json:"success_count"`
	PhoneCount   int        `json:"phone_count"`
	Percent      int        `json:"percent"`
}

// NewTaskProgress computes the rounded completion percentage.
func NewTaskProgress(task Task, successCount int) TaskProgress {
	p := TaskProgress{
		TaskID:       task.ID,
		Status:       task.Status,
		SuccessCount: successCount,
		PhoneCount:   task.PhoneCount,
	}
	if task.PhoneCount > 0 {
		p.Percent = int((float64(successCount)*100)/float64(task.PhoneCount) + 0.5)
	}
	return p
}
