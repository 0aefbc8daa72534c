package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/capitalize-ai/operator-console/internal/backend"
	"github.com/capitalize-ai/operator-console/internal/model"
	"github.com/capitalize-ai/operator-console/pkg/logger"
)

// DefaultTaskInterval is how often bulk task progress is refreshed.
const DefaultTaskInterval = 3 * time.Second

// TaskSource is the part of the backend task progress reads.
type TaskSource interface {
	GetTask(ctx context.Context, id string) (model.Task, error)
	CountConversations(ctx context.Context, filter backend.CountFilter) (int, error)
}

// TaskProgress polls a bulk task until it reaches a terminal status.
type TaskProgress struct {
	*Poller
	source   TaskSource
	taskID   string
	onUpdate func(model.TaskProgress)

	mu     sync.Mutex
	latest model.TaskProgress
	seen   bool
}

// NewTaskProgress creates a progress poller for taskID. onUpdate, if set, is
// called with every fresh snapshot.
func NewTaskProgress(src TaskSource, taskID string, interval time.Duration, onUpdate func(model.TaskProgress), log *logger.Logger) *TaskProgress {
	if interval <= 0 {
		interval = DefaultTaskInterval
	}
	t := &TaskProgress{source: src, taskID: taskID, onUpdate: onUpdate}
	t.Poller = New("task_progress", interval, t.poll, log)
	return t
}

// Latest returns the most recent snapshot and whether one exists yet.
func (t *TaskProgress) Latest() (model.TaskProgress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest, t.seen
}

func (t *TaskProgress) poll(ctx context.Context) error {
	task, err := t.source.GetTask(ctx, t.taskID)
	if err != nil {
		return fmt.Errorf("failed to get task %s: %w", t.taskID, err)
	}
	// Conversations opened by the task are the numbers that received it.
	count, err := t.source.CountConversations(ctx, backend.CountFilter{TaskID: t.taskID})
	if err != nil {
		return fmt.Errorf("failed to count task conversations: %w", err)
	}

	progress := model.NewTaskProgress(task, count)
	t.mu.Lock()
	t.latest, t.seen = progress, true
	t.mu.Unlock()
	if t.onUpdate != nil {
		t.onUpdate(progress)
	}

	if task.Status.Terminal() {
		return ErrStop
	}
	return nil
}
