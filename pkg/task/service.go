package task

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
)

type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type enqueuerImpl struct {
	client *asynq.Client
}

// NewEnqueuer creates a new Enqueuer instance using asynq.Client.
func NewEnqueuer(client *asynq.Client) Enqueuer {
	return &enqueuerImpl{client: client}
}

func (e *enqueuerImpl) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	info, err := e.client.EnqueueContext(context.Background(), task, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task %s: %w", task.Type(), err)
	}
	return info, nil
}

// FakeEnqueuer records tasks instead of sending them. It is safe for tests
// only; it is not synchronized.
type FakeEnqueuer struct {
	Tasks []*asynq.Task
	Err   error
}

func (f *FakeEnqueuer) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.Tasks = append(f.Tasks, task)
	return &asynq.TaskInfo{ID: fmt.Sprintf("task-%d", len(f.Tasks)), Type: task.Type()}, nil
}
