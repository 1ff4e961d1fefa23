package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Queue is the publishing side of the task queue.
type Queue interface {
	Publish(ctx context.Context, key, value []byte) error
}

// TaskPublisher enqueues bulk ingestion jobs for the worker binary.
type TaskPublisher struct {
	queue Queue
}

func NewTaskPublisher(queue Queue) *TaskPublisher {
	return &TaskPublisher{queue: queue}
}

// Enqueue assigns the task an ID when it has none and publishes it. The
// task ID doubles as the partition key and the report lookup key.
func (p *TaskPublisher) Enqueue(ctx context.Context, task *Task) (string, error) {
	if task.TaskID == "" {
		task.TaskID = uuid.NewString()
	}
	data, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("encode ingestion task: %w", err)
	}
	if err := p.queue.Publish(ctx, []byte(task.TaskID), data); err != nil {
		return "", fmt.Errorf("enqueue ingestion task %s: %w", task.TaskID, err)
	}
	return task.TaskID, nil
}
