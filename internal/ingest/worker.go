package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"

	"aide/internal/database/kafka"
	"aide/internal/models"
	"aide/pkg/logger"
)

// Task is one bulk ingestion job taken from the queue.
type Task struct {
	TaskID  string   `json:"taskId"`
	UserID  string   `json:"userId"`
	Bucket  string   `json:"bucket"`
	Objects []string `json:"objects"`
}

// Worker consumes ingestion tasks, pulls the referenced objects from
// object storage, runs the pipeline and writes a report per task.
type Worker struct {
	queue    *kafka.Client
	objects  *minio.Client
	pipeline *Pipeline
	reports  *ReportStore
	log      *logger.Logger
}

func NewWorker(queue *kafka.Client, objects *minio.Client, pipeline *Pipeline, reports *ReportStore) *Worker {
	return &Worker{
		queue:    queue,
		objects:  objects,
		pipeline: pipeline,
		reports:  reports,
		log:      logger.New("ingest-worker", "", ""),
	}
}

// Run consumes tasks until the context is cancelled. A malformed task is
// committed and dropped; a task that fails mid-way still produces a
// report with its per-file failures.
func (w *Worker) Run(ctx context.Context) error {
	for {
		msg, err := w.queue.Fetch(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("fetch ingestion task: %w", err)
		}

		var task Task
		if err := json.Unmarshal(msg.Value, &task); err != nil {
			w.log.WithError(err).Warn("dropping malformed ingestion task")
		} else {
			w.process(ctx, &task)
		}

		if err := w.queue.Commit(ctx, msg); err != nil {
			w.log.WithError(err).Warn("commit failed, task may be redelivered")
		}
	}
}

func (w *Worker) process(ctx context.Context, task *Task) {
	log := logger.New("ingest-worker", task.TaskID, task.UserID)
	log.WithField("objects", len(task.Objects)).Info("processing ingestion task")

	var files []File
	var fetchFailures []FileResult
	for _, name := range task.Objects {
		data, err := w.fetchObject(ctx, task.Bucket, name)
		if err != nil {
			log.WithError(err).WithField("object", name).Warn("object fetch failed")
			fetchFailures = append(fetchFailures, FileResult{
				Filename: name,
				Failure:  fmt.Sprintf("fetch from bucket %q: %v", task.Bucket, err),
			})
			continue
		}
		files = append(files, File{Name: name, Data: data})
	}

	result := w.pipeline.Ingest(ctx, task.UserID, models.SourceBulk, files, nil)

	report := &Report{
		TaskID:  task.TaskID,
		UserID:  task.UserID,
		Files:   append(fetchFailures, result.Files...),
		Summary: result.Summary,
	}
	if err := w.reports.Save(ctx, report); err != nil {
		log.WithError(err).Error("report write failed")
	}
}

func (w *Worker) fetchObject(ctx context.Context, bucket, name string) ([]byte, error) {
	obj, err := w.objects.GetObject(ctx, bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}
