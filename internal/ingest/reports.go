package ingest

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Report is the persisted outcome of one bulk ingestion task.
type Report struct {
	TaskID    string       `bson:"task_id" json:"task_id"`
	UserID    string       `bson:"user_id" json:"user_id"`
	Files     []FileResult `bson:"files" json:"files"`
	Summary   string       `bson:"summary" json:"summary"`
	CreatedAt time.Time    `bson:"created_at" json:"created_at"`
}

// ReportStore keeps task reports in MongoDB.
type ReportStore struct {
	coll *mongo.Collection
}

func NewReportStore(client *mongo.Client, database, collection string) *ReportStore {
	return &ReportStore{coll: client.Database(database).Collection(collection)}
}

// Save upserts the report under its task ID so a re-consumed task
// overwrites its previous report instead of duplicating it.
func (s *ReportStore) Save(ctx context.Context, r *Report) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"task_id": r.TaskID},
		bson.M{"$set": r},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save report for task %s: %w", r.TaskID, err)
	}
	return nil
}

// Get loads one report by task ID.
func (s *ReportStore) Get(ctx context.Context, taskID string) (*Report, error) {
	var r Report
	err := s.coll.FindOne(ctx, bson.M{"task_id": taskID}).Decode(&r)
	if err != nil {
		return nil, fmt.Errorf("load report for task %s: %w", taskID, err)
	}
	return &r, nil
}
