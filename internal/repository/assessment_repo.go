package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"symptomcheck/internal/model"
)

// AssessmentRepo handles MongoDB operations for finished assessments
type AssessmentRepo interface {
	Save(ctx context.Context, record *model.AssessmentRecord) error
	GetByID(ctx context.Context, id string) (*model.AssessmentRecord, error)
	EnsureIndexes(ctx context.Context) error
}

type assessmentRepo struct {
	collection *mongo.Collection
}

// NewAssessmentRepo creates a new assessment repository
func NewAssessmentRepo(db *mongo.Database) AssessmentRepo {
	return &assessmentRepo{
		collection: db.Collection("assessments"),
	}
}

// Save upserts by id so a retried persist task is idempotent
func (r *assessmentRepo) Save(ctx context.Context, record *model.AssessmentRecord) error {
	opts := options.Replace().SetUpsert(true)
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": record.ID}, record, opts)
	return err
}

func (r *assessmentRepo) GetByID(ctx context.Context, id string) (*model.AssessmentRecord, error) {
	var record model.AssessmentRecord
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *assessmentRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "outcome", Value: 1}, {Key: "finishedAt", Value: -1}}},
		{Keys: bson.D{{Key: "finishedAt", Value: -1}}},
	})
	return err
}
