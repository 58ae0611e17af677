package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/yelp-ingest/pkg/checkpoint"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CheckpointRepository implements checkpoint.Store using MongoDB.
type CheckpointRepository struct {
	collection *mongo.Collection
}

// NewCheckpointRepository creates a new Mongo-backed checkpoint repository.
func NewCheckpointRepository(db *mongo.Database, collectionName string) *CheckpointRepository {
	if collectionName == "" {
		collectionName = DefaultCheckpointCollection
	}
	return &CheckpointRepository{collection: db.Collection(collectionName)}
}

// EnsureIndexes creates the index used to find the latest checkpoint of an op.
func (r *CheckpointRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "op", Value: 1}, {Key: "date", Value: -1}},
		Options: options.Index().SetName("op_date"),
	})
	if err != nil {
		return fmt.Errorf("create op/date index: %w", err)
	}
	return nil
}

// Last returns the most recent checkpoint of op, or an empty checkpoint.
func (r *CheckpointRepository) Last(ctx context.Context, op string) (checkpoint.Checkpoint, error) {
	var cp checkpoint.Checkpoint
	opts := options.FindOne().SetSort(bson.D{{Key: "date", Value: -1}})
	err := r.collection.FindOne(ctx, bson.M{"op": op}, opts).Decode(&cp)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return checkpoint.Checkpoint{}, nil
	}
	if err != nil {
		return checkpoint.Checkpoint{}, fmt.Errorf("find last checkpoint: %w", err)
	}
	return cp, nil
}

// Save appends cp.
func (r *CheckpointRepository) Save(ctx context.Context, cp checkpoint.Checkpoint) error {
	if _, err := r.collection.InsertOne(ctx, cp); err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return nil
}

var _ checkpoint.Store = (*CheckpointRepository)(nil)
