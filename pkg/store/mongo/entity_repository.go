package mongo

import (
	"context"
	"fmt"

	"github.com/Sternrassler/yelp-ingest/pkg/entity"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EntityRepository upserts business documents keyed by hash_id.
type EntityRepository struct {
	collection *mongo.Collection
}

// NewEntityRepository creates a new Mongo-backed entity repository.
func NewEntityRepository(db *mongo.Database, collectionName string) *EntityRepository {
	if collectionName == "" {
		collectionName = DefaultEntityCollection
	}
	return &EntityRepository{collection: db.Collection(collectionName)}
}

// EnsureIndexes creates the unique hash_id index.
func (r *EntityRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "hash_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("hash_id_unique"),
	})
	if err != nil {
		return fmt.Errorf("create hash_id index: %w", err)
	}
	return nil
}

// UpsertBusinesses replaces or inserts every business in one unordered bulk
// write and returns the number of documents submitted.
func (r *EntityRepository) UpsertBusinesses(ctx context.Context, businesses []entity.Business) (int, error) {
	if len(businesses) == 0 {
		return 0, nil
	}

	models := upsertModels(businesses)
	if _, err := r.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return 0, fmt.Errorf("bulk upsert %d businesses: %w", len(models), err)
	}
	return len(models), nil
}

func upsertModels(businesses []entity.Business) []mongo.WriteModel {
	models := make([]mongo.WriteModel, 0, len(businesses))
	for _, b := range businesses {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"hash_id": b.HashID}).
			SetReplacement(b).
			SetUpsert(true))
	}
	return models
}
