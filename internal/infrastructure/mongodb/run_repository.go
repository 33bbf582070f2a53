package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shipstream-platform/batch-shipping-service/internal/domain"
	"github.com/shipstream-platform/batch-shipping-service/pkg/mongodb"
)

const runCollection = "batch_runs"

// RunRepository stores completed batch runs in MongoDB, newest first,
// trimmed to the retention bound on every append.
type RunRepository struct {
	client *mongodb.Client
}

// NewRunRepository builds the repository and ensures its indexes
func NewRunRepository(ctx context.Context, client *mongodb.Client) (*RunRepository, error) {
	r := &RunRepository{client: client}
	if err := r.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RunRepository) ensureIndexes(ctx context.Context) error {
	_, err := r.collection().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "runId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "startedAt", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("create batch_runs indexes: %w", err)
	}
	return nil
}

func (r *RunRepository) collection() *mongo.Collection {
	return r.client.Collection(runCollection)
}

// Append stores a finished run and evicts the oldest entries beyond the
// retention bound. Insert and trim run in one transaction so readers never
// observe more than the retained count.
func (r *RunRepository) Append(ctx context.Context, run *domain.BatchRun) error {
	return r.client.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if _, err := r.collection().InsertOne(sessCtx, run); err != nil {
			return fmt.Errorf("insert batch run %s: %w", run.RunID, err)
		}

		count, err := r.collection().CountDocuments(sessCtx, bson.D{})
		if err != nil {
			return fmt.Errorf("count batch runs: %w", err)
		}
		excess := count - int64(domain.RunHistoryRetention)
		if excess <= 0 {
			return nil
		}

		// oldest first, fetch the ids to evict
		opts := options.Find().
			SetSort(bson.D{{Key: "startedAt", Value: 1}}).
			SetLimit(excess).
			SetProjection(bson.D{{Key: "runId", Value: 1}})
		cursor, err := r.collection().Find(sessCtx, bson.D{}, opts)
		if err != nil {
			return fmt.Errorf("find runs to evict: %w", err)
		}
		var stale []struct {
			RunID string `bson:"runId"`
		}
		if err := cursor.All(sessCtx, &stale); err != nil {
			return fmt.Errorf("decode runs to evict: %w", err)
		}
		ids := make([]string, len(stale))
		for i, s := range stale {
			ids[i] = s.RunID
		}

		if _, err := r.collection().DeleteMany(sessCtx, bson.M{"runId": bson.M{"$in": ids}}); err != nil {
			return fmt.Errorf("evict stale runs: %w", err)
		}
		return nil
	})
}

// List returns stored runs newest-first, up to limit (0 means all retained)
func (r *RunRepository) List(ctx context.Context, limit int) ([]*domain.BatchRun, error) {
	opts := options.Find().SetSort(bson.D{{Key: "startedAt", Value: -1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection().Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list batch runs: %w", err)
	}
	defer cursor.Close(ctx)

	var runs []*domain.BatchRun
	if err := cursor.All(ctx, &runs); err != nil {
		return nil, fmt.Errorf("decode batch runs: %w", err)
	}
	return runs, nil
}
