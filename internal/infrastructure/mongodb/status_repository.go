package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shipstream-platform/batch-shipping-service/internal/domain"
	"github.com/shipstream-platform/batch-shipping-service/pkg/mongodb"
)

const (
	statusCollection = "run_status"
	statusDocumentID = "current"
)

// StatusRepository persists the single poller-facing status document.
// One fixed-id document exists; every write replaces it wholesale.
type StatusRepository struct {
	client *mongodb.Client
}

// NewStatusRepository builds the status repository
func NewStatusRepository(client *mongodb.Client) *StatusRepository {
	return &StatusRepository{client: client}
}

func (r *StatusRepository) collection() *mongo.Collection {
	return r.client.Collection(statusCollection)
}

type statusDocument struct {
	ID               string `bson:"_id"`
	domain.RunStatus `bson:",inline"`
}

// Write replaces the current status record
func (r *StatusRepository) Write(ctx context.Context, status domain.RunStatus) error {
	doc := statusDocument{ID: statusDocumentID, RunStatus: status}
	opts := options.Replace().SetUpsert(true)
	if _, err := r.collection().ReplaceOne(ctx, bson.M{"_id": statusDocumentID}, doc, opts); err != nil {
		return fmt.Errorf("write run status: %w", err)
	}
	return nil
}

// Read returns the current status, or the idle status if none was ever
// written.
func (r *StatusRepository) Read(ctx context.Context) (domain.RunStatus, error) {
	var doc statusDocument
	err := r.collection().FindOne(ctx, bson.M{"_id": statusDocumentID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return domain.IdleStatus(time.Now()), nil
	}
	if err != nil {
		return domain.RunStatus{}, fmt.Errorf("read run status: %w", err)
	}
	return doc.RunStatus, nil
}
