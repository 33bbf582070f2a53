package application

import (
	"context"
	"time"

	"github.com/shipstream-platform/batch-shipping-service/internal/domain"
)

// UpstreamGateway is the outbound port to the courier aggregator API
type UpstreamGateway interface {
	Authenticate(ctx context.Context) error
	FetchNewOrders(ctx context.Context, from, to time.Time) ([]*domain.Order, error)
	AssignAWB(ctx context.Context, shipmentID int64) (domain.AWBAssignment, error)
	CancelOrder(ctx context.Context, orderID int64) error
	GenerateLabel(ctx context.Context, shipmentIDs []int64) (string, error)
	SchedulePickup(ctx context.Context, shipmentID int64) error
	GenerateManifest(ctx context.Context, shipmentIDs []int64) (string, error)
	Download(ctx context.Context, fileURL string) ([]byte, error)
}

// LabelSorter splits a combined label document into per-bucket files
type LabelSorter interface {
	Sort(srcPath, outDir string) (domain.LabelSummary, error)
}

// CancelledExporter writes an audit record of cancelled duplicate orders
type CancelledExporter interface {
	ExportCancelled(orders []*domain.Order, now time.Time) (string, error)
}

// EventPublisher emits batch run lifecycle events
type EventPublisher interface {
	Publish(ctx context.Context, subject string, event domain.DomainEvent) error
}
