package application

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/shipstream-platform/batch-shipping-service/internal/domain"
	apperrors "github.com/shipstream-platform/batch-shipping-service/pkg/errors"
	"github.com/shipstream-platform/batch-shipping-service/pkg/logging"
	"github.com/shipstream-platform/batch-shipping-service/pkg/metrics"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Authenticate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockGateway) FetchNewOrders(ctx context.Context, from, to time.Time) ([]*domain.Order, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Order), args.Error(1)
}

func (m *mockGateway) AssignAWB(ctx context.Context, shipmentID int64) (domain.AWBAssignment, error) {
	args := m.Called(ctx, shipmentID)
	return args.Get(0).(domain.AWBAssignment), args.Error(1)
}

func (m *mockGateway) CancelOrder(ctx context.Context, orderID int64) error {
	return m.Called(ctx, orderID).Error(0)
}

func (m *mockGateway) GenerateLabel(ctx context.Context, shipmentIDs []int64) (string, error) {
	args := m.Called(ctx, shipmentIDs)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) SchedulePickup(ctx context.Context, shipmentID int64) error {
	return m.Called(ctx, shipmentID).Error(0)
}

func (m *mockGateway) GenerateManifest(ctx context.Context, shipmentIDs []int64) (string, error) {
	args := m.Called(ctx, shipmentIDs)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) Download(ctx context.Context, fileURL string) ([]byte, error) {
	args := m.Called(ctx, fileURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type memoryRunRepo struct {
	mu   sync.Mutex
	runs []*domain.BatchRun
}

func (r *memoryRunRepo) Append(_ context.Context, run *domain.BatchRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append([]*domain.BatchRun{run}, r.runs...)
	if len(r.runs) > domain.RunHistoryRetention {
		r.runs = r.runs[:domain.RunHistoryRetention]
	}
	return nil
}

func (r *memoryRunRepo) List(_ context.Context, limit int) ([]*domain.BatchRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 || limit > len(r.runs) {
		limit = len(r.runs)
	}
	return r.runs[:limit], nil
}

type memoryStatusRepo struct {
	mu      sync.Mutex
	history []domain.RunStatus
}

func (r *memoryStatusRepo) Write(_ context.Context, status domain.RunStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, status)
	return nil
}

func (r *memoryStatusRepo) Read(_ context.Context) (domain.RunStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.history) == 0 {
		return domain.IdleStatus(time.Now()), nil
	}
	return r.history[len(r.history)-1], nil
}

type fakeSorter struct {
	summary domain.LabelSummary
	err     error
	called  bool
}

func (f *fakeSorter) Sort(src, outDir string) (domain.LabelSummary, error) {
	f.called = true
	return f.summary, f.err
}

type fakeExporter struct {
	path   string
	err    error
	orders []*domain.Order
}

func (f *fakeExporter) ExportCancelled(orders []*domain.Order, _ time.Time) (string, error) {
	f.orders = orders
	return f.path, f.err
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []domain.DomainEvent
}

func (p *capturingPublisher) Publish(_ context.Context, _ string, event domain.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

type runnerFixture struct {
	runner    *BatchRunner
	gateway   *mockGateway
	runs      *memoryRunRepo
	statuses  *memoryStatusRepo
	sorter    *fakeSorter
	exporter  *fakeExporter
	publisher *capturingPublisher
}

func newFixture(t *testing.T) *runnerFixture {
	t.Helper()
	f := &runnerFixture{
		gateway:   &mockGateway{},
		runs:      &memoryRunRepo{},
		statuses:  &memoryStatusRepo{},
		sorter:    &fakeSorter{summary: domain.LabelSummary{}},
		exporter:  &fakeExporter{path: "cancelled.xlsx"},
		publisher: &capturingPublisher{},
	}
	logger := logging.New(&logging.Config{ServiceName: "test", Level: logging.LevelError})
	cfg := Config{LookbackDays: 7, OutputDir: t.TempDir(), SettleDelay: 0}
	f.runner = NewBatchRunner(cfg, f.gateway, f.sorter, f.exporter, f.runs, f.statuses, f.publisher, logger, nil)
	f.runner.sleep = func(context.Context, time.Duration) error { return nil }
	return f
}

func newOrder(id int64, phone string, shipmentID int64) *domain.Order {
	return &domain.Order{
		ID:            id,
		CustomerPhone: phone,
		Status:        domain.StatusNew,
		Shipments:     []domain.Shipment{{ID: shipmentID}},
	}
}

func assigned(awb string) domain.AWBAssignment {
	return domain.AWBAssignment{Assigned: true, AWBCode: awb, Courier: "Delhivery"}
}

func TestRun_HappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	orders := []*domain.Order{
		newOrder(1, "1112223333", 11),
		newOrder(2, "1112223333", 12), // duplicate of 1
		newOrder(3, "4445556666", 13),
	}

	f.gateway.On("Authenticate", mock.Anything).Return(nil)
	f.gateway.On("FetchNewOrders", mock.Anything, mock.Anything, mock.Anything).Return(orders, nil)
	f.gateway.On("CancelOrder", mock.Anything, int64(2)).Return(nil)
	f.gateway.On("AssignAWB", mock.Anything, int64(11)).Return(assigned("AWB-1"), nil)
	f.gateway.On("AssignAWB", mock.Anything, int64(13)).Return(assigned("AWB-3"), nil)
	f.gateway.On("GenerateLabel", mock.Anything, []int64{11, 13}).Return("https://cdn/labels.pdf", nil)
	f.gateway.On("Download", mock.Anything, "https://cdn/labels.pdf").Return([]byte("%PDF"), nil)
	f.gateway.On("SchedulePickup", mock.Anything, int64(11)).Return(nil)
	f.gateway.On("SchedulePickup", mock.Anything, int64(13)).Return(nil)
	f.gateway.On("GenerateManifest", mock.Anything, []int64{11, 13}).Return("https://cdn/manifest.pdf", nil)
	f.gateway.On("Download", mock.Anything, "https://cdn/manifest.pdf").Return([]byte("%PDF"), nil)

	run, err := f.runner.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, domain.PhaseComplete, run.Phase)
	assert.Equal(t, 3, run.TotalOrders)
	assert.Equal(t, 1, run.CancelledDuplicates)
	assert.Equal(t, 2, run.ToShip)
	assert.Equal(t, 2, run.Shipped)
	assert.Zero(t, run.Failed)
	assert.True(t, run.CountsConsistent())
	assert.True(t, run.LabelsDownloaded)
	assert.True(t, run.ManifestGenerated)
	assert.Equal(t, 2, run.PickupScheduled)
	assert.Equal(t, "cancelled.xlsx", run.CancelledExport)
	assert.True(t, f.sorter.called)

	// the duplicate never reaches dispatch
	f.gateway.AssertNotCalled(t, "AssignAWB", mock.Anything, int64(12))

	// run recorded exactly once
	stored, err := f.runs.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, run.RunID, stored[0].RunID)

	// terminal status is complete
	status, err := f.statuses.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StateComplete, status.State)
	assert.Equal(t, 100, status.Progress)

	assert.Equal(t, []string{"shipping.batch.run.started", "shipping.batch.run.completed"}, f.publisher.types())
}

func TestRun_AuthenticationFailureIsFatal(t *testing.T) {
	f := newFixture(t)

	f.gateway.On("Authenticate", mock.Anything).Return(apperrors.ErrUnauthorized("bad credentials"))

	run, err := f.runner.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, domain.PhaseError, run.Phase)

	// fatal runs still leave a history record and an error status
	stored, _ := f.runs.List(context.Background(), 0)
	require.Len(t, stored, 1)
	status, _ := f.statuses.Read(context.Background())
	assert.Equal(t, domain.StateError, status.State)

	f.gateway.AssertNotCalled(t, "FetchNewOrders", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, []string{"shipping.batch.run.started", "shipping.batch.run.failed"}, f.publisher.types())
}

func TestRun_NoNewOrdersCompletesQuietly(t *testing.T) {
	f := newFixture(t)

	f.gateway.On("Authenticate", mock.Anything).Return(nil)
	f.gateway.On("FetchNewOrders", mock.Anything, mock.Anything, mock.Anything).Return([]*domain.Order{}, nil)

	run, err := f.runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.PhaseComplete, run.Phase)
	assert.Zero(t, run.TotalOrders)
	f.gateway.AssertNotCalled(t, "AssignAWB", mock.Anything, mock.Anything)

	status, _ := f.statuses.Read(context.Background())
	assert.Equal(t, domain.StateComplete, status.State)
	assert.Equal(t, "No new orders to process", status.Message)
}

func TestRun_ZeroDispatchedIsFatal(t *testing.T) {
	f := newFixture(t)

	orders := []*domain.Order{newOrder(1, "1112223333", 11)}

	f.gateway.On("Authenticate", mock.Anything).Return(nil)
	f.gateway.On("FetchNewOrders", mock.Anything, mock.Anything, mock.Anything).Return(orders, nil)
	f.gateway.On("AssignAWB", mock.Anything, int64(11)).
		Return(domain.AWBAssignment{Assigned: false, Reason: "pincode not serviceable"}, nil)

	run, err := f.runner.Run(context.Background())
	require.Error(t, err)

	assert.Equal(t, domain.PhaseError, run.Phase)
	assert.Equal(t, 1, run.Failed)
	require.Len(t, run.DispatchResults, 1)
	assert.Equal(t, "pincode not serviceable", run.DispatchResults[0].Reason)

	f.gateway.AssertNotCalled(t, "GenerateLabel", mock.Anything, mock.Anything)
	f.gateway.AssertNotCalled(t, "SchedulePickup", mock.Anything, mock.Anything)
}

func TestRun_StageFailuresDoNotAbortTheRun(t *testing.T) {
	f := newFixture(t)

	orders := []*domain.Order{
		newOrder(1, "1112223333", 11),
		newOrder(2, "1112223333", 12),
	}

	f.gateway.On("Authenticate", mock.Anything).Return(nil)
	f.gateway.On("FetchNewOrders", mock.Anything, mock.Anything, mock.Anything).Return(orders, nil)
	// cancellation fails but the run continues
	f.gateway.On("CancelOrder", mock.Anything, int64(2)).Return(apperrors.ErrInternal("cancel rejected"))
	f.gateway.On("AssignAWB", mock.Anything, int64(11)).Return(assigned("AWB-1"), nil)
	// labels unavailable, pickup fails, manifest errors
	f.gateway.On("GenerateLabel", mock.Anything, []int64{11}).Return("", nil)
	f.gateway.On("SchedulePickup", mock.Anything, int64(11)).Return(apperrors.ErrInternal("pickup rejected"))
	f.gateway.On("GenerateManifest", mock.Anything, []int64{11}).Return("", apperrors.ErrInternal("manifest rejected"))

	run, err := f.runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.PhaseComplete, run.Phase)
	assert.Equal(t, 1, run.Shipped)
	assert.False(t, run.LabelsDownloaded)
	assert.False(t, run.ManifestGenerated)
	assert.Zero(t, run.PickupScheduled)
	assert.GreaterOrEqual(t, len(run.Errors), 3)
}

func TestRun_MixedDispatchOutcomes(t *testing.T) {
	f := newFixture(t)

	alreadyShipped := newOrder(3, "7778889999", 33)
	alreadyShipped.Shipments[0].AWBCode = "AWB-OLD"
	noShipment := &domain.Order{ID: 4, CustomerPhone: "0001112222", Status: domain.StatusNew}

	orders := []*domain.Order{
		newOrder(1, "1112223333", 11),
		newOrder(2, "4445556666", 22),
		alreadyShipped,
		noShipment,
	}

	f.gateway.On("Authenticate", mock.Anything).Return(nil)
	f.gateway.On("FetchNewOrders", mock.Anything, mock.Anything, mock.Anything).Return(orders, nil)
	f.gateway.On("AssignAWB", mock.Anything, int64(11)).Return(assigned("AWB-1"), nil)
	f.gateway.On("AssignAWB", mock.Anything, int64(22)).
		Return(domain.AWBAssignment{Assigned: false, Reason: "wallet balance low"}, nil)
	f.gateway.On("GenerateLabel", mock.Anything, []int64{11}).Return("", nil)
	f.gateway.On("SchedulePickup", mock.Anything, int64(11)).Return(nil)
	f.gateway.On("GenerateManifest", mock.Anything, []int64{11}).Return("", nil)

	run, err := f.runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, run.ToShip)
	assert.Equal(t, 1, run.Shipped)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, 2, run.Skipped)
	assert.True(t, run.CountsConsistent())

	f.gateway.AssertNotCalled(t, "AssignAWB", mock.Anything, int64(33))
}

func TestRun_RejectsOverlappingRuns(t *testing.T) {
	f := newFixture(t)

	started := make(chan struct{})
	release := make(chan struct{})
	f.gateway.On("Authenticate", mock.Anything).Run(func(mock.Arguments) {
		close(started)
		<-release
	}).Return(nil)
	f.gateway.On("FetchNewOrders", mock.Anything, mock.Anything, mock.Anything).Return([]*domain.Order{}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := f.runner.Run(context.Background())
		done <- err
	}()

	<-started
	_, err := f.runner.Run(context.Background())
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeRunInProgress, appErr.Code)

	close(release)
	require.NoError(t, <-done)
}

func TestRun_StatusProgressesMonotonically(t *testing.T) {
	f := newFixture(t)

	orders := []*domain.Order{newOrder(1, "1112223333", 11)}
	f.gateway.On("Authenticate", mock.Anything).Return(nil)
	f.gateway.On("FetchNewOrders", mock.Anything, mock.Anything, mock.Anything).Return(orders, nil)
	f.gateway.On("AssignAWB", mock.Anything, int64(11)).Return(assigned("AWB-1"), nil)
	f.gateway.On("GenerateLabel", mock.Anything, []int64{11}).Return("", nil)
	f.gateway.On("SchedulePickup", mock.Anything, int64(11)).Return(nil)
	f.gateway.On("GenerateManifest", mock.Anything, []int64{11}).Return("", nil)

	_, err := f.runner.Run(context.Background())
	require.NoError(t, err)

	prev := -1
	for _, s := range f.statuses.history {
		assert.GreaterOrEqual(t, s.Progress, prev)
		prev = s.Progress
	}
	last := f.statuses.history[len(f.statuses.history)-1]
	assert.Equal(t, domain.StateComplete, last.State)
}

func TestRun_ManifestWriteFailureCountsAsStageFailure(t *testing.T) {
	f := newFixture(t)
	m := metrics.New(metrics.DefaultConfig("test"))

	// A regular file where the output directory should be makes the
	// manifest directory creation fail.
	blocked := filepath.Join(t.TempDir(), "blocked")
	require.NoError(t, os.WriteFile(blocked, []byte("x"), 0o644))

	logger := logging.New(&logging.Config{ServiceName: "test", Level: logging.LevelError})
	cfg := Config{LookbackDays: 7, OutputDir: blocked, SettleDelay: 0}
	f.runner = NewBatchRunner(cfg, f.gateway, f.sorter, f.exporter, f.runs, f.statuses, f.publisher, logger, m)
	f.runner.sleep = func(context.Context, time.Duration) error { return nil }

	orders := []*domain.Order{newOrder(1, "1112223333", 11)}
	f.gateway.On("Authenticate", mock.Anything).Return(nil)
	f.gateway.On("FetchNewOrders", mock.Anything, mock.Anything, mock.Anything).Return(orders, nil)
	f.gateway.On("AssignAWB", mock.Anything, int64(11)).Return(assigned("AWB-1"), nil)
	f.gateway.On("GenerateLabel", mock.Anything, []int64{11}).Return("", nil)
	f.gateway.On("SchedulePickup", mock.Anything, int64(11)).Return(nil)
	f.gateway.On("GenerateManifest", mock.Anything, []int64{11}).Return("https://cdn/manifest.pdf", nil)
	f.gateway.On("Download", mock.Anything, "https://cdn/manifest.pdf").Return([]byte("%PDF"), nil)

	run, err := f.runner.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, run.ManifestGenerated)
	assert.NotEmpty(t, run.Errors)

	failures := testutil.ToFloat64(m.StageFailures.WithLabelValues("test", string(domain.PhaseGeneratingManifest)))
	assert.Equal(t, 1.0, failures)
}
