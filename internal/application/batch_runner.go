package application

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shipstream-platform/batch-shipping-service/internal/domain"
	apperrors "github.com/shipstream-platform/batch-shipping-service/pkg/errors"
	"github.com/shipstream-platform/batch-shipping-service/pkg/logging"
	"github.com/shipstream-platform/batch-shipping-service/pkg/metrics"
)

// Config holds the batch runner's operational settings
type Config struct {
	// LookbackDays bounds the order fetch window ending at run time
	LookbackDays int
	// OutputDir is the root directory for label and export artifacts
	OutputDir string
	// SettleDelay is how long to wait after dispatch before requesting
	// labels, giving the upstream time to make the documents available
	SettleDelay time.Duration
}

// DefaultConfig returns production runner settings
func DefaultConfig() Config {
	return Config{
		LookbackDays: 7,
		OutputDir:    "output",
		SettleDelay:  2 * time.Second,
	}
}

// BatchRunner orchestrates one end-to-end shipping run: authenticate, fetch
// new orders, resolve and cancel duplicates, dispatch the keepers, sort
// labels, schedule pickups, generate the manifest, and record the run.
//
// Only fetch-nothing-new, authentication failure, and dispatching nothing
// abort a run. Every other stage failure is recorded on the run and the
// remaining stages still execute.
type BatchRunner struct {
	cfg       Config
	gateway   UpstreamGateway
	labels    LabelSorter
	exporter  CancelledExporter
	runs      domain.RunRepository
	statuses  domain.StatusRepository
	publisher EventPublisher
	logger    *logging.Logger
	metrics   *metrics.Metrics

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	running bool
}

// NewBatchRunner wires the orchestrator. publisher and metrics may be nil.
func NewBatchRunner(
	cfg Config,
	gateway UpstreamGateway,
	labels LabelSorter,
	exporter CancelledExporter,
	runs domain.RunRepository,
	statuses domain.StatusRepository,
	publisher EventPublisher,
	logger *logging.Logger,
	m *metrics.Metrics,
) *BatchRunner {
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 7
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "output"
	}
	return &BatchRunner{
		cfg:       cfg,
		gateway:   gateway,
		labels:    labels,
		exporter:  exporter,
		runs:      runs,
		statuses:  statuses,
		publisher: publisher,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Running reports whether a run is currently in progress
func (b *BatchRunner) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// tryAcquire claims the single run slot. Callers that get true own the slot
// and must call release when the run ends.
func (b *BatchRunner) tryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return false
	}
	b.running = true
	return true
}

func (b *BatchRunner) release() {
	b.mu.Lock()
	b.running = false
	b.mu.Unlock()
}

// Run executes one batch shipping run. A second concurrent call is rejected
// with a conflict error; the status record supports exactly one active run.
func (b *BatchRunner) Run(ctx context.Context) (*domain.BatchRun, error) {
	if !b.tryAcquire() {
		return nil, apperrors.ErrRunInProgress()
	}
	defer b.release()
	return b.runHeld(ctx)
}

// runHeld executes the run body. The caller must hold the run slot.
func (b *BatchRunner) runHeld(ctx context.Context) (*domain.BatchRun, error) {
	run := domain.NewBatchRun(uuid.NewString(), b.now())
	log := b.logger.WithRunID(run.RunID)
	log.Info("batch run started")
	if b.metrics != nil {
		b.metrics.RunsStarted.Inc()
	}
	b.publish(ctx, run, domain.RunStartedEvent{RunID: run.RunID, StartedAt: run.StartedAt})

	err := b.execute(ctx, run, log)
	if err != nil {
		run.Fail(b.now(), err.Error())
	} else {
		b.enterPhase(ctx, run, log, domain.PhaseRecording, "Recording run")
		run.Complete(b.now())
	}
	b.finalize(ctx, run, log, err)

	if err != nil {
		return run, err
	}
	return run, nil
}

// execute walks the stages. Returning an error marks the run fatal.
func (b *BatchRunner) execute(ctx context.Context, run *domain.BatchRun, log *logging.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Panic(r)
			err = apperrors.ErrInternal(fmt.Sprintf("run panicked: %v", r))
		}
	}()

	if err := b.authenticate(ctx, run, log); err != nil {
		return err
	}

	orders, err := b.fetchOrders(ctx, run, log)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		run.AddDetail("no new orders in window, nothing to do")
		return nil
	}

	resolution := b.resolveDuplicates(ctx, run, log, orders)
	b.cancelDuplicates(ctx, run, log, resolution)

	shipped, err := b.dispatchKeepers(ctx, run, log, resolution.Keepers)
	if err != nil {
		return err
	}

	b.processLabels(ctx, run, log, shipped)
	b.schedulePickups(ctx, run, log, shipped)
	b.generateManifest(ctx, run, log, shipped)

	return nil
}

func (b *BatchRunner) authenticate(ctx context.Context, run *domain.BatchRun, log *logging.Logger) error {
	b.enterPhase(ctx, run, log, domain.PhaseAuthenticating, "Authenticating with courier API")
	if err := b.gateway.Authenticate(ctx); err != nil {
		b.recordStageFailure(domain.PhaseAuthenticating)
		return fmt.Errorf("authentication failed: %w", err)
	}
	run.AddDetail("authenticated with courier API")
	return nil
}

func (b *BatchRunner) fetchOrders(ctx context.Context, run *domain.BatchRun, log *logging.Logger) ([]*domain.Order, error) {
	b.enterPhase(ctx, run, log, domain.PhaseFetchingOrders, "Fetching new orders")

	to := b.now()
	from := to.AddDate(0, 0, -b.cfg.LookbackDays)
	orders, err := b.gateway.FetchNewOrders(ctx, from, to)
	if err != nil {
		b.recordStageFailure(domain.PhaseFetchingOrders)
		return nil, fmt.Errorf("order fetch failed: %w", err)
	}

	run.TotalOrders = len(orders)
	run.AddDetail("fetched %d new orders", len(orders))
	if b.metrics != nil {
		b.metrics.OrdersFetched.Add(float64(len(orders)))
	}
	return orders, nil
}

func (b *BatchRunner) resolveDuplicates(ctx context.Context, run *domain.BatchRun, log *logging.Logger, orders []*domain.Order) domain.Resolution {
	b.enterPhase(ctx, run, log, domain.PhaseResolvingDuplicates, "Resolving duplicate orders")

	resolution := domain.ResolveDuplicates(orders)
	run.CancelledDuplicates = len(resolution.Duplicates)
	for _, g := range resolution.Groups {
		if len(g.Orders) > 1 {
			run.DuplicateDetails = append(run.DuplicateDetails, g.Detail())
		}
	}
	run.AddDetail("resolved duplicates: %d keepers, %d to cancel", len(resolution.Keepers), len(resolution.Duplicates))
	if b.metrics != nil {
		b.metrics.DuplicatesResolved.Add(float64(len(resolution.Duplicates)))
	}
	return resolution
}

func (b *BatchRunner) cancelDuplicates(ctx context.Context, run *domain.BatchRun, log *logging.Logger, resolution domain.Resolution) {
	b.enterPhase(ctx, run, log, domain.PhaseCancelling, "Cancelling duplicate orders")
	if len(resolution.Duplicates) == 0 {
		return
	}

	var cancelled []*domain.Order
	for _, o := range resolution.Duplicates {
		if err := b.gateway.CancelOrder(ctx, o.ID); err != nil {
			run.AddError("cancel order %d: %v", o.ID, err)
			b.recordStageFailure(domain.PhaseCancelling)
			continue
		}
		cancelled = append(cancelled, o)
	}
	run.AddDetail("cancelled %d duplicate orders", len(cancelled))

	if b.exporter != nil && len(cancelled) > 0 {
		path, err := b.exporter.ExportCancelled(cancelled, b.now())
		if err != nil {
			run.AddError("export cancelled orders: %v", err)
			b.recordStageFailure(domain.PhaseCancelling)
		} else {
			run.CancelledExport = path
		}
	}
}

// dispatchKeepers assigns couriers one order at a time and returns the
// shipment IDs that got an AWB. Dispatching nothing from a non-empty keeper
// set is fatal: there is no shipment to label, pick up, or manifest.
func (b *BatchRunner) dispatchKeepers(ctx context.Context, run *domain.BatchRun, log *logging.Logger, keepers []*domain.Order) ([]int64, error) {
	b.enterPhase(ctx, run, log, domain.PhaseDispatching, "Assigning couriers")
	run.ToShip = len(keepers)

	var shipped []int64
	for _, o := range keepers {
		result := b.dispatchOne(ctx, o)
		run.RecordDispatch(result)
		if b.metrics != nil {
			b.metrics.RecordDispatch(string(result.Outcome))
		}
		if result.Outcome == domain.OutcomeShipped {
			shipped = append(shipped, result.ShipmentID)
		} else {
			log.Warn("order not dispatched",
				slog.Int64("order_id", o.ID),
				slog.String("outcome", string(result.Outcome)),
				slog.String("reason", result.Reason),
			)
		}
	}

	run.AddDetail("dispatched %d of %d orders (%d failed, %d skipped)",
		run.Shipped, run.ToShip, run.Failed, run.Skipped)

	if run.Shipped == 0 {
		b.recordStageFailure(domain.PhaseDispatching)
		return nil, apperrors.ErrInternal("no orders could be dispatched")
	}
	return shipped, nil
}

func (b *BatchRunner) dispatchOne(ctx context.Context, o *domain.Order) domain.DispatchResult {
	res := domain.DispatchResult{OrderID: o.ID, ChannelOrderID: o.ChannelOrderID}

	if !o.DispatchEligible() {
		res.Outcome = domain.OutcomeSkipped
		if o.HasAWB() {
			res.Reason = "already has AWB"
		} else {
			res.Reason = fmt.Sprintf("status %q not dispatchable", o.Status)
		}
		return res
	}
	shipmentID, ok := o.FirstShipmentID()
	if !ok {
		res.Outcome = domain.OutcomeSkipped
		res.Reason = "no shipment on order"
		return res
	}
	res.ShipmentID = shipmentID

	assignment, err := b.gateway.AssignAWB(ctx, shipmentID)
	if err != nil {
		res.Outcome = domain.OutcomeFailed
		res.Reason = err.Error()
		return res
	}
	if !assignment.Assigned {
		res.Outcome = domain.OutcomeFailed
		res.Reason = assignment.Reason
		return res
	}
	res.Outcome = domain.OutcomeShipped
	return res
}

func (b *BatchRunner) processLabels(ctx context.Context, run *domain.BatchRun, log *logging.Logger, shipped []int64) {
	b.enterPhase(ctx, run, log, domain.PhaseLabeling, "Downloading and sorting labels")

	if err := b.sleep(ctx, b.cfg.SettleDelay); err != nil {
		run.AddError("label settle wait interrupted: %v", err)
		return
	}

	labelURL, err := b.gateway.GenerateLabel(ctx, shipped)
	if err != nil {
		run.AddError("generate label: %v", err)
		b.recordStageFailure(domain.PhaseLabeling)
		return
	}
	if labelURL == "" {
		run.AddDetail("no labels available yet")
		return
	}

	data, err := b.gateway.Download(ctx, labelURL)
	if err != nil {
		run.AddError("download labels: %v", err)
		b.recordStageFailure(domain.PhaseLabeling)
		return
	}

	runDir := filepath.Join(b.cfg.OutputDir, "labels", run.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		run.AddError("create label directory: %v", err)
		b.recordStageFailure(domain.PhaseLabeling)
		return
	}
	combined := filepath.Join(runDir, "combined.pdf")
	if err := os.WriteFile(combined, data, 0o644); err != nil {
		run.AddError("write combined label file: %v", err)
		b.recordStageFailure(domain.PhaseLabeling)
		return
	}
	run.LabelsDownloaded = true

	summary, err := b.labels.Sort(combined, runDir)
	if err != nil {
		run.AddError("sort labels: %v", err)
		b.recordStageFailure(domain.PhaseLabeling)
		return
	}
	run.LabelSummary = summary

	pages := 0
	for _, couriers := range summary {
		for _, f := range couriers {
			pages += f.Pages
		}
	}
	if b.metrics != nil {
		b.metrics.LabelPagesSorted.Add(float64(pages))
	}
	run.AddDetail("sorted %d label pages into %d files", pages, summary.TotalFiles())
}

func (b *BatchRunner) schedulePickups(ctx context.Context, run *domain.BatchRun, log *logging.Logger, shipped []int64) {
	b.enterPhase(ctx, run, log, domain.PhaseSchedulingPickup, "Scheduling pickups")

	for _, shipmentID := range shipped {
		if err := b.gateway.SchedulePickup(ctx, shipmentID); err != nil {
			run.AddError("schedule pickup for shipment %d: %v", shipmentID, err)
			b.recordStageFailure(domain.PhaseSchedulingPickup)
			continue
		}
		run.PickupScheduled++
	}
	run.AddDetail("scheduled pickup for %d of %d shipments", run.PickupScheduled, len(shipped))
}

func (b *BatchRunner) generateManifest(ctx context.Context, run *domain.BatchRun, log *logging.Logger, shipped []int64) {
	b.enterPhase(ctx, run, log, domain.PhaseGeneratingManifest, "Generating manifest")

	manifestURL, err := b.gateway.GenerateManifest(ctx, shipped)
	if err != nil {
		run.AddError("generate manifest: %v", err)
		b.recordStageFailure(domain.PhaseGeneratingManifest)
		return
	}
	if manifestURL == "" {
		run.AddDetail("no manifest available")
		return
	}

	data, err := b.gateway.Download(ctx, manifestURL)
	if err != nil {
		run.AddError("download manifest: %v", err)
		b.recordStageFailure(domain.PhaseGeneratingManifest)
		return
	}

	dir := filepath.Join(b.cfg.OutputDir, "manifests")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		run.AddError("create manifest directory: %v", err)
		b.recordStageFailure(domain.PhaseGeneratingManifest)
		return
	}
	path := filepath.Join(dir, fmt.Sprintf("manifest_%s.pdf", run.RunID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		run.AddError("write manifest file: %v", err)
		b.recordStageFailure(domain.PhaseGeneratingManifest)
		return
	}
	run.ManifestGenerated = true
	run.ManifestFile = path
	run.AddDetail("manifest saved to %s", path)
}

// finalize records the run and publishes its terminal event. The history
// append and terminal status write happen for fatal runs too, so every run
// leaves a record.
func (b *BatchRunner) finalize(ctx context.Context, run *domain.BatchRun, log *logging.Logger, runErr error) {
	if err := run.MarkRecorded(); err != nil {
		log.WithError(err).Error("run already recorded, skipping finalize")
		return
	}

	if err := b.runs.Append(ctx, run); err != nil {
		log.WithError(err).Error("failed to append run history")
	}

	var status domain.RunStatus
	if runErr != nil {
		status = domain.ErrorStatus(runErr.Error(), b.now())
		b.publish(ctx, run, domain.NewRunFailedEvent(run, runErr.Error()))
	} else {
		status = domain.CompleteStatus(b.summaryMessage(run), b.now())
		b.publish(ctx, run, domain.NewRunCompletedEvent(run))
	}
	if err := b.statuses.Write(ctx, status); err != nil {
		log.WithError(err).Error("failed to write terminal status")
	}

	if b.metrics != nil {
		outcome := "complete"
		if runErr != nil {
			outcome = "error"
		}
		b.metrics.RecordRunCompleted(outcome, run.FinishedAt.Sub(run.StartedAt))
	}
	log.Info("batch run finished",
		slog.String("phase", string(run.Phase)),
		slog.Int("shipped", run.Shipped),
		slog.Int("failed", run.Failed),
		slog.Int("cancelled_duplicates", run.CancelledDuplicates),
	)
}

func (b *BatchRunner) summaryMessage(run *domain.BatchRun) string {
	if run.TotalOrders == 0 {
		return "No new orders to process"
	}
	return fmt.Sprintf("Shipped %d of %d orders, cancelled %d duplicates",
		run.Shipped, run.ToShip, run.CancelledDuplicates)
}

// enterPhase advances the run, writes the poller status, and logs the
// transition. Status write failures never interrupt the run.
func (b *BatchRunner) enterPhase(ctx context.Context, run *domain.BatchRun, log *logging.Logger, phase domain.Phase, task string) {
	if err := run.Advance(phase); err != nil {
		log.WithError(err).Error("phase transition rejected", slog.String("phase", string(phase)))
		return
	}
	log.RunPhase(run.RunID, string(phase), phase.Progress())
	if err := b.statuses.Write(ctx, domain.ProcessingStatus(phase, task, b.now())); err != nil {
		log.WithError(err).Warn("failed to write progress status")
	}
}

func (b *BatchRunner) recordStageFailure(phase domain.Phase) {
	if b.metrics != nil {
		b.metrics.RecordStageFailure(string(phase))
	}
}

func (b *BatchRunner) publish(ctx context.Context, run *domain.BatchRun, event domain.DomainEvent) {
	if b.publisher == nil {
		return
	}
	if err := b.publisher.Publish(ctx, run.RunID, event); err != nil {
		b.logger.WithRunID(run.RunID).WithError(err).Warn("failed to publish run event")
	}
}
