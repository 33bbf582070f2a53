package application

import (
	"time"

	"github.com/shipstream-platform/batch-shipping-service/internal/domain"
)

// RunSummaryDTO is the API representation of one recorded batch run
type RunSummaryDTO struct {
	RunID               string              `json:"runId"`
	Date                string              `json:"date"`
	StartedAt           time.Time           `json:"startedAt"`
	FinishedAt          time.Time           `json:"finishedAt"`
	Phase               string              `json:"phase"`
	TotalOrders         int                 `json:"totalOrders"`
	CancelledDuplicates int                 `json:"cancelledDuplicates"`
	ToShip              int                 `json:"toShip"`
	Shipped             int                 `json:"shipped"`
	Failed              int                 `json:"failed"`
	Skipped             int                 `json:"skipped"`
	PickupScheduled     int                 `json:"pickupScheduled"`
	DispatchResults     []DispatchResultDTO `json:"dispatchResults"`
	DuplicateDetails    []string            `json:"duplicateDetails,omitempty"`
	LabelsDownloaded    bool                `json:"labelsDownloaded"`
	LabelSummary        domain.LabelSummary `json:"labelSummary,omitempty"`
	ManifestGenerated   bool                `json:"manifestGenerated"`
	ManifestFile        string              `json:"manifestFile,omitempty"`
	CancelledExport     string              `json:"cancelledExport,omitempty"`
	Errors              []string            `json:"errors,omitempty"`
	Details             []string            `json:"details"`
}

// DispatchResultDTO is the API representation of one dispatch attempt
type DispatchResultDTO struct {
	OrderID        int64  `json:"orderId"`
	ChannelOrderID string `json:"channelOrderId"`
	ShipmentID     int64  `json:"shipmentId,omitempty"`
	Outcome        string `json:"outcome"`
	Reason         string `json:"reason,omitempty"`
}

// StatusDTO is the API representation of the current run status
type StatusDTO struct {
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	CurrentTask string    `json:"currentTask"`
	Progress    int       `json:"progress"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// ToRunSummaryDTO maps a run aggregate to its API shape
func ToRunSummaryDTO(run *domain.BatchRun) RunSummaryDTO {
	results := make([]DispatchResultDTO, len(run.DispatchResults))
	for i, r := range run.DispatchResults {
		results[i] = DispatchResultDTO{
			OrderID:        r.OrderID,
			ChannelOrderID: r.ChannelOrderID,
			ShipmentID:     r.ShipmentID,
			Outcome:        string(r.Outcome),
			Reason:         r.Reason,
		}
	}
	return RunSummaryDTO{
		RunID:               run.RunID,
		Date:                run.DateDisplay,
		StartedAt:           run.StartedAt,
		FinishedAt:          run.FinishedAt,
		Phase:               string(run.Phase),
		TotalOrders:         run.TotalOrders,
		CancelledDuplicates: run.CancelledDuplicates,
		ToShip:              run.ToShip,
		Shipped:             run.Shipped,
		Failed:              run.Failed,
		Skipped:             run.Skipped,
		PickupScheduled:     run.PickupScheduled,
		DispatchResults:     results,
		DuplicateDetails:    run.DuplicateDetails,
		LabelsDownloaded:    run.LabelsDownloaded,
		LabelSummary:        run.LabelSummary,
		ManifestGenerated:   run.ManifestGenerated,
		ManifestFile:        run.ManifestFile,
		CancelledExport:     run.CancelledExport,
		Errors:              run.Errors,
		Details:             run.Details,
	}
}

// ToStatusDTO maps the status record to its API shape
func ToStatusDTO(status domain.RunStatus) StatusDTO {
	return StatusDTO{
		Status:      string(status.State),
		Message:     status.Message,
		CurrentTask: status.CurrentTask,
		Progress:    status.Progress,
		LastUpdated: status.LastUpdated,
	}
}
