package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/shipstream-platform/batch-shipping-service/internal/application"
	apperrors "github.com/shipstream-platform/batch-shipping-service/pkg/errors"
	"github.com/shipstream-platform/batch-shipping-service/pkg/logging"
)

// RunTrigger starts a batch shipping run asynchronously and returns an
// identifier for tracking it
type RunTrigger interface {
	Trigger(ctx context.Context, triggeredBy string) (string, error)
}

// Handlers holds the HTTP handlers for the batch shipping service
type Handlers struct {
	trigger RunTrigger
	queries *application.QueryService
	logger  *logging.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(trigger RunTrigger, queries *application.QueryService, logger *logging.Logger) *Handlers {
	return &Handlers{
		trigger: trigger,
		queries: queries,
		logger:  logger,
	}
}

type startRunRequest struct {
	TriggeredBy string `json:"triggeredBy"`
}

// StartRun handles POST /api/v1/runs. The run executes asynchronously;
// clients follow progress through the status endpoint. A second start while
// a run is active gets 409.
func (h *Handlers) StartRun(c *gin.Context) {
	var req startRunRequest
	// body is optional
	_ = c.ShouldBindJSON(&req)
	if req.TriggeredBy == "" {
		req.TriggeredBy = "api"
	}

	id, err := h.trigger.Trigger(c.Request.Context(), req.TriggeredBy)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"workflowId": id,
		"message":    "batch run started",
	})
}

// GetHistory handles GET /api/v1/runs
func (h *Handlers) GetHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	runs, err := h.queries.History(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

// GetStatus handles GET /api/v1/runs/status
func (h *Handlers) GetStatus(c *gin.Context) {
	status, err := h.queries.Status(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handlers) respondError(c *gin.Context, err error) {
	appErr := apperrors.FromError(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		h.logger.WithError(err).Error("request failed")
	}
	c.JSON(appErr.HTTPStatus, gin.H{"error": appErr.Message, "code": appErr.Code})
}
