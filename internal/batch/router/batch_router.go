package router

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ggasparott/FastMission/internal/apperrors"
	"github.com/ggasparott/FastMission/internal/batch/model"
	"github.com/ggasparott/FastMission/internal/batch/service"
	"github.com/ggasparott/FastMission/internal/pipeline"
	"github.com/ggasparott/FastMission/utils"
)

// BatchRouter exposes batch upload, progress and results.
type BatchRouter struct {
	batches    *service.BatchService
	dispatcher *pipeline.Dispatcher
}

func NewBatchRouter(batches *service.BatchService, dispatcher *pipeline.Dispatcher) *BatchRouter {
	return &BatchRouter{batches: batches, dispatcher: dispatcher}
}

// Register mounts the batch routes on g.
func (br *BatchRouter) Register(g *gin.RouterGroup) {
	g.POST("", br.HandleCreateBatch)
	g.GET("", br.HandleListBatches)
	g.GET("/:id/status", br.HandleGetStatus)
	g.GET("/:id/items", br.HandleListItems)
	g.GET("/:id/benefits", br.HandleGetBenefits)
	g.POST("/:id/run", br.HandleRunBatch)
	g.DELETE("/:id", br.HandleDeleteBatch)
}

// HandleCreateBatch handles POST /api/batches
// The batch is stored and queued; classification happens asynchronously.
func (br *BatchRouter) HandleCreateBatch(c *gin.Context) {
	var req model.CreateBatchDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	ctx := c.Request.Context()
	batch, err := br.batches.CreateBatchWithItems(ctx, &req)
	if err != nil {
		writeError(c, err)
		return
	}

	message := "batch queued for processing"
	if err := br.dispatcher.Dispatch(ctx, batch.ID); err != nil {
		// The batch stays PENDING and is picked up again on the next start
		slog.WarnContext(ctx, "batch stored but not queued", "batchID", batch.ID, "error", err)
		message = "batch stored; processing will start when a worker is available"
	}

	c.JSON(http.StatusAccepted, model.BatchCreatedResponse{
		BatchID:    batch.ID,
		Status:     batch.Status,
		TotalItems: batch.ItemCount,
		Message:    message,
	})
}

// HandleListBatches handles GET /api/batches
// Optional Query Filters: offset, limit
func (br *BatchRouter) HandleListBatches(c *gin.Context) {
	offset, limit, err := utils.ParsePaginationQuery(c.Query("offset"), c.Query("limit"))
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}

	result, err := br.batches.ListBatches(c.Request.Context(), model.BatchFilter{Offset: offset, Limit: limit})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleGetStatus handles GET /api/batches/:id/status
func (br *BatchRouter) HandleGetStatus(c *gin.Context) {
	batchID, ok := parseIDParam(c)
	if !ok {
		return
	}

	progress, err := br.batches.GetProgress(c.Request.Context(), batchID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

// HandleListItems handles GET /api/batches/:id/items
// Optional Query Filters: divergentOnly, offset, limit
func (br *BatchRouter) HandleListItems(c *gin.Context) {
	batchID, ok := parseIDParam(c)
	if !ok {
		return
	}

	var filter model.ItemFilter
	if raw := c.Query("divergentOnly"); raw != "" {
		divergentOnly, err := strconv.ParseBool(raw)
		if err != nil {
			writeBadRequest(c, "invalid 'divergentOnly' query parameter, must be a boolean")
			return
		}
		filter.DivergentOnly = divergentOnly
	}

	offset, limit, err := utils.ParsePaginationQuery(c.Query("offset"), c.Query("limit"))
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}
	filter.Offset, filter.Limit = offset, limit

	result, err := br.batches.ListItems(c.Request.Context(), batchID, filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleGetBenefits handles GET /api/batches/:id/benefits
func (br *BatchRouter) HandleGetBenefits(c *gin.Context) {
	batchID, ok := parseIDParam(c)
	if !ok {
		return
	}

	summary, err := br.batches.GetBenefitSummary(c.Request.Context(), batchID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// HandleRunBatch handles POST /api/batches/:id/run
// Re-drives a batch that failed or never started. Running and completed batches are rejected.
func (br *BatchRouter) HandleRunBatch(c *gin.Context) {
	batchID, ok := parseIDParam(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	batch, err := br.batches.GetBatch(ctx, batchID)
	if err != nil {
		writeError(c, err)
		return
	}
	switch batch.Status {
	case model.BatchStatusCompleted:
		writeError(c, fmt.Errorf("%w: batch %s is already completed", apperrors.ErrConflict, batchID))
		return
	case model.BatchStatusRunning:
		// Interrupted runs are re-enqueued on startup, never by hand
		writeError(c, fmt.Errorf("%w: batch %s is already running", apperrors.ErrConflict, batchID))
		return
	}

	if err := br.dispatcher.Dispatch(ctx, batchID); err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "batch could not be queued"})
		return
	}
	c.JSON(http.StatusAccepted, model.BatchCreatedResponse{
		BatchID:    batch.ID,
		Status:     batch.Status,
		TotalItems: batch.ItemCount,
		Message:    "batch queued for processing",
	})
}

// HandleDeleteBatch handles DELETE /api/batches/:id
func (br *BatchRouter) HandleDeleteBatch(c *gin.Context) {
	batchID, ok := parseIDParam(c)
	if !ok {
		return
	}

	if err := br.batches.DeleteBatch(c.Request.Context(), batchID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
