package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/forkline/reconciliation/internal/application/port"
	"github.com/forkline/reconciliation/internal/domain/entity"
	"github.com/forkline/reconciliation/internal/domain/workflow"
	"github.com/forkline/reconciliation/internal/recon"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine       *recon.Engine
	orchestrator *recon.Orchestrator
	records      port.RecordRepository
	audits       port.AuditRepository
	logger       Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	engine *recon.Engine,
	orchestrator *recon.Orchestrator,
	records port.RecordRepository,
	audits port.AuditRepository,
	logger Logger,
) *Handlers {
	return &Handlers{
		engine:       engine,
		orchestrator: orchestrator,
		records:      records,
		audits:       audits,
		logger:       logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// OutcomeResponse represents a single-order reconciliation outcome
type OutcomeResponse struct {
	Status    string                       `json:"status"`
	FromCache bool                         `json:"from_cache"`
	Record    *entity.ReconciliationRecord `json:"record"`
}

// RecordResponse bundles a record with its audit trail
type RecordResponse struct {
	Record *entity.ReconciliationRecord `json:"record"`
	Trail  []*entity.TransitionEntry    `json:"trail"`
}

// RunBatchRequest represents the batch trigger body
type RunBatchRequest struct {
	SupplierID string    `json:"supplier_id" binding:"required"`
	From       time.Time `json:"from" binding:"required"`
	To         time.Time `json:"to" binding:"required"`
}

// ResolutionInput is one human decision for a single discrepancy
type ResolutionInput struct {
	Action           string `json:"action" binding:"required"`
	AdjustmentAmount string `json:"adjustment_amount,omitempty"`
	Notes            string `json:"notes,omitempty"`
}

// ResolveRequest represents the human resolution body. Keys of Resolutions are
// discrepancy indexes within the record.
type ResolveRequest struct {
	ResolvedBy  string                  `json:"resolved_by" binding:"required"`
	Resolutions map[int]ResolutionInput `json:"resolutions" binding:"required"`
}

// ReopenRequest represents the administrative reopen body
type ReopenRequest struct {
	Actor string `json:"actor" binding:"required"`
}

// ListRecordsRequest represents query parameters for listing supplier records
type ListRecordsRequest struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    response,
	})
}

// ReconcileOrder handles POST /api/orders/:id/reconcile
func (h *Handlers) ReconcileOrder(c *gin.Context) {
	orderID := c.Param("id")

	h.logger.Info("On-demand reconciliation requested", "order_id", orderID)

	outcome, err := h.engine.ReconcileOrder(c.Request.Context(), orderID)
	if err != nil && outcome == nil {
		h.logger.Error("Reconciliation failed", "order_id", orderID, "error", err)
		c.JSON(statusForError(err), Response{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	// A failed outcome still carries its record; the caller sees both the
	// terminal state and the cause without parsing the body for success.
	status := http.StatusOK
	if outcome.Status == recon.OutcomeFailed {
		status = http.StatusUnprocessableEntity
	}
	resp := OutcomeResponse{
		Status:    string(outcome.Status),
		FromCache: outcome.FromCache,
		Record:    outcome.Record,
	}
	c.JSON(status, Response{
		Success: outcome.Status != recon.OutcomeFailed,
		Data:    resp,
		Error:   errString(err),
	})
}

// RunBatch handles POST /api/batches
func (h *Handlers) RunBatch(c *gin.Context) {
	var req RunBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid batch request", "error", err)
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid request body",
		})
		return
	}

	ws := recon.WorkingSet{
		SupplierID: req.SupplierID,
		From:       req.From,
		To:         req.To,
	}

	h.logger.Info("Batch requested", "supplier_id", req.SupplierID)

	result, err := h.orchestrator.ProcessBatch(c.Request.Context(), ws)
	if err != nil {
		h.logger.Error("Batch failed", "supplier_id", req.SupplierID, "error", err)
		c.JSON(statusForError(err), Response{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    result,
	})
}

// GetRecord handles GET /api/records/:orderID
func (h *Handlers) GetRecord(c *gin.Context) {
	orderID := c.Param("orderID")

	record, err := h.records.GetByOrderID(c.Request.Context(), orderID)
	if err != nil {
		h.logger.Error("Failed to get record", "order_id", orderID, "error", err)
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to retrieve record",
		})
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, Response{
			Success: false,
			Error:   "record not found",
		})
		return
	}

	trail, err := h.audits.GetByRecordID(c.Request.Context(), record.ID)
	if err != nil {
		h.logger.Error("Failed to get audit trail", "record_id", record.ID, "error", err)
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to retrieve audit trail",
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    RecordResponse{Record: record, Trail: trail},
	})
}

// ListSupplierRecords handles GET /api/suppliers/:supplierID/records
func (h *Handlers) ListSupplierRecords(c *gin.Context) {
	supplierID := c.Param("supplierID")

	var req ListRecordsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", "error", err)
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid query parameters",
		})
		return
	}

	if req.Limit <= 0 || req.Limit > 100 {
		req.Limit = 20
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	records, err := h.records.ListBySupplier(c.Request.Context(), supplierID, req.Limit, req.Offset)
	if err != nil {
		h.logger.Error("Failed to list records", "supplier_id", supplierID, "error", err)
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to retrieve records",
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    records,
	})
}

// ResolveRecord handles POST /api/records/:orderID/resolutions
func (h *Handlers) ResolveRecord(c *gin.Context) {
	orderID := c.Param("orderID")

	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid resolution request", "order_id", orderID, "error", err)
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid request body",
		})
		return
	}

	resolutions := make(map[int]entity.Resolution, len(req.Resolutions))
	for idx, in := range req.Resolutions {
		res := entity.Resolution{
			Action: entity.ResolutionAction(in.Action),
			Notes:  in.Notes,
		}
		if in.AdjustmentAmount != "" {
			amount, err := decimal.NewFromString(in.AdjustmentAmount)
			if err != nil {
				c.JSON(http.StatusBadRequest, Response{
					Success: false,
					Error:   "invalid adjustment_amount: " + in.AdjustmentAmount,
				})
				return
			}
			res.AdjustmentAmount = &amount
		}
		resolutions[idx] = res
	}

	h.logger.Info("Human resolution submitted", "order_id", orderID, "resolved_by", req.ResolvedBy)

	record, err := h.engine.ResolveDisputed(c.Request.Context(), orderID, resolutions, req.ResolvedBy)
	if err != nil {
		h.logger.Error("Resolution failed", "order_id", orderID, "error", err)
		c.JSON(statusForError(err), Response{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    record,
	})
}

// ReopenRecord handles POST /api/records/:orderID/reopen
func (h *Handlers) ReopenRecord(c *gin.Context) {
	orderID := c.Param("orderID")

	var req ReopenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid request body",
		})
		return
	}

	h.logger.Info("Administrative reopen requested", "order_id", orderID, "actor", req.Actor)

	record, err := h.engine.ReopenFailed(c.Request.Context(), orderID, req.Actor)
	if err != nil {
		h.logger.Error("Reopen failed", "order_id", orderID, "error", err)
		c.JSON(statusForError(err), Response{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    record,
	})
}

// statusForError maps engine errors to HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, recon.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, recon.ErrBatchAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, recon.ErrNotDisputed),
		errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, workflow.ErrGuardFailed):
		return http.StatusConflict
	case errors.Is(err, recon.ErrIncompleteResolution),
		recon.IsValidation(err),
		recon.IsConfiguration(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
