package handler

import (
	appledger "github.com/erp/stockledger/internal/application/ledger"
	"github.com/gin-gonic/gin"
)

// TraceHandler answers traceability questions over the ledger
type TraceHandler struct {
	BaseHandler
	trace *appledger.TraceService
}

// NewTraceHandler creates a new TraceHandler
func NewTraceHandler(trace *appledger.TraceService) *TraceHandler {
	return &TraceHandler{trace: trace}
}

// ByCorrelation godoc
// @ID           traceCorrelation
// @Summary      Trace a business transaction
// @Description  Lists every movement of one business transaction
// @Tags         trace
// @Produce      json
// @Param        correlation_id path string true "Correlation ID"
// @Success      200 {object} dto.Response{data=[]appledger.MovementResponse}
// @Failure      400 {object} dto.Response
// @Failure      401 {object} dto.Response
// @Failure      500 {object} dto.Response
// @Security     BearerAuth
// @Router       /trace/correlations/{correlation_id} [get]
func (h *TraceHandler) ByCorrelation(c *gin.Context) {
	movements, err := h.trace.ByCorrelation(c.Request.Context(), c.Param("correlation_id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, movements)
}

// ByBatch godoc
// @ID           traceBatch
// @Summary      Trace a batch
// @Description  Lists every movement of a batch
// @Tags         trace
// @Produce      json
// @Param        batch_number path string true "Batch number"
// @Success      200 {object} dto.Response{data=[]appledger.MovementResponse}
// @Failure      400 {object} dto.Response
// @Failure      401 {object} dto.Response
// @Failure      500 {object} dto.Response
// @Security     BearerAuth
// @Router       /trace/batches/{batch_number} [get]
func (h *TraceHandler) ByBatch(c *gin.Context) {
	movements, err := h.trace.ByBatch(c.Request.Context(), c.Param("batch_number"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, movements)
}

// BatchSummary godoc
// @ID           traceBatchSummary
// @Summary      Summarize a batch by location
// @Description  Returns a batch's movements with its per-location balances
// @Tags         trace
// @Produce      json
// @Param        batch_number path string true "Batch number"
// @Success      200 {object} dto.Response{data=appledger.BatchTrace}
// @Failure      400 {object} dto.Response
// @Failure      401 {object} dto.Response
// @Failure      500 {object} dto.Response
// @Security     BearerAuth
// @Router       /trace/batches/{batch_number}/summary [get]
func (h *TraceHandler) BatchSummary(c *gin.Context) {
	trace, err := h.trace.TraceBatch(c.Request.Context(), c.Param("batch_number"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, trace)
}

// BySerial godoc
// @ID           traceSerial
// @Summary      Trace a serial number
// @Description  Lists every movement of a serial number
// @Tags         trace
// @Produce      json
// @Param        serial_number path string true "Serial number"
// @Success      200 {object} dto.Response{data=[]appledger.MovementResponse}
// @Failure      400 {object} dto.Response
// @Failure      401 {object} dto.Response
// @Failure      500 {object} dto.Response
// @Security     BearerAuth
// @Router       /trace/serials/{serial_number} [get]
func (h *TraceHandler) BySerial(c *gin.Context) {
	movements, err := h.trace.BySerial(c.Request.Context(), c.Param("serial_number"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, movements)
}
