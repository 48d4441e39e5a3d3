package handler

import (
	"time"

	appledger "github.com/erp/stockledger/internal/application/ledger"
	"github.com/erp/stockledger/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementHandler records business transactions and serves movement reads
type MovementHandler struct {
	BaseHandler
	generator *appledger.GeneratorService
	reports   *appledger.ReportService
}

// NewMovementHandler creates a new MovementHandler
func NewMovementHandler(generator *appledger.GeneratorService, reports *appledger.ReportService) *MovementHandler {
	return &MovementHandler{generator: generator, reports: reports}
}

// MovementLineRequest is one line of a recorded transaction
type MovementLineRequest struct {
	ProductID           string          `json:"product_id" binding:"required,uuid"`
	Quantity            decimal.Decimal `json:"quantity"`
	Location            string          `json:"location" binding:"omitempty,max=150"`
	DestinationLocation string          `json:"destination_location" binding:"omitempty,max=150"`
	BatchNumber         string          `json:"batch_number" binding:"omitempty,max=64"`
	SerialNumber        string          `json:"serial_number" binding:"omitempty,max=64"`
	UnitReference       string          `json:"unit_reference" binding:"omitempty,max=64"`
	DetailID            string          `json:"detail_id" binding:"omitempty,max=64"`
}

// RecordMovementsRequest is the body of POST /movements
type RecordMovementsRequest struct {
	CorrelationID   string                `json:"correlation_id" binding:"required,max=128"`
	TransactionType string                `json:"transaction_type" binding:"required,max=32"`
	HeaderID        string                `json:"header_id" binding:"required,max=128"`
	Lines           []MovementLineRequest `json:"lines" binding:"dive"`
	DefaultLocation string                `json:"default_location" binding:"omitempty,max=150"`
	Reason          string                `json:"reason" binding:"omitempty,max=500"`
	Actor           string                `json:"actor" binding:"omitempty,max=128"`
	OccurredAt      *time.Time            `json:"occurred_at"`
	AllowNegative   bool                  `json:"allow_negative"`
}

func (r RecordMovementsRequest) toApp(actor string) appledger.GenerateRequest {
	lines := make([]appledger.LineItem, 0, len(r.Lines))
	for _, l := range r.Lines {
		lines = append(lines, appledger.LineItem{
			// validated by the binding tag
			ProductID:           uuid.MustParse(l.ProductID),
			Quantity:            l.Quantity,
			Location:            l.Location,
			DestinationLocation: l.DestinationLocation,
			BatchNumber:         l.BatchNumber,
			SerialNumber:        l.SerialNumber,
			UnitReference:       l.UnitReference,
			DetailID:            l.DetailID,
		})
	}
	return appledger.GenerateRequest{
		CorrelationID:   r.CorrelationID,
		TransactionType: r.TransactionType,
		HeaderID:        r.HeaderID,
		Lines:           lines,
		DefaultLocation: r.DefaultLocation,
		Reason:          r.Reason,
		Actor:           actor,
		OccurredAt:      r.OccurredAt,
		AllowNegative:   r.AllowNegative,
	}
}

// Record godoc
// @ID           recordMovements
// @Summary      Record a business transaction
// @Description  Expands a business transaction into movements
// @Tags         movements
// @Accept       json
// @Produce      json
// @Param        body body RecordMovementsRequest true "Transaction line items"
// @Success      201 {object} dto.Response{data=appledger.GenerateResult}
// @Failure      400 {object} dto.Response
// @Failure      401 {object} dto.Response
// @Failure      409 {object} dto.Response
// @Failure      422 {object} dto.Response
// @Failure      500 {object} dto.Response
// @Security     BearerAuth
// @Router       /movements [post]
func (h *MovementHandler) Record(c *gin.Context) {
	var req RecordMovementsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if isValidationError(err) {
			middleware.HandleValidationError(c, err)
			return
		}
		h.BindError(c, err)
		return
	}

	result, err := h.generator.Generate(c.Request.Context(), req.toApp(actorOf(c, req.Actor)))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// Get godoc
// @ID           getMovementById
// @Summary      Get movement by ID
// @Description  Returns one movement by id, superseded or not
// @Tags         movements
// @Produce      json
// @Param        id path int true "Movement ID"
// @Success      200 {object} dto.Response{data=appledger.MovementResponse}
// @Failure      400 {object} dto.Response
// @Failure      401 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Failure      500 {object} dto.Response
// @Security     BearerAuth
// @Router       /movements/{id} [get]
func (h *MovementHandler) Get(c *gin.Context) {
	id, err := int64Param(c, "id")
	if err != nil {
		h.HandleError(c, err)
		return
	}
	movement, err := h.reports.MovementByID(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, movement)
}

// History godoc
// @ID           listProductMovements
// @Summary      List movement history of a product
// @Description  Lists a product's movements in business-time order
// @Tags         movements
// @Produce      json
// @Param        product_id path string true "Product ID" format(uuid)
// @Param        location query string false "Location code, site/zone/bin"
// @Param        start query string false "Window start (RFC3339)"
// @Param        end query string false "Window end (RFC3339)"
// @Param        order_dir query string false "Sort direction" Enums(asc, desc)
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size"
// @Success      200 {object} dto.Response{data=[]appledger.MovementResponse}
// @Failure      400 {object} dto.Response
// @Failure      401 {object} dto.Response
// @Failure      500 {object} dto.Response
// @Security     BearerAuth
// @Router       /products/{product_id}/movements [get]
func (h *MovementHandler) History(c *gin.Context) {
	productID, err := uuidParam(c, "product_id")
	if err != nil {
		h.HandleError(c, err)
		return
	}
	req := appledger.HistoryRequest{
		ProductID: productID,
		Location:  c.Query("location"),
		OrderDir:  c.Query("order_dir"),
	}
	if req.Page, err = intQuery(c, "page"); err != nil {
		h.HandleError(c, err)
		return
	}
	if req.PageSize, err = intQuery(c, "page_size"); err != nil {
		h.HandleError(c, err)
		return
	}
	start, err := timeQuery(c, "start")
	if err != nil {
		h.HandleError(c, err)
		return
	}
	end, err := timeQuery(c, "end")
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if start != nil {
		req.Start = *start
	}
	if end != nil {
		req.End = *end
	}

	page, err := h.reports.History(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}
