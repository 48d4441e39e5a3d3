package handler

import (
	"time"

	appledger "github.com/erp/stockledger/internal/application/ledger"
	"github.com/erp/stockledger/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// StockHandler serves stock on hand and negative-excursion reads
type StockHandler struct {
	BaseHandler
	stock   *appledger.StockService
	reports *appledger.ReportService
}

// NewStockHandler creates a new StockHandler
func NewStockHandler(stock *appledger.StockService, reports *appledger.ReportService) *StockHandler {
	return &StockHandler{stock: stock, reports: reports}
}

// StockQueryItem addresses one stock key
type StockQueryItem struct {
	ProductID   string `json:"product_id" binding:"required,uuid"`
	Location    string `json:"location" binding:"omitempty,max=150"`
	BatchNumber string `json:"batch_number" binding:"omitempty,max=64"`
}

// StockQueryRequest is the body of POST /stock/query
type StockQueryRequest struct {
	Queries []StockQueryItem `json:"queries" binding:"required,min=1,max=500,dive"`
	AsOf    *time.Time       `json:"as_of"`
}

// GetStock godoc
// @ID           getProductStock
// @Summary      Get stock on hand
// @Description  Returns stock on hand for a product, narrowed by the optional location and batch_number query parameters
// @Tags         stock
// @Produce      json
// @Param        product_id path string true "Product ID" format(uuid)
// @Param        location query string false "Location code, site/zone/bin"
// @Param        batch_number query string false "Batch number"
// @Param        as_of query string false "Business time (RFC3339)"
// @Success      200 {object} dto.Response{data=appledger.StockLevel}
// @Failure      400 {object} dto.Response
// @Failure      401 {object} dto.Response
// @Failure      500 {object} dto.Response
// @Security     BearerAuth
// @Router       /products/{product_id}/stock [get]
func (h *StockHandler) GetStock(c *gin.Context) {
	q, err := stockQueryFrom(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	level, err := h.stock.StockOf(c.Request.Context(), q)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, level)
}

// GetBatchStock godoc
// @ID           getBatchStock
// @Summary      Get stock on hand of a batch
// @Description  Returns stock on hand of one batch across all locations
// @Tags         stock
// @Produce      json
// @Param        product_id path string true "Product ID" format(uuid)
// @Param        batch_number path string true "Batch number"
// @Param        as_of query string false "Business time (RFC3339)"
// @Success      200 {object} dto.Response{data=appledger.StockLevel}
// @Failure      400 {object} dto.Response
// @Failure      401 {object} dto.Response
// @Failure      500 {object} dto.Response
// @Security     BearerAuth
// @Router       /products/{product_id}/batches/{batch_number}/stock [get]
func (h *StockHandler) GetBatchStock(c *gin.Context) {
	productID, err := uuidParam(c, "product_id")
	if err != nil {
		h.HandleError(c, err)
		return
	}
	asOf, err := timeQuery(c, "as_of")
	if err != nil {
		h.HandleError(c, err)
		return
	}
	level, err := h.stock.StockOfBatch(c.Request.Context(), productID, c.Param("batch_number"), asOf)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, level)
}

// Query godoc
// @ID           queryStock
// @Summary      Query stock for many keys
// @Description  Answers many stock keys in one call
// @Tags         stock
// @Accept       json
// @Produce      json
// @Param        body body StockQueryRequest true "Stock keys"
// @Success      200 {object} dto.Response{data=[]appledger.StockLevel}
// @Failure      400 {object} dto.Response
// @Failure      401 {object} dto.Response
// @Failure      500 {object} dto.Response
// @Security     BearerAuth
// @Router       /stock/query [post]
func (h *StockHandler) Query(c *gin.Context) {
	var req StockQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if isValidationError(err) {
			middleware.HandleValidationError(c, err)
			return
		}
		h.BindError(c, err)
		return
	}

	queries := make([]appledger.StockQuery, 0, len(req.Queries))
	for _, q := range req.Queries {
		queries = append(queries, appledger.StockQuery{
			ProductID:   uuid.MustParse(q.ProductID),
			Location:    q.Location,
			BatchNumber: q.BatchNumber,
		})
	}
	levels, err := h.stock.StockOfMany(c.Request.Context(), queries, req.AsOf)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, levels)
}

// Excursions godoc
// @ID           getNegativeExcursions
// @Summary      List negative stock excursions
// @Description  Replays a key and lists where its balance went negative
// @Tags         stock
// @Produce      json
// @Param        product_id path string true "Product ID" format(uuid)
// @Param        location query string false "Location code, site/zone/bin"
// @Param        batch_number query string false "Batch number"
// @Success      200 {object} dto.Response{data=appledger.ExcursionReport}
// @Failure      400 {object} dto.Response
// @Failure      401 {object} dto.Response
// @Failure      500 {object} dto.Response
// @Security     BearerAuth
// @Router       /products/{product_id}/excursions [get]
func (h *StockHandler) Excursions(c *gin.Context) {
	q, err := stockQueryFrom(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	q.AsOf = nil
	report, err := h.reports.NegativeExcursions(c.Request.Context(), q)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

func stockQueryFrom(c *gin.Context) (appledger.StockQuery, error) {
	productID, err := uuidParam(c, "product_id")
	if err != nil {
		return appledger.StockQuery{}, err
	}
	asOf, err := timeQuery(c, "as_of")
	if err != nil {
		return appledger.StockQuery{}, err
	}
	return appledger.StockQuery{
		ProductID:   productID,
		Location:    c.Query("location"),
		BatchNumber: c.Query("batch_number"),
		AsOf:        asOf,
	}, nil
}
