package handler

import (
	appledger "github.com/erp/stockledger/internal/application/ledger"
	"github.com/erp/stockledger/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// ReversalHandler voids committed transactions
type ReversalHandler struct {
	BaseHandler
	reversals *appledger.ReversalService
}

// NewReversalHandler creates a new ReversalHandler
func NewReversalHandler(reversals *appledger.ReversalService) *ReversalHandler {
	return &ReversalHandler{reversals: reversals}
}

// ReverseRequest is the body of POST /reversals
type ReverseRequest struct {
	CorrelationID         string `json:"correlation_id" binding:"required,max=128"`
	ReversalCorrelationID string `json:"reversal_correlation_id" binding:"omitempty,max=128"`
	Reason                string `json:"reason" binding:"required,max=500"`
	Actor                 string `json:"actor" binding:"omitempty,max=128"`
}

// Reverse godoc
// @ID           reverseTransaction
// @Summary      Reverse a business transaction
// @Description  Writes compensating movements for every movement of a correlation
// @Tags         reversals
// @Accept       json
// @Produce      json
// @Param        body body ReverseRequest true "Correlation to reverse"
// @Success      201 {object} dto.Response{data=appledger.ReversalResult}
// @Failure      400 {object} dto.Response
// @Failure      401 {object} dto.Response
// @Failure      403 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Failure      409 {object} dto.Response
// @Failure      500 {object} dto.Response
// @Security     BearerAuth
// @Router       /reversals [post]
func (h *ReversalHandler) Reverse(c *gin.Context) {
	var req ReverseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if isValidationError(err) {
			middleware.HandleValidationError(c, err)
			return
		}
		h.BindError(c, err)
		return
	}

	result, err := h.reversals.Reverse(c.Request.Context(), appledger.ReverseRequest{
		CorrelationID:         req.CorrelationID,
		ReversalCorrelationID: req.ReversalCorrelationID,
		Reason:                req.Reason,
		Actor:                 actorOf(c, req.Actor),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}
