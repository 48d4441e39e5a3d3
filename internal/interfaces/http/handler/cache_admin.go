package handler

import (
	"net/http"

	appledger "github.com/erp/stockledger/internal/application/ledger"
	"github.com/erp/stockledger/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// defaultVerifyLimit bounds an on-demand verify-all pass
const defaultVerifyLimit = 1000

// CacheAdminHandler exposes maintenance of the stock aggregate cache
type CacheAdminHandler struct {
	BaseHandler
	admin *appledger.CacheAdminService
}

// NewCacheAdminHandler creates a new CacheAdminHandler
func NewCacheAdminHandler(admin *appledger.CacheAdminService) *CacheAdminHandler {
	return &CacheAdminHandler{admin: admin}
}

// CacheKeyBody addresses one cached aggregate
type CacheKeyBody struct {
	ProductID   string `json:"product_id" binding:"required,uuid"`
	Location    string `json:"location" binding:"omitempty,max=150"`
	BatchNumber string `json:"batch_number" binding:"omitempty,max=64"`
}

func (b CacheKeyBody) toApp() appledger.CacheKeyRequest {
	return appledger.CacheKeyRequest{
		ProductID:   uuid.MustParse(b.ProductID),
		Location:    b.Location,
		BatchNumber: b.BatchNumber,
	}
}

// WarmUpBody lists the products whose aggregates are preloaded
type WarmUpBody struct {
	ProductIDs []string `json:"product_ids" binding:"required,min=1,dive,uuid"`
}

// CountData is the body of count-only responses
type CountData struct {
	Count int `json:"count"`
}

// Entries godoc
// @ID           listCacheEntries
// @Summary      List cached stock aggregates
// @Description  Lists every cached aggregate
// @Tags         cache
// @Produce      json
// @Success      200 {object} dto.Response{data=[]appledger.CacheEntry}
// @Failure      401 {object} dto.Response
// @Failure      403 {object} dto.Response
// @Failure      500 {object} dto.Response
// @Security     BearerAuth
// @Router       /admin/cache/entries [get]
func (h *CacheAdminHandler) Entries(c *gin.Context) {
	entries, err := h.admin.Entries(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entries)
}

// Rebuild godoc
// @ID           rebuildCacheEntry
// @Summary      Rebuild a cached aggregate
// @Description  Recomputes one aggregate from the movement store
// @Tags         cache
// @Accept       json
// @Produce      json
// @Param        body body CacheKeyBody true "Stock key"
// @Success      200 {object} dto.Response{data=appledger.CacheEntry}
// @Failure      400 {object} dto.Response
// @Failure      401 {object} dto.Response
// @Failure      403 {object} dto.Response
// @Failure      500 {object} dto.Response
// @Security     BearerAuth
// @Router       /admin/cache/rebuild [post]
func (h *CacheAdminHandler) Rebuild(c *gin.Context) {
	body, ok := h.bindKey(c)
	if !ok {
		return
	}
	entry, err := h.admin.Rebuild(c.Request.Context(), body.toApp())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entry)
}

// Verify godoc
// @ID           verifyCacheEntry
// @Summary      Verify a cached aggregate
// @Description  Compares one aggregate with the store, repairing drift
// @Tags         cache
// @Accept       json
// @Produce      json
// @Param        body body CacheKeyBody true "Stock key"
// @Success      200 {object} dto.Response{data=appledger.CacheVerifyResult}
// @Failure      400 {object} dto.Response
// @Failure      401 {object} dto.Response
// @Failure      403 {object} dto.Response
// @Failure      500 {object} dto.Response
// @Security     BearerAuth
// @Router       /admin/cache/verify [post]
func (h *CacheAdminHandler) Verify(c *gin.Context) {
	body, ok := h.bindKey(c)
	if !ok {
		return
	}
	result, err := h.admin.Verify(c.Request.Context(), body.toApp())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// VerifyAll godoc
// @ID           verifyAllCacheEntries
// @Summary      Verify cached aggregates
// @Description  Checks up to limit cached aggregates
// @Tags         cache
// @Produce      json
// @Param        limit query int false "Maximum entries to check" default(1000)
// @Success      200 {object} dto.Response{data=appledger.VerifyReport}
// @Failure      400 {object} dto.Response
// @Failure      401 {object} dto.Response
// @Failure      403 {object} dto.Response
// @Failure      500 {object} dto.Response
// @Security     BearerAuth
// @Router       /admin/cache/verify-all [post]
func (h *CacheAdminHandler) VerifyAll(c *gin.Context) {
	limit, err := intQuery(c, "limit")
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if limit <= 0 {
		limit = defaultVerifyLimit
	}
	report, err := h.admin.VerifyAll(c.Request.Context(), limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// Invalidate godoc
// @ID           invalidateCacheEntry
// @Summary      Invalidate a cached aggregate
// @Description  Drops one aggregate; the next read recomputes it
// @Tags         cache
// @Accept       json
// @Produce      json
// @Param        body body CacheKeyBody true "Stock key"
// @Success      204
// @Failure      400 {object} dto.Response
// @Failure      401 {object} dto.Response
// @Failure      403 {object} dto.Response
// @Failure      500 {object} dto.Response
// @Security     BearerAuth
// @Router       /admin/cache/invalidate [post]
func (h *CacheAdminHandler) Invalidate(c *gin.Context) {
	body, ok := h.bindKey(c)
	if !ok {
		return
	}
	if err := h.admin.Invalidate(c.Request.Context(), body.toApp()); err != nil {
		h.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Clear godoc
// @ID           clearCache
// @Summary      Clear the stock cache
// @Description  Drops every cached aggregate
// @Tags         cache
// @Produce      json
// @Success      200 {object} dto.Response{data=CountData}
// @Failure      401 {object} dto.Response
// @Failure      403 {object} dto.Response
// @Failure      500 {object} dto.Response
// @Security     BearerAuth
// @Router       /admin/cache [delete]
func (h *CacheAdminHandler) Clear(c *gin.Context) {
	n, err := h.admin.Clear(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, CountData{Count: n})
}

// WarmUp godoc
// @ID           warmUpCache
// @Summary      Warm up the stock cache
// @Description  Preloads the aggregates of the given products
// @Tags         cache
// @Accept       json
// @Produce      json
// @Param        body body WarmUpBody true "Products to preload"
// @Success      200 {object} dto.Response{data=CountData}
// @Failure      400 {object} dto.Response
// @Failure      401 {object} dto.Response
// @Failure      403 {object} dto.Response
// @Failure      500 {object} dto.Response
// @Security     BearerAuth
// @Router       /admin/cache/warm-up [post]
func (h *CacheAdminHandler) WarmUp(c *gin.Context) {
	var body WarmUpBody
	if err := c.ShouldBindJSON(&body); err != nil {
		if isValidationError(err) {
			middleware.HandleValidationError(c, err)
			return
		}
		h.BindError(c, err)
		return
	}
	ids := make([]uuid.UUID, 0, len(body.ProductIDs))
	for _, raw := range body.ProductIDs {
		ids = append(ids, uuid.MustParse(raw))
	}
	n, err := h.admin.WarmUp(c.Request.Context(), ids)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, CountData{Count: n})
}

func (h *CacheAdminHandler) bindKey(c *gin.Context) (CacheKeyBody, bool) {
	var body CacheKeyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		if isValidationError(err) {
			middleware.HandleValidationError(c, err)
		} else {
			h.BindError(c, err)
		}
		return body, false
	}
	return body, true
}
