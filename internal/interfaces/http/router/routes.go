package router

import (
	"github.com/erp/stockledger/internal/interfaces/http/handler"
	"github.com/gin-gonic/gin"
)

// LedgerHandlers bundles the handlers served under the API prefix
type LedgerHandlers struct {
	Movements  *handler.MovementHandler
	Stock      *handler.StockHandler
	Reversals  *handler.ReversalHandler
	Trace      *handler.TraceHandler
	CacheAdmin *handler.CacheAdminHandler
	System     *handler.SystemHandler
}

// Guards restrict privileged routes. A nil guard leaves the route open.
type Guards struct {
	Reverse gin.HandlerFunc
	Admin   gin.HandlerFunc
}

// LedgerGroups builds the route groups of the ledger API
func LedgerGroups(h LedgerHandlers, guards Guards) []*DomainGroup {
	movements := NewDomainGroup("movements", "/movements").
		POST("", h.Movements.Record).
		GET("/:id", h.Movements.Get)

	products := NewDomainGroup("products", "/products/:product_id").
		GET("/movements", h.Movements.History).
		GET("/stock", h.Stock.GetStock).
		GET("/batches/:batch_number/stock", h.Stock.GetBatchStock).
		GET("/excursions", h.Stock.Excursions)

	stock := NewDomainGroup("stock", "/stock").
		POST("/query", h.Stock.Query)

	reversals := NewDomainGroup("reversals", "/reversals").
		Use(guards.Reverse).
		POST("", h.Reversals.Reverse)

	trace := NewDomainGroup("trace", "/trace").
		GET("/correlations/:correlation_id", h.Trace.ByCorrelation).
		GET("/batches/:batch_number", h.Trace.ByBatch).
		GET("/batches/:batch_number/summary", h.Trace.BatchSummary).
		GET("/serials/:serial_number", h.Trace.BySerial)

	admin := NewDomainGroup("admin", "/admin").Use(guards.Admin)
	admin.Group("cache", "/cache").
		GET("/entries", h.CacheAdmin.Entries).
		POST("/rebuild", h.CacheAdmin.Rebuild).
		POST("/verify", h.CacheAdmin.Verify).
		POST("/verify-all", h.CacheAdmin.VerifyAll).
		POST("/invalidate", h.CacheAdmin.Invalidate).
		POST("/warm-up", h.CacheAdmin.WarmUp).
		DELETE("", h.CacheAdmin.Clear)

	system := NewDomainGroup("system", "/system").
		GET("/info", h.System.GetSystemInfo)

	return []*DomainGroup{movements, products, stock, reversals, trace, admin, system}
}

// RegisterProbes mounts the unauthenticated liveness and readiness probes
// at the engine root
func RegisterProbes(engine *gin.Engine, system *handler.SystemHandler) {
	engine.GET("/health", system.Health)
	engine.GET("/ready", system.Ready)
}
