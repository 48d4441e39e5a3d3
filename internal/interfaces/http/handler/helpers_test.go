package handler

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	appledger "github.com/erp/stockledger/internal/application/ledger"
	"github.com/erp/stockledger/internal/domain/ledger"
	"github.com/erp/stockledger/internal/infrastructure/auth"
	"github.com/erp/stockledger/internal/infrastructure/cache"
	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/erp/stockledger/internal/infrastructure/event"
	"github.com/erp/stockledger/internal/infrastructure/persistence"
	"github.com/erp/stockledger/internal/interfaces/http/dto"
	"github.com/erp/stockledger/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

type apiEnv struct {
	engine *gin.Engine
	store  *cache.InMemoryStockAggregateStore
	jwt    *auth.JWTService
}

type envOpt func(*envConfig)

type envConfig struct {
	withAuth bool
}

func withAuth() envOpt { return func(c *envConfig) { c.withAuth = true } }

// newAPI wires the real services over an in-memory SQLite ledger and mounts
// every handler on a fresh engine
func newAPI(t *testing.T, opts ...envOpt) *apiEnv {
	t.Helper()
	var cfg envConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	log := zaptest.NewLogger(t)
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, persistence.AutoMigrate(db))

	repo := persistence.NewGormMovementRepository(db)
	scope := persistence.NewGormTransactionScope(db)
	store := cache.NewInMemoryStockAggregateStore()
	stockCache := appledger.NewStockCache(store, repo, log)
	bus := event.NewInMemoryEventBus(log)
	bus.Subscribe(appledger.NewCacheRefreshHandler(stockCache, log))

	generator := appledger.NewGeneratorService(repo, scope, ledger.NewNegativeStockPolicy(false), log)
	generator.SetEventPublisher(bus)
	reversals := appledger.NewReversalService(scope, log)
	reversals.SetEventPublisher(bus)
	reports := appledger.NewReportService(repo, 100)

	movements := NewMovementHandler(generator, reports)
	stock := NewStockHandler(appledger.NewStockService(repo, stockCache, false, log), reports)
	reversalHandler := NewReversalHandler(reversals)
	trace := NewTraceHandler(appledger.NewTraceService(repo))
	admin := NewCacheAdminHandler(appledger.NewCacheAdminService(stockCache))

	env := &apiEnv{engine: gin.New(), store: store}
	env.engine.Use(middleware.RequestID())
	api := env.engine.Group("/api/v1")

	var reverseGuard, adminGuard []gin.HandlerFunc
	if cfg.withAuth {
		env.jwt = auth.NewJWTService(config.JWTConfig{Secret: "handler-test-secret", Issuer: "stock-ledger"})
		api.Use(middleware.JWTAuthMiddleware(env.jwt))
		reverseGuard = append(reverseGuard, middleware.RequireRole(log, "ledger:reverse"))
		adminGuard = append(adminGuard, middleware.RequireRole(log, "ledger:admin"))
	}

	api.POST("/movements", movements.Record)
	api.GET("/movements/:id", movements.Get)
	api.GET("/products/:product_id/movements", movements.History)
	api.GET("/products/:product_id/stock", stock.GetStock)
	api.GET("/products/:product_id/batches/:batch_number/stock", stock.GetBatchStock)
	api.GET("/products/:product_id/excursions", stock.Excursions)
	api.POST("/stock/query", stock.Query)
	api.POST("/reversals", append(reverseGuard, reversalHandler.Reverse)...)
	api.GET("/trace/correlations/:correlation_id", trace.ByCorrelation)
	api.GET("/trace/batches/:batch_number", trace.ByBatch)
	api.GET("/trace/batches/:batch_number/summary", trace.BatchSummary)
	api.GET("/trace/serials/:serial_number", trace.BySerial)

	cacheGroup := api.Group("/admin/cache", adminGuard...)
	cacheGroup.GET("/entries", admin.Entries)
	cacheGroup.POST("/rebuild", admin.Rebuild)
	cacheGroup.POST("/verify", admin.Verify)
	cacheGroup.POST("/verify-all", admin.VerifyAll)
	cacheGroup.POST("/invalidate", admin.Invalidate)
	cacheGroup.POST("/warm-up", admin.WarmUp)
	cacheGroup.DELETE("", admin.Clear)

	return env
}

func (e *apiEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func (e *apiEnv) bearer(t *testing.T, subject string, roles ...string) []string {
	t.Helper()
	token, _, err := e.jwt.GenerateToken(subject, roles...)
	require.NoError(t, err)
	return []string{"Authorization", "Bearer " + token}
}

// envelope decodes the standard response wrapper with typed data
type envelope[T any] struct {
	Success bool           `json:"success"`
	Data    T              `json:"data"`
	Error   *dto.ErrorInfo `json:"error"`
	Meta    *dto.Meta      `json:"meta"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var out envelope[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func requireStatus(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
}

func receipt(corr, product string, qty int, extra ...func(map[string]any)) map[string]any {
	line := map[string]any{"product_id": product, "quantity": qty}
	for _, fn := range extra {
		fn(line)
	}
	return map[string]any{
		"correlation_id":   corr,
		"transaction_type": "RECEIPT",
		"header_id":        "PO-" + corr,
		"default_location": "WH1/A",
		"actor":            "clerk",
		"occurred_at":      "2026-03-01T09:00:00Z",
		"lines":            []map[string]any{line},
	}
}

func withBatch(batch string) func(map[string]any) {
	return func(l map[string]any) { l["batch_number"] = batch }
}

func withSerial(serial string) func(map[string]any) {
	return func(l map[string]any) { l["serial_number"] = serial }
}

