package ledger_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	appledger "github.com/erp/stockledger/internal/application/ledger"
	"github.com/erp/stockledger/internal/domain/ledger"
	"github.com/erp/stockledger/internal/infrastructure/cache"
	"github.com/erp/stockledger/internal/infrastructure/event"
	"github.com/erp/stockledger/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	t0      = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	locA    = "WH1/A/01"
	locB    = "WH2"
	errBoom = errors.New("disk error")
)

type harness struct {
	db        *gorm.DB
	repo      *persistence.GormMovementRepository
	store     *cache.InMemoryStockAggregateStore
	cache     *appledger.StockCache
	bus       *event.InMemoryEventBus
	generator *appledger.GeneratorService
	reversals *appledger.ReversalService
	stock     *appledger.StockService
	trace     *appledger.TraceService
	reports   *appledger.ReportService
}

type harnessOpt func(*harnessConfig)

type harnessConfig struct {
	policy        ledger.StockPolicy
	refreshOnRead bool
	noEvents      bool
}

func allowNegative() harnessOpt {
	return func(c *harnessConfig) { c.policy = ledger.NewNegativeStockPolicy(true) }
}

func refreshOnRead() harnessOpt {
	return func(c *harnessConfig) { c.refreshOnRead = true }
}

func withoutEvents() harnessOpt {
	return func(c *harnessConfig) { c.noEvents = true }
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
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
	return db
}

func newHarness(t *testing.T, opts ...harnessOpt) *harness {
	t.Helper()
	cfg := harnessConfig{policy: ledger.NewNegativeStockPolicy(false)}
	for _, opt := range opts {
		opt(&cfg)
	}

	log := zaptest.NewLogger(t)
	db := setupDB(t)
	repo := persistence.NewGormMovementRepository(db)
	scope := persistence.NewGormTransactionScope(db)
	store := cache.NewInMemoryStockAggregateStore()
	stockCache := appledger.NewStockCache(store, repo, log)
	bus := event.NewInMemoryEventBus(log)
	bus.Subscribe(appledger.NewCacheRefreshHandler(stockCache, log))

	generator := appledger.NewGeneratorService(repo, scope, cfg.policy, log)
	reversals := appledger.NewReversalService(scope, log)
	if !cfg.noEvents {
		generator.SetEventPublisher(bus)
		reversals.SetEventPublisher(bus)
	}

	return &harness{
		db:        db,
		repo:      repo,
		store:     store,
		cache:     stockCache,
		bus:       bus,
		generator: generator,
		reversals: reversals,
		stock:     appledger.NewStockService(repo, stockCache, cfg.refreshOnRead, log),
		trace:     appledger.NewTraceService(repo),
		reports:   appledger.NewReportService(repo, 500),
	}
}

func line(product uuid.UUID, qty int64) appledger.LineItem {
	return appledger.LineItem{ProductID: product, Quantity: decimal.NewFromInt(qty)}
}

func (h *harness) generate(t *testing.T, txType ledger.TransactionType, corr string, when time.Time, lines ...appledger.LineItem) *appledger.GenerateResult {
	t.Helper()
	res, err := h.generator.Generate(context.Background(), appledger.GenerateRequest{
		CorrelationID:   corr,
		TransactionType: string(txType),
		HeaderID:        corr,
		Lines:           lines,
		DefaultLocation: locA,
		Actor:           "tester",
		OccurredAt:      &when,
	})
	require.NoError(t, err)
	return res
}

func (h *harness) reverse(t *testing.T, corr, reason string) *appledger.ReversalResult {
	t.Helper()
	res, err := h.reversals.Reverse(context.Background(), appledger.ReverseRequest{
		CorrelationID: corr,
		Reason:        reason,
		Actor:         "supervisor",
	})
	require.NoError(t, err)
	return res
}

func (h *harness) stockOf(t *testing.T, product uuid.UUID, location string, asOf *time.Time) decimal.Decimal {
	t.Helper()
	level, err := h.stock.StockOf(context.Background(), appledger.StockQuery{ProductID: product, Location: location, AsOf: asOf})
	require.NoError(t, err)
	return level.Quantity
}

func (h *harness) movementCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Table("stock_movements").Count(&n).Error)
	return n
}

// failCreatesAfter makes every insert after the first n fail
func failCreatesAfter(t *testing.T, db *gorm.DB, n int32) {
	t.Helper()
	var seen atomic.Int32
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_after", func(tx *gorm.DB) {
		if seen.Add(1) > n {
			_ = tx.AddError(errBoom)
		}
	}))
	t.Cleanup(func() { _ = db.Callback().Create().Remove("test:fail_after") })
}

func qty(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func ptr[T any](v T) *T { return &v }
