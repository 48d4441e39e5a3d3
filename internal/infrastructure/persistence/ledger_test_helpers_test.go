package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	appledger "github.com/erp/stockledger/internal/application/ledger"
	"github.com/erp/stockledger/internal/domain/ledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	siteA     = ledger.Location{Site: "WH1", Zone: "A", Bin: "01"}
	siteAZone = ledger.Location{Site: "WH1", Zone: "A"}
	siteB     = ledger.Location{Site: "WH2"}
	t0        = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
)

func setupLedgerTestDB(t *testing.T) *gorm.DB {
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

	require.NoError(t, AutoMigrate(db))
	return db
}

type movementOpt func(*ledger.MovementSpec)

func withBatch(b string) movementOpt  { return func(s *ledger.MovementSpec) { s.BatchNumber = b } }
func withSerial(n string) movementOpt { return func(s *ledger.MovementSpec) { s.SerialNumber = n } }
func at(ts time.Time) movementOpt     { return func(s *ledger.MovementSpec) { s.OccurredAt = ts } }
func withQuantity(q string) movementOpt {
	return func(s *ledger.MovementSpec) { s.Quantity = decimal.RequireFromString(q) }
}
func atLocation(l ledger.Location) movementOpt {
	return func(s *ledger.MovementSpec) { s.Location = l }
}

func newTestMovement(t *testing.T, product uuid.UUID, dir ledger.Direction, qty int64, corr string, opts ...movementOpt) *ledger.Movement {
	t.Helper()
	mt := ledger.MovementTypeReceipt
	txType := ledger.TransactionTypeReceipt
	if dir == ledger.DirectionOut {
		mt = ledger.MovementTypeSale
		txType = ledger.TransactionTypeSale
	}
	spec := ledger.MovementSpec{
		ProductID:     product,
		Location:      siteA,
		Quantity:      decimal.NewFromInt(qty),
		Direction:     dir,
		MovementType:  mt,
		Source:        ledger.SourceReference{TransactionType: txType, HeaderID: corr},
		CorrelationID: corr,
		Reason:        "test",
		RecordedBy:    "tester",
		OccurredAt:    t0,
	}
	for _, opt := range opts {
		opt(&spec)
	}
	m, err := ledger.NewMovement(spec)
	require.NoError(t, err)
	return m
}

func appendAll(t *testing.T, db *gorm.DB, movements ...*ledger.Movement) []*ledger.Movement {
	t.Helper()
	var committed []*ledger.Movement
	err := NewGormTransactionScope(db).ExecuteAppend(context.Background(), func(repos appledger.AppendRepositories) error {
		var err error
		committed, err = repos.Movements().Append(context.Background(), movements)
		return err
	})
	require.NoError(t, err)
	return committed
}

func reverseCorrelation(t *testing.T, db *gorm.DB, original, reversal string, now time.Time) ([]*ledger.Movement, error) {
	t.Helper()
	var committed []*ledger.Movement
	err := NewGormTransactionScope(db).ExecuteReversal(context.Background(), func(repos appledger.ReversalRepositories) error {
		originals, err := repos.Movements().FindByCorrelation(context.Background(), original)
		if err != nil {
			return err
		}
		plan, err := ledger.PlanReversal(originals, ledger.ReversalRequest{
			OriginalCorrelationID: original,
			ReversalCorrelationID: reversal,
			Reason:                "entered in error",
			Actor:                 "tester",
			Now:                   now,
		})
		if err != nil {
			return err
		}
		committed, err = repos.Reversals().ApplyReversal(context.Background(), plan)
		return err
	})
	return committed, err
}

var errInjected = errors.New("injected insert failure")

// failCreatesAfter makes every insert after the first n fail
func failCreatesAfter(t *testing.T, db *gorm.DB, n int) {
	t.Helper()
	count := 0
	err := db.Callback().Create().Before("gorm:create").Register("test:fail_after", func(tx *gorm.DB) {
		count++
		if count > n {
			_ = tx.AddError(errInjected)
		}
	})
	require.NoError(t, err)
}
