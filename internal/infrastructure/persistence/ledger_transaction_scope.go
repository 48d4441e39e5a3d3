package persistence

import (
	"context"

	appledger "github.com/erp/stockledger/internal/application/ledger"
	"github.com/erp/stockledger/internal/domain/ledger"
	"github.com/erp/stockledger/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// ledgerWriterLockKey is the Postgres advisory lock taken by every ledger
// write transaction. Holding it until commit makes id order equal commit
// order, which the stock cache high-water mark depends on, and makes the
// in-transaction availability check authoritative.
const ledgerWriterLockKey int64 = 0x53544b4c4447

// GormTransactionScope implements TransactionScope using GORM transactions
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// ExecuteAppend runs fn inside a serialized write transaction
func (s *GormTransactionScope) ExecuteAppend(ctx context.Context, fn func(repos appledger.AppendRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockWriters(tx); err != nil {
			return err
		}
		return fn(&gormAppendRepositories{tx: tx})
	})
}

// ExecuteReversal runs fn inside a serialized write transaction that may
// supersede movements
func (s *GormTransactionScope) ExecuteReversal(ctx context.Context, fn func(repos appledger.ReversalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockWriters(tx); err != nil {
			return err
		}
		return fn(&gormReversalRepositories{tx: tx})
	})
}

// lockWriters takes the ledger writer lock on Postgres. SQLite already
// serializes writers.
func lockWriters(tx *gorm.DB) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec("SELECT pg_advisory_xact_lock(?)", ledgerWriterLockKey).Error
}

type gormAppendRepositories struct {
	tx *gorm.DB
}

// Movements returns the movement repository bound to the transaction
func (r *gormAppendRepositories) Movements() ledger.MovementRepository {
	return NewGormMovementRepository(r.tx)
}

type gormReversalRepositories struct {
	tx *gorm.DB
}

// Movements returns a read-only movement repository bound to the transaction
func (r *gormReversalRepositories) Movements() ledger.MovementReader {
	return NewGormMovementRepository(r.tx)
}

// Reversals returns the supersede-capable writer bound to the transaction
func (r *gormReversalRepositories) Reversals() ledger.ReversalWriter {
	return &gormReversalWriter{tx: r.tx}
}

// gormReversalWriter appends compensations and marks originals superseded.
// It is unexported so that it can only be reached through a reversal scope.
type gormReversalWriter struct {
	tx *gorm.DB
}

// ApplyReversal writes each compensation and then supersedes its original.
// The supersede update only matches live rows, so a concurrent reversal that
// got there first surfaces as ErrAlreadyReversed.
func (w *gormReversalWriter) ApplyReversal(ctx context.Context, plan *ledger.ReversalPlan) ([]*ledger.Movement, error) {
	if plan == nil || len(plan.Pairs()) == 0 {
		return nil, ledger.ErrEmptyBatch
	}

	tx := w.tx.WithContext(ctx)
	recordedAt := tx.NowFunc().UTC()
	committed := make([]*ledger.Movement, 0, len(plan.Pairs()))
	for _, pair := range plan.Pairs() {
		model, err := insertMovement(tx, pair.Compensation, recordedAt)
		if err != nil {
			return nil, err
		}

		res := tx.Model(&models.MovementModel{}).
			Where("id = ? AND superseded_by IS NULL AND is_deleted = ?", pair.Original.ID(), false).
			Updates(map[string]any{
				models.ColumnSupersededBy: model.ID,
				models.ColumnIsDeleted:    true,
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected != 1 {
			return nil, ledger.NewAlreadyReversedError(plan.OriginalCorrelationID(), pair.Original.ID())
		}
		committed = append(committed, model.ToDomain())
	}
	return committed, nil
}

// Ensure GormTransactionScope implements TransactionScope
var _ appledger.TransactionScope = (*GormTransactionScope)(nil)
