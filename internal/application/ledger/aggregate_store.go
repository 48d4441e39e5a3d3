package ledger

import (
	"context"

	"github.com/erp/stockledger/internal/domain/ledger"
)

// AggregateStore holds derived stock aggregates keyed by StockKey.String().
// Entries are disposable; losing them only costs a rebuild.
type AggregateStore interface {
	// Get returns the cached aggregate, or false when absent
	Get(ctx context.Context, key ledger.StockKey) (ledger.StockAggregate, bool, error)
	// PutIfNewer stores agg unless the stored entry already has an equal or
	// higher high-water mark. Reports whether agg was stored.
	PutIfNewer(ctx context.Context, agg ledger.StockAggregate) (bool, error)
	// Put stores agg unconditionally
	Put(ctx context.Context, agg ledger.StockAggregate) error
	// Delete removes one entry
	Delete(ctx context.Context, key ledger.StockKey) error
	// List returns every cached aggregate
	List(ctx context.Context) ([]ledger.StockAggregate, error)
	// Clear removes every entry and returns how many were removed
	Clear(ctx context.Context) (int, error)
}
