package ledger

import (
	"context"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockTotal is a sum over the store together with the highest movement id
// seen for the key when the sum was taken
type StockTotal struct {
	Quantity       decimal.Decimal
	LastMovementID int64
}

// SumOptions selects which predicate a sum uses. The zero value is current
// stock on hand.
type SumOptions struct {
	// AsOf restricts to movements effective at or before this business time
	AsOf *time.Time
	// UpToID recomputes current stock as it stood at this high-water mark
	UpToID int64
}

// KeyTotal is a grouped sum for one exact (product, location, batch)
type KeyTotal struct {
	ProductID      uuid.UUID
	Location       Location
	BatchNumber    string
	Quantity       decimal.Decimal
	LastMovementID int64
}

// HistoryQuery selects movements of a product within a business-time window
type HistoryQuery struct {
	ProductID uuid.UUID
	Location  *Location
	Start     time.Time
	End       time.Time
}

// MovementReader provides read access to the movement store
type MovementReader interface {
	// FindByID returns a movement, superseded or not
	FindByID(ctx context.Context, id int64) (*Movement, error)
	// FindByCorrelation returns the movements written under a correlation id, by id
	FindByCorrelation(ctx context.Context, correlationID string) ([]*Movement, error)
	// FindTraceByCorrelation returns movements under a correlation id together with
	// any reversal movements that compensate them, ordered by occurred_at
	FindTraceByCorrelation(ctx context.Context, correlationID string) ([]*Movement, error)
	// FindByBatch returns movements of a batch ordered by occurred_at
	FindByBatch(ctx context.Context, batchNumber string) ([]*Movement, error)
	// FindBySerial returns movements of a serial ordered by occurred_at
	FindBySerial(ctx context.Context, serialNumber string) ([]*Movement, error)
	// FindHistory returns a page of a product's movements ordered by occurred_at
	FindHistory(ctx context.Context, query HistoryQuery, filter shared.Filter) ([]*Movement, int64, error)
	// FindForKey returns movements of a key with id greater than afterID, by id
	FindForKey(ctx context.Context, key StockKey, afterID int64) ([]*Movement, error)
	// SumForKey sums signed quantities for a key in a single consistent read
	SumForKey(ctx context.Context, key StockKey, opts SumOptions) (StockTotal, error)
	// SumByProducts returns grouped totals for every exact key of the products
	SumByProducts(ctx context.Context, productIDs []uuid.UUID, asOf *time.Time) ([]KeyTotal, error)
	// CorrelationExists reports whether any movement uses the correlation id
	CorrelationExists(ctx context.Context, correlationID string) (bool, error)
	// DistinctProducts lists products that have movements
	DistinctProducts(ctx context.Context) ([]uuid.UUID, error)
}

// MovementAppender appends new movements. It never accepts reversal movements,
// committed movements or any change to existing rows.
type MovementAppender interface {
	// Append writes movements in order and returns them as committed
	Append(ctx context.Context, movements []*Movement) ([]*Movement, error)
}

// MovementRepository is the read/append view of the store given to the generator
type MovementRepository interface {
	MovementReader
	MovementAppender
}

// ReversalWriter is the only capability able to supersede movements. It is
// handed out exclusively to the reversal engine's transaction scope.
type ReversalWriter interface {
	// ApplyReversal appends the plan's compensations and marks each original as
	// superseded by its compensation. Returns the committed compensations.
	ApplyReversal(ctx context.Context, plan *ReversalPlan) ([]*Movement, error)
}
