package ledger

import (
	"context"
	"time"

	"github.com/erp/stockledger/internal/domain/ledger"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// StockService answers stock-on-hand queries. Current stock is served from
// the cache; as-of queries always sum the movement store directly.
type StockService struct {
	reader        ledger.MovementReader
	cache         *StockCache
	refreshOnRead bool
	logger        *zap.Logger
}

// NewStockService creates a new StockService. When refreshOnRead is set, a
// cache hit is first advanced past any movements committed since it was built.
func NewStockService(reader ledger.MovementReader, cache *StockCache, refreshOnRead bool, zapLogger *zap.Logger) *StockService {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	return &StockService{
		reader:        reader,
		cache:         cache,
		refreshOnRead: refreshOnRead,
		logger:        zapLogger.Named("stock"),
	}
}

// StockOf returns stock on hand for a product, optionally narrowed by
// location and batch, now or as of a business time
func (s *StockService) StockOf(ctx context.Context, q StockQuery) (*StockLevel, error) {
	if err := validateRequest(q); err != nil {
		return nil, err
	}
	key, err := stockKey(q.ProductID, q.Location, q.BatchNumber)
	if err != nil {
		return nil, err
	}

	if q.AsOf != nil {
		asOf := *q.AsOf
		total, err := s.reader.SumForKey(ctx, key, ledger.SumOptions{AsOf: &asOf})
		if err != nil {
			return nil, err
		}
		level := levelFor(key, total.Quantity, SourceStore)
		level.AsOf = &asOf
		return &level, nil
	}

	if s.cache != nil {
		agg, err := s.cached(ctx, key)
		if err == nil {
			level := levelFor(key, agg.QuantityOnHand, SourceCache)
			level.LastMovementID = agg.LastMovementID
			return &level, nil
		}
		logger.For(ctx, s.logger).Warn("stock cache unavailable, summing movement store",
			zap.String("key", key.String()), zap.Error(err))
	}

	total, err := s.reader.SumForKey(ctx, key, ledger.SumOptions{})
	if err != nil {
		return nil, err
	}
	level := levelFor(key, total.Quantity, SourceStore)
	level.LastMovementID = total.LastMovementID
	return &level, nil
}

func (s *StockService) cached(ctx context.Context, key ledger.StockKey) (ledger.StockAggregate, error) {
	agg, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		return ledger.StockAggregate{}, err
	}
	if !ok || s.refreshOnRead {
		return s.cache.Refresh(ctx, key)
	}
	return agg, nil
}

// StockOfBatch returns stock on hand of one batch of a product across all
// locations
func (s *StockService) StockOfBatch(ctx context.Context, productID uuid.UUID, batchNumber string, asOf *time.Time) (*StockLevel, error) {
	if batchNumber == "" {
		return nil, shared.ErrInvalidInput.WithMessage("batch_number is required")
	}
	return s.StockOf(ctx, StockQuery{ProductID: productID, BatchNumber: batchNumber, AsOf: asOf})
}

// StockOfMany answers many queries with one grouped read of the movement
// store, optionally as of a business time. Results follow the query order.
func (s *StockService) StockOfMany(ctx context.Context, queries []StockQuery, asOf *time.Time) ([]StockLevel, error) {
	if len(queries) == 0 {
		return []StockLevel{}, nil
	}

	keys := make([]ledger.StockKey, 0, len(queries))
	products := make([]uuid.UUID, 0, len(queries))
	seen := make(map[uuid.UUID]struct{}, len(queries))
	for i, q := range queries {
		if err := validateRequest(q); err != nil {
			return nil, withLine(err, i+1)
		}
		key, err := stockKey(q.ProductID, q.Location, q.BatchNumber)
		if err != nil {
			return nil, withLine(err, i+1)
		}
		keys = append(keys, key)
		if _, ok := seen[q.ProductID]; !ok {
			seen[q.ProductID] = struct{}{}
			products = append(products, q.ProductID)
		}
	}

	totals, err := s.reader.SumByProducts(ctx, products, asOf)
	if err != nil {
		return nil, err
	}

	levels := make([]StockLevel, 0, len(keys))
	for _, key := range keys {
		qty := decimal.Zero
		var hwm int64
		for _, t := range totals {
			if key.Covers(t.ProductID, t.Location, t.BatchNumber) {
				qty = qty.Add(t.Quantity)
				if t.LastMovementID > hwm {
					hwm = t.LastMovementID
				}
			}
		}
		level := levelFor(key, qty, SourceStore)
		if asOf != nil {
			at := *asOf
			level.AsOf = &at
		} else {
			level.LastMovementID = hwm
		}
		levels = append(levels, level)
	}
	return levels, nil
}

func levelFor(key ledger.StockKey, qty decimal.Decimal, source string) StockLevel {
	level := StockLevel{
		ProductID: key.ProductID,
		Quantity:  qty,
		Source:    source,
	}
	if key.Location != nil {
		level.Location = key.Location.Code()
	}
	if key.BatchNumber != nil {
		level.BatchNumber = *key.BatchNumber
	}
	return level
}
