package ledger

import (
	"context"
	"fmt"

	"github.com/erp/stockledger/internal/domain/ledger"
	"github.com/erp/stockledger/internal/domain/shared"
	"go.uber.org/zap"
)

// CacheRefreshHandler advances the stock cache after movements are recorded
// or reversed
type CacheRefreshHandler struct {
	cache  *StockCache
	logger *zap.Logger
}

// NewCacheRefreshHandler creates a handler refreshing cache on ledger events
func NewCacheRefreshHandler(cache *StockCache, logger *zap.Logger) *CacheRefreshHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheRefreshHandler{cache: cache, logger: logger}
}

// EventTypes returns the event types this handler is interested in
func (h *CacheRefreshHandler) EventTypes() []string {
	return []string{ledger.EventTypeMovementsRecorded, ledger.EventTypeMovementsReversed}
}

// Handle refreshes every exact key and product-wide key touched by the event,
// and every cached location or batch rollup above them.
// A failed refresh leaves the entry stale; the next read or verify pass fixes it.
func (h *CacheRefreshHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	keys := ledger.AffectedStockKeys(event)
	if len(keys) == 0 {
		return nil
	}
	if err := h.cache.RefreshCovering(ctx, keys); err != nil {
		return fmt.Errorf("refresh %d cache keys for %s: %w", len(keys), event.AggregateID(), err)
	}
	h.logger.Debug("stock cache refreshed",
		zap.String("event_type", event.EventType()),
		zap.String("correlation_id", event.AggregateID()),
		zap.Int("keys", len(keys)),
	)
	return nil
}

var _ shared.EventHandler = (*CacheRefreshHandler)(nil)
