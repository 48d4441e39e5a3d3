package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/erp/stockledger/internal/domain/ledger"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Rebuild reasons recorded on the rebuild metric
const (
	rebuildMiss     = "miss"
	rebuildExplicit = "explicit"
	rebuildVerify   = "verify"
	rebuildWarmUp   = "warm_up"
)

// StockCache maintains derived stock aggregates. Entries advance
// incrementally from their high-water mark and can be dropped and rebuilt
// from the movement store at any time without changing any stock answer.
type StockCache struct {
	store   AggregateStore
	reader  ledger.MovementReader
	metrics *telemetry.LedgerMetrics
	logger  *zap.Logger
	now     func() time.Time

	locks sync.Map // key string -> *sync.Mutex
}

// NewStockCache creates a new StockCache
func NewStockCache(store AggregateStore, reader ledger.MovementReader, zapLogger *zap.Logger) *StockCache {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	return &StockCache{
		store:  store,
		reader: reader,
		logger: zapLogger.Named("stock_cache"),
		now:    time.Now,
	}
}

// SetMetrics sets the ledger metrics recorder
func (c *StockCache) SetMetrics(m *telemetry.LedgerMetrics) {
	c.metrics = m
}

func (c *StockCache) lock(key ledger.StockKey) func() {
	v, _ := c.locks.LoadOrStore(key.String(), &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Get returns the cached aggregate without touching the movement store
func (c *StockCache) Get(ctx context.Context, key ledger.StockKey) (ledger.StockAggregate, bool, error) {
	agg, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return ledger.StockAggregate{}, false, err
	}
	c.metrics.RecordCacheLookup(ctx, ok)
	return agg, ok, nil
}

// Refresh folds movements committed after the entry's high-water mark into
// it. A missing entry is rebuilt.
func (c *StockCache) Refresh(ctx context.Context, key ledger.StockKey) (ledger.StockAggregate, error) {
	unlock := c.lock(key)
	defer unlock()

	current, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return ledger.StockAggregate{}, err
	}
	if !ok {
		return c.rebuildLocked(ctx, key, rebuildMiss)
	}

	start := time.Now()
	movements, err := c.reader.FindForKey(ctx, key, current.LastMovementID)
	if err != nil {
		return ledger.StockAggregate{}, err
	}
	if len(movements) == 0 {
		return current, nil
	}

	next := current.Fold(movements, c.now())
	if _, err := c.store.PutIfNewer(ctx, next); err != nil {
		return ledger.StockAggregate{}, err
	}
	c.metrics.RecordCacheRefresh(ctx, time.Since(start))
	return next, nil
}

// Rebuild discards the entry and recomputes it from the full movement store
func (c *StockCache) Rebuild(ctx context.Context, key ledger.StockKey) (ledger.StockAggregate, error) {
	unlock := c.lock(key)
	defer unlock()
	return c.rebuildLocked(ctx, key, rebuildExplicit)
}

func (c *StockCache) rebuildLocked(ctx context.Context, key ledger.StockKey, reason string) (ledger.StockAggregate, error) {
	total, err := c.reader.SumForKey(ctx, key, ledger.SumOptions{})
	if err != nil {
		return ledger.StockAggregate{}, err
	}
	agg := ledger.StockAggregate{
		Key:            key,
		QuantityOnHand: total.Quantity,
		LastMovementID: total.LastMovementID,
		ComputedAt:     c.now(),
	}
	if err := c.store.Put(ctx, agg); err != nil {
		return ledger.StockAggregate{}, err
	}
	c.metrics.RecordCacheRebuild(ctx, reason)
	return agg, nil
}

// Verify compares an entry with a recompute at the entry's high-water mark.
// A divergence is logged as CACHE_INCONSISTENCY and the entry is rebuilt;
// the error is never returned. Reports whether the entry was consistent.
func (c *StockCache) Verify(ctx context.Context, key ledger.StockKey) (bool, error) {
	unlock := c.lock(key)
	defer unlock()

	cached, ok, err := c.store.Get(ctx, key)
	if err != nil || !ok {
		return true, err
	}
	// An entry with no high-water mark was computed over zero movements.
	recomputed := ledger.StockTotal{}
	if cached.LastMovementID > 0 {
		if recomputed, err = c.reader.SumForKey(ctx, key, ledger.SumOptions{UpToID: cached.LastMovementID}); err != nil {
			return false, err
		}
	}
	if recomputed.Quantity.Equal(cached.QuantityOnHand) {
		return true, nil
	}

	inconsistency := ledger.NewCacheInconsistencyError(key, cached.QuantityOnHand, recomputed.Quantity, cached.LastMovementID)
	logger.For(ctx, c.logger).Error("stock cache diverged from movement store",
		zap.String("code", inconsistency.Code),
		zap.String("key", key.String()),
		zap.String("cached", cached.QuantityOnHand.String()),
		zap.String("recomputed", recomputed.Quantity.String()),
		zap.Int64("last_movement_id", cached.LastMovementID),
	)
	c.metrics.RecordCacheInconsistency(ctx)

	if _, err := c.rebuildLocked(ctx, key, rebuildVerify); err != nil {
		return false, err
	}
	return false, nil
}

// VerifyAll verifies up to limit cached entries; limit <= 0 checks all
func (c *StockCache) VerifyAll(ctx context.Context, limit int) (VerifyReport, error) {
	entries, err := c.store.List(ctx)
	if err != nil {
		return VerifyReport{}, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	var report VerifyReport
	var errs []error
	for _, e := range entries {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		ok, err := c.Verify(ctx, e.Key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		report.Checked++
		if !ok {
			report.Inconsistent++
			report.Rebuilt = append(report.Rebuilt, e.Key.String())
		}
	}
	return report, errors.Join(errs...)
}

// Entries lists every cached aggregate
func (c *StockCache) Entries(ctx context.Context) ([]ledger.StockAggregate, error) {
	return c.store.List(ctx)
}

// Invalidate drops one entry; the next read rebuilds it
func (c *StockCache) Invalidate(ctx context.Context, key ledger.StockKey) error {
	unlock := c.lock(key)
	defer unlock()
	return c.store.Delete(ctx, key)
}

// Clear drops every entry
func (c *StockCache) Clear(ctx context.Context) (int, error) {
	n, err := c.store.Clear(ctx)
	if err != nil {
		return 0, err
	}
	logger.For(ctx, c.logger).Info("stock cache cleared", zap.Int("entries", n))
	return n, nil
}

// RefreshKeys refreshes each key, continuing past failures
func (c *StockCache) RefreshKeys(ctx context.Context, keys []ledger.StockKey) error {
	var errs []error
	for _, key := range keys {
		if _, err := c.Refresh(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RefreshCovering refreshes keys plus every cached entry that aggregates over
// one of their exact locations, such as the site or zone above a bin, or the
// batch wildcard above a batch
func (c *StockCache) RefreshCovering(ctx context.Context, keys []ledger.StockKey) error {
	entries, err := c.store.List(ctx)
	if err != nil {
		return errors.Join(err, c.RefreshKeys(ctx, keys))
	}

	targets := make([]ledger.StockKey, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		seen[k.String()] = struct{}{}
		targets = append(targets, k)
	}
	for _, e := range entries {
		if _, ok := seen[e.Key.String()]; ok {
			continue
		}
		if coversAny(e.Key, keys) {
			seen[e.Key.String()] = struct{}{}
			targets = append(targets, e.Key)
		}
	}
	return c.RefreshKeys(ctx, targets)
}

// coversAny reports whether parent aggregates over any exact movement key
func coversAny(parent ledger.StockKey, keys []ledger.StockKey) bool {
	for _, k := range keys {
		if k.Location == nil {
			continue
		}
		batch := ""
		if k.BatchNumber != nil {
			batch = *k.BatchNumber
		}
		if parent.Covers(k.ProductID, *k.Location, batch) {
			return true
		}
	}
	return false
}

// WarmUp rebuilds the product-wide entry and every exact (location, batch)
// entry of the given products. With no products, every product with
// movements is warmed. Returns the number of entries built.
func (c *StockCache) WarmUp(ctx context.Context, productIDs []uuid.UUID) (int, error) {
	if len(productIDs) == 0 {
		ids, err := c.reader.DistinctProducts(ctx)
		if err != nil {
			return 0, err
		}
		productIDs = ids
	}
	if len(productIDs) == 0 {
		return 0, nil
	}

	totals, err := c.reader.SumByProducts(ctx, productIDs, nil)
	if err != nil {
		return 0, err
	}
	keys := make([]ledger.StockKey, 0, len(productIDs)+len(totals))
	for _, id := range productIDs {
		keys = append(keys, ledger.ProductKey(id))
	}
	for _, t := range totals {
		keys = append(keys, ledger.NewStockKey(t.ProductID, t.Location, t.BatchNumber))
	}

	built := 0
	for _, key := range keys {
		unlock := c.lock(key)
		_, err := c.rebuildLocked(ctx, key, rebuildWarmUp)
		unlock()
		if err != nil {
			return built, err
		}
		built++
	}
	logger.For(ctx, c.logger).Info("stock cache warmed up",
		zap.Int("products", len(productIDs)),
		zap.Int("entries", built),
	)
	return built, nil
}
