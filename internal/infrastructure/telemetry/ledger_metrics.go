package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// LedgerMetrics records movement, reversal and stock cache activity.
// A nil *LedgerMetrics is valid and records nothing.
type LedgerMetrics struct {
	movementsAppended    *Counter
	generateCalls        *Counter
	generateDuration     *Histogram
	reversals            *Counter
	insufficientStock    *Counter
	cacheLookups         *Counter
	cacheRebuilds        *Counter
	cacheInconsistencies *Counter
	cacheRefreshDuration *Histogram
}

// NewLedgerMetrics creates the ledger instruments on meter.
func NewLedgerMetrics(meter metric.Meter) (*LedgerMetrics, error) {
	var (
		m   LedgerMetrics
		err error
	)
	if m.movementsAppended, err = NewCounter(meter, "ledger_movements_appended_total", "Movements committed to the ledger", "{movement}"); err != nil {
		return nil, err
	}
	if m.generateCalls, err = NewCounter(meter, "ledger_generate_total", "Generate calls by outcome", "{call}"); err != nil {
		return nil, err
	}
	if m.generateDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "ledger_generate_duration_seconds",
		Description: "Time to validate and commit a generate call",
		Unit:        "s",
		Boundaries:  LatencyBuckets,
	}); err != nil {
		return nil, err
	}
	if m.reversals, err = NewCounter(meter, "ledger_reversals_total", "Reversal calls by outcome", "{call}"); err != nil {
		return nil, err
	}
	if m.insufficientStock, err = NewCounter(meter, "ledger_insufficient_stock_total", "Calls rejected for insufficient stock", "{call}"); err != nil {
		return nil, err
	}
	if m.cacheLookups, err = NewCounter(meter, "ledger_cache_lookups_total", "Stock cache lookups by outcome", "{lookup}"); err != nil {
		return nil, err
	}
	if m.cacheRebuilds, err = NewCounter(meter, "ledger_cache_rebuilds_total", "Stock cache entries rebuilt from the store", "{entry}"); err != nil {
		return nil, err
	}
	if m.cacheInconsistencies, err = NewCounter(meter, "ledger_cache_inconsistencies_total", "Cache entries that diverged from a recompute", "{entry}"); err != nil {
		return nil, err
	}
	if m.cacheRefreshDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "ledger_cache_refresh_duration_seconds",
		Description: "Time to fold new movements into a cache entry",
		Unit:        "s",
		Boundaries:  LatencyBuckets,
	}); err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordGenerate records a generate call and its committed movements.
func (m *LedgerMetrics) RecordGenerate(ctx context.Context, txType string, movements int, d time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{AttrTransactionType.String(txType), AttrOutcome.String(outcome(err))}
	m.generateCalls.Inc(ctx, attrs...)
	m.generateDuration.RecordDuration(ctx, d, attrs...)
	if err == nil {
		m.movementsAppended.Add(ctx, int64(movements), AttrTransactionType.String(txType))
	}
}

// RecordReversal records a reversal call.
func (m *LedgerMetrics) RecordReversal(ctx context.Context, movements int, err error) {
	if m == nil {
		return
	}
	m.reversals.Inc(ctx, AttrOutcome.String(outcome(err)))
	if err == nil {
		m.movementsAppended.Add(ctx, int64(movements), AttrMovementType.String("REVERSAL"))
	}
}

// RecordInsufficientStock counts a rejection.
func (m *LedgerMetrics) RecordInsufficientStock(ctx context.Context, txType string) {
	if m == nil {
		return
	}
	m.insufficientStock.Inc(ctx, AttrTransactionType.String(txType))
}

// RecordCacheLookup counts a cache hit or miss.
func (m *LedgerMetrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.Inc(ctx, AttrOutcome.String(result))
}

// RecordCacheRefresh records the time spent folding movements into an entry.
func (m *LedgerMetrics) RecordCacheRefresh(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.cacheRefreshDuration.RecordDuration(ctx, d, AttrCacheOperation.String("refresh"))
}

// RecordCacheRebuild counts a rebuilt entry.
func (m *LedgerMetrics) RecordCacheRebuild(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.cacheRebuilds.Inc(ctx, AttrCacheOperation.String(reason))
}

// RecordCacheInconsistency counts a diverged entry.
func (m *LedgerMetrics) RecordCacheInconsistency(ctx context.Context) {
	if m == nil {
		return
	}
	m.cacheInconsistencies.Inc(ctx)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
