package ledger_test

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	appledger "github.com/erp/stockledger/internal/application/ledger"
	"github.com/erp/stockledger/internal/domain/ledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLocation(t *testing.T, code string) ledger.Location {
	t.Helper()
	loc, err := ledger.ParseLocation(code)
	require.NoError(t, err)
	return loc
}

// Random generate/reverse sequences: after every step the incrementally
// refreshed cache, a rebuild, a store sum and an in-memory recompute agree.
func TestStockCache_EquivalenceUnderRandomSequences(t *testing.T) {
	for seed := int64(1); seed <= 3; seed++ {
		t.Run(fmt.Sprintf("seed %d", seed), func(t *testing.T) {
			ctx := context.Background()
			rng := rand.New(rand.NewSource(seed))
			h := newHarness(t, allowNegative(), withoutEvents())

			products := []uuid.UUID{uuid.New(), uuid.New()}
			locations := []string{"WH1/A/01", "WH1/A/02", "WH2"}
			batches := []string{"", "LOT-1"}
			txTypes := []ledger.TransactionType{
				ledger.TransactionTypeReceipt, ledger.TransactionTypeSale,
				ledger.TransactionTypeAdjustmentIn, ledger.TransactionTypeVarianceLoss,
				ledger.TransactionTypeTransfer,
			}

			var keys []ledger.StockKey
			for _, p := range products {
				keys = append(keys, ledger.ProductKey(p), ledger.ProductKey(p).WithBatch("LOT-1"))
				for _, l := range []string{"WH1", "WH1/A", "WH1/A/01", "WH2"} {
					keys = append(keys, ledger.ProductKey(p).WithLocation(mustLocation(t, l)))
				}
			}

			var correlations []string
			for step := 0; step < 40; step++ {
				if len(correlations) > 0 && rng.Intn(4) == 0 {
					i := rng.Intn(len(correlations))
					_, _ = h.reversals.Reverse(ctx, appledger.ReverseRequest{
						CorrelationID: correlations[i], Reason: "random void", Actor: "prop",
					})
				} else {
					corr := fmt.Sprintf("C-%d", step)
					n := 1 + rng.Intn(3)
					items := make([]appledger.LineItem, 0, n)
					for j := 0; j < n; j++ {
						// Up to four decimal places, which REAL arithmetic cannot sum exactly.
						item := line(products[rng.Intn(len(products))], 0)
						item.Quantity = decimal.New(int64(1+rng.Intn(2000)), -int32(rng.Intn(ledger.QuantityScale+1)))
						src := rng.Intn(len(locations))
						item.Location = locations[src]
						item.DestinationLocation = locations[(src+1+rng.Intn(len(locations)-1))%len(locations)]
						item.BatchNumber = batches[rng.Intn(len(batches))]
						items = append(items, item)
					}
					// Backdate some movements so occurred_at order differs from id order.
					when := t0.Add(time.Duration(rng.Intn(1000)) * time.Minute)
					h.generate(t, txTypes[rng.Intn(len(txTypes))], corr, when, items...)
					correlations = append(correlations, corr)
				}

				if rng.Intn(3) != 0 {
					continue
				}
				for _, key := range keys {
					refreshed, err := h.cache.Refresh(ctx, key)
					require.NoError(t, err)

					total, err := h.repo.SumForKey(ctx, key, ledger.SumOptions{})
					require.NoError(t, err)
					all, err := h.repo.FindForKey(ctx, key, 0)
					require.NoError(t, err)
					recomputed := ledger.StockOnHand(key, all)

					assert.True(t, total.Quantity.Equal(refreshed.QuantityOnHand),
						"step %d key %s: refresh %s store %s", step, key, refreshed.QuantityOnHand, total.Quantity)
					assert.True(t, recomputed.Equal(total.Quantity), "step %d key %s", step, key)
					assert.Equal(t, total.LastMovementID, refreshed.LastMovementID)
				}
			}

			// Dropping the cache never changes an answer.
			before := make([]string, 0, len(keys))
			for _, key := range keys {
				agg, err := h.cache.Refresh(ctx, key)
				require.NoError(t, err)
				before = append(before, agg.QuantityOnHand.String())
			}
			_, err := h.cache.Clear(ctx)
			require.NoError(t, err)
			for i, key := range keys {
				rebuilt, err := h.cache.Rebuild(ctx, key)
				require.NoError(t, err)
				assert.Equal(t, before[i], rebuilt.QuantityOnHand.String(), "key %s", key)
			}
		})
	}
}

func TestStockCache_FractionalQuantitiesSumExactly(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	dec := decimal.RequireFromString

	t.Run("tenths add up without drift", func(t *testing.T) {
		p := uuid.New()
		first, second := line(p, 0), line(p, 0)
		first.Quantity, second.Quantity = dec("0.1"), dec("0.2")
		h.generate(t, ledger.TransactionTypeReceipt, "F-R1", t0, first, second)

		key := ledger.ProductKey(p)
		total, err := h.repo.SumForKey(ctx, key, ledger.SumOptions{})
		require.NoError(t, err)
		assert.Equal(t, "0.3", total.Quantity.String())

		agg, ok, err := h.cache.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, dec("0.3").Equal(agg.QuantityOnHand))

		consistent, err := h.cache.Verify(ctx, key)
		require.NoError(t, err)
		assert.True(t, consistent, "cache and store agree on 0.1 + 0.2")
	})

	t.Run("selling the exact balance in parts succeeds", func(t *testing.T) {
		p := uuid.New()
		received := line(p, 0)
		received.Quantity = dec("0.3")
		h.generate(t, ledger.TransactionTypeReceipt, "F-R2", t0, received)

		for i, part := range []string{"0.1", "0.2"} {
			sold := line(p, 0)
			sold.Quantity = dec(part)
			h.generate(t, ledger.TransactionTypeSale, fmt.Sprintf("F-S%d", i), t0.Add(time.Hour), sold)
		}
		assert.True(t, h.stockOf(t, p, "", nil).IsZero())

		report, err := h.cache.VerifyAll(ctx, 0)
		require.NoError(t, err)
		assert.Zero(t, report.Inconsistent)
	})
}

func TestStockCache_Verify(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, withoutEvents())
	p := uuid.New()
	key := ledger.ProductKey(p)

	h.generate(t, ledger.TransactionTypeReceipt, "R-1", t0, line(p, 10))
	agg, err := h.cache.Refresh(ctx, key)
	require.NoError(t, err)

	// Movements after the high-water mark do not make an entry inconsistent.
	h.generate(t, ledger.TransactionTypeSale, "S-1", t0, line(p, 4))
	h.reverse(t, "R-1", "void receipt")
	ok, err := h.cache.Verify(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	// A corrupted entry is detected and rebuilt.
	corrupted := agg
	corrupted.QuantityOnHand = qty(999)
	require.NoError(t, h.store.Put(ctx, corrupted))
	ok, err = h.cache.Verify(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	fixed, found, err := h.cache.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, qty(-4).Equal(fixed.QuantityOnHand))

	// Missing entries are trivially consistent.
	ok, err = h.cache.Verify(ctx, ledger.ProductKey(uuid.New()))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStockCache_VerifyAll(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p1, p2 := uuid.New(), uuid.New()
	h.generate(t, ledger.TransactionTypeReceipt, "R-1", t0, line(p1, 10), line(p2, 3))
	require.Positive(t, h.store.Len())

	bad, _, err := h.cache.Get(ctx, ledger.ProductKey(p2))
	require.NoError(t, err)
	bad.QuantityOnHand = qty(42)
	require.NoError(t, h.store.Put(ctx, bad))

	report, err := h.cache.VerifyAll(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, h.store.Len(), report.Checked)
	assert.Equal(t, 1, report.Inconsistent)
	assert.Equal(t, []string{ledger.ProductKey(p2).String()}, report.Rebuilt)

	report, err = h.cache.VerifyAll(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Zero(t, report.Inconsistent)
}

func TestStockCache_WarmUpAndInvalidate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, withoutEvents())
	p := uuid.New()
	lot := line(p, 2)
	lot.BatchNumber = "LOT-1"
	other := line(p, 5)
	other.Location = locB
	h.generate(t, ledger.TransactionTypeReceipt, "R-1", t0, line(p, 10), lot, other)

	built, err := h.cache.WarmUp(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, built, "product key plus three exact keys")
	assert.Equal(t, 4, h.store.Len())

	exact := ledger.NewStockKey(p, mustLocation(t, locA), "LOT-1")
	agg, ok, err := h.cache.Get(ctx, exact)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, qty(2).Equal(agg.QuantityOnHand))

	require.NoError(t, h.cache.Invalidate(ctx, exact))
	_, ok, err = h.cache.Get(ctx, exact)
	require.NoError(t, err)
	assert.False(t, ok)

	entries, err := h.cache.Entries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	n, err := h.cache.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.True(t, qty(17).Equal(h.stockOf(t, p, "", nil)))
}
