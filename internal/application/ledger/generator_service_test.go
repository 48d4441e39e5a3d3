package ledger_test

import (
	"context"
	"testing"
	"time"

	appledger "github.com/erp/stockledger/internal/application/ledger"
	"github.com/erp/stockledger/internal/domain/ledger"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorService_Generate(t *testing.T) {
	ctx := context.Background()

	t.Run("receipt produces one IN movement per line", func(t *testing.T) {
		h := newHarness(t)
		p1, p2 := uuid.New(), uuid.New()
		res := h.generate(t, ledger.TransactionTypeReceipt, "PO-1", t0, line(p1, 100), line(p2, 5))

		require.Len(t, res.Movements, 2)
		assert.Equal(t, "PO-1", res.CorrelationID)
		assert.Less(t, res.MovementIDs[0], res.MovementIDs[1])
		for i, m := range res.Movements {
			assert.Equal(t, "IN", m.Direction)
			assert.Equal(t, "RECEIPT", m.MovementType)
			assert.Equal(t, locA, m.Location)
			assert.Equal(t, "RECEIPT PO-1", m.Reason)
			assert.Equal(t, []string{"1", "2"}[i], m.DetailID)
			assert.Equal(t, "tester", m.RecordedBy)
			assert.False(t, m.IsDeleted)
		}
	})

	t.Run("transfer writes out at source and in at destination", func(t *testing.T) {
		h := newHarness(t)
		p := uuid.New()
		h.generate(t, ledger.TransactionTypeReceipt, "R-1", t0, line(p, 10))

		transfer := line(p, 4)
		transfer.DestinationLocation = locB
		res := h.generate(t, ledger.TransactionTypeTransfer, "T-1", t0.Add(1), transfer)

		require.Len(t, res.Movements, 2)
		assert.Equal(t, "TRANSFER_OUT", res.Movements[0].MovementType)
		assert.Equal(t, locA, res.Movements[0].Location)
		assert.Equal(t, "TRANSFER_IN", res.Movements[1].MovementType)
		assert.Equal(t, locB, res.Movements[1].Location)

		assert.True(t, qty(6).Equal(h.stockOf(t, p, locA, nil)))
		assert.True(t, qty(4).Equal(h.stockOf(t, p, locB, nil)))
		assert.True(t, qty(10).Equal(h.stockOf(t, p, "", nil)))
	})

	t.Run("line items keep batch serial unit and detail", func(t *testing.T) {
		h := newHarness(t)
		p := uuid.New()
		item := appledger.LineItem{
			ProductID:     p,
			Quantity:      decimal.RequireFromString("2.5"),
			Location:      locB,
			BatchNumber:   "LOT-7",
			SerialNumber:  "SN-1",
			UnitReference: "kg",
			DetailID:      "D-9",
		}
		res := h.generate(t, ledger.TransactionTypeProductionOutput, "MO-1", t0, item)

		m := res.Movements[0]
		assert.Equal(t, locB, m.Location)
		assert.Equal(t, "LOT-7", m.BatchNumber)
		assert.Equal(t, "SN-1", m.SerialNumber)
		assert.Equal(t, "kg", m.UnitReference)
		assert.Equal(t, "D-9", m.DetailID)
		assert.Equal(t, "PRODUCTION_OUTPUT", m.TransactionType)
		assert.True(t, decimal.RequireFromString("2.5").Equal(m.Quantity))
	})

	t.Run("rejections leave no movements", func(t *testing.T) {
		h := newHarness(t)
		p := uuid.New()
		tests := []struct {
			name string
			req  appledger.GenerateRequest
			want error
		}{
			{"empty batch", appledger.GenerateRequest{CorrelationID: "X", TransactionType: "RECEIPT", HeaderID: "X", DefaultLocation: locA}, ledger.ErrEmptyBatch},
			{"zero quantity", appledger.GenerateRequest{CorrelationID: "X", TransactionType: "RECEIPT", HeaderID: "X", DefaultLocation: locA,
				Lines: []appledger.LineItem{line(p, 5), line(p, 0)}}, ledger.ErrInvalidQuantity},
			{"negative quantity", appledger.GenerateRequest{CorrelationID: "X", TransactionType: "RECEIPT", HeaderID: "X", DefaultLocation: locA,
				Lines: []appledger.LineItem{line(p, -3)}}, ledger.ErrInvalidQuantity},
			{"unknown type", appledger.GenerateRequest{CorrelationID: "X", TransactionType: "GIFT", HeaderID: "X", DefaultLocation: locA,
				Lines: []appledger.LineItem{line(p, 1)}}, ledger.ErrUnknownTransactionType},
			{"reversal is not a transaction type", appledger.GenerateRequest{CorrelationID: "X", TransactionType: "REVERSAL", HeaderID: "X", DefaultLocation: locA,
				Lines: []appledger.LineItem{line(p, 1)}}, ledger.ErrUnknownTransactionType},
			{"missing location", appledger.GenerateRequest{CorrelationID: "X", TransactionType: "RECEIPT", HeaderID: "X",
				Lines: []appledger.LineItem{line(p, 1)}}, ledger.ErrInvalidLocation},
			{"transfer without destination", appledger.GenerateRequest{CorrelationID: "X", TransactionType: "TRANSFER", HeaderID: "X", DefaultLocation: locA,
				Lines: []appledger.LineItem{line(p, 1)}}, ledger.ErrInvalidLocation},
			{"transfer to its own location", appledger.GenerateRequest{CorrelationID: "X", TransactionType: "TRANSFER", HeaderID: "X", DefaultLocation: locA,
				Lines: []appledger.LineItem{{ProductID: p, Quantity: qty(1), DestinationLocation: locA}}}, ledger.ErrInvalidLocation},
			{"quantity beyond four decimals", appledger.GenerateRequest{CorrelationID: "X", TransactionType: "RECEIPT", HeaderID: "X", DefaultLocation: locA,
				Lines: []appledger.LineItem{{ProductID: p, Quantity: decimal.RequireFromString("0.00001")}}}, ledger.ErrInvalidQuantity},
			{"quantity overflows the column", appledger.GenerateRequest{CorrelationID: "X", TransactionType: "RECEIPT", HeaderID: "X", DefaultLocation: locA,
				Lines: []appledger.LineItem{{ProductID: p, Quantity: decimal.New(1, 14)}}}, ledger.ErrInvalidQuantity},
			{"wildcard batch", appledger.GenerateRequest{CorrelationID: "X", TransactionType: "RECEIPT", HeaderID: "X", DefaultLocation: locA,
				Lines: []appledger.LineItem{{ProductID: p, Quantity: qty(1), BatchNumber: "*"}}}, shared.ErrInvalidInput},
			{"missing correlation", appledger.GenerateRequest{TransactionType: "RECEIPT", HeaderID: "X", DefaultLocation: locA,
				Lines: []appledger.LineItem{line(p, 1)}}, shared.ErrInvalidInput},
			{"missing product", appledger.GenerateRequest{CorrelationID: "X", TransactionType: "RECEIPT", HeaderID: "X", DefaultLocation: locA,
				Lines: []appledger.LineItem{{Quantity: qty(1)}}}, shared.ErrInvalidInput},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := h.generator.Generate(ctx, tt.req)
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.want)
			})
		}
		assert.Zero(t, h.movementCount(t))
	})

	t.Run("invalid quantity reports the line", func(t *testing.T) {
		h := newHarness(t)
		p := uuid.New()
		_, err := h.generator.Generate(ctx, appledger.GenerateRequest{
			CorrelationID: "X", TransactionType: "RECEIPT", HeaderID: "X", DefaultLocation: locA,
			Lines: []appledger.LineItem{line(p, 1), line(p, 2), line(p, 0)},
		})
		var de *shared.DomainError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, 3, de.Details["line"])
	})

	t.Run("duplicate correlation is rejected", func(t *testing.T) {
		h := newHarness(t)
		p := uuid.New()
		h.generate(t, ledger.TransactionTypeReceipt, "R-1", t0, line(p, 1))

		_, err := h.generator.Generate(ctx, appledger.GenerateRequest{
			CorrelationID: "R-1", TransactionType: "RECEIPT", HeaderID: "R-1", DefaultLocation: locA,
			Lines: []appledger.LineItem{line(p, 1)},
		})
		assert.ErrorIs(t, err, ledger.ErrDuplicateCorrelation)
		assert.Equal(t, int64(1), h.movementCount(t))
	})
}

func TestGeneratorService_InsufficientStock(t *testing.T) {
	ctx := context.Background()
	p := uuid.New()

	t.Run("sale beyond stock is rejected with context", func(t *testing.T) {
		h := newHarness(t)
		h.generate(t, ledger.TransactionTypeReceipt, "R-1", t0, line(p, 10))

		_, err := h.generator.Generate(ctx, appledger.GenerateRequest{
			CorrelationID: "S-1", TransactionType: "SALE", HeaderID: "S-1", DefaultLocation: locA,
			Lines: []appledger.LineItem{line(p, 7), line(p, 4)},
		})
		require.ErrorIs(t, err, ledger.ErrInsufficientStock)

		var de *shared.DomainError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, p.String(), de.Details["product_id"])
		assert.Equal(t, locA, de.Details["location"])
		assert.True(t, qty(11).Equal(decimal.RequireFromString(de.Details["requested"].(string))))
		assert.True(t, qty(10).Equal(decimal.RequireFromString(de.Details["available"].(string))))
		assert.Equal(t, int64(1), h.movementCount(t))
	})

	t.Run("request override allows negative stock", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.generator.Generate(ctx, appledger.GenerateRequest{
			CorrelationID: "S-1", TransactionType: "SALE", HeaderID: "S-1", DefaultLocation: locA,
			Lines: []appledger.LineItem{line(p, 3)}, AllowNegative: true,
		})
		require.NoError(t, err)
		assert.True(t, qty(-3).Equal(h.stockOf(t, p, locA, nil)))
	})

	t.Run("policy allows negative stock", func(t *testing.T) {
		h := newHarness(t, allowNegative())
		h.generate(t, ledger.TransactionTypeSale, "S-1", t0, line(p, 3))
		assert.True(t, qty(-3).Equal(h.stockOf(t, p, locA, nil)))
	})

	t.Run("stock at another location does not count", func(t *testing.T) {
		h := newHarness(t)
		receipt := line(p, 50)
		receipt.Location = locB
		h.generate(t, ledger.TransactionTypeReceipt, "R-1", t0, receipt)

		_, err := h.generator.Generate(ctx, appledger.GenerateRequest{
			CorrelationID: "S-1", TransactionType: "SALE", HeaderID: "S-1", DefaultLocation: locA,
			Lines: []appledger.LineItem{line(p, 1)},
		})
		assert.ErrorIs(t, err, ledger.ErrInsufficientStock)
	})

	t.Run("adjustment out of an empty key", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.generator.Generate(ctx, appledger.GenerateRequest{
			CorrelationID: "ADJ-1", TransactionType: "ADJUSTMENT_OUT", HeaderID: "ADJ-1", DefaultLocation: locA,
			Lines: []appledger.LineItem{line(p, 1)},
		})
		assert.ErrorIs(t, err, ledger.ErrInsufficientStock)
	})
}

func TestGeneratorService_Atomicity(t *testing.T) {
	p := uuid.New()
	const lines = 3
	for failAt := int32(0); failAt < lines; failAt++ {
		h := newHarness(t)
		failCreatesAfter(t, h.db, failAt)

		items := make([]appledger.LineItem, 0, lines)
		for i := 0; i < lines; i++ {
			items = append(items, line(p, int64(i+1)))
		}
		_, err := h.generator.Generate(context.Background(), appledger.GenerateRequest{
			CorrelationID: "R-1", TransactionType: "RECEIPT", HeaderID: "R-1", DefaultLocation: locA, Lines: items,
		})
		require.ErrorIs(t, err, ledger.ErrPartialCommit, "fail after %d", failAt)
		assert.ErrorIs(t, err, errBoom)
		assert.Zero(t, h.movementCount(t), "fail after %d", failAt)
		assert.Zero(t, h.store.Len(), "no cache entry may be created for a rolled-back batch")
	}
}

func TestGeneratorService_EventsRefreshCache(t *testing.T) {
	h := newHarness(t)
	p := uuid.New()
	h.generate(t, ledger.TransactionTypeReceipt, "R-1", t0, line(p, 10))

	agg, ok, err := h.cache.Get(context.Background(), ledger.ProductKey(p))
	require.NoError(t, err)
	require.True(t, ok, "product-wide key is refreshed eagerly")
	assert.True(t, qty(10).Equal(agg.QuantityOnHand))

	loc, err := ledger.ParseLocation(locA)
	require.NoError(t, err)
	agg, ok, err = h.cache.Get(context.Background(), ledger.NewStockKey(p, loc, ""))
	require.NoError(t, err)
	require.True(t, ok, "exact key is refreshed eagerly")
	assert.True(t, qty(10).Equal(agg.QuantityOnHand))
}

func TestGeneratorService_EventsRefreshLocationRollups(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := uuid.New()

	received := line(p, 100)
	received.BatchNumber = "LOT-1"
	h.generate(t, ledger.TransactionTypeReceipt, "R-1", t0, received)

	rollups := []appledger.StockQuery{
		{ProductID: p, Location: "WH1"},
		{ProductID: p, Location: "WH1/A"},
		{ProductID: p, Location: "WH1", BatchNumber: "LOT-1"},
		{ProductID: p, BatchNumber: "LOT-1"},
	}
	for _, q := range rollups {
		level, err := h.stock.StockOf(ctx, q)
		require.NoError(t, err)
		assert.True(t, qty(100).Equal(level.Quantity), "%+v", q)
	}

	sold := line(p, 30)
	sold.BatchNumber = "LOT-1"
	h.generate(t, ledger.TransactionTypeSale, "S-1", t0.Add(time.Hour), sold)
	for _, q := range rollups {
		level, err := h.stock.StockOf(ctx, q)
		require.NoError(t, err)
		assert.Equal(t, appledger.SourceCache, level.Source)
		assert.True(t, qty(70).Equal(level.Quantity), "%+v read %s after the sale", q, level.Quantity)
	}

	h.reverse(t, "S-1", "cancelled")
	for _, q := range rollups {
		level, err := h.stock.StockOf(ctx, q)
		require.NoError(t, err)
		assert.True(t, qty(100).Equal(level.Quantity), "%+v after the reversal", q)
	}
}

func TestGeneratorService_WriteTimeout(t *testing.T) {
	h := newHarness(t)
	h.generator.SetWriteTimeout(time.Nanosecond)

	_, err := h.generator.Generate(context.Background(), appledger.GenerateRequest{
		CorrelationID: "R-T", TransactionType: "RECEIPT", HeaderID: "R-T", DefaultLocation: locA,
		Lines: []appledger.LineItem{line(uuid.New(), 1)},
	})
	require.Error(t, err)
	assert.Zero(t, h.movementCount(t))
}
