package handler

import (
	"net/http"
	"testing"

	appledger "github.com/erp/stockledger/internal/application/ledger"
	"github.com/erp/stockledger/internal/interfaces/http/dto"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStockHandler_GetStock(t *testing.T) {
	env := newAPI(t)
	product := uuid.NewString()

	requireStatus(t, env.do(t, http.MethodPost, "/api/v1/movements", receipt("RCV-1", product, 10, withBatch("LOT-7"))), http.StatusCreated)
	sale := receipt("SO-1", product, 3, withBatch("LOT-7"))
	sale["transaction_type"] = "SALE"
	sale["occurred_at"] = "2026-03-02T09:00:00Z"
	requireStatus(t, env.do(t, http.MethodPost, "/api/v1/movements", sale), http.StatusCreated)

	tests := []struct {
		name  string
		query string
		want  int64
	}{
		{"product total", "", 7},
		{"ancestor location", "?location=WH1", 7},
		{"exact location", "?location=WH1/A", 7},
		{"other site", "?location=WH2", 0},
		{"batch", "?batch_number=LOT-7", 7},
		{"unknown batch", "?batch_number=LOT-8", 0},
		{"before any movement", "?as_of=2026-02-01", 0},
		{"between receipt and sale", "?as_of=2026-03-01T12:00:00Z", 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/v1/products/"+product+"/stock"+tt.query, nil)
			requireStatus(t, w, http.StatusOK)
			level := decode[appledger.StockLevel](t, w).Data
			assert.True(t, level.Quantity.Equal(decimal.NewFromInt(tt.want)), "got %s", level.Quantity)
		})
	}

	t.Run("batch across locations", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/products/"+product+"/batches/LOT-7/stock", nil)
		requireStatus(t, w, http.StatusOK)
		level := decode[appledger.StockLevel](t, w).Data
		assert.True(t, level.Quantity.Equal(decimal.NewFromInt(7)))
		assert.Equal(t, "LOT-7", level.BatchNumber)
	})

	t.Run("as_of answers come from the store", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/products/"+product+"/stock?as_of=2026-03-01T12:00:00Z", nil)
		requireStatus(t, w, http.StatusOK)
		level := decode[appledger.StockLevel](t, w).Data
		assert.Equal(t, appledger.SourceStore, level.Source)
		require.NotNil(t, level.AsOf)
	})

	t.Run("invalid input", func(t *testing.T) {
		for _, path := range []string{
			"/api/v1/products/not-a-uuid/stock",
			"/api/v1/products/" + product + "/stock?as_of=someday",
			"/api/v1/products/" + product + "/stock?location=WH1//X",
		} {
			w := env.do(t, http.MethodGet, path, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code, path)
		}
	})
}

func TestStockHandler_Query(t *testing.T) {
	env := newAPI(t)
	p1, p2 := uuid.NewString(), uuid.NewString()
	requireStatus(t, env.do(t, http.MethodPost, "/api/v1/movements", receipt("RCV-1", p1, 5)), http.StatusCreated)
	requireStatus(t, env.do(t, http.MethodPost, "/api/v1/movements", receipt("RCV-2", p2, 8)), http.StatusCreated)

	w := env.do(t, http.MethodPost, "/api/v1/stock/query", map[string]any{
		"queries": []map[string]any{
			{"product_id": p2},
			{"product_id": p1, "location": "WH1/A"},
			{"product_id": p1, "location": "WH9"},
		},
	})
	requireStatus(t, w, http.StatusOK)
	levels := decode[[]appledger.StockLevel](t, w).Data
	require.Len(t, levels, 3)
	assert.Equal(t, p2, levels[0].ProductID.String())
	assert.True(t, levels[0].Quantity.Equal(decimal.NewFromInt(8)))
	assert.True(t, levels[1].Quantity.Equal(decimal.NewFromInt(5)))
	assert.True(t, levels[2].Quantity.IsZero())

	t.Run("as of a time before the receipts", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/stock/query", map[string]any{
			"queries": []map[string]any{{"product_id": p1}},
			"as_of":   "2026-01-01T00:00:00Z",
		})
		requireStatus(t, w, http.StatusOK)
		levels := decode[[]appledger.StockLevel](t, w).Data
		require.Len(t, levels, 1)
		assert.True(t, levels[0].Quantity.IsZero())
	})

	t.Run("empty query list", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/stock/query", map[string]any{"queries": []any{}})
		requireStatus(t, w, http.StatusBadRequest)
		assert.Equal(t, dto.ErrCodeValidation, decode[any](t, w).Error.Code)
	})
}

func TestStockHandler_Excursions(t *testing.T) {
	env := newAPI(t)
	product := uuid.NewString()

	sale := receipt("SO-1", product, 4)
	sale["transaction_type"] = "SALE"
	sale["allow_negative"] = true
	requireStatus(t, env.do(t, http.MethodPost, "/api/v1/movements", sale), http.StatusCreated)
	late := receipt("RCV-LATE", product, 10)
	late["occurred_at"] = "2026-03-03T09:00:00Z"
	requireStatus(t, env.do(t, http.MethodPost, "/api/v1/movements", late), http.StatusCreated)

	w := env.do(t, http.MethodGet, "/api/v1/products/"+product+"/excursions?location=WH1/A", nil)
	requireStatus(t, w, http.StatusOK)
	report := decode[appledger.ExcursionReport](t, w).Data
	require.Len(t, report.Excursions, 1)
	assert.True(t, report.Excursions[0].Balance.Equal(decimal.NewFromInt(-4)))
	assert.Equal(t, "WH1/A", report.Location)

	w = env.do(t, http.MethodGet, "/api/v1/products/"+product+"/stock", nil)
	requireStatus(t, w, http.StatusOK)
	assert.True(t, decode[appledger.StockLevel](t, w).Data.Quantity.Equal(decimal.NewFromInt(6)))
}
