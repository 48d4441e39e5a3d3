package handler

import (
	"context"
	"net/http"
	"testing"

	appledger "github.com/erp/stockledger/internal/application/ledger"
	"github.com/erp/stockledger/internal/domain/ledger"
	"github.com/erp/stockledger/internal/interfaces/http/dto"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheAdminHandler(t *testing.T) {
	env := newAPI(t)
	ctx := context.Background()
	product := uuid.New()
	requireStatus(t, env.do(t, http.MethodPost, "/api/v1/movements", receipt("RCV-1", product.String(), 10)), http.StatusCreated)

	keyBody := map[string]any{"product_id": product.String(), "location": "WH1/A"}
	productKey := ledger.ProductKey(product)

	t.Run("entries lists refreshed keys", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/admin/cache/entries", nil)
		requireStatus(t, w, http.StatusOK)
		entries := decode[[]appledger.CacheEntry](t, w).Data
		require.NotEmpty(t, entries)
		for i := 1; i < len(entries); i++ {
			assert.Less(t, entries[i-1].Key, entries[i].Key)
		}
	})

	t.Run("rebuild", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/admin/cache/rebuild", keyBody)
		requireStatus(t, w, http.StatusOK)
		entry := decode[appledger.CacheEntry](t, w).Data
		assert.True(t, entry.QuantityOnHand.Equal(decimal.NewFromInt(10)))
		assert.Positive(t, entry.LastMovementID)
	})

	t.Run("verify repairs drift", func(t *testing.T) {
		agg, ok, err := env.store.Get(ctx, productKey)
		require.NoError(t, err)
		require.True(t, ok)
		agg.QuantityOnHand = decimal.NewFromInt(42)
		require.NoError(t, env.store.Put(ctx, agg))

		w := env.do(t, http.MethodPost, "/api/v1/admin/cache/verify", map[string]any{"product_id": product.String()})
		requireStatus(t, w, http.StatusOK)
		assert.False(t, decode[appledger.CacheVerifyResult](t, w).Data.Consistent)

		w = env.do(t, http.MethodPost, "/api/v1/admin/cache/verify", map[string]any{"product_id": product.String()})
		requireStatus(t, w, http.StatusOK)
		assert.True(t, decode[appledger.CacheVerifyResult](t, w).Data.Consistent)
	})

	t.Run("verify-all", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/admin/cache/verify-all?limit=50", nil)
		requireStatus(t, w, http.StatusOK)
		report := decode[appledger.VerifyReport](t, w).Data
		assert.Positive(t, report.Checked)
		assert.Zero(t, report.Inconsistent)

		w = env.do(t, http.MethodPost, "/api/v1/admin/cache/verify-all?limit=many", nil)
		requireStatus(t, w, http.StatusBadRequest)
	})

	t.Run("invalidate", func(t *testing.T) {
		requireStatus(t, env.do(t, http.MethodPost, "/api/v1/admin/cache/invalidate", map[string]any{"product_id": product.String()}), http.StatusNoContent)
		_, ok, err := env.store.Get(ctx, productKey)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("clear then warm up", func(t *testing.T) {
		w := env.do(t, http.MethodDelete, "/api/v1/admin/cache", nil)
		requireStatus(t, w, http.StatusOK)
		assert.Positive(t, decode[CountData](t, w).Data.Count)
		assert.Zero(t, env.store.Len())

		w = env.do(t, http.MethodPost, "/api/v1/admin/cache/warm-up", map[string]any{"product_ids": []string{product.String()}})
		requireStatus(t, w, http.StatusOK)
		assert.Positive(t, decode[CountData](t, w).Data.Count)
		assert.Positive(t, env.store.Len())
	})

	t.Run("request validation", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/admin/cache/rebuild", map[string]any{"location": "WH1"})
		requireStatus(t, w, http.StatusBadRequest)
		assert.Equal(t, dto.ErrCodeValidation, decode[any](t, w).Error.Code)

		w = env.do(t, http.MethodPost, "/api/v1/admin/cache/warm-up", map[string]any{"product_ids": []string{"x"}})
		requireStatus(t, w, http.StatusBadRequest)

		w = env.do(t, http.MethodPost, "/api/v1/admin/cache/verify", map[string]any{"product_id": product.String(), "location": "/A"})
		requireStatus(t, w, http.StatusBadRequest)
		assert.Equal(t, dto.CodeInvalidLocation, decode[any](t, w).Error.Code)
	})
}

func TestCacheAdminHandler_RequiresAdmin(t *testing.T) {
	env := newAPI(t, withAuth())

	w := env.do(t, http.MethodGet, "/api/v1/admin/cache/entries", nil, env.bearer(t, "clerk-1", "ledger:reverse")...)
	requireStatus(t, w, http.StatusForbidden)

	w = env.do(t, http.MethodGet, "/api/v1/admin/cache/entries", nil, env.bearer(t, "ops-1", "ledger:admin")...)
	requireStatus(t, w, http.StatusOK)
}
