package cache

import (
	"testing"

	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// unreachableRedis points at a port nothing listens on
var unreachableRedis = config.RedisConfig{Host: "127.0.0.1", Port: 1}

func TestStockAggregateStoreFactory(t *testing.T) {
	log := zaptest.NewLogger(t)

	t.Run("memory backend", func(t *testing.T) {
		store, err := NewStockAggregateStoreFactory(config.CacheConfig{Backend: "memory"}, unreachableRedis, WithLogger(log)).CreateStore()
		require.NoError(t, err)
		assert.IsType(t, &InMemoryStockAggregateStore{}, store)
	})

	t.Run("unreachable redis falls back to memory", func(t *testing.T) {
		store, err := NewStockAggregateStoreFactory(config.CacheConfig{Backend: "redis"}, unreachableRedis, WithLogger(log)).CreateStore()
		require.NoError(t, err)
		assert.IsType(t, &InMemoryStockAggregateStore{}, store)
	})

	t.Run("unreachable redis without fallback fails", func(t *testing.T) {
		_, err := NewStockAggregateStoreFactory(config.CacheConfig{Backend: "redis"}, unreachableRedis,
			WithLogger(log), WithInMemoryFallback(false)).CreateStore()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis stock cache unavailable")
	})
}
