package cache

import (
	"fmt"

	appledger "github.com/erp/stockledger/internal/application/ledger"
	"github.com/erp/stockledger/internal/infrastructure/config"
	"go.uber.org/zap"
)

// StockAggregateStoreFactory creates the stock cache store from configuration
type StockAggregateStoreFactory struct {
	cacheConfig           config.CacheConfig
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// FactoryOption is a functional option for configuring the factory
type FactoryOption func(*StockAggregateStoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *StockAggregateStoreFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis falls back to the
// in-memory store. Default is true.
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *StockAggregateStoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewStockAggregateStoreFactory creates a new factory
func NewStockAggregateStoreFactory(cacheCfg config.CacheConfig, redisCfg config.RedisConfig, opts ...FactoryOption) *StockAggregateStoreFactory {
	f := &StockAggregateStoreFactory{
		cacheConfig:           cacheCfg,
		redisConfig:           redisCfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateStore returns the configured backend. A cache miss only costs a
// recompute, so an unreachable Redis degrades to a process-local cache.
func (f *StockAggregateStoreFactory) CreateStore() (appledger.AggregateStore, error) {
	if f.cacheConfig.Backend != "redis" {
		f.logger.Info("using in-memory stock cache")
		return NewInMemoryStockAggregateStore(), nil
	}

	store, err := NewRedisStockAggregateStore(RedisConfig{
		Addr:      f.redisConfig.Addr(),
		Password:  f.redisConfig.Password,
		DB:        f.redisConfig.DB,
		KeyPrefix: f.cacheConfig.KeyPrefix,
		TTL:       f.cacheConfig.TTL,
	})
	if err == nil {
		f.logger.Info("using Redis stock cache", zap.String("addr", f.redisConfig.Addr()))
		return store, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis stock cache unavailable: %w", err)
	}
	f.logger.Warn("Redis unavailable, falling back to in-memory stock cache. "+
		"Instances will not share cached aggregates.",
		zap.Error(err),
	)
	return NewInMemoryStockAggregateStore(), nil
}
