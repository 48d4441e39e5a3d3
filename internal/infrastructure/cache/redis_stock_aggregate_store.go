package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	appledger "github.com/erp/stockledger/internal/application/ledger"
	"github.com/erp/stockledger/internal/domain/ledger"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "stockledger:soh:"

// putIfNewerScript writes ARGV[1] unless the stored entry's last_movement_id
// is already >= ARGV[2]. ARGV[3] is the TTL in milliseconds, 0 for none.
var putIfNewerScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
  local ok, decoded = pcall(cjson.decode, cur)
  if ok and decoded['last_movement_id'] and tonumber(decoded['last_movement_id']) >= tonumber(ARGV[2]) then
    return 0
  end
end
if tonumber(ARGV[3]) > 0 then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
else
  redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// RedisStockAggregateStore keeps aggregates in Redis as JSON so that several
// service instances share one cache
type RedisStockAggregateStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// NewRedisStockAggregateStore connects to Redis and verifies the connection
func NewRedisStockAggregateStore(cfg RedisConfig) (*RedisStockAggregateStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStockAggregateStoreWithClient(client, cfg.KeyPrefix, cfg.TTL), nil
}

// NewRedisStockAggregateStoreWithClient creates a store on an existing client
func NewRedisStockAggregateStoreWithClient(client redis.UniversalClient, keyPrefix string, ttl time.Duration) *RedisStockAggregateStore {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisStockAggregateStore{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

// Get returns the cached aggregate for key
func (s *RedisStockAggregateStore) Get(ctx context.Context, key ledger.StockKey) (ledger.StockAggregate, bool, error) {
	data, err := s.client.Get(ctx, s.keyPrefix+key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return ledger.StockAggregate{}, false, nil
	}
	if err != nil {
		return ledger.StockAggregate{}, false, fmt.Errorf("failed to read stock aggregate: %w", err)
	}

	var agg ledger.StockAggregate
	if err := json.Unmarshal(data, &agg); err != nil {
		return ledger.StockAggregate{}, false, fmt.Errorf("failed to decode stock aggregate: %w", err)
	}
	return agg, true, nil
}

// PutIfNewer stores agg atomically when its high-water mark is ahead
func (s *RedisStockAggregateStore) PutIfNewer(ctx context.Context, agg ledger.StockAggregate) (bool, error) {
	data, err := json.Marshal(agg)
	if err != nil {
		return false, fmt.Errorf("failed to encode stock aggregate: %w", err)
	}
	stored, err := putIfNewerScript.Run(ctx, s.client,
		[]string{s.keyPrefix + agg.Key.String()},
		string(data), agg.LastMovementID, s.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to store stock aggregate: %w", err)
	}
	return stored == 1, nil
}

// Put stores agg unconditionally
func (s *RedisStockAggregateStore) Put(ctx context.Context, agg ledger.StockAggregate) error {
	data, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("failed to encode stock aggregate: %w", err)
	}
	if err := s.client.Set(ctx, s.keyPrefix+agg.Key.String(), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store stock aggregate: %w", err)
	}
	return nil
}

// Delete removes the entry for key
func (s *RedisStockAggregateStore) Delete(ctx context.Context, key ledger.StockKey) error {
	return s.client.Del(ctx, s.keyPrefix+key.String()).Err()
}

// List scans every entry under the key prefix
func (s *RedisStockAggregateStore) List(ctx context.Context) ([]ledger.StockAggregate, error) {
	keys, err := s.scanKeys(ctx)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read stock aggregates: %w", err)
	}
	out := make([]ledger.StockAggregate, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // expired between SCAN and MGET
		}
		var agg ledger.StockAggregate
		if err := json.Unmarshal([]byte(raw), &agg); err != nil {
			return nil, fmt.Errorf("failed to decode stock aggregate: %w", err)
		}
		out = append(out, agg)
	}
	return out, nil
}

// Clear deletes every entry under the key prefix
func (s *RedisStockAggregateStore) Clear(ctx context.Context) (int, error) {
	keys, err := s.scanKeys(ctx)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to clear stock aggregates: %w", err)
	}
	return int(n), nil
}

// Ping checks that Redis answers
func (s *RedisStockAggregateStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (s *RedisStockAggregateStore) Close() error {
	return s.client.Close()
}

func (s *RedisStockAggregateStore) scanKeys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.keyPrefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan stock aggregates: %w", err)
	}
	return keys, nil
}

// Ensure RedisStockAggregateStore implements AggregateStore
var _ appledger.AggregateStore = (*RedisStockAggregateStore)(nil)
