package cache

import (
	"context"
	"sort"
	"sync"

	appledger "github.com/erp/stockledger/internal/application/ledger"
	"github.com/erp/stockledger/internal/domain/ledger"
)

// InMemoryStockAggregateStore keeps aggregates in a process-local map.
// Suitable for single-instance deployments and tests.
type InMemoryStockAggregateStore struct {
	mu      sync.RWMutex
	entries map[string]ledger.StockAggregate
}

// NewInMemoryStockAggregateStore creates an empty store
func NewInMemoryStockAggregateStore() *InMemoryStockAggregateStore {
	return &InMemoryStockAggregateStore{entries: make(map[string]ledger.StockAggregate)}
}

// Get returns the cached aggregate for key
func (s *InMemoryStockAggregateStore) Get(_ context.Context, key ledger.StockKey) (ledger.StockAggregate, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agg, ok := s.entries[key.String()]
	return agg, ok, nil
}

// PutIfNewer stores agg when its high-water mark is ahead of the stored one
func (s *InMemoryStockAggregateStore) PutIfNewer(_ context.Context, agg ledger.StockAggregate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := agg.Key.String()
	if cur, ok := s.entries[k]; ok && cur.LastMovementID >= agg.LastMovementID {
		return false, nil
	}
	s.entries[k] = agg
	return true, nil
}

// Put stores agg unconditionally
func (s *InMemoryStockAggregateStore) Put(_ context.Context, agg ledger.StockAggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[agg.Key.String()] = agg
	return nil
}

// Delete removes the entry for key
func (s *InMemoryStockAggregateStore) Delete(_ context.Context, key ledger.StockKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key.String())
	return nil
}

// List returns every entry ordered by key
func (s *InMemoryStockAggregateStore) List(_ context.Context) ([]ledger.StockAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.StockAggregate, 0, len(s.entries))
	for _, agg := range s.entries {
		out = append(out, agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out, nil
}

// Clear drops every entry
func (s *InMemoryStockAggregateStore) Clear(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.entries)
	s.entries = make(map[string]ledger.StockAggregate)
	return n, nil
}

// Len returns the number of entries
func (s *InMemoryStockAggregateStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Ensure InMemoryStockAggregateStore implements AggregateStore
var _ appledger.AggregateStore = (*InMemoryStockAggregateStore)(nil)
