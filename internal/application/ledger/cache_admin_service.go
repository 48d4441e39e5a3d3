package ledger

import (
	"context"
	"sort"

	"github.com/google/uuid"
)

// CacheKeyRequest addresses one cached aggregate
type CacheKeyRequest struct {
	ProductID   uuid.UUID `json:"product_id" validate:"required"`
	Location    string    `json:"location" validate:"omitempty,max=150"`
	BatchNumber string    `json:"batch_number" validate:"omitempty,max=64"`
}

// CacheVerifyResult reports the outcome of verifying one key
type CacheVerifyResult struct {
	Key        string `json:"key"`
	Consistent bool   `json:"consistent"`
}

// CacheAdminService exposes stock cache maintenance to operators. None of
// its operations change a stock answer; they only rebuild derived state.
type CacheAdminService struct {
	cache *StockCache
}

// NewCacheAdminService creates a new CacheAdminService
func NewCacheAdminService(cache *StockCache) *CacheAdminService {
	return &CacheAdminService{cache: cache}
}

// Entries lists cached aggregates ordered by key
func (s *CacheAdminService) Entries(ctx context.Context) ([]CacheEntry, error) {
	aggs, err := s.cache.Entries(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]CacheEntry, 0, len(aggs))
	for _, a := range aggs {
		out = append(out, ToCacheEntry(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Rebuild recomputes one entry from the movement store
func (s *CacheAdminService) Rebuild(ctx context.Context, req CacheKeyRequest) (*CacheEntry, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	key, err := stockKey(req.ProductID, req.Location, req.BatchNumber)
	if err != nil {
		return nil, err
	}
	agg, err := s.cache.Rebuild(ctx, key)
	if err != nil {
		return nil, err
	}
	entry := ToCacheEntry(agg)
	return &entry, nil
}

// Verify compares one entry with a recompute, rebuilding it on drift
func (s *CacheAdminService) Verify(ctx context.Context, req CacheKeyRequest) (*CacheVerifyResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	key, err := stockKey(req.ProductID, req.Location, req.BatchNumber)
	if err != nil {
		return nil, err
	}
	ok, err := s.cache.Verify(ctx, key)
	if err != nil {
		return nil, err
	}
	return &CacheVerifyResult{Key: key.String(), Consistent: ok}, nil
}

// VerifyAll verifies up to limit entries
func (s *CacheAdminService) VerifyAll(ctx context.Context, limit int) (VerifyReport, error) {
	return s.cache.VerifyAll(ctx, limit)
}

// Invalidate drops one entry
func (s *CacheAdminService) Invalidate(ctx context.Context, req CacheKeyRequest) error {
	if err := validateRequest(req); err != nil {
		return err
	}
	key, err := stockKey(req.ProductID, req.Location, req.BatchNumber)
	if err != nil {
		return err
	}
	return s.cache.Invalidate(ctx, key)
}

// Clear drops every entry and returns how many were removed
func (s *CacheAdminService) Clear(ctx context.Context) (int, error) {
	return s.cache.Clear(ctx)
}

// WarmUp rebuilds the entries of the given products, or of all products
func (s *CacheAdminService) WarmUp(ctx context.Context, productIDs []uuid.UUID) (int, error) {
	return s.cache.WarmUp(ctx, productIDs)
}
