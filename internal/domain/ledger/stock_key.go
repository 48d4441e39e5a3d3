package ledger

import (
	"strings"

	"github.com/google/uuid"
)

const (
	keyWildcard  = "*"
	keySeparator = "|"
)

// ValidateBatchNumber rejects batch numbers that would collide with the
// wildcard or the separator of a cache key
func ValidateBatchNumber(batchNumber string) error {
	batch := strings.TrimSpace(batchNumber)
	if batch == keyWildcard || strings.Contains(batch, keySeparator) {
		return invalidMovement("batch number %q is reserved or contains %q", batch, keySeparator)
	}
	return nil
}

// StockKey addresses an aggregate: a product, optionally narrowed to a location
// (hierarchically) and to a batch. Nil dimensions aggregate across all values.
type StockKey struct {
	ProductID   uuid.UUID `json:"product_id"`
	Location    *Location `json:"location,omitempty"`
	BatchNumber *string   `json:"batch_number,omitempty"`
}

// ProductKey returns the key covering every location and batch of a product
func ProductKey(productID uuid.UUID) StockKey {
	return StockKey{ProductID: productID}
}

// NewStockKey creates a key; zero location and empty batch become wildcards
func NewStockKey(productID uuid.UUID, location Location, batchNumber string) StockKey {
	key := StockKey{ProductID: productID}
	if !location.IsZero() {
		loc := location
		key.Location = &loc
	}
	if batchNumber != "" {
		batch := batchNumber
		key.BatchNumber = &batch
	}
	return key
}

// WithLocation returns a copy of the key restricted to location
func (k StockKey) WithLocation(location Location) StockKey {
	loc := location
	k.Location = &loc
	return k
}

// WithBatch returns a copy of the key restricted to batch
func (k StockKey) WithBatch(batchNumber string) StockKey {
	batch := batchNumber
	k.BatchNumber = &batch
	return k
}

// Validate checks that the key names a product and a well-formed location
func (k StockKey) Validate() error {
	if k.ProductID == uuid.Nil {
		return invalidMovement("stock key requires a product id")
	}
	if k.Location != nil {
		if err := k.Location.Validate(); err != nil {
			return err
		}
	}
	if k.BatchNumber != nil {
		return ValidateBatchNumber(*k.BatchNumber)
	}
	return nil
}

// Matches reports whether a movement falls under this key
func (k StockKey) Matches(m *Movement) bool {
	return k.Covers(m.ProductID(), m.Location(), m.BatchNumber())
}

// Covers reports whether an exact (product, location, batch) falls under this key
func (k StockKey) Covers(productID uuid.UUID, location Location, batchNumber string) bool {
	if productID != k.ProductID {
		return false
	}
	if k.Location != nil && !k.Location.Contains(location) {
		return false
	}
	if k.BatchNumber != nil && *k.BatchNumber != batchNumber {
		return false
	}
	return true
}

// String returns the canonical cache key: product|location|batch with * wildcards
func (k StockKey) String() string {
	loc := keyWildcard
	if k.Location != nil {
		loc = k.Location.Code()
	}
	batch := keyWildcard
	if k.BatchNumber != nil {
		batch = *k.BatchNumber
	}
	return k.ProductID.String() + keySeparator + loc + keySeparator + batch
}

// Equal compares keys by value
func (k StockKey) Equal(other StockKey) bool {
	return k.String() == other.String()
}
