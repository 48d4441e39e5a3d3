package ledger

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockPolicy decides whether a product may go below zero
type StockPolicy interface {
	AllowsNegative(productID uuid.UUID) bool
}

// NegativeStockPolicy allows negative stock globally or for listed products
type NegativeStockPolicy struct {
	AllowAll bool
	products map[uuid.UUID]struct{}
}

// NewNegativeStockPolicy creates a policy from configuration
func NewNegativeStockPolicy(allowAll bool, products ...uuid.UUID) *NegativeStockPolicy {
	p := &NegativeStockPolicy{AllowAll: allowAll, products: make(map[uuid.UUID]struct{}, len(products))}
	for _, id := range products {
		p.products[id] = struct{}{}
	}
	return p
}

// AllowsNegative implements StockPolicy
func (p *NegativeStockPolicy) AllowsNegative(productID uuid.UUID) bool {
	if p == nil {
		return false
	}
	if p.AllowAll {
		return true
	}
	_, ok := p.products[productID]
	return ok
}

// KeyDemand is the net effect of a batch of movements on one key
type KeyDemand struct {
	Key       StockKey
	Net       decimal.Decimal
	Outbound  decimal.Decimal
	ProductID uuid.UUID
}

// Demands groups movements by key and sums their signed quantities. Only keys
// that receive OUT movements are returned; pure receipts never need a check.
func Demands(movements []*Movement) []KeyDemand {
	index := make(map[string]int)
	var out []KeyDemand
	for _, m := range movements {
		k := m.Key()
		i, ok := index[k.String()]
		if !ok {
			i = len(out)
			index[k.String()] = i
			out = append(out, KeyDemand{Key: k, Net: decimal.Zero, Outbound: decimal.Zero, ProductID: m.ProductID()})
		}
		out[i].Net = out[i].Net.Add(m.SignedQuantity())
		if m.Direction() == DirectionOut {
			out[i].Outbound = out[i].Outbound.Add(m.Quantity())
		}
	}

	filtered := out[:0]
	for _, d := range out {
		if d.Outbound.IsPositive() {
			filtered = append(filtered, d)
		}
	}
	return filtered
}

// CheckAvailability returns InsufficientStock when applying demand to current
// would leave the key negative and the policy forbids it
func CheckAvailability(policy StockPolicy, demand KeyDemand, current decimal.Decimal) error {
	if policy != nil && policy.AllowsNegative(demand.ProductID) {
		return nil
	}
	if current.Add(demand.Net).IsNegative() {
		return NewInsufficientStockError(demand.Key, demand.Outbound, current)
	}
	return nil
}
