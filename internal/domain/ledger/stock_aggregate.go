package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// StockAggregate is a derived, disposable stock-on-hand value for a key.
// LastMovementID is the high-water mark: every movement with a smaller or equal
// id has been folded in.
type StockAggregate struct {
	Key            StockKey        `json:"key"`
	QuantityOnHand decimal.Decimal `json:"quantity_on_hand"`
	LastMovementID int64           `json:"last_movement_id"`
	ComputedAt     time.Time       `json:"computed_at"`
}

// NewStockAggregate creates an empty aggregate for a key
func NewStockAggregate(key StockKey) StockAggregate {
	return StockAggregate{Key: key, QuantityOnHand: decimal.Zero}
}

// Fold applies movements committed after the high-water mark.
//
// A non-reversal movement counts unless it is already voided. A reversal counts
// only when the movement it voids was folded in earlier (id at or below the
// previous high-water mark); otherwise neither side was ever counted.
func (a StockAggregate) Fold(movements []*Movement, now time.Time) StockAggregate {
	sorted := make([]*Movement, 0, len(movements))
	for _, m := range movements {
		if m.ID() > a.LastMovementID && a.Key.Matches(m) {
			sorted = append(sorted, m)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID() < sorted[j].ID() })

	base := a.LastMovementID
	qty := a.QuantityOnHand
	hwm := a.LastMovementID
	for _, m := range sorted {
		switch {
		case m.IsReversal():
			if m.ReversesMovementID() <= base {
				qty = qty.Add(m.SignedQuantity())
			}
		case !m.IsDeleted():
			qty = qty.Add(m.SignedQuantity())
		}
		hwm = m.ID()
	}

	return StockAggregate{
		Key:            a.Key,
		QuantityOnHand: qty,
		LastMovementID: hwm,
		ComputedAt:     now,
	}
}

// StockOnHand computes current stock for key from a full movement set
func StockOnHand(key StockKey, movements []*Movement) decimal.Decimal {
	total := decimal.Zero
	for _, m := range movements {
		if key.Matches(m) && m.IsActive() {
			total = total.Add(m.SignedQuantity())
		}
	}
	return total
}

// StockOnHandAsOf computes stock for key as it stood at business time asOf.
// A voided movement still counts before the time its reversal took effect.
func StockOnHandAsOf(key StockKey, movements []*Movement, asOf time.Time) decimal.Decimal {
	voidedAt := make(map[int64]time.Time)
	for _, m := range movements {
		if m.IsReversal() {
			voidedAt[m.ReversesMovementID()] = m.OccurredAt()
		}
	}

	total := decimal.Zero
	for _, m := range movements {
		if !key.Matches(m) || m.IsReversal() || m.OccurredAt().After(asOf) {
			continue
		}
		if m.IsDeleted() {
			if at, ok := voidedAt[m.ID()]; ok && !at.After(asOf) {
				continue
			}
		}
		total = total.Add(m.SignedQuantity())
	}
	return total
}

// Excursion is a point in business time where the running balance was negative
type Excursion struct {
	MovementID int64           `json:"movement_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Balance    decimal.Decimal `json:"balance"`
}

// NegativeExcursions replays the key's movements in business-time order and
// reports every point where the balance dropped below zero. Backdated movements
// can produce excursions that never showed up in current stock.
func NegativeExcursions(key StockKey, movements []*Movement) []Excursion {
	events := make([]*Movement, 0, len(movements))
	for _, m := range movements {
		if key.Matches(m) {
			events = append(events, m)
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].OccurredAt().Equal(events[j].OccurredAt()) {
			return events[i].ID() < events[j].ID()
		}
		return events[i].OccurredAt().Before(events[j].OccurredAt())
	})

	var out []Excursion
	balance := decimal.Zero
	for _, m := range events {
		// Original and reversal both contribute at their own business time,
		// which matches the as-of predicate at every point.
		balance = balance.Add(m.SignedQuantity())
		if balance.IsNegative() {
			out = append(out, Excursion{MovementID: m.ID(), OccurredAt: m.OccurredAt(), Balance: balance})
		}
	}
	return out
}

// DistinctKeys returns the exact keys of movements, in first-seen order
func DistinctKeys(movements []*Movement) []StockKey {
	seen := make(map[string]struct{}, len(movements))
	keys := make([]StockKey, 0, len(movements))
	for _, m := range movements {
		k := m.Key()
		if _, ok := seen[k.String()]; ok {
			continue
		}
		seen[k.String()] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

// AffectedKeys returns the exact keys of movements plus each product-wide key
func AffectedKeys(movements []*Movement) []StockKey {
	keys := DistinctKeys(movements)
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		seen[k.String()] = struct{}{}
	}
	for _, m := range movements {
		pk := ProductKey(m.ProductID())
		if _, ok := seen[pk.String()]; ok {
			continue
		}
		seen[pk.String()] = struct{}{}
		keys = append(keys, pk)
	}
	return keys
}
