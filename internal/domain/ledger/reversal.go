package ledger

import (
	"strings"
	"time"
)

// ReversalRequest describes a reversal of one correlation
type ReversalRequest struct {
	OriginalCorrelationID string
	ReversalCorrelationID string
	Reason                string
	Actor                 string
	Now                   time.Time
}

// ReversalPair links an original movement to its compensation
type ReversalPair struct {
	Original     *Movement
	Compensation *Movement
}

// ReversalPlan is the validated set of compensations for one correlation.
// It can only be built by PlanReversal, and it is the only input the store
// accepts for setting superseded_by and is_deleted.
type ReversalPlan struct {
	originalCorrelationID string
	reversalCorrelationID string
	pairs                 []ReversalPair
}

// PlanReversal validates that every original can be reversed and builds the
// compensating movements: same product, location, batch, serial and magnitude,
// opposite direction.
func PlanReversal(originals []*Movement, req ReversalRequest) (*ReversalPlan, error) {
	if strings.TrimSpace(req.Reason) == "" {
		return nil, ErrInvalidReason
	}
	if strings.TrimSpace(req.ReversalCorrelationID) == "" {
		return nil, invalidMovement("reversal correlation id is required")
	}
	if req.ReversalCorrelationID == req.OriginalCorrelationID {
		return nil, invalidMovement("reversal correlation id must differ from the original")
	}
	if len(originals) == 0 {
		return nil, NewCorrelationNotFoundError(req.OriginalCorrelationID)
	}

	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}

	pairs := make([]ReversalPair, 0, len(originals))
	for _, orig := range originals {
		if orig.CorrelationID() != req.OriginalCorrelationID {
			return nil, invalidMovement("movement %d belongs to correlation %q, not %q",
				orig.ID(), orig.CorrelationID(), req.OriginalCorrelationID)
		}
		if !orig.IsCommitted() {
			return nil, invalidMovement("only committed movements can be reversed")
		}
		if orig.IsReversal() {
			return nil, ErrCannotReverseReversal.
				WithMessage("Correlation %q holds reversal movements and cannot be reversed", req.OriginalCorrelationID).
				WithDetail("correlation_id", req.OriginalCorrelationID)
		}
		if orig.IsSuperseded() {
			return nil, NewAlreadyReversedError(req.OriginalCorrelationID, orig.ID())
		}

		occurredAt := now
		if orig.OccurredAt().After(occurredAt) {
			occurredAt = orig.OccurredAt()
		}

		comp := &Movement{
			productID:             orig.productID,
			location:              orig.location,
			batchNumber:           orig.batchNumber,
			serialNumber:          orig.serialNumber,
			quantity:              orig.quantity,
			direction:             orig.direction.Opposite(),
			movementType:          MovementTypeReversal,
			source:                orig.source,
			correlationID:         req.ReversalCorrelationID,
			reversesCorrelationID: orig.correlationID,
			reversesMovementID:    orig.id,
			reason:                strings.TrimSpace(req.Reason),
			unitReference:         orig.unitReference,
			recordedBy:            req.Actor,
			occurredAt:            occurredAt,
		}
		pairs = append(pairs, ReversalPair{Original: orig, Compensation: comp})
	}

	return &ReversalPlan{
		originalCorrelationID: req.OriginalCorrelationID,
		reversalCorrelationID: req.ReversalCorrelationID,
		pairs:                 pairs,
	}, nil
}

// OriginalCorrelationID returns the correlation being reversed
func (p *ReversalPlan) OriginalCorrelationID() string { return p.originalCorrelationID }

// ReversalCorrelationID returns the correlation of the compensations
func (p *ReversalPlan) ReversalCorrelationID() string { return p.reversalCorrelationID }

// Pairs returns the original/compensation pairs in original id order
func (p *ReversalPlan) Pairs() []ReversalPair {
	out := make([]ReversalPair, len(p.pairs))
	copy(out, p.pairs)
	return out
}

// Compensations returns the movements to append
func (p *ReversalPlan) Compensations() []*Movement {
	out := make([]*Movement, 0, len(p.pairs))
	for _, pair := range p.pairs {
		out = append(out, pair.Compensation)
	}
	return out
}
