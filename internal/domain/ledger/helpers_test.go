package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var (
	testSite   = Location{Site: "WH1", Zone: "A", Bin: "01"}
	testOther  = Location{Site: "WH1", Zone: "B", Bin: "01"}
	baseTime   = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	testReason = "unit test"
)

// memStore mimics the movement store: it assigns ids and applies reversal plans
type memStore struct {
	nextID    int64
	movements []*Movement
}

func (s *memStore) append(t *testing.T, specs ...MovementSpec) []*Movement {
	t.Helper()
	out := make([]*Movement, 0, len(specs))
	for _, spec := range specs {
		m, err := NewMovement(spec)
		require.NoError(t, err)
		s.commit(m)
		out = append(out, m)
	}
	return out
}

func (s *memStore) commit(m *Movement) {
	s.nextID++
	m.id = s.nextID
	m.recordedAt = baseTime
	s.movements = append(s.movements, m)
}

func (s *memStore) apply(plan *ReversalPlan) {
	for _, pair := range plan.Pairs() {
		s.commit(pair.Compensation)
		id := pair.Compensation.id
		pair.Original.supersededBy = &id
		pair.Original.isDeleted = true
	}
}

func (s *memStore) byCorrelation(id string) []*Movement {
	var out []*Movement
	for _, m := range s.movements {
		if m.CorrelationID() == id {
			out = append(out, m)
		}
	}
	return out
}

func spec(product uuid.UUID, loc Location, dir Direction, qty int64, corr string, at time.Time) MovementSpec {
	mt := MovementTypeReceipt
	if dir == DirectionOut {
		mt = MovementTypeSale
	}
	return MovementSpec{
		ProductID:     product,
		Location:      loc,
		Quantity:      decimal.NewFromInt(qty),
		Direction:     dir,
		MovementType:  mt,
		Source:        SourceReference{TransactionType: TransactionTypeReceipt, HeaderID: corr},
		CorrelationID: corr,
		Reason:        testReason,
		OccurredAt:    at,
	}
}
