package ledger

import "github.com/erp/stockledger/internal/domain/shared"

// Event types
const (
	EventTypeMovementsRecorded = "ledger.movements_recorded"
	EventTypeMovementsReversed = "ledger.movements_reversed"

	AggregateTypeCorrelation = "ledger.correlation"
)

// MovementsRecordedEvent is published after a generate call commits
type MovementsRecordedEvent struct {
	shared.BaseDomainEvent
	CorrelationID   string          `json:"correlation_id"`
	TransactionType TransactionType `json:"transaction_type"`
	MovementIDs     []int64         `json:"movement_ids"`
	Keys            []StockKey      `json:"keys"`
}

// NewMovementsRecordedEvent creates the event for committed movements
func NewMovementsRecordedEvent(correlationID string, txType TransactionType, movements []*Movement) *MovementsRecordedEvent {
	return &MovementsRecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeMovementsRecorded, AggregateTypeCorrelation, correlationID),
		CorrelationID:   correlationID,
		TransactionType: txType,
		MovementIDs:     movementIDs(movements),
		Keys:            AffectedKeys(movements),
	}
}

// MovementsReversedEvent is published after a reversal commits
type MovementsReversedEvent struct {
	shared.BaseDomainEvent
	OriginalCorrelationID string     `json:"original_correlation_id"`
	ReversalCorrelationID string     `json:"reversal_correlation_id"`
	MovementIDs           []int64    `json:"movement_ids"`
	Keys                  []StockKey `json:"keys"`
}

// NewMovementsReversedEvent creates the event for committed compensations
func NewMovementsReversedEvent(originalCorrelationID, reversalCorrelationID string, compensations []*Movement) *MovementsReversedEvent {
	return &MovementsReversedEvent{
		BaseDomainEvent:       shared.NewBaseDomainEvent(EventTypeMovementsReversed, AggregateTypeCorrelation, reversalCorrelationID),
		OriginalCorrelationID: originalCorrelationID,
		ReversalCorrelationID: reversalCorrelationID,
		MovementIDs:           movementIDs(compensations),
		Keys:                  AffectedKeys(compensations),
	}
}

// AffectedStockKeys returns the keys carried by a ledger event, or nil
func AffectedStockKeys(event shared.DomainEvent) []StockKey {
	switch e := event.(type) {
	case *MovementsRecordedEvent:
		return e.Keys
	case *MovementsReversedEvent:
		return e.Keys
	}
	return nil
}

func movementIDs(movements []*Movement) []int64 {
	ids := make([]int64, 0, len(movements))
	for _, m := range movements {
		ids = append(ids, m.ID())
	}
	return ids
}
