package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SourceReference is a logical, unenforced pointer to the business transaction
// that produced a movement. The transaction itself is owned by the caller.
type SourceReference struct {
	TransactionType TransactionType `json:"transaction_type"`
	HeaderID        string          `json:"header_id"`
	DetailID        string          `json:"detail_id,omitempty"`
}

// Movement is one immutable signed quantity change against a
// product/location/batch/serial key. Fields are unexported so that a committed
// movement cannot be altered; the only later transition (superseded) is applied
// by the store from a ReversalPlan.
type Movement struct {
	id                    int64
	productID             uuid.UUID
	location              Location
	batchNumber           string
	serialNumber          string
	quantity              decimal.Decimal
	direction             Direction
	movementType          MovementType
	source                SourceReference
	correlationID         string
	reversesCorrelationID string
	reversesMovementID    int64
	reason                string
	unitReference         string
	recordedBy            string
	occurredAt            time.Time
	recordedAt            time.Time
	supersededBy          *int64
	isDeleted             bool
}

// MovementSpec carries the caller-controlled fields of a new movement
type MovementSpec struct {
	ProductID     uuid.UUID
	Location      Location
	BatchNumber   string
	SerialNumber  string
	Quantity      decimal.Decimal
	Direction     Direction
	MovementType  MovementType
	Source        SourceReference
	CorrelationID string
	Reason        string
	UnitReference string
	RecordedBy    string
	OccurredAt    time.Time
}

// QuantityScale is the number of decimal places a stored quantity keeps
const QuantityScale = 4

// maxQuantity is the smallest magnitude that overflows decimal(18,4)
var maxQuantity = decimal.New(1, 18-QuantityScale)

// ValidateLineQuantity checks that a line item quantity is positive and fits
// the stored precision without rounding
func ValidateLineQuantity(line int, quantity decimal.Decimal) error {
	if !quantity.IsPositive() {
		return NewInvalidQuantityError(line, quantity)
	}
	if !quantity.Equal(quantity.Truncate(QuantityScale)) || quantity.GreaterThanOrEqual(maxQuantity) {
		return NewQuantityPrecisionError(line, quantity)
	}
	return nil
}

// NewMovement validates a spec and creates an uncommitted movement.
// Reversal movements can only be produced by PlanReversal.
func NewMovement(spec MovementSpec) (*Movement, error) {
	if spec.ProductID == uuid.Nil {
		return nil, invalidMovement("product id is required")
	}
	if err := ValidateLineQuantity(0, spec.Quantity); err != nil {
		return nil, err
	}
	if !spec.Direction.IsValid() {
		return nil, invalidMovement("invalid direction %q", string(spec.Direction))
	}
	if !spec.MovementType.IsValid() {
		return nil, invalidMovement("invalid movement type %q", string(spec.MovementType))
	}
	if spec.MovementType == MovementTypeReversal {
		return nil, invalidMovement("reversal movements are created by the reversal engine only")
	}
	if err := spec.Location.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateBatchNumber(spec.BatchNumber); err != nil {
		return nil, err
	}
	if strings.TrimSpace(spec.Reason) == "" {
		return nil, ErrInvalidReason
	}
	if strings.TrimSpace(spec.CorrelationID) == "" {
		return nil, invalidMovement("correlation id is required")
	}
	if spec.OccurredAt.IsZero() {
		return nil, invalidMovement("occurred_at is required")
	}

	return &Movement{
		productID:     spec.ProductID,
		location:      spec.Location,
		batchNumber:   strings.TrimSpace(spec.BatchNumber),
		serialNumber:  strings.TrimSpace(spec.SerialNumber),
		quantity:      spec.Quantity,
		direction:     spec.Direction,
		movementType:  spec.MovementType,
		source:        spec.Source,
		correlationID: strings.TrimSpace(spec.CorrelationID),
		reason:        strings.TrimSpace(spec.Reason),
		unitReference: spec.UnitReference,
		recordedBy:    spec.RecordedBy,
		occurredAt:    spec.OccurredAt,
	}, nil
}

// MovementSnapshot is the full persisted state of a movement
type MovementSnapshot struct {
	ID                    int64
	ProductID             uuid.UUID
	Location              Location
	BatchNumber           string
	SerialNumber          string
	Quantity              decimal.Decimal
	Direction             Direction
	MovementType          MovementType
	Source                SourceReference
	CorrelationID         string
	ReversesCorrelationID string
	ReversesMovementID    int64
	Reason                string
	UnitReference         string
	RecordedBy            string
	OccurredAt            time.Time
	RecordedAt            time.Time
	SupersededBy          *int64
	IsDeleted             bool
}

// RestoreMovement rehydrates a movement read from storage
func RestoreMovement(s MovementSnapshot) *Movement {
	var supersededBy *int64
	if s.SupersededBy != nil {
		v := *s.SupersededBy
		supersededBy = &v
	}
	return &Movement{
		id:                    s.ID,
		productID:             s.ProductID,
		location:              s.Location,
		batchNumber:           s.BatchNumber,
		serialNumber:          s.SerialNumber,
		quantity:              s.Quantity,
		direction:             s.Direction,
		movementType:          s.MovementType,
		source:                s.Source,
		correlationID:         s.CorrelationID,
		reversesCorrelationID: s.ReversesCorrelationID,
		reversesMovementID:    s.ReversesMovementID,
		reason:                s.Reason,
		unitReference:         s.UnitReference,
		recordedBy:            s.RecordedBy,
		occurredAt:            s.OccurredAt,
		recordedAt:            s.RecordedAt,
		supersededBy:          supersededBy,
		isDeleted:             s.IsDeleted,
	}
}

// Snapshot returns a copy of the movement's state for persistence
func (m *Movement) Snapshot() MovementSnapshot {
	var supersededBy *int64
	if m.supersededBy != nil {
		v := *m.supersededBy
		supersededBy = &v
	}
	return MovementSnapshot{
		ID:                    m.id,
		ProductID:             m.productID,
		Location:              m.location,
		BatchNumber:           m.batchNumber,
		SerialNumber:          m.serialNumber,
		Quantity:              m.quantity,
		Direction:             m.direction,
		MovementType:          m.movementType,
		Source:                m.source,
		CorrelationID:         m.correlationID,
		ReversesCorrelationID: m.reversesCorrelationID,
		ReversesMovementID:    m.reversesMovementID,
		Reason:                m.reason,
		UnitReference:         m.unitReference,
		RecordedBy:            m.recordedBy,
		OccurredAt:            m.occurredAt,
		RecordedAt:            m.recordedAt,
		SupersededBy:          supersededBy,
		IsDeleted:             m.isDeleted,
	}
}

// ID returns the store-assigned id; zero until committed
func (m *Movement) ID() int64 { return m.id }

// ProductID returns the product
func (m *Movement) ProductID() uuid.UUID { return m.productID }

// Location returns where the movement happened
func (m *Movement) Location() Location { return m.location }

// BatchNumber returns the batch, empty when untracked
func (m *Movement) BatchNumber() string { return m.batchNumber }

// SerialNumber returns the serial, empty when untracked
func (m *Movement) SerialNumber() string { return m.serialNumber }

// Quantity returns the positive magnitude
func (m *Movement) Quantity() decimal.Decimal { return m.quantity }

// Direction returns IN or OUT
func (m *Movement) Direction() Direction { return m.direction }

// MovementType returns the business cause
func (m *Movement) MovementType() MovementType { return m.movementType }

// Source returns the originating transaction reference
func (m *Movement) Source() SourceReference { return m.source }

// CorrelationID returns the id shared by every movement of one action
func (m *Movement) CorrelationID() string { return m.correlationID }

// ReversesCorrelationID returns the correlation a reversal movement compensates
func (m *Movement) ReversesCorrelationID() string { return m.reversesCorrelationID }

// ReversesMovementID returns the movement a reversal movement compensates
func (m *Movement) ReversesMovementID() int64 { return m.reversesMovementID }

// Reason returns the mandatory justification
func (m *Movement) Reason() string { return m.reason }

// UnitReference returns the caller's unit of measure reference
func (m *Movement) UnitReference() string { return m.unitReference }

// RecordedBy returns the actor that caused the movement
func (m *Movement) RecordedBy() string { return m.recordedBy }

// OccurredAt returns the business-effective time
func (m *Movement) OccurredAt() time.Time { return m.occurredAt }

// RecordedAt returns the system commit time
func (m *Movement) RecordedAt() time.Time { return m.recordedAt }

// SupersededBy returns the reversal movement that voided this one
func (m *Movement) SupersededBy() *int64 {
	if m.supersededBy == nil {
		return nil
	}
	v := *m.supersededBy
	return &v
}

// IsDeleted reports whether the movement has been logically voided
func (m *Movement) IsDeleted() bool { return m.isDeleted }

// IsSuperseded reports whether a reversal has voided this movement
func (m *Movement) IsSuperseded() bool { return m.supersededBy != nil || m.isDeleted }

// IsReversal reports whether this is a compensation record
func (m *Movement) IsReversal() bool { return m.movementType == MovementTypeReversal }

// IsCommitted reports whether the store has assigned an id
func (m *Movement) IsCommitted() bool { return m.id > 0 }

// SignedQuantity returns the quantity with the direction's sign applied
func (m *Movement) SignedQuantity() decimal.Decimal {
	return m.direction.Apply(m.quantity)
}

// IsActive reports whether the movement counts toward current stock on hand
func (m *Movement) IsActive() bool {
	return !m.isDeleted && !m.IsReversal()
}

// Key returns the aggregate key of the movement's location, narrowed to its
// batch when it has one
func (m *Movement) Key() StockKey {
	return NewStockKey(m.productID, m.location, m.batchNumber)
}
