package models

import (
	"time"

	"github.com/erp/stockledger/internal/domain/ledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Columns a reversal is allowed to change on an existing movement
const (
	ColumnSupersededBy = "superseded_by"
	ColumnIsDeleted    = "is_deleted"
)

// MovementModel is the persistence model for ledger movements. Rows are
// append-only; the only permitted update is the supersede transition.
type MovementModel struct {
	ID                    int64                  `gorm:"primaryKey;autoIncrement"`
	ProductID             uuid.UUID              `gorm:"type:uuid;not null;index:idx_movement_key,priority:1;index:idx_movement_product_time,priority:1"`
	LocationSite          string                 `gorm:"type:varchar(64);not null;index:idx_movement_key,priority:2"`
	LocationZone          string                 `gorm:"type:varchar(64);not null;default:'';index:idx_movement_key,priority:3"`
	LocationBin           string                 `gorm:"type:varchar(64);not null;default:'';index:idx_movement_key,priority:4"`
	BatchNumber           string                 `gorm:"type:varchar(64);not null;default:'';index:idx_movement_batch"`
	SerialNumber          string                 `gorm:"type:varchar(100);not null;default:'';index:idx_movement_serial"`
	Quantity              decimal.Decimal        `gorm:"type:decimal(18,4);not null"`
	Direction             ledger.Direction       `gorm:"type:varchar(3);not null"`
	MovementType          ledger.MovementType    `gorm:"type:varchar(30);not null"`
	SourceType            ledger.TransactionType `gorm:"type:varchar(30);not null;index:idx_movement_source,priority:1"`
	SourceHeaderID        string                 `gorm:"type:varchar(64);not null;index:idx_movement_source,priority:2"`
	SourceDetailID        string                 `gorm:"type:varchar(64);not null;default:''"`
	CorrelationID         string                 `gorm:"type:varchar(100);not null;index:idx_movement_correlation"`
	ReversesCorrelationID string                 `gorm:"type:varchar(100);not null;default:'';index:idx_movement_reverses_correlation"`
	ReversesMovementID    *int64                 `gorm:"index:idx_movement_reverses_movement"`
	Reason                string                 `gorm:"type:varchar(500);not null"`
	UnitReference         string                 `gorm:"type:varchar(50);not null;default:''"`
	RecordedBy            string                 `gorm:"type:varchar(100);not null;default:''"`
	OccurredAt            time.Time              `gorm:"not null;index:idx_movement_product_time,priority:2"`
	RecordedAt            time.Time              `gorm:"not null"`
	SupersededBy          *int64                 `gorm:"uniqueIndex:idx_movement_superseded_by"`
	IsDeleted             bool                   `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (MovementModel) TableName() string {
	return "stock_movements"
}

// ToDomain converts the persistence model to a domain Movement
func (m *MovementModel) ToDomain() *ledger.Movement {
	var reversesMovementID int64
	if m.ReversesMovementID != nil {
		reversesMovementID = *m.ReversesMovementID
	}
	return ledger.RestoreMovement(ledger.MovementSnapshot{
		ID:        m.ID,
		ProductID: m.ProductID,
		Location: ledger.Location{
			Site: m.LocationSite,
			Zone: m.LocationZone,
			Bin:  m.LocationBin,
		},
		BatchNumber:  m.BatchNumber,
		SerialNumber: m.SerialNumber,
		Quantity:     m.Quantity,
		Direction:    m.Direction,
		MovementType: m.MovementType,
		Source: ledger.SourceReference{
			TransactionType: m.SourceType,
			HeaderID:        m.SourceHeaderID,
			DetailID:        m.SourceDetailID,
		},
		CorrelationID:         m.CorrelationID,
		ReversesCorrelationID: m.ReversesCorrelationID,
		ReversesMovementID:    reversesMovementID,
		Reason:                m.Reason,
		UnitReference:         m.UnitReference,
		RecordedBy:            m.RecordedBy,
		OccurredAt:            m.OccurredAt.UTC(),
		RecordedAt:            m.RecordedAt.UTC(),
		SupersededBy:          m.SupersededBy,
		IsDeleted:             m.IsDeleted,
	})
}

// FromDomain populates the persistence model from a domain Movement.
// Times are stored in UTC so that text-encoded timestamps order correctly.
func (m *MovementModel) FromDomain(mv *ledger.Movement) {
	s := mv.Snapshot()
	m.ID = s.ID
	m.ProductID = s.ProductID
	m.LocationSite = s.Location.Site
	m.LocationZone = s.Location.Zone
	m.LocationBin = s.Location.Bin
	m.BatchNumber = s.BatchNumber
	m.SerialNumber = s.SerialNumber
	m.Quantity = s.Quantity
	m.Direction = s.Direction
	m.MovementType = s.MovementType
	m.SourceType = s.Source.TransactionType
	m.SourceHeaderID = s.Source.HeaderID
	m.SourceDetailID = s.Source.DetailID
	m.CorrelationID = s.CorrelationID
	m.ReversesCorrelationID = s.ReversesCorrelationID
	m.ReversesMovementID = nil
	if s.ReversesMovementID != 0 {
		id := s.ReversesMovementID
		m.ReversesMovementID = &id
	}
	m.Reason = s.Reason
	m.UnitReference = s.UnitReference
	m.RecordedBy = s.RecordedBy
	m.OccurredAt = s.OccurredAt.UTC()
	m.RecordedAt = s.RecordedAt.UTC()
	m.SupersededBy = s.SupersededBy
	m.IsDeleted = s.IsDeleted
}

// MovementModelFromDomain creates a new persistence model from a domain Movement
func MovementModelFromDomain(mv *ledger.Movement) *MovementModel {
	m := &MovementModel{}
	m.FromDomain(mv)
	return m
}

// BeforeUpdate rejects every update except a map update of the supersede columns
func (m *MovementModel) BeforeUpdate(tx *gorm.DB) error {
	values, ok := tx.Statement.Dest.(map[string]any)
	if !ok {
		return ledger.ErrImmutableMovement
	}
	for column := range values {
		if column != ColumnSupersededBy && column != ColumnIsDeleted {
			return ledger.ErrImmutableMovement.WithMessage("Column %q of a committed movement cannot be modified", column)
		}
	}
	return nil
}

// BeforeDelete rejects every delete
func (m *MovementModel) BeforeDelete(tx *gorm.DB) error {
	return ledger.ErrImmutableMovement
}
