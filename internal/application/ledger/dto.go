package ledger

import (
	"time"

	"github.com/erp/stockledger/internal/domain/ledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineItem is one line of a business transaction handed to the generator
type LineItem struct {
	ProductID           uuid.UUID       `json:"product_id" validate:"required"`
	Quantity            decimal.Decimal `json:"quantity"`
	Location            string          `json:"location" validate:"omitempty,max=150"`
	DestinationLocation string          `json:"destination_location" validate:"omitempty,max=150"`
	BatchNumber         string          `json:"batch_number" validate:"omitempty,max=64"`
	SerialNumber        string          `json:"serial_number" validate:"omitempty,max=64"`
	UnitReference       string          `json:"unit_reference" validate:"omitempty,max=64"`
	DetailID            string          `json:"detail_id" validate:"omitempty,max=64"`
}

// GenerateRequest records the movements of one business transaction
type GenerateRequest struct {
	CorrelationID   string     `json:"correlation_id" validate:"required,max=128"`
	TransactionType string     `json:"transaction_type" validate:"required,max=32"`
	HeaderID        string     `json:"header_id" validate:"required,max=128"`
	Lines           []LineItem `json:"lines" validate:"dive"`
	// DefaultLocation applies to lines without their own location
	DefaultLocation string `json:"default_location" validate:"omitempty,max=150"`
	// Reason defaults to the transaction type and header id
	Reason     string     `json:"reason" validate:"omitempty,max=500"`
	Actor      string     `json:"actor" validate:"omitempty,max=128"`
	OccurredAt *time.Time `json:"occurred_at"`
	// AllowNegative skips the insufficient-stock check for this call
	AllowNegative bool `json:"allow_negative"`
}

// GenerateResult lists the committed movements of a generate call
type GenerateResult struct {
	CorrelationID string             `json:"correlation_id"`
	MovementIDs   []int64            `json:"movement_ids"`
	Movements     []MovementResponse `json:"movements"`
}

// ReverseRequest voids every movement of a correlation
type ReverseRequest struct {
	CorrelationID string `json:"correlation_id" validate:"required,max=128"`
	// ReversalCorrelationID defaults to a generated REV- id
	ReversalCorrelationID string `json:"reversal_correlation_id" validate:"omitempty,max=128"`
	Reason                string `json:"reason" validate:"required,max=500"`
	Actor                 string `json:"actor" validate:"required,max=128"`
}

// ReversalResult lists the compensating movements of a reversal
type ReversalResult struct {
	OriginalCorrelationID string             `json:"original_correlation_id"`
	ReversalCorrelationID string             `json:"reversal_correlation_id"`
	MovementIDs           []int64            `json:"movement_ids"`
	Movements             []MovementResponse `json:"movements"`
}

// StockQuery addresses stock on hand for a product, optionally narrowed by
// location (hierarchical) and batch, optionally as of a business time
type StockQuery struct {
	ProductID   uuid.UUID  `json:"product_id" validate:"required"`
	Location    string     `json:"location,omitempty" validate:"omitempty,max=150"`
	BatchNumber string     `json:"batch_number,omitempty" validate:"omitempty,max=64"`
	AsOf        *time.Time `json:"as_of,omitempty"`
}

// Stock level sources
const (
	SourceCache = "cache"
	SourceStore = "store"
)

// StockLevel is the answer to a stock query
type StockLevel struct {
	ProductID      uuid.UUID       `json:"product_id"`
	Location       string          `json:"location,omitempty"`
	BatchNumber    string          `json:"batch_number,omitempty"`
	Quantity       decimal.Decimal `json:"quantity"`
	AsOf           *time.Time      `json:"as_of,omitempty"`
	LastMovementID int64           `json:"last_movement_id,omitempty"`
	Source         string          `json:"source"`
}

// MovementResponse is the read model of a movement
type MovementResponse struct {
	ID                    int64           `json:"id"`
	ProductID             uuid.UUID       `json:"product_id"`
	Location              string          `json:"location"`
	BatchNumber           string          `json:"batch_number,omitempty"`
	SerialNumber          string          `json:"serial_number,omitempty"`
	Quantity              decimal.Decimal `json:"quantity"`
	Direction             string          `json:"direction"`
	SignedQuantity        decimal.Decimal `json:"signed_quantity"`
	MovementType          string          `json:"movement_type"`
	TransactionType       string          `json:"transaction_type"`
	HeaderID              string          `json:"header_id"`
	DetailID              string          `json:"detail_id,omitempty"`
	CorrelationID         string          `json:"correlation_id"`
	ReversesCorrelationID string          `json:"reverses_correlation_id,omitempty"`
	ReversesMovementID    *int64          `json:"reverses_movement_id,omitempty"`
	Reason                string          `json:"reason"`
	UnitReference         string          `json:"unit_reference,omitempty"`
	RecordedBy            string          `json:"recorded_by,omitempty"`
	OccurredAt            time.Time       `json:"occurred_at"`
	RecordedAt            time.Time       `json:"recorded_at"`
	SupersededBy          *int64          `json:"superseded_by,omitempty"`
	IsDeleted             bool            `json:"is_deleted"`
}

// ToMovementResponse converts a domain movement to its read model
func ToMovementResponse(m *ledger.Movement) MovementResponse {
	resp := MovementResponse{
		ID:                    m.ID(),
		ProductID:             m.ProductID(),
		Location:              m.Location().Code(),
		BatchNumber:           m.BatchNumber(),
		SerialNumber:          m.SerialNumber(),
		Quantity:              m.Quantity(),
		Direction:             string(m.Direction()),
		SignedQuantity:        m.SignedQuantity(),
		MovementType:          m.MovementType().String(),
		TransactionType:       m.Source().TransactionType.String(),
		HeaderID:              m.Source().HeaderID,
		DetailID:              m.Source().DetailID,
		CorrelationID:         m.CorrelationID(),
		ReversesCorrelationID: m.ReversesCorrelationID(),
		Reason:                m.Reason(),
		UnitReference:         m.UnitReference(),
		RecordedBy:            m.RecordedBy(),
		OccurredAt:            m.OccurredAt(),
		RecordedAt:            m.RecordedAt(),
		SupersededBy:          m.SupersededBy(),
		IsDeleted:             m.IsDeleted(),
	}
	if id := m.ReversesMovementID(); id > 0 {
		resp.ReversesMovementID = &id
	}
	return resp
}

// ToMovementResponses converts a list of movements
func ToMovementResponses(movements []*ledger.Movement) []MovementResponse {
	out := make([]MovementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, ToMovementResponse(m))
	}
	return out
}

// HistoryRequest selects a product's movements within a business-time window
type HistoryRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Location  string    `json:"location" validate:"omitempty,max=150"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Page      int       `json:"page" validate:"omitempty,min=1"`
	PageSize  int       `json:"page_size" validate:"omitempty,min=1"`
	OrderDir  string    `json:"order_dir" validate:"omitempty,oneof=asc desc"`
}

// LocationBalance is the active quantity of a batch at one location
type LocationBalance struct {
	ProductID uuid.UUID       `json:"product_id"`
	Location  string          `json:"location"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// BatchTrace answers where a batch came from and where it went
type BatchTrace struct {
	BatchNumber    string             `json:"batch_number"`
	Movements      []MovementResponse `json:"movements"`
	Balances       []LocationBalance  `json:"balances"`
	CorrelationIDs []string           `json:"correlation_ids"`
}

// ExcursionReport lists the points where a key's running balance went negative
type ExcursionReport struct {
	ProductID   uuid.UUID          `json:"product_id"`
	Location    string             `json:"location,omitempty"`
	BatchNumber string             `json:"batch_number,omitempty"`
	Excursions  []ledger.Excursion `json:"excursions"`
}

// CacheEntry is the read model of a cached aggregate
type CacheEntry struct {
	Key            string          `json:"key"`
	QuantityOnHand decimal.Decimal `json:"quantity_on_hand"`
	LastMovementID int64           `json:"last_movement_id"`
	ComputedAt     time.Time       `json:"computed_at"`
}

// ToCacheEntry converts an aggregate to its read model
func ToCacheEntry(a ledger.StockAggregate) CacheEntry {
	return CacheEntry{
		Key:            a.Key.String(),
		QuantityOnHand: a.QuantityOnHand,
		LastMovementID: a.LastMovementID,
		ComputedAt:     a.ComputedAt,
	}
}

// VerifyReport summarizes a verification pass over cached keys
type VerifyReport struct {
	Checked      int      `json:"checked"`
	Inconsistent int      `json:"inconsistent"`
	Rebuilt      []string `json:"rebuilt,omitempty"`
}
