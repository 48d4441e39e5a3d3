package ledger

import "github.com/shopspring/decimal"

// Direction is the sign carried by a movement. Quantities are always positive.
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// IsValid checks if the direction is valid
func (d Direction) IsValid() bool {
	return d == DirectionIn || d == DirectionOut
}

// Opposite returns the reverse direction
func (d Direction) Opposite() Direction {
	if d == DirectionIn {
		return DirectionOut
	}
	return DirectionIn
}

// Apply returns the signed value of a positive magnitude
func (d Direction) Apply(quantity decimal.Decimal) decimal.Decimal {
	if d == DirectionOut {
		return quantity.Neg()
	}
	return quantity
}

// MovementType describes the business cause of a movement
type MovementType string

const (
	MovementTypeReceipt          MovementType = "RECEIPT"
	MovementTypeSale             MovementType = "SALE"
	MovementTypeProductionInput  MovementType = "PRODUCTION_INPUT"
	MovementTypeProductionOutput MovementType = "PRODUCTION_OUTPUT"
	MovementTypeTransferIn       MovementType = "TRANSFER_IN"
	MovementTypeTransferOut      MovementType = "TRANSFER_OUT"
	MovementTypeAdjustmentIn     MovementType = "ADJUSTMENT_IN"
	MovementTypeAdjustmentOut    MovementType = "ADJUSTMENT_OUT"
	MovementTypeVariance         MovementType = "VARIANCE"
	MovementTypeReversal         MovementType = "REVERSAL"
)

// IsValid checks if the movement type is valid
func (t MovementType) IsValid() bool {
	switch t {
	case MovementTypeReceipt, MovementTypeSale,
		MovementTypeProductionInput, MovementTypeProductionOutput,
		MovementTypeTransferIn, MovementTypeTransferOut,
		MovementTypeAdjustmentIn, MovementTypeAdjustmentOut,
		MovementTypeVariance, MovementTypeReversal:
		return true
	}
	return false
}

// String returns the string representation
func (t MovementType) String() string {
	return string(t)
}

// TransactionType is the business transaction a caller reports to the generator.
// The set is closed; Legs is the single place that maps a type to movements.
type TransactionType string

const (
	TransactionTypeReceipt          TransactionType = "RECEIPT"
	TransactionTypeSale             TransactionType = "SALE"
	TransactionTypeProductionInput  TransactionType = "PRODUCTION_INPUT"
	TransactionTypeProductionOutput TransactionType = "PRODUCTION_OUTPUT"
	TransactionTypeTransfer         TransactionType = "TRANSFER"
	TransactionTypeTransferIn       TransactionType = "TRANSFER_IN"
	TransactionTypeTransferOut      TransactionType = "TRANSFER_OUT"
	TransactionTypeAdjustmentIn     TransactionType = "ADJUSTMENT_IN"
	TransactionTypeAdjustmentOut    TransactionType = "ADJUSTMENT_OUT"
	TransactionTypeVarianceGain     TransactionType = "VARIANCE_GAIN"
	TransactionTypeVarianceLoss     TransactionType = "VARIANCE_LOSS"
)

// AllTransactionTypes returns every transaction type accepted by the generator
func AllTransactionTypes() []TransactionType {
	return []TransactionType{
		TransactionTypeReceipt,
		TransactionTypeSale,
		TransactionTypeProductionInput,
		TransactionTypeProductionOutput,
		TransactionTypeTransfer,
		TransactionTypeTransferIn,
		TransactionTypeTransferOut,
		TransactionTypeAdjustmentIn,
		TransactionTypeAdjustmentOut,
		TransactionTypeVarianceGain,
		TransactionTypeVarianceLoss,
	}
}

// IsValid checks if the transaction type has a direction mapping
func (t TransactionType) IsValid() bool {
	_, err := t.Legs()
	return err == nil
}

// String returns the string representation
func (t TransactionType) String() string {
	return string(t)
}

// LegSite selects which line-item location a leg is written against
type LegSite int

const (
	// LegAtSource uses the line item location
	LegAtSource LegSite = iota
	// LegAtDestination uses the line item destination location
	LegAtDestination
)

// Leg is one movement produced per line item by a transaction type
type Leg struct {
	MovementType MovementType
	Direction    Direction
	Site         LegSite
}

// Legs returns the movements a transaction type produces for each line item.
// Every TransactionType constant must have a case here.
func (t TransactionType) Legs() ([]Leg, error) {
	switch t {
	case TransactionTypeReceipt:
		return []Leg{{MovementTypeReceipt, DirectionIn, LegAtSource}}, nil
	case TransactionTypeSale:
		return []Leg{{MovementTypeSale, DirectionOut, LegAtSource}}, nil
	case TransactionTypeProductionInput:
		return []Leg{{MovementTypeProductionInput, DirectionOut, LegAtSource}}, nil
	case TransactionTypeProductionOutput:
		return []Leg{{MovementTypeProductionOutput, DirectionIn, LegAtSource}}, nil
	case TransactionTypeTransfer:
		return []Leg{
			{MovementTypeTransferOut, DirectionOut, LegAtSource},
			{MovementTypeTransferIn, DirectionIn, LegAtDestination},
		}, nil
	case TransactionTypeTransferIn:
		return []Leg{{MovementTypeTransferIn, DirectionIn, LegAtSource}}, nil
	case TransactionTypeTransferOut:
		return []Leg{{MovementTypeTransferOut, DirectionOut, LegAtSource}}, nil
	case TransactionTypeAdjustmentIn:
		return []Leg{{MovementTypeAdjustmentIn, DirectionIn, LegAtSource}}, nil
	case TransactionTypeAdjustmentOut:
		return []Leg{{MovementTypeAdjustmentOut, DirectionOut, LegAtSource}}, nil
	case TransactionTypeVarianceGain:
		return []Leg{{MovementTypeVariance, DirectionIn, LegAtSource}}, nil
	case TransactionTypeVarianceLoss:
		return []Leg{{MovementTypeVariance, DirectionOut, LegAtSource}}, nil
	default:
		return nil, NewUnknownTransactionTypeError(t)
	}
}

// RequiresDestination reports whether line items need a destination location
func (t TransactionType) RequiresDestination() bool {
	legs, err := t.Legs()
	if err != nil {
		return false
	}
	for _, leg := range legs {
		if leg.Site == LegAtDestination {
			return true
		}
	}
	return false
}
