package ledger

import (
	"fmt"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Ledger error kinds. Match with errors.Is; the concrete error carries details.
var (
	ErrInvalidQuantity        = shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	ErrUnknownTransactionType = shared.NewDomainError("UNKNOWN_TRANSACTION_TYPE", "Unknown transaction type")
	ErrInvalidReason          = shared.NewDomainError("INVALID_REASON", "Reason is required")
	ErrInvalidLocation        = shared.NewDomainError("INVALID_LOCATION", "Invalid location")
	ErrEmptyBatch             = shared.NewDomainError("EMPTY_BATCH", "At least one line item is required")
	ErrInvalidMovement        = shared.ErrInvalidInput
	ErrInsufficientStock      = shared.ErrInsufficientStock
	ErrNotFound               = shared.ErrNotFound
	ErrAlreadyReversed        = shared.NewDomainError("ALREADY_REVERSED", "Movement has already been reversed")
	ErrCannotReverseReversal  = shared.NewDomainError("CANNOT_REVERSE_REVERSAL", "Reversal movements cannot be reversed")
	ErrDuplicateCorrelation   = shared.NewDomainError("DUPLICATE_CORRELATION", "Correlation id has already been used")
	ErrPartialCommit          = shared.NewDomainError("PARTIAL_COMMIT_FAILURE", "Movement batch was not committed")
	ErrCacheInconsistency     = shared.NewDomainError("CACHE_INCONSISTENCY", "Cached stock diverged from the movement store")
	ErrImmutableMovement      = shared.NewDomainError("IMMUTABLE_MOVEMENT", "Committed movements cannot be modified or deleted")
)

// NewInvalidQuantityError reports a non-positive quantity on a line item
func NewInvalidQuantityError(line int, quantity decimal.Decimal) *shared.DomainError {
	return ErrInvalidQuantity.
		WithMessage("Quantity must be positive, got %s on line %d", quantity.String(), line).
		WithDetail("line", line).
		WithDetail("quantity", quantity.String())
}

// NewQuantityPrecisionError reports a quantity that does not fit the stored
// decimal(18,4) column
func NewQuantityPrecisionError(line int, quantity decimal.Decimal) *shared.DomainError {
	return ErrInvalidQuantity.
		WithMessage("Quantity %s on line %d must have at most %d decimal places and be below %s",
			quantity.String(), line, QuantityScale, maxQuantity.String()).
		WithDetail("line", line).
		WithDetail("quantity", quantity.String())
}

// NewUnknownTransactionTypeError reports a transaction type without a direction mapping
func NewUnknownTransactionTypeError(t TransactionType) *shared.DomainError {
	return ErrUnknownTransactionType.
		WithMessage("Unknown transaction type %q", string(t)).
		WithDetail("transaction_type", string(t))
}

// NewInsufficientStockError reports that OUT movements would drive a key below zero
func NewInsufficientStockError(key StockKey, requested, available decimal.Decimal) *shared.DomainError {
	err := ErrInsufficientStock.
		WithMessage("Insufficient stock for %s: requested %s, available %s", key.String(), requested.String(), available.String()).
		WithDetail("product_id", key.ProductID.String()).
		WithDetail("requested", requested.String()).
		WithDetail("available", available.String())
	if key.Location != nil {
		err = err.WithDetail("location", key.Location.Code())
	}
	if key.BatchNumber != nil {
		err = err.WithDetail("batch_number", *key.BatchNumber)
	}
	return err
}

// NewAlreadyReversedError reports a reversal target that was already superseded
func NewAlreadyReversedError(correlationID string, movementID int64) *shared.DomainError {
	return ErrAlreadyReversed.
		WithMessage("Movement %d of correlation %q has already been reversed", movementID, correlationID).
		WithDetail("correlation_id", correlationID).
		WithDetail("movement_id", movementID)
}

// NewCorrelationNotFoundError reports a correlation id with no movements
func NewCorrelationNotFoundError(correlationID string) *shared.DomainError {
	return ErrNotFound.
		WithMessage("No movements found for correlation %q", correlationID).
		WithDetail("correlation_id", correlationID)
}

// NewMovementNotFoundError reports an unknown movement id
func NewMovementNotFoundError(id int64) *shared.DomainError {
	return ErrNotFound.
		WithMessage("Movement %d not found", id).
		WithDetail("movement_id", id)
}

// NewDuplicateCorrelationError reports reuse of a correlation id
func NewDuplicateCorrelationError(correlationID string) *shared.DomainError {
	return ErrDuplicateCorrelation.
		WithMessage("Correlation id %q has already been used", correlationID).
		WithDetail("correlation_id", correlationID)
}

// NewPartialCommitError wraps an infrastructure failure that aborted a batch
func NewPartialCommitError(correlationID string, cause error) *shared.DomainError {
	return ErrPartialCommit.
		WithMessage("Movement batch %q was rolled back: %v", correlationID, cause).
		WithDetail("correlation_id", correlationID).
		WithCause(cause)
}

// NewCacheInconsistencyError describes a cache entry that disagrees with a recompute
func NewCacheInconsistencyError(key StockKey, cached, recomputed decimal.Decimal, highWaterMark int64) *shared.DomainError {
	return ErrCacheInconsistency.
		WithMessage("Cached stock for %s is %s, recomputed %s at movement %d",
			key.String(), cached.String(), recomputed.String(), highWaterMark).
		WithDetail("key", key.String()).
		WithDetail("cached", cached.String()).
		WithDetail("recomputed", recomputed.String()).
		WithDetail("last_movement_id", highWaterMark)
}

func invalidMovement(format string, args ...any) *shared.DomainError {
	return ErrInvalidMovement.WithMessage(format, args...)
}

func invalidLocation(format string, args ...any) *shared.DomainError {
	return ErrInvalidLocation.WithMessage("Invalid location: %s", fmt.Sprintf(format, args...))
}
