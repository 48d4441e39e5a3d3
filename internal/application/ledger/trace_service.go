package ledger

import (
	"context"
	"sort"
	"strings"

	"github.com/erp/stockledger/internal/domain/ledger"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TraceService answers where a batch or serial went and why a movement
// happened. Every list is ordered by occurred_at and includes superseded
// originals alongside their reversals.
type TraceService struct {
	reader ledger.MovementReader
}

// NewTraceService creates a new TraceService
func NewTraceService(reader ledger.MovementReader) *TraceService {
	return &TraceService{reader: reader}
}

// ByBatch returns every movement of a batch
func (s *TraceService) ByBatch(ctx context.Context, batchNumber string) ([]MovementResponse, error) {
	if err := requireID("batch_number", batchNumber); err != nil {
		return nil, err
	}
	movements, err := s.reader.FindByBatch(ctx, strings.TrimSpace(batchNumber))
	if err != nil {
		return nil, err
	}
	return ToMovementResponses(movements), nil
}

// BySerial returns every movement of a serial number
func (s *TraceService) BySerial(ctx context.Context, serialNumber string) ([]MovementResponse, error) {
	if err := requireID("serial_number", serialNumber); err != nil {
		return nil, err
	}
	movements, err := s.reader.FindBySerial(ctx, strings.TrimSpace(serialNumber))
	if err != nil {
		return nil, err
	}
	return ToMovementResponses(movements), nil
}

// ByCorrelation returns the movements of a correlation together with any
// reversal movements compensating them
func (s *TraceService) ByCorrelation(ctx context.Context, correlationID string) ([]MovementResponse, error) {
	if err := requireID("correlation_id", correlationID); err != nil {
		return nil, err
	}
	movements, err := s.reader.FindTraceByCorrelation(ctx, strings.TrimSpace(correlationID))
	if err != nil {
		return nil, err
	}
	return ToMovementResponses(movements), nil
}

// TraceBatch returns a batch's movements with its current balance per
// product and location and the correlations that touched it
func (s *TraceService) TraceBatch(ctx context.Context, batchNumber string) (*BatchTrace, error) {
	if err := requireID("batch_number", batchNumber); err != nil {
		return nil, err
	}
	batchNumber = strings.TrimSpace(batchNumber)
	movements, err := s.reader.FindByBatch(ctx, batchNumber)
	if err != nil {
		return nil, err
	}

	type balanceKey struct {
		product  uuid.UUID
		location string
	}
	balances := make(map[balanceKey]decimal.Decimal)
	var order []balanceKey
	var correlations []string
	seenCorrelation := make(map[string]struct{})
	for _, m := range movements {
		k := balanceKey{m.ProductID(), m.Location().Code()}
		if _, ok := balances[k]; !ok {
			balances[k] = decimal.Zero
			order = append(order, k)
		}
		if m.IsActive() {
			balances[k] = balances[k].Add(m.SignedQuantity())
		}
		if _, ok := seenCorrelation[m.CorrelationID()]; !ok {
			seenCorrelation[m.CorrelationID()] = struct{}{}
			correlations = append(correlations, m.CorrelationID())
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].product != order[j].product {
			return order[i].product.String() < order[j].product.String()
		}
		return order[i].location < order[j].location
	})

	trace := &BatchTrace{
		BatchNumber:    batchNumber,
		Movements:      ToMovementResponses(movements),
		Balances:       make([]LocationBalance, 0, len(order)),
		CorrelationIDs: correlations,
	}
	if trace.CorrelationIDs == nil {
		trace.CorrelationIDs = []string{}
	}
	for _, k := range order {
		trace.Balances = append(trace.Balances, LocationBalance{
			ProductID: k.product,
			Location:  k.location,
			Quantity:  balances[k],
		})
	}
	return trace, nil
}

func requireID(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return shared.ErrInvalidInput.WithMessage("%s is required", field).WithDetail("field", field)
	}
	return nil
}
