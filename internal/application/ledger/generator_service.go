package ledger

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/erp/stockledger/internal/domain/ledger"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// GeneratorService turns the line items of one business transaction into
// movements and appends them as a single unit
type GeneratorService struct {
	reader         ledger.MovementReader
	scope          TransactionScope
	policy         ledger.StockPolicy
	eventPublisher shared.EventPublisher
	metrics        *telemetry.LedgerMetrics
	logger         *zap.Logger
	now            func() time.Time
	writeTimeout   time.Duration
}

// NewGeneratorService creates a new GeneratorService
func NewGeneratorService(
	reader ledger.MovementReader,
	scope TransactionScope,
	policy ledger.StockPolicy,
	zapLogger *zap.Logger,
) *GeneratorService {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	return &GeneratorService{
		reader: reader,
		scope:  scope,
		policy: policy,
		logger: zapLogger.Named("generator"),
		now:    time.Now,
	}
}

// SetEventPublisher sets the publisher notified after every commit
func (s *GeneratorService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SetMetrics sets the ledger metrics recorder
func (s *GeneratorService) SetMetrics(m *telemetry.LedgerMetrics) {
	s.metrics = m
}

// SetWriteTimeout bounds each Generate call; zero leaves the caller's deadline alone
func (s *GeneratorService) SetWriteTimeout(d time.Duration) {
	s.writeTimeout = d
}

// Generate validates the request, checks stock availability and appends the
// resulting movements atomically. Either every line item is committed or none.
func (s *GeneratorService) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if s.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.writeTimeout)
		defer cancel()
	}
	start := time.Now()
	committed, err := s.generate(ctx, req)
	s.metrics.RecordGenerate(ctx, req.TransactionType, len(committed), time.Since(start), err)

	log := logger.For(ctx, s.logger).With(
		zap.String("correlation_id", req.CorrelationID),
		zap.String("transaction_type", req.TransactionType),
	)
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientStock) {
			s.metrics.RecordInsufficientStock(ctx, req.TransactionType)
		}
		if errors.Is(err, ledger.ErrPartialCommit) {
			log.Error("movement batch rolled back", zap.Error(err))
		} else {
			log.Info("generate rejected", zap.Error(err))
		}
		return nil, err
	}

	log.Info("movements recorded", zap.Int("count", len(committed)))
	s.publish(ctx, ledger.NewMovementsRecordedEvent(req.CorrelationID, ledger.TransactionType(req.TransactionType), committed))

	ids := make([]int64, 0, len(committed))
	for _, m := range committed {
		ids = append(ids, m.ID())
	}
	return &GenerateResult{
		CorrelationID: req.CorrelationID,
		MovementIDs:   ids,
		Movements:     ToMovementResponses(committed),
	}, nil
}

func (s *GeneratorService) generate(ctx context.Context, req GenerateRequest) ([]*ledger.Movement, error) {
	if len(req.Lines) == 0 {
		return nil, ledger.ErrEmptyBatch
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	movements, err := s.buildMovements(req)
	if err != nil {
		return nil, err
	}

	policy := s.policy
	if req.AllowNegative {
		policy = ledger.NewNegativeStockPolicy(true)
	}
	demands := ledger.Demands(movements)

	// Fast rejection outside the transaction; the authoritative checks run
	// again under the writer lock.
	if err := s.checkCorrelation(ctx, s.reader, req.CorrelationID); err != nil {
		return nil, asLedgerError(req.CorrelationID, err)
	}
	if err := checkDemands(ctx, s.reader, policy, demands); err != nil {
		return nil, asLedgerError(req.CorrelationID, err)
	}

	var committed []*ledger.Movement
	err = s.scope.ExecuteAppend(ctx, func(repos AppendRepositories) error {
		store := repos.Movements()
		if err := s.checkCorrelation(ctx, store, req.CorrelationID); err != nil {
			return err
		}
		if err := checkDemands(ctx, store, policy, demands); err != nil {
			return err
		}
		var err error
		committed, err = store.Append(ctx, movements)
		return err
	})
	if err != nil {
		return nil, asLedgerError(req.CorrelationID, err)
	}
	return committed, nil
}

// buildMovements expands every line item into the legs of the transaction type
func (s *GeneratorService) buildMovements(req GenerateRequest) ([]*ledger.Movement, error) {
	txType := ledger.TransactionType(strings.TrimSpace(req.TransactionType))
	legs, err := txType.Legs()
	if err != nil {
		return nil, err
	}

	occurredAt := s.now()
	if req.OccurredAt != nil && !req.OccurredAt.IsZero() {
		occurredAt = *req.OccurredAt
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = txType.String() + " " + req.HeaderID
	}

	movements := make([]*ledger.Movement, 0, len(req.Lines)*len(legs))
	for i, line := range req.Lines {
		lineNo := i + 1
		if err := ledger.ValidateLineQuantity(lineNo, line.Quantity); err != nil {
			return nil, err
		}
		source, err := lineLocation(line.Location, req.DefaultLocation, lineNo, "location")
		if err != nil {
			return nil, err
		}
		var destination ledger.Location
		if txType.RequiresDestination() {
			if destination, err = lineLocation(line.DestinationLocation, "", lineNo, "destination_location"); err != nil {
				return nil, err
			}
			if destination == source {
				return nil, ledger.ErrInvalidLocation.
					WithMessage("Line %d transfers from %s to itself", lineNo, source.Code()).
					WithDetail("line", lineNo)
			}
		}

		detailID := line.DetailID
		if detailID == "" {
			detailID = strconv.Itoa(lineNo)
		}

		for _, leg := range legs {
			loc := source
			if leg.Site == ledger.LegAtDestination {
				loc = destination
			}
			m, err := ledger.NewMovement(ledger.MovementSpec{
				ProductID:    line.ProductID,
				Location:     loc,
				BatchNumber:  line.BatchNumber,
				SerialNumber: line.SerialNumber,
				Quantity:     line.Quantity,
				Direction:    leg.Direction,
				MovementType: leg.MovementType,
				Source: ledger.SourceReference{
					TransactionType: txType,
					HeaderID:        req.HeaderID,
					DetailID:        detailID,
				},
				CorrelationID: req.CorrelationID,
				Reason:        reason,
				UnitReference: line.UnitReference,
				RecordedBy:    req.Actor,
				OccurredAt:    occurredAt,
			})
			if err != nil {
				return nil, withLine(err, lineNo)
			}
			movements = append(movements, m)
		}
	}
	return movements, nil
}

func (s *GeneratorService) checkCorrelation(ctx context.Context, reader ledger.MovementReader, correlationID string) error {
	exists, err := reader.CorrelationExists(ctx, correlationID)
	if err != nil {
		return err
	}
	if exists {
		return ledger.NewDuplicateCorrelationError(correlationID)
	}
	return nil
}

func (s *GeneratorService) publish(ctx context.Context, event shared.DomainEvent) {
	if s.eventPublisher == nil {
		return
	}
	// Handler failures are logged by the bus; the movements are already committed.
	_ = s.eventPublisher.Publish(ctx, event)
}

// checkDemands rejects the call when a key it draws from would go negative
func checkDemands(ctx context.Context, reader ledger.MovementReader, policy ledger.StockPolicy, demands []ledger.KeyDemand) error {
	for _, d := range demands {
		if policy != nil && policy.AllowsNegative(d.ProductID) {
			continue
		}
		total, err := reader.SumForKey(ctx, d.Key, ledger.SumOptions{})
		if err != nil {
			return err
		}
		if err := ledger.CheckAvailability(policy, d, total.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func lineLocation(code, fallback string, lineNo int, field string) (ledger.Location, error) {
	if strings.TrimSpace(code) == "" {
		code = fallback
	}
	if strings.TrimSpace(code) == "" {
		return ledger.Location{}, ledger.ErrInvalidLocation.
			WithMessage("Line %d has no %s", lineNo, field).
			WithDetail("line", lineNo)
	}
	loc, err := ledger.ParseLocation(code)
	if err != nil {
		return ledger.Location{}, withLine(err, lineNo)
	}
	return loc, nil
}

func withLine(err error, lineNo int) error {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return de.WithDetail("line", lineNo)
	}
	return err
}

// asLedgerError passes domain errors through and reports anything else as a
// rolled-back batch
func asLedgerError(correlationID string, err error) error {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	return ledger.NewPartialCommitError(correlationID, err)
}
