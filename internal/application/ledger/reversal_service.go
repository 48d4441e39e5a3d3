package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/erp/stockledger/internal/domain/ledger"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReversalCorrelationPrefix prefixes generated reversal correlation ids
const ReversalCorrelationPrefix = "REV-"

// ReversalService voids a prior business transaction by appending
// compensating movements and superseding the originals. It is the only
// holder of a transaction scope able to supersede movements.
type ReversalService struct {
	scope          TransactionScope
	eventPublisher shared.EventPublisher
	metrics        *telemetry.LedgerMetrics
	logger         *zap.Logger
	now            func() time.Time
}

// NewReversalService creates a new ReversalService
func NewReversalService(scope TransactionScope, zapLogger *zap.Logger) *ReversalService {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	return &ReversalService{
		scope:  scope,
		logger: zapLogger.Named("reversal"),
		now:    time.Now,
	}
}

// SetEventPublisher sets the publisher notified after every reversal
func (s *ReversalService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SetMetrics sets the ledger metrics recorder
func (s *ReversalService) SetMetrics(m *telemetry.LedgerMetrics) {
	s.metrics = m
}

// Reverse compensates every movement of a correlation. The originals stay
// readable with is_deleted set and superseded_by pointing at their reversal.
func (s *ReversalService) Reverse(ctx context.Context, req ReverseRequest) (*ReversalResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	reversalID := strings.TrimSpace(req.ReversalCorrelationID)
	if reversalID == "" {
		reversalID = ReversalCorrelationPrefix + uuid.NewString()
	}

	log := logger.For(ctx, s.logger).With(
		zap.String("correlation_id", req.CorrelationID),
		zap.String("reversal_correlation_id", reversalID),
		zap.String("actor", req.Actor),
	)

	var compensations []*ledger.Movement
	err := s.scope.ExecuteReversal(ctx, func(repos ReversalRepositories) error {
		movements := repos.Movements()
		originals, err := movements.FindByCorrelation(ctx, req.CorrelationID)
		if err != nil {
			return err
		}
		exists, err := movements.CorrelationExists(ctx, reversalID)
		if err != nil {
			return err
		}
		if exists {
			return ledger.NewDuplicateCorrelationError(reversalID)
		}

		plan, err := ledger.PlanReversal(originals, ledger.ReversalRequest{
			OriginalCorrelationID: req.CorrelationID,
			ReversalCorrelationID: reversalID,
			Reason:                req.Reason,
			Actor:                 req.Actor,
			Now:                   s.now(),
		})
		if err != nil {
			return err
		}
		compensations, err = repos.Reversals().ApplyReversal(ctx, plan)
		return err
	})
	s.metrics.RecordReversal(ctx, len(compensations), err)
	if err != nil {
		err = asLedgerError(reversalID, err)
		log.Info("reversal rejected", zap.Error(err))
		return nil, err
	}

	log.Info("correlation reversed", zap.Int("count", len(compensations)))
	if s.eventPublisher != nil {
		_ = s.eventPublisher.Publish(ctx, ledger.NewMovementsReversedEvent(req.CorrelationID, reversalID, compensations))
	}

	ids := make([]int64, 0, len(compensations))
	for _, m := range compensations {
		ids = append(ids, m.ID())
	}
	return &ReversalResult{
		OriginalCorrelationID: req.CorrelationID,
		ReversalCorrelationID: reversalID,
		MovementIDs:           ids,
		Movements:             ToMovementResponses(compensations),
	}, nil
}
