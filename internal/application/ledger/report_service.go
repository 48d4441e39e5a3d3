package ledger

import (
	"context"
	"time"

	"github.com/erp/stockledger/internal/domain/ledger"
	"github.com/erp/stockledger/internal/domain/shared"
)

// openEnd bounds history queries that give no end time
var openEnd = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

// ReportService serves audit reads over the movement store
type ReportService struct {
	reader          ledger.MovementReader
	maxPageSize     int
	defaultPageSize int
}

// NewReportService creates a new ReportService. maxPageSize caps history pages.
func NewReportService(reader ledger.MovementReader, maxPageSize int) *ReportService {
	return &ReportService{reader: reader, maxPageSize: maxPageSize}
}

// SetDefaultPageSize sets the page size used when a history request gives none
func (s *ReportService) SetDefaultPageSize(n int) {
	s.defaultPageSize = n
}

// MovementByID returns a movement, including superseded ones
func (s *ReportService) MovementByID(ctx context.Context, id int64) (*MovementResponse, error) {
	if id <= 0 {
		return nil, ledger.NewMovementNotFoundError(id)
	}
	m, err := s.reader.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToMovementResponse(m)
	return &resp, nil
}

// History returns a page of a product's movements between start and end
// (inclusive), ordered by occurred_at then movement id
func (s *ReportService) History(ctx context.Context, req HistoryRequest) (*shared.Paginated[MovementResponse], error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if !req.Start.IsZero() && !req.End.IsZero() && req.End.Before(req.Start) {
		return nil, shared.ErrInvalidInput.WithMessage("end must not be before start")
	}

	query := ledger.HistoryQuery{ProductID: req.ProductID, Start: req.Start, End: req.End}
	if query.End.IsZero() {
		query.End = openEnd
	}
	if req.Location != "" {
		loc, err := ledger.ParseLocation(req.Location)
		if err != nil {
			return nil, err
		}
		query.Location = &loc
	}

	pageSize := req.PageSize
	if pageSize < 1 {
		pageSize = s.defaultPageSize
	}
	filter := shared.Filter{Page: req.Page, PageSize: pageSize, OrderDir: req.OrderDir}.Normalize(s.maxPageSize)
	movements, total, err := s.reader.FindHistory(ctx, query, filter)
	if err != nil {
		return nil, err
	}
	page := shared.NewPaginated(ToMovementResponses(movements), total, filter.Page, filter.PageSize)
	return &page, nil
}

// NegativeExcursions replays a key's movements in business-time order and
// reports every point where the running balance was below zero
func (s *ReportService) NegativeExcursions(ctx context.Context, q StockQuery) (*ExcursionReport, error) {
	if err := validateRequest(q); err != nil {
		return nil, err
	}
	key, err := stockKey(q.ProductID, q.Location, q.BatchNumber)
	if err != nil {
		return nil, err
	}
	movements, err := s.reader.FindForKey(ctx, key, 0)
	if err != nil {
		return nil, err
	}
	report := &ExcursionReport{
		ProductID:   q.ProductID,
		Location:    q.Location,
		BatchNumber: q.BatchNumber,
		Excursions:  ledger.NegativeExcursions(key, movements),
	}
	if report.Excursions == nil {
		report.Excursions = []ledger.Excursion{}
	}
	return report, nil
}
