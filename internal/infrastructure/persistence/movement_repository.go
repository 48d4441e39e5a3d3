package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/ledger"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormMovementRepository implements ledger.MovementRepository using GORM.
// It can read and append; superseding is only available through a
// reversal scope.
type GormMovementRepository struct {
	db *gorm.DB
}

// NewGormMovementRepository creates a new GormMovementRepository
func NewGormMovementRepository(db *gorm.DB) *GormMovementRepository {
	return &GormMovementRepository{db: db}
}

// FindByID finds a movement by id
func (r *GormMovementRepository) FindByID(ctx context.Context, id int64) (*ledger.Movement, error) {
	var model models.MovementModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ledger.NewMovementNotFoundError(id)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByCorrelation finds the movements written under a correlation id
func (r *GormMovementRepository) FindByCorrelation(ctx context.Context, correlationID string) ([]*ledger.Movement, error) {
	return r.find(r.db.WithContext(ctx).
		Where("correlation_id = ?", correlationID).
		Order("id ASC"))
}

// FindTraceByCorrelation finds a correlation's movements and the reversals compensating them
func (r *GormMovementRepository) FindTraceByCorrelation(ctx context.Context, correlationID string) ([]*ledger.Movement, error) {
	return r.find(r.db.WithContext(ctx).
		Where("correlation_id = ? OR reverses_correlation_id = ?", correlationID, correlationID).
		Order("occurred_at ASC, id ASC"))
}

// FindByBatch finds every movement of a batch number
func (r *GormMovementRepository) FindByBatch(ctx context.Context, batchNumber string) ([]*ledger.Movement, error) {
	return r.find(r.db.WithContext(ctx).
		Where("batch_number = ?", batchNumber).
		Order("occurred_at ASC, id ASC"))
}

// FindBySerial finds every movement of a serial number
func (r *GormMovementRepository) FindBySerial(ctx context.Context, serialNumber string) ([]*ledger.Movement, error) {
	return r.find(r.db.WithContext(ctx).
		Where("serial_number = ?", serialNumber).
		Order("occurred_at ASC, id ASC"))
}

// FindHistory returns a page of a product's movements in a business-time window
func (r *GormMovementRepository) FindHistory(ctx context.Context, q ledger.HistoryQuery, filter shared.Filter) ([]*ledger.Movement, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.MovementModel{}).
		Where("product_id = ? AND occurred_at >= ? AND occurred_at <= ?", q.ProductID, q.Start.UTC(), q.End.UTC())
	if q.Location != nil {
		query = query.Scopes(locationScope(*q.Location))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order(historyOrder(filter.OrderDir))
	if filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.PageSize)
	}

	movements, err := r.find(query)
	if err != nil {
		return nil, 0, err
	}
	return movements, total, nil
}

// FindForKey returns movements under a key with id above afterID, in id order
func (r *GormMovementRepository) FindForKey(ctx context.Context, key ledger.StockKey, afterID int64) ([]*ledger.Movement, error) {
	return r.find(r.db.WithContext(ctx).
		Scopes(keyScope(key)).
		Where("id > ?", afterID).
		Order("id ASC"))
}

type stockTotalRow struct {
	ScaledQuantity decimal.Decimal
	LastMovementID int64
}

// SumForKey sums signed quantities for a key in one statement, so the total and
// its high-water mark come from the same snapshot
func (r *GormMovementRepository) SumForKey(ctx context.Context, key ledger.StockKey, opts ledger.SumOptions) (ledger.StockTotal, error) {
	selectSQL, args := sumSelect(opts)
	query := r.db.WithContext(ctx).Model(&models.MovementModel{}).Scopes(keyScope(key))
	if opts.AsOf == nil && opts.UpToID > 0 {
		query = query.Where("id <= ?", opts.UpToID)
	}

	var row stockTotalRow
	if err := query.Select(selectSQL+", COALESCE(MAX(id), 0) AS last_movement_id", args...).Scan(&row).Error; err != nil {
		return ledger.StockTotal{}, err
	}
	return ledger.StockTotal{Quantity: unscale(row.ScaledQuantity), LastMovementID: row.LastMovementID}, nil
}

type keyTotalRow struct {
	ProductID      uuid.UUID
	LocationSite   string
	LocationZone   string
	LocationBin    string
	BatchNumber    string
	ScaledQuantity decimal.Decimal
	LastMovementID int64
}

// SumByProducts returns totals grouped by exact key for each product
func (r *GormMovementRepository) SumByProducts(ctx context.Context, productIDs []uuid.UUID, asOf *time.Time) ([]ledger.KeyTotal, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	selectSQL, args := sumSelect(ledger.SumOptions{AsOf: asOf})

	var rows []keyTotalRow
	err := r.db.WithContext(ctx).Model(&models.MovementModel{}).
		Select("product_id, location_site, location_zone, location_bin, batch_number, "+selectSQL+", MAX(id) AS last_movement_id", args...).
		Where("product_id IN ?", productIDs).
		Group("product_id, location_site, location_zone, location_bin, batch_number").
		Order("product_id, location_site, location_zone, location_bin, batch_number").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	totals := make([]ledger.KeyTotal, 0, len(rows))
	for _, row := range rows {
		totals = append(totals, ledger.KeyTotal{
			ProductID:      row.ProductID,
			Location:       ledger.Location{Site: row.LocationSite, Zone: row.LocationZone, Bin: row.LocationBin},
			BatchNumber:    row.BatchNumber,
			Quantity:       unscale(row.ScaledQuantity),
			LastMovementID: row.LastMovementID,
		})
	}
	return totals, nil
}

// CorrelationExists reports whether a correlation id is already in use, either
// by ordinary movements or by reversals
func (r *GormMovementRepository) CorrelationExists(ctx context.Context, correlationID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.MovementModel{}).
		Where("correlation_id = ?", correlationID).
		Limit(1).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// DistinctProducts lists every product with at least one movement
func (r *GormMovementRepository) DistinctProducts(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).Model(&models.MovementModel{}).
		Distinct("product_id").
		Order("product_id").
		Pluck("product_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// Append inserts movements one at a time in order so that ids follow the
// caller's sequence. It runs in a transaction (a savepoint when nested) and
// refuses reversals, committed movements and voided movements.
func (r *GormMovementRepository) Append(ctx context.Context, movements []*ledger.Movement) ([]*ledger.Movement, error) {
	if len(movements) == 0 {
		return nil, ledger.ErrEmptyBatch
	}
	for _, m := range movements {
		if err := checkAppendable(m); err != nil {
			return nil, err
		}
	}

	committed := make([]*ledger.Movement, 0, len(movements))
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		recordedAt := tx.NowFunc().UTC()
		for _, m := range movements {
			model, err := insertMovement(tx, m, recordedAt)
			if err != nil {
				return err
			}
			committed = append(committed, model.ToDomain())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return committed, nil
}

func (r *GormMovementRepository) find(query *gorm.DB) ([]*ledger.Movement, error) {
	var rows []models.MovementModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	movements := make([]*ledger.Movement, 0, len(rows))
	for i := range rows {
		movements = append(movements, rows[i].ToDomain())
	}
	return movements, nil
}

func checkAppendable(m *ledger.Movement) error {
	switch {
	case m == nil:
		return ledger.ErrInvalidMovement.WithMessage("nil movement")
	case m.IsReversal():
		return ledger.ErrInvalidMovement.WithMessage("reversal movements can only be written by a reversal")
	case m.IsCommitted():
		return ledger.ErrImmutableMovement.WithMessage("Movement %d is already committed", m.ID())
	case m.IsSuperseded():
		return ledger.ErrInvalidMovement.WithMessage("superseded movements cannot be appended")
	}
	return nil
}

func insertMovement(tx *gorm.DB, m *ledger.Movement, recordedAt time.Time) (*models.MovementModel, error) {
	model := models.MovementModelFromDomain(m)
	model.ID = 0
	model.RecordedAt = recordedAt
	if err := tx.Create(model).Error; err != nil {
		return nil, err
	}
	return model, nil
}

// keyScope restricts a query to the movements a stock key covers
func keyScope(key ledger.StockKey) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = db.Where("product_id = ?", key.ProductID)
		if key.Location != nil {
			db = locationScope(*key.Location)(db)
		}
		if key.BatchNumber != nil {
			db = db.Where("batch_number = ?", *key.BatchNumber)
		}
		return db
	}
}

// locationScope matches a location and everything nested under it
func locationScope(loc ledger.Location) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = db.Where("location_site = ?", loc.Site)
		if loc.Zone != "" {
			db = db.Where("location_zone = ?", loc.Zone)
		}
		if loc.Bin != "" {
			db = db.Where("location_bin = ?", loc.Bin)
		}
		return db
	}
}

// sumSelect builds the signed SUM expression for the selected predicate.
//
// Current stock counts non-reversal movements that are not voided. At a
// high-water mark H, a movement voided by a reversal with id above H still
// counts. As of a business time t, a movement counts when it occurred by t and
// the reversal voiding it, if any, took effect after t.
func sumSelect(opts ledger.SumOptions) (string, []any) {
	var (
		active string
		args   []any
	)
	switch {
	case opts.AsOf != nil:
		asOf := opts.AsOf.UTC()
		active = "movement_type <> ? AND occurred_at <= ? AND NOT EXISTS (" +
			"SELECT 1 FROM stock_movements r WHERE r.id = stock_movements.superseded_by AND r.occurred_at <= ?)"
		args = []any{ledger.MovementTypeReversal, asOf, asOf}
	case opts.UpToID > 0:
		active = "movement_type <> ? AND (is_deleted = ? OR superseded_by > ?)"
		args = []any{ledger.MovementTypeReversal, false, opts.UpToID}
	default:
		active = "movement_type <> ? AND is_deleted = ?"
		args = []any{ledger.MovementTypeReversal, false}
	}
	args = append(args, ledger.DirectionIn)
	return "COALESCE(SUM(CASE WHEN " + active +
		" THEN (CASE WHEN direction = ? THEN " + scaledQuantity + " ELSE -" + scaledQuantity + " END) ELSE 0 END), 0) AS scaled_quantity", args
}

// scaledQuantity turns a stored quantity into an integer count of its smallest
// unit. SQLite keeps NUMERIC columns as REAL, and summing integers keeps the
// total exact on every driver.
var scaledQuantity = fmt.Sprintf("CAST(ROUND(quantity * %s) AS BIGINT)", decimal.New(1, ledger.QuantityScale).String())

func unscale(scaled decimal.Decimal) decimal.Decimal {
	return scaled.Shift(-ledger.QuantityScale)
}

// Ensure GormMovementRepository implements MovementRepository
var _ ledger.MovementRepository = (*GormMovementRepository)(nil)
