package ledger

import (
	"errors"
	"reflect"
	"strings"

	"github.com/erp/stockledger/internal/domain/ledger"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequest runs struct validation and converts failures into an
// INVALID_INPUT domain error listing the offending fields
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return shared.ErrInvalidInput.WithMessage("Invalid request: %v", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Namespace()+":"+fe.Tag())
	}
	return shared.ErrInvalidInput.
		WithMessage("Invalid request: %s", strings.Join(fields, ", ")).
		WithDetail("fields", fields)
}

// stockKey builds the aggregate key addressed by a query
func stockKey(productID uuid.UUID, location, batchNumber string) (ledger.StockKey, error) {
	if productID == uuid.Nil {
		return ledger.StockKey{}, shared.ErrInvalidInput.WithMessage("product_id is required")
	}
	var loc ledger.Location
	if strings.TrimSpace(location) != "" {
		parsed, err := ledger.ParseLocation(location)
		if err != nil {
			return ledger.StockKey{}, err
		}
		loc = parsed
	}
	key := ledger.NewStockKey(productID, loc, strings.TrimSpace(batchNumber))
	if err := key.Validate(); err != nil {
		return ledger.StockKey{}, err
	}
	return key, nil
}
