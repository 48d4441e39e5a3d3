package handler

import (
	"net/http"
	"testing"

	appledger "github.com/erp/stockledger/internal/application/ledger"
	"github.com/erp/stockledger/internal/interfaces/http/dto"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReversalHandler_Reverse(t *testing.T) {
	env := newAPI(t)
	product := uuid.NewString()
	requireStatus(t, env.do(t, http.MethodPost, "/api/v1/movements", receipt("RCV-1", product, 10)), http.StatusCreated)

	w := env.do(t, http.MethodPost, "/api/v1/reversals", map[string]any{
		"correlation_id": "RCV-1",
		"reason":         "keyed against the wrong PO",
		"actor":          "supervisor",
	})
	requireStatus(t, w, http.StatusCreated)
	result := decode[appledger.ReversalResult](t, w).Data
	assert.Equal(t, "RCV-1", result.OriginalCorrelationID)
	assert.Contains(t, result.ReversalCorrelationID, appledger.ReversalCorrelationPrefix)
	require.Len(t, result.Movements, 1)
	assert.Equal(t, "OUT", result.Movements[0].Direction)
	assert.Equal(t, "REVERSAL", result.Movements[0].MovementType)
	assert.Equal(t, "supervisor", result.Movements[0].RecordedBy)

	w = env.do(t, http.MethodGet, "/api/v1/products/"+product+"/stock", nil)
	requireStatus(t, w, http.StatusOK)
	assert.True(t, decode[appledger.StockLevel](t, w).Data.Quantity.IsZero())

	t.Run("original stays readable and points at its reversal", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/trace/correlations/RCV-1", nil)
		requireStatus(t, w, http.StatusOK)
		movements := decode[[]appledger.MovementResponse](t, w).Data
		require.NotEmpty(t, movements)
		assert.NotNil(t, movements[0].SupersededBy)
	})

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"already reversed", map[string]any{"correlation_id": "RCV-1", "reason": "again", "actor": "supervisor"}, http.StatusConflict, dto.CodeAlreadyReversed},
		{"reversal of a reversal", map[string]any{"correlation_id": result.ReversalCorrelationID, "reason": "undo", "actor": "supervisor"}, http.StatusUnprocessableEntity, dto.CodeCannotReverseReversal},
		{"unknown correlation", map[string]any{"correlation_id": "NOPE", "reason": "x", "actor": "supervisor"}, http.StatusNotFound, dto.CodeNotFound},
		{"missing reason", map[string]any{"correlation_id": "RCV-1", "actor": "supervisor"}, http.StatusBadRequest, dto.ErrCodeValidation},
		{"missing actor without auth", map[string]any{"correlation_id": "RCV-1", "reason": "x"}, http.StatusBadRequest, dto.CodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/reversals", tt.body)
			requireStatus(t, w, tt.wantStatus)
			assert.Equal(t, tt.wantCode, decode[any](t, w).Error.Code)
		})
	}
}

func TestReversalHandler_RequiresRole(t *testing.T) {
	env := newAPI(t, withAuth())
	product := uuid.NewString()
	clerk := env.bearer(t, "clerk-7")

	requireStatus(t, env.do(t, http.MethodPost, "/api/v1/movements", receipt("RCV-1", product, 3), clerk...), http.StatusCreated)

	body := map[string]any{"correlation_id": "RCV-1", "reason": "duplicate scan", "actor": "spoofed"}

	w := env.do(t, http.MethodPost, "/api/v1/reversals", body)
	requireStatus(t, w, http.StatusUnauthorized)

	w = env.do(t, http.MethodPost, "/api/v1/reversals", body, clerk...)
	requireStatus(t, w, http.StatusForbidden)
	assert.Equal(t, dto.ErrCodeForbidden, decode[any](t, w).Error.Code)

	w = env.do(t, http.MethodPost, "/api/v1/reversals", body, env.bearer(t, "lead-2", "ledger:reverse")...)
	requireStatus(t, w, http.StatusCreated)
	result := decode[appledger.ReversalResult](t, w).Data
	require.Len(t, result.Movements, 1)
	assert.Equal(t, "lead-2", result.Movements[0].RecordedBy, "authenticated subject wins over the body actor")
	assert.True(t, result.Movements[0].Quantity.Equal(decimal.NewFromInt(3)))
}
