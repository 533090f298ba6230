package fiscal_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Concesionario-api/internal/domain"
	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
	"github.com/jhoicas/Concesionario-api/internal/domain/fiscal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func validInvoice() *entity.Invoice {
	return &entity.Invoice{
		Subtotal: d("20100.00"),
		Tax:      d("1407.00"),
		Total:    d("21507.00"),
		Lines: []entity.InvoiceLine{
			{Quantity: d("1"), UnitPrice: d("20000"), Subtotal: d("20000"), Tax: d("1400"), Total: d("21400")},
			{Quantity: d("2"), UnitPrice: d("50"), Subtotal: d("100"), Tax: d("7"), Total: d("107")},
		},
	}
}

func codeOf(t *testing.T, err error) string {
	t.Helper()
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve), "se esperaba ValidationError, llegó %v", err)
	return ve.Code
}

func TestValidateTotals_OK(t *testing.T) {
	assert.NoError(t, fiscal.ValidateTotals(validInvoice()))
}

func TestValidateTotals_ToleranciaRedondeo(t *testing.T) {
	inv := validInvoice()
	inv.Tax = d("1407.02")
	inv.Total = d("21507.02")
	assert.NoError(t, fiscal.ValidateTotals(inv))
}

func TestValidateTotals_Errores(t *testing.T) {
	inv := validInvoice()
	inv.Lines = nil
	assert.Equal(t, domain.CodeEmptyLines, codeOf(t, fiscal.ValidateTotals(inv)))

	inv = validInvoice()
	inv.Lines[1].Quantity = decimal.Zero
	assert.Equal(t, domain.CodeInvalidLine, codeOf(t, fiscal.ValidateTotals(inv)))

	inv = validInvoice()
	inv.Subtotal = d("20000")
	err := fiscal.ValidateTotals(inv)
	assert.Equal(t, domain.CodeInvalidTotals, codeOf(t, err))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	inv = validInvoice()
	inv.Total = d("30000")
	assert.Equal(t, domain.CodeInvalidTotals, codeOf(t, fiscal.ValidateTotals(inv)))
}
