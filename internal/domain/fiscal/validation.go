package fiscal

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/Concesionario-api/internal/domain"
	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
)

// Tolerance diferencia admitida por redondeos entre cabecera y suma de líneas.
var Tolerance = decimal.RequireFromString("0.02")

// ValidateTotals comprueba que las líneas sean coherentes y que la cabecera
// cuadre con la suma de líneas.
func ValidateTotals(inv *entity.Invoice) error {
	if len(inv.Lines) == 0 {
		return domain.NewValidationError(domain.CodeEmptyLines, "productos", "la factura debe tener al menos una línea")
	}
	var sumSubtotal, sumTax, sumTotal decimal.Decimal
	for i, l := range inv.Lines {
		field := fmt.Sprintf("productos[%d]", i)
		if !l.Quantity.IsPositive() {
			return domain.NewValidationError(domain.CodeInvalidLine, field+".cantidad", "la cantidad debe ser mayor que cero")
		}
		if l.UnitPrice.IsNegative() || l.Tax.IsNegative() {
			return domain.NewValidationError(domain.CodeInvalidLine, field, "precio e impuesto no pueden ser negativos")
		}
		if !near(l.Subtotal, l.Quantity.Mul(l.UnitPrice)) {
			return domain.NewValidationError(domain.CodeInvalidLine, field+".subtotal",
				fmt.Sprintf("subtotal %s no coincide con cantidad x precio", l.Subtotal.StringFixed(2)))
		}
		if !near(l.Total, l.Subtotal.Add(l.Tax)) {
			return domain.NewValidationError(domain.CodeInvalidLine, field+".total", "total de línea distinto de subtotal + impuesto")
		}
		sumSubtotal = sumSubtotal.Add(l.Subtotal)
		sumTax = sumTax.Add(l.Tax)
		sumTotal = sumTotal.Add(l.Total)
	}
	switch {
	case !near(inv.Subtotal, sumSubtotal):
		return domain.NewValidationError(domain.CodeInvalidTotals, "subtotal",
			fmt.Sprintf("subtotal %s, suma de líneas %s", inv.Subtotal.StringFixed(2), sumSubtotal.StringFixed(2)))
	case !near(inv.Tax, sumTax):
		return domain.NewValidationError(domain.CodeInvalidTotals, "igic",
			fmt.Sprintf("impuesto %s, suma de líneas %s", inv.Tax.StringFixed(2), sumTax.StringFixed(2)))
	case !near(inv.Total, inv.Subtotal.Add(inv.Tax)) || !near(inv.Total, sumTotal):
		return domain.NewValidationError(domain.CodeInvalidTotals, "total", "total distinto de subtotal + impuesto")
	}
	return nil
}

func near(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}
