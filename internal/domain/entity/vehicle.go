package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Vehicle unidad de inventario. Pasa de activo a inactivo una sola vez,
// cuando una línea de factura la consume; anular la factura no la reactiva.
type Vehicle struct {
	ID            string
	CompanyID     string
	Plate         string // matrícula normalizada (1234BCD)
	VIN           string
	Brand         string
	Model         string
	Year          int
	Price         decimal.Decimal
	Active        bool
	SoldAt        *time.Time
	SoldInvoiceID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
