package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product entrada del catálogo de venta. Las fichas de vehículo llevan VehicleID;
// al venderse el vehículo la ficha se desactiva.
type Product struct {
	ID        string
	CompanyID string
	VehicleID string // vacío para accesorios y servicios
	SKU       string
	Name      string
	Price     decimal.Decimal
	TaxRate   decimal.Decimal // porcentaje (7 = 7%)
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
