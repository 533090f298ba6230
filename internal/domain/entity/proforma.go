package entity

import "time"

// Estados de la proforma (presupuesto).
const (
	ProformaStateOpen         = "abierta"
	ProformaStatePartInvoiced = "semifacturado"
	ProformaStateInvoiced     = "facturada"
	ProformaStateAnnulled     = "anulada"
)

// Proforma presupuesto previo que puede convertirse en una o varias facturas.
type Proforma struct {
	ID         string
	CompanyID  string
	CustomerID string
	Number     string
	State      string
	Notes      string
	VehicleIDs []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ProformaStateFor deriva el estado a partir de cuántos de sus vehículos están facturados.
// Sin vehículos se considera cerrada: la factura que la referencia la cubre entera.
func ProformaStateFor(invoiced, total int) string {
	switch {
	case total == 0:
		return ProformaStateInvoiced
	case invoiced >= total:
		return ProformaStateInvoiced
	case invoiced > 0:
		return ProformaStatePartInvoiced
	default:
		return ProformaStateOpen
	}
}
