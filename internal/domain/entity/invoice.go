package entity

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Estado de cobro de la factura. Son las únicas transiciones tras la emisión.
const (
	PaymentStatusPending  = "pendiente"
	PaymentStatusPaid     = "pagada"
	PaymentStatusAnnulled = "anulada"
)

// Estado fiscal (envío a la autoridad tributaria).
const (
	FiscalStatusPending   = "pendiente"
	FiscalStatusSubmitted = "enviada"
	FiscalStatusError     = "error"
)

// Invoice cabecera de la factura. Número, serie, hash y sellado se fijan en la
// emisión y nunca se recalculan.
type Invoice struct {
	ID            string
	CompanyID     string
	CustomerID    string
	ProformaID    string
	Number        string // legible, único por (empresa, año)
	Year          int
	Serial        string // número de serie fiscal opaco
	DocumentType  string // TipoFactura (F1, F2, R1...)
	PaymentMethod string
	OperationRef  string
	Notes         string
	EmissionDate  time.Time
	OperationDate time.Time
	DueDate       *time.Time
	Subtotal      decimal.Decimal
	Tax           decimal.Decimal
	Total         decimal.Decimal
	DocumentHash  string
	SealedAt      time.Time
	FiscalCode    string
	PaymentStatus string
	FiscalStatus  string

	// Firma (puede quedar vacía si la firma falló; se reintenta sin reemitir).
	SignatureHash string
	SignedAt      *time.Time

	// Envío a la autoridad.
	SubmittedXML      string
	AuthorityResponse json.RawMessage

	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time

	Lines []InvoiceLine
}

// IsSigned indica si la factura tiene firma registrada.
func (i *Invoice) IsSigned() bool {
	return i.SignatureHash != ""
}

// VehicleIDs devuelve los vehículos referenciados por las líneas, sin repetir.
func (i *Invoice) VehicleIDs() []string {
	seen := make(map[string]bool, len(i.Lines))
	var out []string
	for _, l := range i.Lines {
		if l.VehicleID == "" || seen[l.VehicleID] {
			continue
		}
		seen[l.VehicleID] = true
		out = append(out, l.VehicleID)
	}
	return out
}

// InvoiceLine línea de detalle. VehicleID es la referencia explícita al vehículo vendido.
type InvoiceLine struct {
	ID          string
	InvoiceID   string
	Position    int
	ProductID   string
	VehicleID   string
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Tax         decimal.Decimal
	Subtotal    decimal.Decimal
	Total       decimal.Decimal
	TaxType     string // igic | iva
}
