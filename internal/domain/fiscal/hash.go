// Package fiscal: integridad fiscal de la factura. Serie, huella (hash canónico),
// sellado temporal y código de referencia para el QR.
package fiscal

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
)

// Formatos de la cadena canónica.
const (
	dateLayout = "2006-01-02"
	sealLayout = "2006-01-02T15:04:05.000000Z07:00"
	fieldSep   = "|"
	lineSep    = ";"
)

// LinePayload datos de línea que entran en la huella.
type LinePayload struct {
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Tax         decimal.Decimal
	Total       decimal.Decimal
	VehicleID   string
	Description string
}

// Payload contenido finalizado de la factura sobre el que se calcula la huella.
type Payload struct {
	Number        string
	CompanyID     string
	CustomerID    string
	EmissionDate  time.Time
	OperationDate time.Time
	Subtotal      decimal.Decimal
	Tax           decimal.Decimal
	Total         decimal.Decimal
	Serial        string
	Lines         []LinePayload // en el orden de la factura
}

// PayloadFromInvoice extrae el payload de una factura persistida (líneas por posición).
func PayloadFromInvoice(inv *entity.Invoice) Payload {
	lines := make([]entity.InvoiceLine, len(inv.Lines))
	copy(lines, inv.Lines)
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Position < lines[j].Position })

	p := Payload{
		Number:        inv.Number,
		CompanyID:     inv.CompanyID,
		CustomerID:    inv.CustomerID,
		EmissionDate:  inv.EmissionDate,
		OperationDate: inv.OperationDate,
		Subtotal:      inv.Subtotal,
		Tax:           inv.Tax,
		Total:         inv.Total,
		Serial:        inv.Serial,
		Lines:         make([]LinePayload, 0, len(lines)),
	}
	for _, l := range lines {
		p.Lines = append(p.Lines, LinePayload{
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			Tax:         l.Tax,
			Total:       l.Total,
			VehicleID:   l.VehicleID,
			Description: l.Description,
		})
	}
	return p
}

// Canonical construye la cadena canónica: campos de cabecera en orden fijo, las
// líneas en su orden y el sellado al final. Montos con 2 decimales y punto.
func Canonical(p Payload, seal time.Time) string {
	parts := []string{
		escape(p.Number),
		escape(p.CompanyID),
		escape(p.CustomerID),
		p.EmissionDate.Format(dateLayout),
		p.OperationDate.Format(dateLayout),
		formatAmount(p.Subtotal),
		formatAmount(p.Tax),
		formatAmount(p.Total),
		escape(p.Serial),
	}
	for _, l := range p.Lines {
		parts = append(parts, strings.Join([]string{
			formatAmount(l.Quantity),
			formatAmount(l.UnitPrice),
			formatAmount(l.Tax),
			formatAmount(l.Total),
			escape(l.VehicleID),
			escape(l.Description),
		}, lineSep))
	}
	parts = append(parts, FormatSeal(seal))
	return strings.Join(parts, fieldSep)
}

// ComputeHash huella SHA-256 (hex en mayúsculas) de la cadena canónica.
func ComputeHash(p Payload, seal time.Time) string {
	sum := sha256.Sum256([]byte(Canonical(p, seal)))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// FormatSeal representación del sellado: RFC 3339 en UTC con microsegundos.
func FormatSeal(seal time.Time) string {
	return seal.UTC().Format(sealLayout)
}

// formatAmount: sin separador de miles, punto decimal, 2 decimales (1500.00).
func formatAmount(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}

// escape protege los separadores para que la cadena sea inyectiva.
func escape(s string) string {
	return strings.NewReplacer(`\`, `\\`, fieldSep, `\`+fieldSep, lineSep, `\`+lineSep).Replace(s)
}
