// Package aeat construye, valida, firma y envía el registro de facturación
// (Verifactu) de una factura emitida.
package aeat

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
	aeatcat "github.com/jhoicas/Concesionario-api/pkg/aeat"
)

// Prefijo y Id del elemento raíz. La Reference de la firma apunta a "#registro-alta".
const (
	prefixSF        = "sf"
	RegistroAltaID  = "registro-alta"
	fechaAEATLayout = "02-01-2006"
)

// BuildInput datos necesarios para el registro de alta.
type BuildInput struct {
	Invoice  *entity.Invoice
	Company  *entity.Company
	Customer *entity.Customer // opcional (factura simplificada)
}

// XMLBuilder genera el RegistroAlta (sin firma).
type XMLBuilder struct {
	softwareName string
	softwareNIF  string
}

// NewXMLBuilder crea el builder con la identificación del sistema informático.
func NewXMLBuilder(softwareName, softwareNIF string) *XMLBuilder {
	return &XMLBuilder{softwareName: softwareName, softwareNIF: softwareNIF}
}

// Build genera el XML del registro de alta de la factura.
func (b *XMLBuilder) Build(in BuildInput) ([]byte, error) {
	if in.Invoice == nil || in.Company == nil {
		return nil, fmt.Errorf("aeat: faltan factura o empresa")
	}
	inv := in.Invoice

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	root := xml.StartElement{
		Name: sfName("RegistroAlta"),
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "Id"}, Value: RegistroAltaID},
			{Name: xml.Name{Local: "xmlns:" + prefixSF}, Value: aeatcat.NamespaceSuministroInfo},
		},
	}
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}

	writeSF(enc, "IDVersion", aeatcat.VersionRegistro)

	open(enc, "IDFactura")
	writeSF(enc, "IDEmisorFactura", aeatcat.NormalizeNIF(in.Company.TaxID))
	writeSF(enc, "NumSerieFactura", inv.Number)
	writeSF(enc, "FechaExpedicionFactura", inv.EmissionDate.Format(fechaAEATLayout))
	closeEl(enc, "IDFactura")

	writeSF(enc, "NombreRazonEmisor", in.Company.Name)
	tipo := inv.DocumentType
	if tipo == "" {
		tipo = aeatcat.TipoFacturaCompleta
	}
	writeSF(enc, "TipoFactura", tipo)
	if !inv.OperationDate.IsZero() && !sameDay(inv.OperationDate, inv.EmissionDate) {
		writeSF(enc, "FechaOperacion", inv.OperationDate.Format(fechaAEATLayout))
	}
	desc := inv.Notes
	if desc == "" {
		desc = "Venta de vehículos"
	}
	writeSF(enc, "DescripcionOperacion", desc)
	if inv.OperationRef != "" {
		writeSF(enc, "RefExterna", inv.OperationRef)
	}

	if c := in.Customer; c != nil {
		open(enc, "Destinatarios")
		open(enc, "IDDestinatario")
		writeSF(enc, "NombreRazon", c.Name)
		writeSF(enc, "NIF", aeatcat.NormalizeNIF(c.TaxID))
		closeEl(enc, "IDDestinatario")
		closeEl(enc, "Destinatarios")
	}

	open(enc, "Desglose")
	for _, d := range breakdown(inv.Lines) {
		open(enc, "DetalleDesglose")
		writeSF(enc, "Impuesto", d.taxCode)
		writeSF(enc, "ClaveRegimen", aeatcat.ClaveRegimenGeneral)
		writeSF(enc, "CalificacionOperacion", aeatcat.CalificacionSujetaNoExenta)
		writeSF(enc, "TipoImpositivo", amount(d.rate))
		writeSF(enc, "BaseImponibleOimporteNoSujeto", amount(d.base))
		writeSF(enc, "CuotaRepercutida", amount(d.tax))
		closeEl(enc, "DetalleDesglose")
	}
	closeEl(enc, "Desglose")

	writeSF(enc, "CuotaTotal", amount(inv.Tax))
	writeSF(enc, "ImporteTotal", amount(inv.Total))

	writeSF(enc, "TipoHuella", "01") // SHA-256
	writeSF(enc, "Huella", inv.DocumentHash)
	writeSF(enc, "NumeroSerieFiscal", inv.Serial)
	writeSF(enc, "CodigoVerifactu", inv.FiscalCode)
	writeSF(enc, "FechaHoraHusoGenRegistro", inv.SealedAt.Format(time.RFC3339))

	open(enc, "Lineas")
	for i, l := range inv.Lines {
		start := xml.StartElement{
			Name: sfName("Linea"),
			Attr: []xml.Attr{{Name: xml.Name{Local: "numero"}, Value: strconv.Itoa(i + 1)}},
		}
		_ = enc.EncodeToken(start)
		writeSF(enc, "Descripcion", l.Description)
		writeSF(enc, "Cantidad", l.Quantity.String())
		writeSF(enc, "PrecioUnitario", amount(l.UnitPrice))
		writeSF(enc, "BaseImponible", amount(l.Subtotal))
		writeSF(enc, "Cuota", amount(l.Tax))
		writeSF(enc, "Importe", amount(l.Total))
		if l.VehicleID != "" {
			writeSF(enc, "VehiculoID", l.VehicleID)
		}
		_ = enc.EncodeToken(start.End())
	}
	closeEl(enc, "Lineas")

	open(enc, "SistemaInformatico")
	writeSF(enc, "NombreRazon", b.softwareName)
	writeSF(enc, "NIF", aeatcat.NormalizeNIF(b.softwareNIF))
	writeSF(enc, "NombreSistemaInformatico", b.softwareName)
	writeSF(enc, "Version", aeatcat.VersionRegistro)
	closeEl(enc, "SistemaInformatico")

	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type breakdownItem struct {
	taxCode string
	rate    decimal.Decimal
	base    decimal.Decimal
	tax     decimal.Decimal
}

// breakdown agrupa las líneas por impuesto y tipo impositivo.
func breakdown(lines []entity.InvoiceLine) []breakdownItem {
	hundred := decimal.NewFromInt(100)
	idx := map[string]*breakdownItem{}
	var keys []string
	for _, l := range lines {
		rate := decimal.Zero
		if !l.Subtotal.IsZero() {
			rate = l.Tax.Div(l.Subtotal).Mul(hundred).Round(2)
		}
		code := aeatcat.TaxTypeCode(l.TaxType)
		key := code + "|" + rate.StringFixed(2)
		it, ok := idx[key]
		if !ok {
			it = &breakdownItem{taxCode: code, rate: rate}
			idx[key] = it
			keys = append(keys, key)
		}
		it.base = it.base.Add(l.Subtotal)
		it.tax = it.tax.Add(l.Tax)
	}
	sort.Strings(keys)
	out := make([]breakdownItem, 0, len(keys))
	for _, k := range keys {
		out = append(out, *idx[k])
	}
	return out
}

func sfName(local string) xml.Name {
	// Prefijo literal: encoding/xml no gestiona prefijos propios.
	return xml.Name{Local: prefixSF + ":" + local}
}

func writeSF(enc *xml.Encoder, local, value string) {
	_ = enc.EncodeToken(xml.StartElement{Name: sfName(local)})
	_ = enc.EncodeToken(xml.CharData(value))
	_ = enc.EncodeToken(xml.EndElement{Name: sfName(local)})
}

func open(enc *xml.Encoder, local string) {
	_ = enc.EncodeToken(xml.StartElement{Name: sfName(local)})
}

func closeEl(enc *xml.Encoder, local string) {
	_ = enc.EncodeToken(xml.EndElement{Name: sfName(local)})
}

func amount(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
