package aeat

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
)

func sampleInput() BuildInput {
	emitted := time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC)
	return BuildInput{
		Company:  &entity.Company{ID: "c1", Name: "Automóviles Atlántico S.L.", TaxID: "B12345674"},
		Customer: &entity.Customer{ID: "x1", Name: "Juan Pérez & Hijos", TaxID: "12345678z"},
		Invoice: &entity.Invoice{
			ID:            "inv-1",
			Number:        "F2025-00001",
			Serial:        "NS-0011223344556677889A",
			DocumentType:  "F1",
			EmissionDate:  emitted,
			OperationDate: emitted,
			Subtotal:      decimal.NewFromInt(20000),
			Tax:           decimal.NewFromInt(1400),
			Total:         decimal.NewFromInt(21400),
			DocumentHash:  strings.Repeat("AB", 32),
			SealedAt:      emitted,
			FiscalCode:    "VF-0011223344556677889A-20250314103000-ABABABABABAB",
			Lines: []entity.InvoiceLine{{
				Position:    1,
				VehicleID:   "v1",
				Description: "Seat León 1234BCD",
				Quantity:    decimal.NewFromInt(1),
				UnitPrice:   decimal.NewFromInt(20000),
				Subtotal:    decimal.NewFromInt(20000),
				Tax:         decimal.NewFromInt(1400),
				Total:       decimal.NewFromInt(21400),
				TaxType:     "igic",
			}},
		},
	}
}

func TestBuild_ContieneCamposFiscales(t *testing.T) {
	out, err := NewXMLBuilder("Concesionario API", "B12345674").Build(sampleInput())
	require.NoError(t, err)
	xml := string(out)

	assert.Contains(t, xml, `<sf:RegistroAlta Id="registro-alta"`)
	assert.Contains(t, xml, "<sf:IDEmisorFactura>B12345674</sf:IDEmisorFactura>")
	assert.Contains(t, xml, "<sf:NumSerieFactura>F2025-00001</sf:NumSerieFactura>")
	assert.Contains(t, xml, "<sf:FechaExpedicionFactura>14-03-2025</sf:FechaExpedicionFactura>")
	assert.Contains(t, xml, "<sf:NIF>12345678Z</sf:NIF>")
	assert.Contains(t, xml, "<sf:Impuesto>03</sf:Impuesto>")
	assert.Contains(t, xml, "<sf:TipoImpositivo>7.00</sf:TipoImpositivo>")
	assert.Contains(t, xml, "<sf:ImporteTotal>21400.00</sf:ImporteTotal>")
	assert.Contains(t, xml, "<sf:Huella>"+strings.Repeat("AB", 32)+"</sf:Huella>")
	assert.Contains(t, xml, "<sf:NumeroSerieFiscal>NS-0011223344556677889A</sf:NumeroSerieFiscal>")
	assert.Contains(t, xml, "Juan Pérez &amp; Hijos")
	assert.NotContains(t, xml, "FechaOperacion")

	res := NewValidator().Validate(out)
	assert.True(t, res.Valid, res.Errors)
	assert.Empty(t, res.Errors)
}

func TestBuild_SinEmpresa(t *testing.T) {
	in := sampleInput()
	in.Company = nil
	_, err := NewXMLBuilder("x", "B12345674").Build(in)
	assert.Error(t, err)
}

func TestValidate_Errores(t *testing.T) {
	in := sampleInput()
	in.Invoice.DocumentHash = ""
	in.Customer.TaxID = "12-34"
	out, err := NewXMLBuilder("Concesionario API", "B12345674").Build(in)
	require.NoError(t, err)

	res := NewValidator().Validate(out)
	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors, "nodo vacío sf:Huella")
	assert.Contains(t, strings.Join(res.Errors, "\n"), "NIF del destinatario")
}

func TestValidate_MalFormado(t *testing.T) {
	res := NewValidator().Validate([]byte("<sf:RegistroAlta><sin-cerrar>"))
	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "mal formado")
}

func TestBreakdown_AgrupaPorTipo(t *testing.T) {
	lines := []entity.InvoiceLine{
		{Subtotal: decimal.NewFromInt(100), Tax: decimal.NewFromInt(7), TaxType: "igic"},
		{Subtotal: decimal.NewFromInt(200), Tax: decimal.NewFromInt(14), TaxType: "igic"},
		{Subtotal: decimal.NewFromInt(100), Tax: decimal.NewFromInt(21), TaxType: "iva"},
	}
	out := breakdown(lines)
	require.Len(t, out, 2)
	assert.Equal(t, "01", out[0].taxCode)
	assert.Equal(t, "21.00", out[0].rate.StringFixed(2))
	assert.Equal(t, "03", out[1].taxCode)
	assert.True(t, out[1].base.Equal(decimal.NewFromInt(300)))
	assert.True(t, out[1].tax.Equal(decimal.NewFromInt(21)))
}
