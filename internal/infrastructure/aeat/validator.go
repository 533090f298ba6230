package aeat

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	aeatcat "github.com/jhoicas/Concesionario-api/pkg/aeat"
)

// ValidationResult resultado de la validación estructural.
type ValidationResult struct {
	Valid  bool     `json:"valido"`
	Errors []string `json:"errores"`
}

var huellaRe = regexp.MustCompile(`^[0-9A-F]{64}$`)

// Nodos obligatorios (ruta relativa a la raíz).
var requiredNodes = []string{
	"sf:IDVersion",
	"sf:IDFactura/sf:IDEmisorFactura",
	"sf:IDFactura/sf:NumSerieFactura",
	"sf:IDFactura/sf:FechaExpedicionFactura",
	"sf:NombreRazonEmisor",
	"sf:TipoFactura",
	"sf:Desglose/sf:DetalleDesglose",
	"sf:CuotaTotal",
	"sf:ImporteTotal",
	"sf:Huella",
	"sf:NumeroSerieFiscal",
	"sf:Lineas/sf:Linea",
	"sf:SistemaInformatico",
}

// Validator comprobaciones estructurales del registro de alta.
type Validator struct{}

// NewValidator crea el validador.
func NewValidator() *Validator { return &Validator{} }

// Validate comprueba que el XML esté bien formado, que existan los nodos
// obligatorios y que los identificadores fiscales tengan formato válido.
func (v *Validator) Validate(xmlBytes []byte) ValidationResult {
	res := ValidationResult{Errors: []string{}}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("XML mal formado: %v", err))
		return res
	}
	root := doc.Root()
	if root == nil || root.Tag != "RegistroAlta" {
		res.Errors = append(res.Errors, "falta el elemento raíz RegistroAlta")
		return res
	}

	for _, path := range requiredNodes {
		el := root.FindElement("./" + path)
		if el == nil {
			res.Errors = append(res.Errors, "falta el nodo "+path)
			continue
		}
		if len(el.ChildElements()) == 0 && strings.TrimSpace(el.Text()) == "" {
			res.Errors = append(res.Errors, "nodo vacío "+path)
		}
	}

	if el := root.FindElement("./sf:IDFactura/sf:IDEmisorFactura"); el != nil && el.Text() != "" && !aeatcat.HasNIFFormat(el.Text()) {
		res.Errors = append(res.Errors, "NIF del emisor con formato inválido: "+el.Text())
	}
	for _, el := range root.FindElements("./sf:Destinatarios/sf:IDDestinatario/sf:NIF") {
		if !aeatcat.HasNIFFormat(el.Text()) {
			res.Errors = append(res.Errors, "NIF del destinatario con formato inválido: "+el.Text())
		}
	}
	if el := root.FindElement("./sf:TipoFactura"); el != nil && el.Text() != "" && !aeatcat.ValidTipoFactura[el.Text()] {
		res.Errors = append(res.Errors, "TipoFactura desconocido: "+el.Text())
	}
	if el := root.FindElement("./sf:Huella"); el != nil && el.Text() != "" && !huellaRe.MatchString(el.Text()) {
		res.Errors = append(res.Errors, "Huella debe ser SHA-256 en hexadecimal (64 caracteres)")
	}
	for _, path := range []string{"sf:CuotaTotal", "sf:ImporteTotal"} {
		if el := root.FindElement("./" + path); el != nil && el.Text() != "" {
			if _, err := decimal.NewFromString(el.Text()); err != nil {
				res.Errors = append(res.Errors, "importe no numérico en "+path)
			}
		}
	}

	res.Valid = len(res.Errors) == 0
	return res
}
