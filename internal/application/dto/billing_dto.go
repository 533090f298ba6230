package dto

import (
	"github.com/shopspring/decimal"

	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
)

// CreateInvoiceRequest petición de emisión. Las fechas admiten 2006-01-02 o RFC3339.
type CreateInvoiceRequest struct {
	Number        string               `json:"numero_factura,omitempty"`
	CompanyID     string               `json:"empresa_id"`
	CustomerID    string               `json:"cliente_id,omitempty"`
	EmissionDate  string               `json:"fecha_emision"`
	DueDate       string               `json:"fecha_vencimiento,omitempty"`
	Subtotal      decimal.Decimal      `json:"subtotal"`
	Tax           decimal.Decimal      `json:"igic"`
	Total         decimal.Decimal      `json:"total"`
	Notes         string               `json:"notas,omitempty"`
	Lines         []InvoiceLineRequest `json:"productos"`
	ProformaID    string               `json:"proforma_id,omitempty"`
	OperationDate string               `json:"fecha_operacion,omitempty"`
	DocumentType  string               `json:"tipo_documento,omitempty"`
	PaymentMethod string               `json:"metodo_pago,omitempty"`
	OperationRef  string               `json:"referencia_operacion,omitempty"`
}

// InvoiceLineRequest línea de la petición. coche_id es la referencia explícita al vehículo.
type InvoiceLineRequest struct {
	ProductID   string          `json:"id,omitempty"`
	VehicleID   string          `json:"coche_id,omitempty"`
	Quantity    decimal.Decimal `json:"cantidad"`
	UnitPrice   decimal.Decimal `json:"precio_unitario"`
	Tax         decimal.Decimal `json:"igic"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Total       decimal.Decimal `json:"total"`
	Description string          `json:"descripcion,omitempty"`
	TaxType     string          `json:"tipo_impuesto,omitempty"`
}

// IssueInvoiceResponse resultado de la emisión. Si la firma falló la factura
// queda emitida sin firmar y se informa el motivo en error_firma.
type IssueInvoiceResponse struct {
	ID             string          `json:"id"`
	Number         string          `json:"numero_factura"`
	Serial         string          `json:"numero_serie"`
	DocumentHash   string          `json:"hash_documento"`
	Seal           string          `json:"sellado_temporal"`
	FiscalCode     string          `json:"codigo_verifactu"`
	Total          decimal.Decimal `json:"total"`
	Signed         bool            `json:"firmada"`
	SignatureError string          `json:"error_firma,omitempty"`
}

// InvoiceLineResponse línea de una factura emitida.
type InvoiceLineResponse struct {
	ID          string          `json:"id"`
	Position    int             `json:"posicion"`
	ProductID   string          `json:"producto_id,omitempty"`
	VehicleID   string          `json:"coche_id,omitempty"`
	Description string          `json:"descripcion,omitempty"`
	Quantity    decimal.Decimal `json:"cantidad"`
	UnitPrice   decimal.Decimal `json:"precio_unitario"`
	Tax         decimal.Decimal `json:"igic"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Total       decimal.Decimal `json:"total"`
	TaxType     string          `json:"tipo_impuesto"`
}

// InvoiceResponse factura completa.
type InvoiceResponse struct {
	ID            string                         `json:"id"`
	CompanyID     string                         `json:"empresa_id"`
	CustomerID    string                         `json:"cliente_id,omitempty"`
	ProformaID    string                         `json:"proforma_id,omitempty"`
	Number        string                         `json:"numero_factura"`
	Serial        string                         `json:"numero_serie"`
	DocumentType  string                         `json:"tipo_documento"`
	PaymentMethod string                         `json:"metodo_pago,omitempty"`
	OperationRef  string                         `json:"referencia_operacion,omitempty"`
	Notes         string                         `json:"notas,omitempty"`
	EmissionDate  string                         `json:"fecha_emision"`
	OperationDate string                         `json:"fecha_operacion"`
	DueDate       string                         `json:"fecha_vencimiento,omitempty"`
	Subtotal      decimal.Decimal                `json:"subtotal"`
	Tax           decimal.Decimal                `json:"igic"`
	Total         decimal.Decimal                `json:"total"`
	DocumentHash  string                         `json:"hash_documento"`
	Seal          string                         `json:"sellado_temporal"`
	FiscalCode    string                         `json:"codigo_verifactu"`
	PaymentStatus string                         `json:"estado_pago"`
	FiscalStatus  string                         `json:"estado_fiscal"`
	SignatureHash string                         `json:"hash_firma,omitempty"`
	SignedAt      string                         `json:"firmada_en,omitempty"`
	Authority     *entity.FiscalSubmissionResult `json:"respuesta_autoridad,omitempty"`
	Lines         []InvoiceLineResponse          `json:"productos"`
}

// InvoiceStatusResponse resultado de una transición de estado.
type InvoiceStatusResponse struct {
	ID            string `json:"id"`
	Number        string `json:"numero_factura"`
	PaymentStatus string `json:"estado_pago"`
	FiscalStatus  string `json:"estado_fiscal"`
}

// XMLValidation resultado de la validación estructural del XML fiscal.
type XMLValidation struct {
	Valid  bool     `json:"valido"`
	Errors []string `json:"errores"`
}

// FiscalXMLResponse XML del registro de alta sin firmar.
type FiscalXMLResponse struct {
	XML        string        `json:"xml"`
	Validation XMLValidation `json:"validacion"`
	InvoiceID  string        `json:"factura_id"`
	Serial     string        `json:"numero_serie"`
}

// SubmitResponse resultado del envío a la autoridad.
type SubmitResponse struct {
	InvoiceID         string                         `json:"factura_id"`
	AuthorityResponse *entity.FiscalSubmissionResult `json:"respuesta_autoridad"`
	SubmittedXML      string                         `json:"xml_enviado"`
	FiscalStatus      string                         `json:"estado_fiscal"`
}

// SignatureCheck verificación de la firma almacenada.
type SignatureCheck struct {
	Valid     bool   `json:"valido"`
	Reason    string `json:"motivo,omitempty"`
	Algorithm string `json:"algoritmo,omitempty"`
	Serial    string `json:"certificado,omitempty"`
	SignedAt  string `json:"firmada_en,omitempty"`
}

// IntegrityResponse comprobación de la huella de una factura emitida.
type IntegrityResponse struct {
	Valid        bool            `json:"valido"`
	StoredHash   string          `json:"hash_almacenado"`
	ComputedHash string          `json:"hash_calculado"`
	Signature    *SignatureCheck `json:"firma,omitempty"`
}

// SignInvoiceResponse resultado de (re)firmar una factura.
type SignInvoiceResponse struct {
	InvoiceID     string                    `json:"factura_id"`
	AlreadySigned bool                      `json:"ya_firmada"`
	Artifact      *entity.SignatureArtifact `json:"artefacto"`
}
