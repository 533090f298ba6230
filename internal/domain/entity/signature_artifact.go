package entity

import "time"

// CertificateSnapshot copia de los datos del certificado en el momento de firmar.
type CertificateSnapshot struct {
	Serial         string    `json:"serial" dynamodbav:"serial"`
	SubjectCN      string    `json:"subject_cn" dynamodbav:"subject_cn"`
	Issuer         string    `json:"issuer" dynamodbav:"issuer"`
	TaxID          string    `json:"tax_id,omitempty" dynamodbav:"tax_id,omitempty"`
	NotBefore      time.Time `json:"not_before" dynamodbav:"not_before"`
	NotAfter       time.Time `json:"not_after" dynamodbav:"not_after"`
	CertificatePEM string    `json:"certificate_pem" dynamodbav:"certificate_pem"`
}

// BindingRef vínculo certificado-empresa bajo el que se produjo la firma.
type BindingRef struct {
	CompanyID         string `json:"company_id" dynamodbav:"company_id"`
	CertificateSerial string `json:"certificate_serial" dynamodbav:"certificate_serial"`
	Tier              string `json:"tier" dynamodbav:"tier"`
	Development       bool   `json:"development" dynamodbav:"development"`
}

// SignatureArtifact firma inmutable. Se guarda en un almacén append-only
// indexado por hash del documento + instante.
type SignatureArtifact struct {
	DocumentHash   string              `json:"document_hash" dynamodbav:"document_hash"`
	SignedAt       time.Time           `json:"signed_at" dynamodbav:"signed_at"`
	Algorithm      string              `json:"algorithm" dynamodbav:"algorithm"`
	SignatureValue string              `json:"signature_value" dynamodbav:"signature_value"` // base64 estándar
	Certificate    CertificateSnapshot `json:"certificate" dynamodbav:"certificate"`
	Binding        BindingRef          `json:"binding" dynamodbav:"binding"`
	InvoiceID      string              `json:"invoice_id,omitempty" dynamodbav:"invoice_id,omitempty"`
}
