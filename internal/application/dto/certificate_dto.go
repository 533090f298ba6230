package dto

import (
	"encoding/json"
	"time"

	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
)

// CertificateResponse certificado descubierto en el host.
type CertificateResponse struct {
	Serial      string    `json:"numero_serie"`
	SubjectCN   string    `json:"titular"`
	Issuer      string    `json:"emisor"`
	NotBefore   time.Time `json:"valido_desde"`
	NotAfter    time.Time `json:"valido_hasta"`
	HasKey      bool      `json:"tiene_clave"`
	TaxID       string    `json:"nif,omitempty"`
	TaxIDValid  bool      `json:"nif_valido"`
	Valid       bool      `json:"vigente"`
	Source      string    `json:"origen,omitempty"`
	Fingerprint string    `json:"huella_sha256,omitempty"`
}

// RankedCertificateResponse certificado evaluado frente a una empresa.
type RankedCertificateResponse struct {
	CertificateResponse
	Tier        string `json:"nivel"`
	Reason      string `json:"motivo"`
	Recommended bool   `json:"recomendado"`
}

// BindCertificateRequest vinculación de un certificado a la empresa.
type BindCertificateRequest struct {
	Serial string `json:"numero_serie"`
}

// BindingResponse vínculo activo certificado-empresa.
type BindingResponse struct {
	CompanyID string    `json:"empresa_id"`
	Serial    string    `json:"numero_serie"`
	Tier      string    `json:"nivel"`
	Reason    string    `json:"motivo,omitempty"`
	BoundAt   time.Time `json:"vinculado_en"`
	BoundBy   string    `json:"vinculado_por,omitempty"`
}

// SignDocumentRequest documento JSON arbitrario a firmar.
type SignDocumentRequest struct {
	Document json.RawMessage `json:"documento"`
}

// VerifySignatureRequest artefacto y documento a contrastar.
type VerifySignatureRequest struct {
	Artifact *entity.SignatureArtifact `json:"artefacto"`
	Document json.RawMessage           `json:"documento"`
}

// VerifySignatureResponse resultado de la verificación.
type VerifySignatureResponse struct {
	Valid        bool   `json:"valido"`
	Reason       string `json:"motivo,omitempty"`
	ArtifactHash string `json:"hash_artefacto"`
	DocumentHash string `json:"hash_documento,omitempty"`
}
