package billing

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jhoicas/Concesionario-api/internal/application/dto"
	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
	"github.com/jhoicas/Concesionario-api/internal/domain/fiscal"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/audit"
)

// signedDocument contenido que se firma. Se reconstruye igual desde la factura
// guardada, así que la firma se puede verificar en cualquier momento.
type signedDocument struct {
	ID           string `json:"id"`
	Number       string `json:"numero_factura"`
	Serial       string `json:"numero_serie"`
	DocumentHash string `json:"hash_documento"`
	Seal         string `json:"sellado_temporal"`
	FiscalCode   string `json:"codigo_verifactu"`
	Total        string `json:"total"`
	CompanyID    string `json:"empresa_id"`
}

// SignedDocument documento firmado de la factura (JSON).
func SignedDocument(inv *entity.Invoice) ([]byte, error) {
	return json.Marshal(signedDocument{
		ID:           inv.ID,
		Number:       inv.Number,
		Serial:       inv.Serial,
		DocumentHash: inv.DocumentHash,
		Seal:         fiscal.FormatSeal(inv.SealedAt),
		FiscalCode:   inv.FiscalCode,
		Total:        inv.Total.StringFixed(2),
		CompanyID:    inv.CompanyID,
	})
}

// RetrySign firma una factura emitida que quedó sin firma. Si ya está firmada
// devuelve el artefacto existente; nunca crea otra factura.
func (c *Coordinator) RetrySign(ctx context.Context, actor, invoiceID string) (*dto.SignInvoiceResponse, error) {
	inv, err := c.load(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.IsSigned() {
		existing, err := c.signer.LatestSignature(ctx, inv.SignatureHash)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &dto.SignInvoiceResponse{InvoiceID: inv.ID, AlreadySigned: true, Artifact: existing}, nil
		}
		c.log.Warn().Str("invoice_id", inv.ID).Msg("factura marcada como firmada sin artefacto; se vuelve a firmar")
	}

	artifact, err := c.sign(ctx, actor, inv)
	if err != nil {
		return nil, err
	}
	return &dto.SignInvoiceResponse{InvoiceID: inv.ID, Artifact: artifact}, nil
}

// sign firma la factura con el certificado de la empresa y registra la firma.
// Un fallo se audita y se devuelve; la factura queda como estaba.
func (c *Coordinator) sign(ctx context.Context, actor string, inv *entity.Invoice) (*entity.SignatureArtifact, error) {
	doc, err := SignedDocument(inv)
	if err != nil {
		return nil, err
	}
	artifact, err := c.signer.SignDocument(ctx, actor, inv.CompanyID, doc, inv.ID)
	if err != nil {
		c.log.Warn().Err(err).Str("invoice_id", inv.ID).Msg("firma fallida; la factura queda emitida sin firmar")
		c.audit.Record(ctx, audit.EntityInvoice, inv.ID, audit.OpSignError, nil,
			map[string]string{"error": err.Error()}, actor)
		return nil, fmt.Errorf("firmar factura %s: %w", inv.Number, err)
	}
	if err := c.invoiceRepo.SetSignature(ctx, inv.ID, artifact.DocumentHash, artifact.SignedAt); err != nil {
		c.log.Error().Err(err).Str("invoice_id", inv.ID).Msg("no se pudo registrar la firma en la factura")
		return nil, fmt.Errorf("registrar firma: %w", err)
	}
	inv.SignatureHash = artifact.DocumentHash
	inv.SignedAt = &artifact.SignedAt

	c.audit.Record(ctx, audit.EntityInvoice, inv.ID, audit.OpSign, nil, map[string]any{
		"hash_firma":  artifact.DocumentHash,
		"algoritmo":   artifact.Algorithm,
		"certificado": artifact.Certificate.Serial,
		"desarrollo":  artifact.Binding.Development,
	}, actor)
	return artifact, nil
}
