package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jhoicas/Concesionario-api/internal/application/dto"
	"github.com/jhoicas/Concesionario-api/internal/domain"
	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
	"github.com/jhoicas/Concesionario-api/internal/domain/fiscal"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/audit"
)

// Get factura con sus líneas.
func (c *Coordinator) Get(ctx context.Context, invoiceID string) (*dto.InvoiceResponse, error) {
	inv, err := c.load(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return toInvoiceResponse(inv), nil
}

// VerifyIntegrity recalcula la huella desde los datos guardados y, si la
// factura está firmada, comprueba también la firma.
func (c *Coordinator) VerifyIntegrity(ctx context.Context, invoiceID string) (*dto.IntegrityResponse, error) {
	inv, err := c.load(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	ok, computed := c.fiscal.Verify(fiscal.PayloadFromInvoice(inv), inv.SealedAt, inv.DocumentHash)
	resp := &dto.IntegrityResponse{
		Valid:        ok,
		StoredHash:   inv.DocumentHash,
		ComputedHash: computed,
	}
	if !inv.IsSigned() {
		return resp, nil
	}

	artifact, err := c.signer.LatestSignature(ctx, inv.SignatureHash)
	if err != nil {
		return nil, err
	}
	if artifact == nil {
		resp.Signature = &dto.SignatureCheck{Reason: "no se encuentra el artefacto de firma"}
		return resp, nil
	}
	doc, err := SignedDocument(inv)
	if err != nil {
		return nil, err
	}
	v := c.signer.VerifyDocument(artifact, doc)
	resp.Signature = &dto.SignatureCheck{
		Valid:     v.Valid,
		Reason:    v.Reason,
		Algorithm: artifact.Algorithm,
		Serial:    artifact.Certificate.Serial,
		SignedAt:  artifact.SignedAt.Format(time.RFC3339Nano),
	}
	return resp, nil
}

// History operaciones auditadas de la factura en orden cronológico.
func (c *Coordinator) History(ctx context.Context, invoiceID string) ([]dto.HistoryEntry, error) {
	if _, err := c.load(ctx, invoiceID); err != nil {
		return nil, err
	}
	entries, err := c.audit.History(ctx, audit.EntityInvoice, invoiceID)
	if err != nil {
		return nil, err
	}
	out := make([]dto.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, dto.HistoryEntry{
			Operation: e.Operation,
			Before:    rawOrNil(e.Before),
			After:     rawOrNil(e.After),
			Actor:     e.Actor,
			At:        e.At.UTC().Format(time.RFC3339),
		})
	}
	return out, nil
}

func (c *Coordinator) load(ctx context.Context, invoiceID string) (*entity.Invoice, error) {
	inv, err := c.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, fmt.Errorf("factura %s: %w", invoiceID, domain.ErrNotFound)
	}
	return inv, nil
}

func rawOrNil(raw json.RawMessage) any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}

// auditView resumen de la factura guardado en la auditoría de emisión.
func auditView(inv *entity.Invoice) map[string]any {
	return map[string]any{
		"numero_factura":   inv.Number,
		"numero_serie":     inv.Serial,
		"hash_documento":   inv.DocumentHash,
		"sellado_temporal": fiscal.FormatSeal(inv.SealedAt),
		"total":            inv.Total.StringFixed(2),
		"vehiculos":        inv.VehicleIDs(),
		"proforma_id":      inv.ProformaID,
	}
}

func toInvoiceResponse(inv *entity.Invoice) *dto.InvoiceResponse {
	resp := &dto.InvoiceResponse{
		ID:            inv.ID,
		CompanyID:     inv.CompanyID,
		CustomerID:    inv.CustomerID,
		ProformaID:    inv.ProformaID,
		Number:        inv.Number,
		Serial:        inv.Serial,
		DocumentType:  inv.DocumentType,
		PaymentMethod: inv.PaymentMethod,
		OperationRef:  inv.OperationRef,
		Notes:         inv.Notes,
		EmissionDate:  inv.EmissionDate.Format(dateLayout),
		OperationDate: inv.OperationDate.Format(dateLayout),
		Subtotal:      inv.Subtotal,
		Tax:           inv.Tax,
		Total:         inv.Total,
		DocumentHash:  inv.DocumentHash,
		Seal:          fiscal.FormatSeal(inv.SealedAt),
		FiscalCode:    inv.FiscalCode,
		PaymentStatus: inv.PaymentStatus,
		FiscalStatus:  inv.FiscalStatus,
		SignatureHash: inv.SignatureHash,
		Lines:         make([]dto.InvoiceLineResponse, 0, len(inv.Lines)),
	}
	if inv.DueDate != nil {
		resp.DueDate = inv.DueDate.Format(dateLayout)
	}
	if inv.SignedAt != nil {
		resp.SignedAt = inv.SignedAt.UTC().Format(time.RFC3339)
	}
	if len(inv.AuthorityResponse) > 0 {
		var res entity.FiscalSubmissionResult
		if err := json.Unmarshal(inv.AuthorityResponse, &res); err == nil {
			resp.Authority = &res
		}
	}
	for _, l := range inv.Lines {
		resp.Lines = append(resp.Lines, dto.InvoiceLineResponse{
			ID:          l.ID,
			Position:    l.Position,
			ProductID:   l.ProductID,
			VehicleID:   l.VehicleID,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			Tax:         l.Tax,
			Subtotal:    l.Subtotal,
			Total:       l.Total,
			TaxType:     l.TaxType,
		})
	}
	return resp
}
