package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jhoicas/Concesionario-api/internal/application/dto"
	"github.com/jhoicas/Concesionario-api/internal/domain"
	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/audit"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/cache"
)

// MarkPaid pendiente -> pagada.
func (c *Coordinator) MarkPaid(ctx context.Context, actor, invoiceID string) (*dto.InvoiceStatusResponse, error) {
	return c.transition(ctx, actor, invoiceID, entity.PaymentStatusPaid, audit.OpMarkPaid)
}

// MarkPending pagada -> pendiente.
func (c *Coordinator) MarkPending(ctx context.Context, actor, invoiceID string) (*dto.InvoiceStatusResponse, error) {
	return c.transition(ctx, actor, invoiceID, entity.PaymentStatusPending, audit.OpMarkPend)
}

// Annul anula la factura. Estado terminal: no reactiva vehículos ni revierte
// proformas; el historial de auditoría conserva el estado previo.
func (c *Coordinator) Annul(ctx context.Context, actor, invoiceID string) (*dto.InvoiceStatusResponse, error) {
	return c.transition(ctx, actor, invoiceID, entity.PaymentStatusAnnulled, audit.OpAnnul)
}

// transition solo cambia el estado de cobro: número, serie, huella y sellado no se tocan.
func (c *Coordinator) transition(ctx context.Context, actor, invoiceID, target, op string) (*dto.InvoiceStatusResponse, error) {
	inv, err := c.load(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.PaymentStatus == target {
		return statusOf(inv), nil
	}
	if inv.PaymentStatus == entity.PaymentStatusAnnulled {
		return nil, &domain.ConflictError{
			Code:    domain.CodeInvalidState,
			Field:   "estado_pago",
			Message: fmt.Sprintf("la factura %s está anulada", inv.Number),
		}
	}

	before := map[string]string{"estado_pago": inv.PaymentStatus}
	now := c.fiscal.Now().UTC()
	if err := c.invoiceRepo.UpdatePaymentStatus(ctx, inv.ID, inv.PaymentStatus, target, now); err != nil {
		if !errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		// Otra petición cambió el estado entre la lectura y la escritura.
		current, lerr := c.load(ctx, invoiceID)
		if lerr != nil {
			return nil, lerr
		}
		if current.PaymentStatus == target {
			return statusOf(current), nil
		}
		return nil, &domain.ConflictError{
			Code:    domain.CodeInvalidState,
			Field:   "estado_pago",
			Message: fmt.Sprintf("la factura %s cambió a %s", current.Number, current.PaymentStatus),
		}
	}
	inv.PaymentStatus = target

	c.audit.Record(ctx, audit.EntityInvoice, inv.ID, op, before, map[string]string{"estado_pago": target}, actor)
	c.cache.Invalidate(ctx, cache.PatternInvoices)
	c.log.Info().
		Str("invoice_id", inv.ID).
		Str("from", before["estado_pago"]).
		Str("to", target).
		Msg("estado de factura actualizado")
	return statusOf(inv), nil
}

func statusOf(inv *entity.Invoice) *dto.InvoiceStatusResponse {
	return &dto.InvoiceStatusResponse{
		ID:            inv.ID,
		Number:        inv.Number,
		PaymentStatus: inv.PaymentStatus,
		FiscalStatus:  inv.FiscalStatus,
	}
}
