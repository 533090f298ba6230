package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/Concesionario-api/internal/domain"
	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
	"github.com/jhoicas/Concesionario-api/internal/domain/repository"
)

var (
	_ repository.InvoiceRepository    = (*InvoiceRepo)(nil)
	_ repository.LegacyLineRepository = (*InvoiceRepo)(nil)
)

// Nombre del índice único parcial de invoice_lines(vehicle_id).
const constraintLineVehicle = "invoice_lines_vehicle_key"

// InvoiceRepo implementación de InvoiceRepository (usable con pool o tx).
type InvoiceRepo struct {
	q Querier
}

// NewInvoiceRepository construye el adaptador. Pasar pool o tx (Querier).
func NewInvoiceRepository(q Querier) *InvoiceRepo {
	return &InvoiceRepo{q: q}
}

// NextNumber upsert-incremento del contador: la fila queda bloqueada hasta el
// fin de la transacción, así que las emisiones de la misma empresa y año se serializan.
func (r *InvoiceRepo) NextNumber(ctx context.Context, companyID string, year int) (int64, error) {
	var next int64
	err := r.q.QueryRow(ctx, `
		INSERT INTO invoice_sequences (company_id, year, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (company_id, year) DO UPDATE SET last_value = invoice_sequences.last_value + 1
		RETURNING last_value`, companyID, year).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next invoice number: %w", err)
	}
	return next, nil
}

// NumberExists comprueba si el número ya está usado en (empresa, año).
func (r *InvoiceRepo) NumberExists(ctx context.Context, companyID string, year int, number string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM invoices WHERE company_id = $1 AND year = $2 AND number = $3)`,
		companyID, year, number).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check invoice number: %w", err)
	}
	return exists, nil
}

// Create persiste cabecera y líneas.
func (r *InvoiceRepo) Create(ctx context.Context, inv *entity.Invoice) error {
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO invoices (
			id, company_id, customer_id, proforma_id, number, year, serial, document_type,
			payment_method, operation_ref, notes, emission_date, operation_date, due_date,
			subtotal, tax, total, document_hash, sealed_at, fiscal_code,
			payment_status, fiscal_status, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		        $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)`,
		inv.ID, inv.CompanyID, nullIfEmpty(inv.CustomerID), nullIfEmpty(inv.ProformaID),
		inv.Number, inv.Year, inv.Serial, inv.DocumentType,
		nullIfEmpty(inv.PaymentMethod), nullIfEmpty(inv.OperationRef), nullIfEmpty(inv.Notes),
		inv.EmissionDate, inv.OperationDate, inv.DueDate,
		inv.Subtotal, inv.Tax, inv.Total, inv.DocumentHash, inv.SealedAt, inv.FiscalCode,
		inv.PaymentStatus, inv.FiscalStatus, nullIfEmpty(inv.CreatedBy), inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("factura %s: %w", inv.Number, domain.ErrDuplicate)
		}
		return fmt.Errorf("insert invoice: %w", err)
	}

	for i := range inv.Lines {
		l := &inv.Lines[i]
		if l.ID == "" {
			l.ID = uuid.New().String()
		}
		l.InvoiceID = inv.ID
		_, err := r.q.Exec(ctx, `
			INSERT INTO invoice_lines (id, invoice_id, position, product_id, vehicle_id, description,
			                           quantity, unit_price, tax, subtotal, total, tax_type)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			l.ID, l.InvoiceID, l.Position, nullIfEmpty(l.ProductID), nullIfEmpty(l.VehicleID), l.Description,
			l.Quantity, l.UnitPrice, l.Tax, l.Subtotal, l.Total, l.TaxType,
		)
		if err != nil {
			if isUniqueViolation(err) && violatedConstraint(err) == constraintLineVehicle {
				return &domain.ConflictError{
					Code:    domain.CodeVehicleAlreadyInvoiced,
					Field:   fmt.Sprintf("productos[%d].coche_id", i),
					Message: "el vehículo ya figura en otra factura",
				}
			}
			return fmt.Errorf("insert invoice line: %w", err)
		}
	}
	return nil
}

// GetByID obtiene la factura con sus líneas ordenadas por posición.
func (r *InvoiceRepo) GetByID(ctx context.Context, id string) (*entity.Invoice, error) {
	var (
		inv                                                       entity.Invoice
		customerID, proformaID, paymentMethod, operationRef, notes *string
		signatureHash, submittedXML, createdBy                    *string
		authority                                                 []byte
	)
	err := r.q.QueryRow(ctx, `
		SELECT id, company_id, customer_id, proforma_id, number, year, serial, document_type,
		       payment_method, operation_ref, notes, emission_date, operation_date, due_date,
		       subtotal, tax, total, document_hash, sealed_at, fiscal_code,
		       payment_status, fiscal_status, signature_hash, signed_at, submitted_xml,
		       authority_response, created_by, created_at, updated_at
		FROM invoices WHERE id = $1`, id).Scan(
		&inv.ID, &inv.CompanyID, &customerID, &proformaID, &inv.Number, &inv.Year, &inv.Serial, &inv.DocumentType,
		&paymentMethod, &operationRef, &notes, &inv.EmissionDate, &inv.OperationDate, &inv.DueDate,
		&inv.Subtotal, &inv.Tax, &inv.Total, &inv.DocumentHash, &inv.SealedAt, &inv.FiscalCode,
		&inv.PaymentStatus, &inv.FiscalStatus, &signatureHash, &inv.SignedAt, &submittedXML,
		&authority, &createdBy, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	inv.CustomerID, inv.ProformaID = derefStr(customerID), derefStr(proformaID)
	inv.PaymentMethod, inv.OperationRef, inv.Notes = derefStr(paymentMethod), derefStr(operationRef), derefStr(notes)
	inv.SignatureHash, inv.SubmittedXML, inv.CreatedBy = derefStr(signatureHash), derefStr(submittedXML), derefStr(createdBy)
	inv.AuthorityResponse = authority
	inv.SealedAt = inv.SealedAt.UTC()

	lines, err := r.lines(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	inv.Lines = lines
	return &inv, nil
}

func (r *InvoiceRepo) lines(ctx context.Context, invoiceID string) ([]entity.InvoiceLine, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, invoice_id, position, product_id, vehicle_id, description,
		       quantity, unit_price, tax, subtotal, total, tax_type
		FROM invoice_lines WHERE invoice_id = $1 ORDER BY position`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list invoice lines: %w", err)
	}
	defer rows.Close()
	var out []entity.InvoiceLine
	for rows.Next() {
		var (
			l                    entity.InvoiceLine
			productID, vehicleID *string
		)
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.Position, &productID, &vehicleID, &l.Description,
			&l.Quantity, &l.UnitPrice, &l.Tax, &l.Subtotal, &l.Total, &l.TaxType); err != nil {
			return nil, fmt.Errorf("scan invoice line: %w", err)
		}
		l.ProductID, l.VehicleID = derefStr(productID), derefStr(vehicleID)
		out = append(out, l)
	}
	return out, rows.Err()
}

// InvoicedVehicleIDs vehículos de la lista que aparecen en alguna línea.
func (r *InvoiceRepo) InvoicedVehicleIDs(ctx context.Context, vehicleIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(vehicleIDs))
	if len(vehicleIDs) == 0 {
		return out, nil
	}
	rows, err := r.q.Query(ctx,
		`SELECT DISTINCT vehicle_id FROM invoice_lines WHERE vehicle_id = ANY($1)`, vehicleIDs)
	if err != nil {
		return nil, fmt.Errorf("invoiced vehicles: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

// UpdatePaymentStatus solo toca el estado de cobro; huella, serie y sellado no cambian.
// El UPDATE condicionado al estado previo evita pisar una anulación concurrente.
func (r *InvoiceRepo) UpdatePaymentStatus(ctx context.Context, id, from, to string, at time.Time) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE invoices SET payment_status = $3, updated_at = $4
		WHERE id = $1 AND payment_status = $2`, id, from, to, at)
	if err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invoices WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return fmt.Errorf("factura %s ya no está %s: %w", id, from, domain.ErrConflict)
}

// SetSignature registra la huella del artefacto de firma.
func (r *InvoiceRepo) SetSignature(ctx context.Context, id, signatureHash string, at time.Time) error {
	return r.exec(ctx, `UPDATE invoices SET signature_hash = $2, signed_at = $3, updated_at = $3 WHERE id = $1`,
		id, signatureHash, at)
}

// SetFiscalResult guarda el XML enviado y la respuesta de la autoridad.
func (r *InvoiceRepo) SetFiscalResult(ctx context.Context, id, status, xml string, response json.RawMessage, at time.Time) error {
	return r.exec(ctx, `
		UPDATE invoices
		SET fiscal_status = $2, submitted_xml = $3, authority_response = $4, updated_at = $5
		WHERE id = $1`, id, status, nullIfEmpty(xml), nullJSON(response), at)
}

func (r *InvoiceRepo) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := r.q.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListLinesWithoutVehicle líneas históricas sin vehículo enlazado.
func (r *InvoiceRepo) ListLinesWithoutVehicle(ctx context.Context, limit int) ([]repository.LegacyLine, error) {
	rows, err := r.q.Query(ctx, `
		SELECT l.id, l.invoice_id, i.company_id, l.description
		FROM invoice_lines l JOIN invoices i ON i.id = l.invoice_id
		WHERE l.vehicle_id IS NULL AND l.description <> ''
		ORDER BY i.created_at, l.position
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list legacy lines: %w", err)
	}
	defer rows.Close()
	var out []repository.LegacyLine
	for rows.Next() {
		var l repository.LegacyLine
		if err := rows.Scan(&l.LineID, &l.InvoiceID, &l.CompanyID, &l.Description); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// SetLineVehicle enlaza la línea con el vehículo (solo si seguía sin enlazar).
func (r *InvoiceRepo) SetLineVehicle(ctx context.Context, lineID, vehicleID string) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE invoice_lines SET vehicle_id = $2 WHERE id = $1 AND vehicle_id IS NULL`, lineID, vehicleID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("vehículo %s ya enlazado: %w", vehicleID, domain.ErrDuplicate)
		}
		return fmt.Errorf("set line vehicle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
