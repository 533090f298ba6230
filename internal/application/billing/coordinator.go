// Package billing orquesta la emisión de facturas: validación, numeración,
// integridad fiscal, inventario, proformas y firma.
package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/Concesionario-api/internal/application/dto"
	"github.com/jhoicas/Concesionario-api/internal/domain"
	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
	"github.com/jhoicas/Concesionario-api/internal/domain/fiscal"
	"github.com/jhoicas/Concesionario-api/internal/domain/repository"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/audit"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/cache"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/metrics"
	aeatcat "github.com/jhoicas/Concesionario-api/pkg/aeat"
	"github.com/jhoicas/Concesionario-api/pkg/logger"
)

// maxAllocationAttempts reintentos de la transacción ante número o serie duplicados.
const maxAllocationAttempts = 5

const dateLayout = "2006-01-02"

// Coordinator punto de entrada de la emisión y de las operaciones posteriores
// sobre la factura (firma, transiciones de estado, consultas).
type Coordinator struct {
	companyRepo  repository.CompanyRepository
	customerRepo repository.CustomerRepository
	vehicleRepo  repository.VehicleRepository
	proformaRepo repository.ProformaRepository
	invoiceRepo  repository.InvoiceRepository
	txRunner     repository.IssuanceTxRunner
	fiscal       *fiscal.Engine
	signer       DocumentSigner
	cache        cache.Invalidator
	audit        *audit.Recorder
	metrics      *metrics.Metrics
	log          *logger.Logger
}

// NewCoordinator construye el coordinador. cacheInv y m pueden ser nil.
func NewCoordinator(
	companyRepo repository.CompanyRepository,
	customerRepo repository.CustomerRepository,
	vehicleRepo repository.VehicleRepository,
	proformaRepo repository.ProformaRepository,
	invoiceRepo repository.InvoiceRepository,
	txRunner repository.IssuanceTxRunner,
	fiscalEngine *fiscal.Engine,
	signer DocumentSigner,
	cacheInv cache.Invalidator,
	recorder *audit.Recorder,
	m *metrics.Metrics,
	log *logger.Logger,
) *Coordinator {
	if cacheInv == nil {
		cacheInv = cache.NopInvalidator{}
	}
	return &Coordinator{
		companyRepo:  companyRepo,
		customerRepo: customerRepo,
		vehicleRepo:  vehicleRepo,
		proformaRepo: proformaRepo,
		invoiceRepo:  invoiceRepo,
		txRunner:     txRunner,
		fiscal:       fiscalEngine,
		signer:       signer,
		cache:        cacheInv,
		audit:        recorder,
		metrics:      m,
		log:          log.Component("billing"),
	}
}

// IssueInvoice emite la factura. Los rechazos de validación ocurren antes de
// cualquier escritura. Cabecera, líneas, inventario y proformas se confirman en
// una sola transacción; la firma va después y, si falla, la factura queda
// emitida sin firmar (se reintenta con RetrySign).
func (c *Coordinator) IssueInvoice(ctx context.Context, actor string, req dto.CreateInvoiceRequest) (*dto.IssueInvoiceResponse, error) {
	start := time.Now()
	resp, err := c.issue(ctx, actor, req)
	c.metrics.ObserveIssuance(outcome(err), time.Since(start))
	return resp, err
}

func (c *Coordinator) issue(ctx context.Context, actor string, req dto.CreateInvoiceRequest) (*dto.IssueInvoiceResponse, error) {
	// 1. Validación (sin efectos)
	tpl, err := c.validate(ctx, req)
	if err != nil {
		return nil, err
	}

	// 2-6. Numeración, sellado, persistencia, inventario y proformas
	var inv *entity.Invoice
	for attempt := 1; ; attempt++ {
		inv = tpl.instance(actor)
		err = c.txRunner.RunIssuance(ctx, func(
			invoiceRepo repository.InvoiceRepository,
			vehicleRepo repository.VehicleRepository,
			productRepo repository.ProductRepository,
			proformaRepo repository.ProformaRepository,
		) error {
			return c.persist(ctx, inv, invoiceRepo, vehicleRepo, productRepo, proformaRepo)
		})
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrDuplicate) {
			return nil, err
		}
		if tpl.clientNumber {
			return nil, domain.NewValidationError(domain.CodeDuplicateInvoiceNumber, "numero_factura",
				fmt.Sprintf("el número %s ya existe para la empresa", inv.Number))
		}
		if attempt >= maxAllocationAttempts {
			return nil, fmt.Errorf("asignar número de factura tras %d intentos: %w", attempt, err)
		}
		c.log.Warn().Err(err).Int("attempt", attempt).Str("company_id", inv.CompanyID).
			Msg("colisión de número o serie; se reintenta la emisión")
	}

	c.log.Info().
		Str("invoice_id", inv.ID).
		Str("number", inv.Number).
		Str("serial", inv.Serial).
		Str("company_id", inv.CompanyID).
		Msg("factura emitida")
	c.audit.Record(ctx, audit.EntityInvoice, inv.ID, audit.OpCreate, nil, auditView(inv), actor)

	resp := &dto.IssueInvoiceResponse{
		ID:           inv.ID,
		Number:       inv.Number,
		Serial:       inv.Serial,
		DocumentHash: inv.DocumentHash,
		Seal:         fiscal.FormatSeal(inv.SealedAt),
		FiscalCode:   inv.FiscalCode,
		Total:        inv.Total,
	}

	// 7. Firma
	if _, err := c.sign(ctx, actor, inv); err != nil {
		resp.SignatureError = err.Error()
	} else {
		resp.Signed = true
	}

	// 8. Cachés de listados
	c.cache.Invalidate(ctx, cache.PatternInvoices, cache.PatternProformas)
	return resp, nil
}

// persist ejecuta los pasos transaccionales. Cualquier error deshace todo.
func (c *Coordinator) persist(
	ctx context.Context,
	inv *entity.Invoice,
	invoiceRepo repository.InvoiceRepository,
	vehicleRepo repository.VehicleRepository,
	productRepo repository.ProductRepository,
	proformaRepo repository.ProformaRepository,
) error {
	if inv.Number == "" {
		number, err := nextFreeNumber(ctx, invoiceRepo, inv.CompanyID, inv.Year)
		if err != nil {
			return err
		}
		inv.Number = number
	}

	inv.Serial = c.fiscal.AllocateSerial(inv.CompanyID, inv.Number)
	seal := c.fiscal.Seal()
	inv.SealedAt = seal
	inv.CreatedAt = seal
	inv.UpdatedAt = seal
	inv.DocumentHash = c.fiscal.Hash(fiscal.PayloadFromInvoice(inv), seal)
	inv.FiscalCode = c.fiscal.FiscalCode(inv.Serial, inv.DocumentHash, seal)

	if err := invoiceRepo.Create(ctx, inv); err != nil {
		return err
	}

	for _, vehicleID := range inv.VehicleIDs() {
		if err := vehicleRepo.Deactivate(ctx, vehicleID, inv.ID, seal); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return domain.NewValidationError(domain.CodeVehicleAlreadyInvoiced, "productos",
					fmt.Sprintf("el vehículo %s ya fue facturado", vehicleID))
			}
			return fmt.Errorf("desactivar vehículo %s: %w", vehicleID, err)
		}
		if _, err := productRepo.DeactivateByVehicle(ctx, vehicleID, seal); err != nil {
			return fmt.Errorf("desactivar catálogo del vehículo %s: %w", vehicleID, err)
		}
	}

	return reconcileProformas(ctx, inv, invoiceRepo, proformaRepo, seal)
}

// nextFreeNumber toma el siguiente valor del contador saltando los números
// ya usados a mano por la empresa.
func nextFreeNumber(ctx context.Context, invoiceRepo repository.InvoiceRepository, companyID string, year int) (string, error) {
	for {
		seq, err := invoiceRepo.NextNumber(ctx, companyID, year)
		if err != nil {
			return "", err
		}
		number := fiscal.FormatNumber(year, seq)
		exists, err := invoiceRepo.NumberExists(ctx, companyID, year, number)
		if err != nil {
			return "", err
		}
		if !exists {
			return number, nil
		}
	}
}

// reconcileProformas recalcula el estado de cada proforma que comparte vehículos
// con la factura (y de la referenciada por proforma_id) y anota el cambio.
func reconcileProformas(
	ctx context.Context,
	inv *entity.Invoice,
	invoiceRepo repository.InvoiceRepository,
	proformaRepo repository.ProformaRepository,
	at time.Time,
) error {
	var proformas []*entity.Proforma
	if vehicleIDs := inv.VehicleIDs(); len(vehicleIDs) > 0 {
		list, err := proformaRepo.ListByVehicleIDs(ctx, vehicleIDs)
		if err != nil {
			return fmt.Errorf("proformas de los vehículos: %w", err)
		}
		proformas = list
	}
	if inv.ProformaID != "" && !containsProforma(proformas, inv.ProformaID) {
		p, err := proformaRepo.GetByID(ctx, inv.ProformaID)
		if err != nil {
			return err
		}
		if p != nil {
			proformas = append(proformas, p)
		}
	}

	for _, p := range proformas {
		if p.State == entity.ProformaStateAnnulled {
			continue
		}
		invoiced, err := invoiceRepo.InvoicedVehicleIDs(ctx, p.VehicleIDs)
		if err != nil {
			return fmt.Errorf("vehículos facturados de la proforma %s: %w", p.ID, err)
		}
		state := entity.ProformaStateFor(len(invoiced), len(p.VehicleIDs))
		if state == entity.ProformaStateOpen {
			continue
		}
		note := fmt.Sprintf("%s factura %s: %d de %d vehículos facturados (%s)",
			at.Format(dateLayout), inv.Number, len(invoiced), len(p.VehicleIDs), state)
		if err := proformaRepo.UpdateState(ctx, p.ID, state, note, at); err != nil {
			return fmt.Errorf("actualizar proforma %s: %w", p.ID, err)
		}
	}
	return nil
}

func containsProforma(list []*entity.Proforma, id string) bool {
	for _, p := range list {
		if p.ID == id {
			return true
		}
	}
	return false
}

// invoiceTemplate datos validados de la petición; cada intento de emisión crea
// una instancia nueva con ids propios.
type invoiceTemplate struct {
	invoice      entity.Invoice
	clientNumber bool
}

func (t *invoiceTemplate) instance(actor string) *entity.Invoice {
	inv := t.invoice
	inv.ID = uuid.NewString()
	inv.CreatedBy = actor
	inv.Lines = make([]entity.InvoiceLine, len(t.invoice.Lines))
	for i, l := range t.invoice.Lines {
		l.ID = uuid.NewString()
		l.InvoiceID = inv.ID
		inv.Lines[i] = l
	}
	return &inv
}

// validate comprueba referencias, fechas, líneas y totales.
func (c *Coordinator) validate(ctx context.Context, req dto.CreateInvoiceRequest) (*invoiceTemplate, error) {
	companyID := strings.TrimSpace(req.CompanyID)
	if companyID == "" {
		return nil, domain.NewValidationError(domain.CodeMissingCompany, "empresa_id", "empresa obligatoria")
	}
	company, err := c.companyRepo.GetByID(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, domain.NewValidationError(domain.CodeCompanyNotFound, "empresa_id",
			fmt.Sprintf("empresa %s no encontrada", companyID))
	}

	if req.CustomerID != "" {
		customer, err := c.customerRepo.GetByID(ctx, req.CustomerID)
		if err != nil {
			return nil, err
		}
		if customer == nil || customer.CompanyID != companyID {
			return nil, domain.NewValidationError(domain.CodeCustomerNotFound, "cliente_id",
				fmt.Sprintf("cliente %s no encontrado", req.CustomerID))
		}
	}

	if req.ProformaID != "" {
		p, err := c.proformaRepo.GetByID(ctx, req.ProformaID)
		if err != nil {
			return nil, err
		}
		if p == nil || p.CompanyID != companyID {
			return nil, domain.NewValidationError(domain.CodeProformaNotFound, "proforma_id",
				fmt.Sprintf("proforma %s no encontrada", req.ProformaID))
		}
	}

	emission, err := parseDate(req.EmissionDate, "fecha_emision", true)
	if err != nil {
		return nil, err
	}
	operation := emission
	if req.OperationDate != "" {
		if operation, err = parseDate(req.OperationDate, "fecha_operacion", true); err != nil {
			return nil, err
		}
	}
	var due *time.Time
	if req.DueDate != "" {
		d, err := parseDate(req.DueDate, "fecha_vencimiento", true)
		if err != nil {
			return nil, err
		}
		if d.Before(emission) {
			return nil, domain.NewValidationError(domain.CodeInvalidDate, "fecha_vencimiento",
				"el vencimiento no puede ser anterior a la emisión")
		}
		due = &d
	}

	docType := strings.ToUpper(strings.TrimSpace(req.DocumentType))
	if docType == "" {
		docType = aeatcat.TipoFacturaCompleta
	}
	if !aeatcat.ValidTipoFactura[docType] {
		return nil, domain.NewValidationError(domain.CodeInvalidField, "tipo_documento",
			fmt.Sprintf("tipo de documento %q no reconocido", req.DocumentType))
	}
	paymentMethod := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if paymentMethod != "" && !aeatcat.ValidMetodoPago[paymentMethod] {
		return nil, domain.NewValidationError(domain.CodeInvalidField, "metodo_pago",
			fmt.Sprintf("método de pago %q no reconocido", req.PaymentMethod))
	}

	inv := entity.Invoice{
		CompanyID:     companyID,
		CustomerID:    req.CustomerID,
		ProformaID:    req.ProformaID,
		Number:        strings.TrimSpace(req.Number),
		Year:          emission.Year(),
		DocumentType:  docType,
		PaymentMethod: paymentMethod,
		OperationRef:  req.OperationRef,
		Notes:         req.Notes,
		EmissionDate:  emission,
		OperationDate: operation,
		DueDate:       due,
		Subtotal:      req.Subtotal,
		Tax:           req.Tax,
		Total:         req.Total,
		PaymentStatus: entity.PaymentStatusPending,
		FiscalStatus:  entity.FiscalStatusPending,
	}

	for _, a := range []struct {
		field string
		value decimal.Decimal
	}{{"subtotal", inv.Subtotal}, {"igic", inv.Tax}, {"total", inv.Total}} {
		if !isCents(a.value) {
			return nil, domain.NewValidationError(domain.CodeInvalidField, a.field, "importe con más de 2 decimales")
		}
	}

	lines, err := c.validateLines(ctx, companyID, req.Lines)
	if err != nil {
		return nil, err
	}
	inv.Lines = lines
	if err := fiscal.ValidateTotals(&inv); err != nil {
		return nil, err
	}

	if inv.Number != "" {
		exists, err := c.invoiceRepo.NumberExists(ctx, companyID, inv.Year, inv.Number)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, domain.NewValidationError(domain.CodeDuplicateInvoiceNumber, "numero_factura",
				fmt.Sprintf("el número %s ya existe para la empresa", inv.Number))
		}
	}
	return &invoiceTemplate{invoice: inv, clientNumber: inv.Number != ""}, nil
}

func (c *Coordinator) validateLines(ctx context.Context, companyID string, in []dto.InvoiceLineRequest) ([]entity.InvoiceLine, error) {
	lines := make([]entity.InvoiceLine, 0, len(in))
	seen := make(map[string]bool, len(in))
	for i, l := range in {
		field := fmt.Sprintf("productos[%d].coche_id", i)
		line := entity.InvoiceLine{
			Position:    i + 1,
			ProductID:   l.ProductID,
			VehicleID:   strings.TrimSpace(l.VehicleID),
			Description: strings.TrimSpace(l.Description),
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			Tax:         l.Tax,
			Subtotal:    l.Subtotal,
			Total:       l.Total,
			TaxType:     strings.ToLower(strings.TrimSpace(l.TaxType)),
		}
		if line.TaxType == "" {
			line.TaxType = "igic"
		}
		for _, a := range []struct {
			field string
			value decimal.Decimal
		}{
			{"cantidad", line.Quantity}, {"precio_unitario", line.UnitPrice},
			{"igic", line.Tax}, {"subtotal", line.Subtotal}, {"total", line.Total},
		} {
			if !isCents(a.value) {
				return nil, domain.NewValidationError(domain.CodeInvalidLine, fmt.Sprintf("productos[%d].%s", i, a.field),
					"importe con más de 2 decimales")
			}
		}
		if aeatcat.TaxTypeCode(line.TaxType) == aeatcat.ImpuestoOtros {
			return nil, domain.NewValidationError(domain.CodeInvalidLine, fmt.Sprintf("productos[%d].tipo_impuesto", i),
				fmt.Sprintf("tipo de impuesto %q no reconocido", l.TaxType))
		}

		if line.VehicleID != "" {
			if seen[line.VehicleID] {
				return nil, domain.NewValidationError(domain.CodeInvalidLine, field, "vehículo repetido en la factura")
			}
			seen[line.VehicleID] = true

			v, err := c.vehicleRepo.GetByID(ctx, line.VehicleID)
			if err != nil {
				return nil, err
			}
			if v == nil || v.CompanyID != companyID {
				return nil, domain.NewValidationError(domain.CodeVehicleNotFound, field,
					fmt.Sprintf("vehículo %s no encontrado", line.VehicleID))
			}
			if !v.Active {
				return nil, domain.NewValidationError(domain.CodeVehicleAlreadyInvoiced, field,
					fmt.Sprintf("el vehículo %s ya fue facturado", line.VehicleID))
			}
			if line.Description == "" {
				line.Description = strings.TrimSpace(fmt.Sprintf("%s %s %s", v.Brand, v.Model, v.Plate))
			}
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// isCents la huella representa cada importe con 2 decimales; más precisión
// daría la misma huella a facturas distintas.
func isCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}

// parseDate admite 2006-01-02 o RFC3339; se guarda solo el día (UTC).
func parseDate(s, field string, required bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		if required {
			return time.Time{}, domain.NewValidationError(domain.CodeInvalidDate, field, "fecha obligatoria")
		}
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
	}
	if err != nil {
		return time.Time{}, domain.NewValidationError(domain.CodeInvalidDate, field,
			fmt.Sprintf("fecha %q inválida (AAAA-MM-DD)", s))
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// outcome etiqueta de métricas.
func outcome(err error) string {
	var verr *domain.ValidationError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &verr):
		return "validation"
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrDuplicate):
		return "conflict"
	default:
		return "error"
	}
}
