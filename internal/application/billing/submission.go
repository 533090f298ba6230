package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jhoicas/Concesionario-api/internal/application/dto"
	"github.com/jhoicas/Concesionario-api/internal/domain"
	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
	"github.com/jhoicas/Concesionario-api/internal/domain/repository"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/aeat"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/audit"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/cache"
	"github.com/jhoicas/Concesionario-api/pkg/logger"
)

// SubmissionService genera el registro de alta de una factura emitida, lo firma
// (XAdES) y lo envía a la autoridad tributaria.
type SubmissionService struct {
	invoiceRepo  repository.InvoiceRepository
	companyRepo  repository.CompanyRepository
	customerRepo repository.CustomerRepository
	builder      *aeat.XMLBuilder
	validator    *aeat.Validator
	xades        *aeat.XAdESSigner
	submitter    aeat.Submitter
	custody      CustodyProvider
	cache        cache.Invalidator
	audit        *audit.Recorder
	log          *logger.Logger
	now          func() time.Time
}

// NewSubmissionService construye el caso de uso. submitter debería ir envuelto
// en aeat.RetryingSubmitter (timeout y reintentos acotados).
func NewSubmissionService(
	invoiceRepo repository.InvoiceRepository,
	companyRepo repository.CompanyRepository,
	customerRepo repository.CustomerRepository,
	builder *aeat.XMLBuilder,
	validator *aeat.Validator,
	xades *aeat.XAdESSigner,
	submitter aeat.Submitter,
	custody CustodyProvider,
	cacheInv cache.Invalidator,
	recorder *audit.Recorder,
	log *logger.Logger,
) *SubmissionService {
	if cacheInv == nil {
		cacheInv = cache.NopInvalidator{}
	}
	return &SubmissionService{
		invoiceRepo:  invoiceRepo,
		companyRepo:  companyRepo,
		customerRepo: customerRepo,
		builder:      builder,
		validator:    validator,
		xades:        xades,
		submitter:    submitter,
		custody:      custody,
		cache:        cacheInv,
		audit:        recorder,
		log:          log.Component("aeat"),
		now:          time.Now,
	}
}

// FiscalXML XML sin firmar y su validación estructural.
func (s *SubmissionService) FiscalXML(ctx context.Context, invoiceID string) (*dto.FiscalXMLResponse, error) {
	inv, xmlBytes, err := s.build(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	v := s.validator.Validate(xmlBytes)
	return &dto.FiscalXMLResponse{
		XML:        string(xmlBytes),
		Validation: dto.XMLValidation{Valid: v.Valid, Errors: v.Errors},
		InvoiceID:  inv.ID,
		Serial:     inv.Serial,
	}, nil
}

// Submit valida, firma y envía el registro. Idempotente: una factura ya enviada
// devuelve la respuesta guardada sin volver a enviar.
func (s *SubmissionService) Submit(ctx context.Context, actor, invoiceID string) (*dto.SubmitResponse, error) {
	inv, xmlBytes, err := s.build(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.FiscalStatus == entity.FiscalStatusSubmitted && len(inv.AuthorityResponse) > 0 {
		var stored entity.FiscalSubmissionResult
		if err := json.Unmarshal(inv.AuthorityResponse, &stored); err != nil {
			return nil, fmt.Errorf("respuesta guardada ilegible: %w", err)
		}
		return &dto.SubmitResponse{
			InvoiceID:         inv.ID,
			AuthorityResponse: &stored,
			SubmittedXML:      inv.SubmittedXML,
			FiscalStatus:      inv.FiscalStatus,
		}, nil
	}

	// 1. Validación estructural
	if v := s.validator.Validate(xmlBytes); !v.Valid {
		s.fail(ctx, actor, inv, string(xmlBytes), v.Errors)
		return nil, &domain.FiscalValidationError{Errors: v.Errors}
	}

	// 2. Firma XAdES con la custodia de la empresa
	custody, ref, err := s.custody.CustodyFor(ctx, inv.CompanyID)
	if err != nil {
		return nil, err
	}
	signed, err := s.xades.Sign(ctx, xmlBytes, custody)
	if err != nil {
		s.fail(ctx, actor, inv, string(xmlBytes), []string{err.Error()})
		return nil, fmt.Errorf("firmar registro fiscal: %w", err)
	}

	// 3. Envío
	result, err := s.submitter.Submit(ctx, inv.Serial, signed)
	if err != nil {
		s.fail(ctx, actor, inv, string(signed), []string{err.Error()})
		return nil, fmt.Errorf("enviar registro fiscal: %w", err)
	}

	status := entity.FiscalStatusSubmitted
	if !result.Accepted {
		status = entity.FiscalStatusError
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	if err := s.invoiceRepo.SetFiscalResult(ctx, inv.ID, status, string(signed), raw, s.now().UTC()); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.EntityInvoice, inv.ID, audit.OpSubmit,
		map[string]string{"estado_fiscal": inv.FiscalStatus},
		map[string]any{
			"estado_fiscal": status,
			"codigo":        result.Code,
			"csv":           result.CSV,
			"intentos":      result.Attempts,
			"certificado":   ref.CertificateSerial,
			"desarrollo":    ref.Development,
		}, actor)
	s.cache.Invalidate(ctx, cache.PatternInvoices)
	s.log.Info().
		Str("invoice_id", inv.ID).
		Str("serial", inv.Serial).
		Str("status", status).
		Str("code", result.Code).
		Msg("registro fiscal enviado")

	return &dto.SubmitResponse{
		InvoiceID:         inv.ID,
		AuthorityResponse: result,
		SubmittedXML:      string(signed),
		FiscalStatus:      status,
	}, nil
}

// fail deja constancia del error en la factura sin tocar su contenido fiscal.
func (s *SubmissionService) fail(ctx context.Context, actor string, inv *entity.Invoice, xml string, errs []string) {
	if err := s.invoiceRepo.SetFiscalResult(ctx, inv.ID, entity.FiscalStatusError, xml, nil, s.now().UTC()); err != nil {
		s.log.Warn().Err(err).Str("invoice_id", inv.ID).Msg("no se pudo guardar el error de envío")
	}
	s.audit.Record(ctx, audit.EntityInvoice, inv.ID, audit.OpSubmit,
		map[string]string{"estado_fiscal": inv.FiscalStatus},
		map[string]any{"estado_fiscal": entity.FiscalStatusError, "errores": errs}, actor)
	s.log.Warn().Str("invoice_id", inv.ID).Strs("errors", errs).Msg("registro fiscal no enviado")
}

func (s *SubmissionService) build(ctx context.Context, invoiceID string) (*entity.Invoice, []byte, error) {
	inv, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, nil, err
	}
	if inv == nil {
		return nil, nil, fmt.Errorf("factura %s: %w", invoiceID, domain.ErrNotFound)
	}
	company, err := s.companyRepo.GetByID(ctx, inv.CompanyID)
	if err != nil {
		return nil, nil, err
	}
	if company == nil {
		return nil, nil, fmt.Errorf("empresa %s: %w", inv.CompanyID, domain.ErrNotFound)
	}
	var customer *entity.Customer
	if inv.CustomerID != "" {
		if customer, err = s.customerRepo.GetByID(ctx, inv.CustomerID); err != nil {
			return nil, nil, err
		}
	}
	xmlBytes, err := s.builder.Build(aeat.BuildInput{Invoice: inv, Company: company, Customer: customer})
	if err != nil {
		return nil, nil, err
	}
	return inv, xmlBytes, nil
}
