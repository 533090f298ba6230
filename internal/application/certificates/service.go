// Package certificates vincula certificados de identidad a empresas y firma
// documentos con el certificado vinculado.
package certificates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jhoicas/Concesionario-api/internal/application/dto"
	"github.com/jhoicas/Concesionario-api/internal/domain"
	"github.com/jhoicas/Concesionario-api/internal/domain/certificate"
	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
	"github.com/jhoicas/Concesionario-api/internal/domain/repository"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/audit"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/certstore"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/signature"
	"github.com/jhoicas/Concesionario-api/pkg/logger"
)

// TierDevelopment nivel registrado en las firmas hechas con el certificado de desarrollo.
const TierDevelopment = "development"

// Registry certificados disponibles en el host.
type Registry interface {
	Discover(ctx context.Context) []entity.CertificateDescriptor
	Refresh(ctx context.Context) []entity.CertificateDescriptor
	Lookup(ctx context.Context, serial string) (*certstore.Entry, bool)
}

var _ Registry = (*certstore.Registry)(nil)

// Service casos de uso de certificados: listado, ranking, vinculación y firma.
type Service struct {
	registry  Registry
	companies repository.CompanyRepository
	bindings  repository.CertificateBindingRepository
	engine    *signature.Engine
	dev       signature.KeyCustody
	audit     *audit.Recorder
	log       *logger.Logger
	now       func() time.Time
}

// NewService construye el servicio. dev es la custodia de respaldo para empresas
// sin certificado vinculado; puede ser nil (entonces la firma falla con ErrNoCertificate).
func NewService(
	registry Registry,
	companies repository.CompanyRepository,
	bindings repository.CertificateBindingRepository,
	engine *signature.Engine,
	dev signature.KeyCustody,
	recorder *audit.Recorder,
	log *logger.Logger,
) *Service {
	return &Service{
		registry:  registry,
		companies: companies,
		bindings:  bindings,
		engine:    engine,
		dev:       dev,
		audit:     recorder,
		log:       log.Component("certificates"),
		now:       time.Now,
	}
}

// List certificados descubiertos (caché del registro).
func (s *Service) List(ctx context.Context) []dto.CertificateResponse {
	return s.describe(s.registry.Discover(ctx))
}

// Refresh fuerza un nuevo descubrimiento.
func (s *Service) Refresh(ctx context.Context) []dto.CertificateResponse {
	return s.describe(s.registry.Refresh(ctx))
}

// Rank candidatos de la empresa ordenados por compatibilidad.
func (s *Service) Rank(ctx context.Context, companyID string) ([]dto.RankedCertificateResponse, error) {
	company, err := s.company(ctx, companyID)
	if err != nil {
		return nil, err
	}
	candidates, err := s.candidates(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	ranked := certificate.Rank(candidates, company, now)
	out := make([]dto.RankedCertificateResponse, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, toRanked(r, now))
	}
	return out, nil
}

// Recommend candidato recomendado (nivel high y vigente) con caducidad más lejana.
func (s *Service) Recommend(ctx context.Context, companyID string) (*dto.RankedCertificateResponse, error) {
	company, err := s.company(ctx, companyID)
	if err != nil {
		return nil, err
	}
	candidates, err := s.candidates(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	r := certificate.Recommend(candidates, company, now)
	if r == nil {
		return nil, fmt.Errorf("ningún certificado recomendado para la empresa %s: %w", companyID, domain.ErrNotFound)
	}
	resp := toRanked(*r, now)
	return &resp, nil
}

// Bind vincula el certificado a la empresa sustituyendo el vínculo anterior.
// Exige que el certificado exista en el host y sea al menos de nivel low.
func (s *Service) Bind(ctx context.Context, actor, companyID, serial string) (*dto.BindingResponse, error) {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return nil, domain.NewValidationError(domain.CodeCertificateNotFound, "numero_serie", "número de serie obligatorio")
	}
	company, err := s.company(ctx, companyID)
	if err != nil {
		return nil, err
	}

	entry, ok := s.registry.Lookup(ctx, serial)
	if !ok {
		s.registry.Refresh(ctx)
		entry, ok = s.registry.Lookup(ctx, serial)
	}
	if !ok {
		return nil, domain.NewValidationError(domain.CodeCertificateNotFound, "numero_serie",
			fmt.Sprintf("certificado %s no encontrado en el almacén", serial))
	}

	comp := certificate.Evaluate(entry.Descriptor, company, s.now())
	if !comp.Tier.AtLeast(certificate.TierLow) {
		return nil, domain.NewValidationError(domain.CodeCertificateIncompatible, "numero_serie", comp.Reason)
	}

	before, err := s.bindings.GetByCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	b := &entity.CertificateBinding{
		CompanyID:         companyID,
		CertificateSerial: entry.Descriptor.Serial,
		Tier:              string(comp.Tier),
		BoundAt:           s.now().UTC(),
		BoundBy:           actor,
	}
	if err := s.bindings.Upsert(ctx, b); err != nil {
		return nil, fmt.Errorf("guardar vínculo: %w", err)
	}
	s.audit.Record(ctx, audit.EntityCertificateBinding, companyID, audit.OpBind, before, b, actor)
	s.log.Info().
		Str("company_id", companyID).
		Str("serial", b.CertificateSerial).
		Str("tier", b.Tier).
		Msg("certificado vinculado")

	resp := toBinding(b)
	resp.Reason = comp.Reason
	return &resp, nil
}

// Binding vínculo activo de la empresa.
func (s *Service) Binding(ctx context.Context, companyID string) (*dto.BindingResponse, error) {
	b, err := s.bindings.GetByCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("la empresa %s no tiene certificado vinculado: %w", companyID, domain.ErrNotFound)
	}
	resp := toBinding(b)
	return &resp, nil
}

// CustodyFor custodia de firma de la empresa. El vínculo se consulta en cada
// llamada; si no hay vínculo o el certificado no está disponible con su clave
// se usa el certificado de desarrollo.
func (s *Service) CustodyFor(ctx context.Context, companyID string) (signature.KeyCustody, entity.BindingRef, error) {
	b, err := s.bindings.GetByCompany(ctx, companyID)
	if err != nil {
		return nil, entity.BindingRef{}, err
	}
	if b != nil {
		custody, err := s.boundCustody(ctx, b)
		if err == nil {
			return custody, entity.BindingRef{
				CompanyID:         companyID,
				CertificateSerial: b.CertificateSerial,
				Tier:              b.Tier,
			}, nil
		}
		s.log.Warn().Err(err).
			Str("company_id", companyID).
			Str("serial", b.CertificateSerial).
			Msg("certificado vinculado no utilizable; se usa el de desarrollo")
	}
	if s.dev == nil {
		return nil, entity.BindingRef{}, domain.ErrNoCertificate
	}
	return s.dev, entity.BindingRef{
		CompanyID:         companyID,
		CertificateSerial: certstore.SerialOf(s.dev.Certificate()),
		Tier:              TierDevelopment,
		Development:       true,
	}, nil
}

func (s *Service) boundCustody(ctx context.Context, b *entity.CertificateBinding) (signature.KeyCustody, error) {
	entry, ok := s.registry.Lookup(ctx, b.CertificateSerial)
	if !ok {
		return nil, fmt.Errorf("certificado %s no presente en el host", b.CertificateSerial)
	}
	if entry.Key == nil {
		return nil, errors.New("el certificado no tiene clave privada disponible")
	}
	if !entry.Descriptor.IsValidAt(s.now()) {
		return nil, errors.New("el certificado no está vigente")
	}
	return signature.NewFileCustody(entry.Cert, entry.Key)
}

// SignDocument firma doc con la custodia de la empresa y guarda el artefacto.
func (s *Service) SignDocument(ctx context.Context, actor, companyID string, doc []byte, invoiceID string) (*entity.SignatureArtifact, error) {
	if _, err := s.company(ctx, companyID); err != nil {
		return nil, err
	}
	custody, ref, err := s.CustodyFor(ctx, companyID)
	if err != nil {
		return nil, err
	}
	artifact, err := s.engine.Sign(ctx, doc, custody, ref, invoiceID)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.EntitySignature, artifact.DocumentHash, audit.OpSign, nil, map[string]any{
		"empresa_id":  companyID,
		"algoritmo":   artifact.Algorithm,
		"certificado": artifact.Certificate.Serial,
		"desarrollo":  ref.Development,
		"factura_id":  invoiceID,
	}, actor)
	return artifact, nil
}

// LatestSignature artefacto más reciente para la huella, o nil.
func (s *Service) LatestSignature(ctx context.Context, documentHash string) (*entity.SignatureArtifact, error) {
	return s.engine.Latest(ctx, documentHash)
}

// VerifyDocument comprueba el artefacto contra el documento.
func (s *Service) VerifyDocument(artifact *entity.SignatureArtifact, doc []byte) dto.VerifySignatureResponse {
	if artifact == nil {
		return dto.VerifySignatureResponse{Reason: "artefacto vacío"}
	}
	r := s.engine.Verify(artifact, doc)
	return dto.VerifySignatureResponse{
		Valid:        r.Valid,
		Reason:       r.Reason,
		ArtifactHash: r.ArtifactHash,
		DocumentHash: r.DocumentHash,
	}
}

// candidatos: certificados del host más los de firmas anteriores (no de desarrollo).
func (s *Service) candidates(ctx context.Context) ([]entity.CertificateDescriptor, error) {
	out := s.registry.Discover(ctx)
	artifacts, err := s.engine.Artifacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("leer artefactos de firma: %w", err)
	}
	for _, a := range artifacts {
		if a.Binding.Development || a.Certificate.Serial == "" {
			continue
		}
		out = append(out, signature.DescriptorFromSnapshot(a.Certificate))
	}
	return out, nil
}

func (s *Service) company(ctx context.Context, companyID string) (*entity.Company, error) {
	if companyID == "" {
		return nil, domain.NewValidationError(domain.CodeMissingCompany, "empresa_id", "empresa obligatoria")
	}
	c, err := s.companies.GetByID(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("empresa %s: %w", companyID, domain.ErrNotFound)
	}
	return c, nil
}

func (s *Service) describe(certs []entity.CertificateDescriptor) []dto.CertificateResponse {
	now := s.now()
	out := make([]dto.CertificateResponse, 0, len(certs))
	for _, c := range certs {
		out = append(out, toCertificate(c, now))
	}
	return out
}

func toCertificate(c entity.CertificateDescriptor, now time.Time) dto.CertificateResponse {
	return dto.CertificateResponse{
		Serial:      c.Serial,
		SubjectCN:   c.SubjectCN,
		Issuer:      c.Issuer,
		NotBefore:   c.NotBefore,
		NotAfter:    c.NotAfter,
		HasKey:      c.HasPrivateKey,
		TaxID:       c.TaxID,
		TaxIDValid:  c.TaxIDValid,
		Valid:       c.IsValidAt(now),
		Source:      c.Source,
		Fingerprint: c.Fingerprint,
	}
}

func toRanked(r certificate.Ranked, now time.Time) dto.RankedCertificateResponse {
	return dto.RankedCertificateResponse{
		CertificateResponse: toCertificate(r.Certificate, now),
		Tier:                string(r.Compatibility.Tier),
		Reason:              r.Compatibility.Reason,
		Recommended:         r.Recommended,
	}
}

func toBinding(b *entity.CertificateBinding) dto.BindingResponse {
	return dto.BindingResponse{
		CompanyID: b.CompanyID,
		Serial:    b.CertificateSerial,
		Tier:      b.Tier,
		BoundAt:   b.BoundAt,
		BoundBy:   b.BoundBy,
	}
}
