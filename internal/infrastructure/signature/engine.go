// Package signature firma y verifica documentos con un esquema asimétrico real
// y guarda cada firma como artefacto inmutable.
package signature

import (
	"context"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jhoicas/Concesionario-api/internal/domain"
	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
	"github.com/jhoicas/Concesionario-api/internal/domain/repository"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/certstore"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/metrics"
	"github.com/jhoicas/Concesionario-api/pkg/logger"
)

// Engine produce y verifica SignatureArtifact.
type Engine struct {
	store   repository.SignatureArtifactRepository
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// EngineOption configura el Engine.
type EngineOption func(*Engine)

// WithEngineMetrics cuenta las firmas producidas.
func WithEngineMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithEngineClock sustituye el reloj.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine crea el motor sobre el almacén append-only.
func NewEngine(store repository.SignatureArtifactRepository, log *logger.Logger, opts ...EngineOption) *Engine {
	e := &Engine{store: store, log: log.Component("signature"), now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Sign canonicaliza doc, firma su digest con la custodia y persiste el artefacto.
func (e *Engine) Sign(ctx context.Context, doc []byte, custody KeyCustody, binding entity.BindingRef, invoiceID string) (*entity.SignatureArtifact, error) {
	if custody == nil {
		return nil, domain.ErrNoCertificate
	}
	hash, digest, err := DocumentHash(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	sig, err := custody.Sign(ctx, digest)
	if err != nil {
		return nil, fmt.Errorf("firmar documento: %w", err)
	}

	artifact := &entity.SignatureArtifact{
		DocumentHash:   hash,
		SignedAt:       e.now().UTC(),
		Algorithm:      custody.Algorithm(),
		SignatureValue: base64.StdEncoding.EncodeToString(sig),
		Certificate:    Snapshot(custody.Certificate()),
		Binding:        binding,
		InvoiceID:      invoiceID,
	}

	// La clave del almacén es (hash, instante): dos firmas del mismo documento en el
	// mismo nanosegundo se separan avanzando el instante.
	for attempt := 0; ; attempt++ {
		err = e.store.Append(ctx, artifact)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrDuplicate) || attempt >= 3 {
			return nil, fmt.Errorf("guardar artefacto de firma: %w", err)
		}
		artifact.SignedAt = artifact.SignedAt.Add(time.Nanosecond)
	}

	e.metrics.IncSignature(artifact.Algorithm, binding.Development)
	e.log.Info().
		Str("document_hash", hash).
		Str("algorithm", artifact.Algorithm).
		Str("certificate", artifact.Certificate.Serial).
		Bool("development", binding.Development).
		Msg("documento firmado")
	return artifact, nil
}

// VerifyResult resultado de Verify. Con hashes distintos se informan ambos.
type VerifyResult struct {
	Valid        bool   `json:"valido"`
	Reason       string `json:"motivo,omitempty"`
	ArtifactHash string `json:"hash_artefacto"`
	DocumentHash string `json:"hash_documento,omitempty"`
}

// Verify recalcula la huella de doc y comprueba la firma del artefacto sobre ella.
func (e *Engine) Verify(artifact *entity.SignatureArtifact, doc []byte) VerifyResult {
	res := VerifyResult{ArtifactHash: artifact.DocumentHash}

	hash, digest, err := DocumentHash(doc)
	if err != nil {
		res.Reason = err.Error()
		return res
	}
	res.DocumentHash = hash
	if !strings.EqualFold(hash, artifact.DocumentHash) {
		res.Reason = fmt.Sprintf("la huella no coincide: artefacto %s, documento %s", artifact.DocumentHash, hash)
		return res
	}

	sig, err := base64.StdEncoding.Strict().DecodeString(artifact.SignatureValue)
	if err != nil || len(sig) == 0 {
		res.Reason = "formato de la firma inválido (se espera base64 estándar)"
		return res
	}
	cert, err := ParseSnapshot(artifact.Certificate)
	if err != nil {
		res.Reason = err.Error()
		return res
	}
	if err := VerifyDigest(cert.PublicKey, artifact.Algorithm, digest, sig); err != nil {
		res.Reason = err.Error()
		return res
	}
	res.Valid = true
	return res
}

// Latest artefacto más reciente para la huella, o nil.
func (e *Engine) Latest(ctx context.Context, documentHash string) (*entity.SignatureArtifact, error) {
	list, err := e.store.ListByHash(ctx, documentHash)
	if err != nil {
		return nil, err
	}
	var latest *entity.SignatureArtifact
	for _, a := range list {
		if latest == nil || a.SignedAt.After(latest.SignedAt) {
			latest = a
		}
	}
	return latest, nil
}

// Artifacts todos los artefactos del almacén.
func (e *Engine) Artifacts(ctx context.Context) ([]*entity.SignatureArtifact, error) {
	return e.store.List(ctx)
}

// Snapshot copia los datos del certificado (con el PEM) para guardarlos junto a la firma.
func Snapshot(cert *x509.Certificate) entity.CertificateSnapshot {
	if cert == nil {
		return entity.CertificateSnapshot{}
	}
	d := certstore.Describe(cert, true, "")
	return entity.CertificateSnapshot{
		Serial:         d.Serial,
		SubjectCN:      d.SubjectCN,
		Issuer:         d.Issuer,
		TaxID:          d.TaxID,
		NotBefore:      d.NotBefore,
		NotAfter:       d.NotAfter,
		CertificatePEM: string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})),
	}
}

// ParseSnapshot reconstruye el certificado de un snapshot.
func ParseSnapshot(s entity.CertificateSnapshot) (*x509.Certificate, error) {
	block, _ := pem.Decode([]byte(s.CertificatePEM))
	if block == nil {
		return nil, errors.New("el artefacto no contiene el certificado del firmante")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("certificado del firmante ilegible: %w", err)
	}
	return cert, nil
}

// DescriptorFromSnapshot descriptor equivalente a partir de un artefacto previo
// (candidatos para recomendar certificado). Sin clave privada: solo se conoce el público.
func DescriptorFromSnapshot(s entity.CertificateSnapshot) entity.CertificateDescriptor {
	return entity.CertificateDescriptor{
		Serial:    s.Serial,
		SubjectCN: s.SubjectCN,
		Issuer:    s.Issuer,
		NotBefore: s.NotBefore,
		NotAfter:  s.NotAfter,
		TaxID:     s.TaxID,
		Source:    "artefacto",
	}
}
