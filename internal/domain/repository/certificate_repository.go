package repository

import (
	"context"

	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
)

// CertificateBindingRepository una asociación activa por empresa (la última gana).
type CertificateBindingRepository interface {
	Upsert(ctx context.Context, b *entity.CertificateBinding) error
	GetByCompany(ctx context.Context, companyID string) (*entity.CertificateBinding, error)
}

// SignatureArtifactRepository almacén append-only de firmas. Append nunca sobrescribe:
// una clave (hash, instante) repetida devuelve domain.ErrDuplicate.
type SignatureArtifactRepository interface {
	Append(ctx context.Context, a *entity.SignatureArtifact) error
	ListByHash(ctx context.Context, documentHash string) ([]*entity.SignatureArtifact, error)
	List(ctx context.Context) ([]*entity.SignatureArtifact, error)
}
