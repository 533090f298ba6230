package billing

import (
	"context"

	"github.com/jhoicas/Concesionario-api/internal/application/dto"
	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/signature"
)

// DocumentSigner firma y verifica documentos con el certificado vinculado a la empresa.
type DocumentSigner interface {
	SignDocument(ctx context.Context, actor, companyID string, doc []byte, invoiceID string) (*entity.SignatureArtifact, error)
	LatestSignature(ctx context.Context, documentHash string) (*entity.SignatureArtifact, error)
	VerifyDocument(artifact *entity.SignatureArtifact, doc []byte) dto.VerifySignatureResponse
}

// CustodyProvider custodia de clave de la empresa para firmar el XML fiscal.
type CustodyProvider interface {
	CustodyFor(ctx context.Context, companyID string) (signature.KeyCustody, entity.BindingRef, error)
}
