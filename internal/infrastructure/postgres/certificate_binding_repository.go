package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
	"github.com/jhoicas/Concesionario-api/internal/domain/repository"
)

var _ repository.CertificateBindingRepository = (*CertificateBindingRepo)(nil)

// CertificateBindingRepo una fila por empresa; vincular de nuevo reemplaza.
type CertificateBindingRepo struct {
	q Querier
}

// NewCertificateBindingRepository construye el adaptador.
func NewCertificateBindingRepository(q Querier) *CertificateBindingRepo {
	return &CertificateBindingRepo{q: q}
}

// Upsert guarda la vinculación activa de la empresa (la última gana).
func (r *CertificateBindingRepo) Upsert(ctx context.Context, b *entity.CertificateBinding) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO certificate_bindings (company_id, certificate_serial, tier, bound_at, bound_by)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (company_id) DO UPDATE
		SET certificate_serial = EXCLUDED.certificate_serial,
		    tier = EXCLUDED.tier,
		    bound_at = EXCLUDED.bound_at,
		    bound_by = EXCLUDED.bound_by`,
		b.CompanyID, b.CertificateSerial, b.Tier, b.BoundAt, nullIfEmpty(b.BoundBy))
	if err != nil {
		return fmt.Errorf("upsert certificate binding: %w", err)
	}
	return nil
}

// GetByCompany devuelve nil, nil si la empresa no tiene certificado vinculado.
func (r *CertificateBindingRepo) GetByCompany(ctx context.Context, companyID string) (*entity.CertificateBinding, error) {
	var (
		b       entity.CertificateBinding
		boundBy *string
	)
	err := r.q.QueryRow(ctx, `
		SELECT company_id, certificate_serial, tier, bound_at, bound_by
		FROM certificate_bindings WHERE company_id = $1`, companyID).
		Scan(&b.CompanyID, &b.CertificateSerial, &b.Tier, &b.BoundAt, &boundBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get certificate binding: %w", err)
	}
	b.BoundBy = derefStr(boundBy)
	return &b, nil
}
