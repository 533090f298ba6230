package postgres

import (
	"context"
	"fmt"

	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
	"github.com/jhoicas/Concesionario-api/internal/domain/repository"
)

var _ repository.AuditRepository = (*AuditRepo)(nil)

// AuditRepo historial append-only en audit_log.
type AuditRepo struct {
	q Querier
}

// NewAuditRepository construye el adaptador.
func NewAuditRepository(q Querier) *AuditRepo {
	return &AuditRepo{q: q}
}

// Append inserta la entrada.
func (r *AuditRepo) Append(ctx context.Context, e *entity.AuditEntry) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO audit_log (id, entity, entity_id, operation, before, after, actor, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.Entity, e.EntityID, e.Operation, nullJSON(e.Before), nullJSON(e.After), nullIfEmpty(e.Actor), e.At)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListByEntity historial de la entidad en orden cronológico.
func (r *AuditRepo) ListByEntity(ctx context.Context, entityName, entityID string) ([]*entity.AuditEntry, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, entity, entity_id, operation, before, after, actor, at
		FROM audit_log WHERE entity = $1 AND entity_id = $2
		ORDER BY at, id`, entityName, entityID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()
	var out []*entity.AuditEntry
	for rows.Next() {
		var (
			e             entity.AuditEntry
			before, after []byte
			actor         *string
		)
		if err := rows.Scan(&e.ID, &e.Entity, &e.EntityID, &e.Operation, &before, &after, &actor, &e.At); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Before, e.After, e.Actor = before, after, derefStr(actor)
		out = append(out, &e)
	}
	return out, rows.Err()
}
