package repository

import (
	"context"

	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
)

// AuditRepository almacén append-only del historial de operaciones.
type AuditRepository interface {
	Append(ctx context.Context, e *entity.AuditEntry) error
	ListByEntity(ctx context.Context, entityName, entityID string) ([]*entity.AuditEntry, error)
}
