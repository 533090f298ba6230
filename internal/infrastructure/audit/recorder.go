// Package audit registra el historial de operaciones sobre entidades.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
	"github.com/jhoicas/Concesionario-api/internal/domain/repository"
	"github.com/jhoicas/Concesionario-api/pkg/logger"
)

// Entidades auditadas.
const (
	EntityInvoice            = "factura"
	EntityCertificateBinding = "certificado_empresa"
	EntitySignature          = "firma"
)

// Operaciones auditadas.
const (
	OpCreate    = "crear"
	OpMarkPaid  = "marcar_pagada"
	OpMarkPend  = "marcar_pendiente"
	OpAnnul     = "anular"
	OpSign      = "firmar"
	OpSignError = "error_firma"
	OpSubmit    = "enviar_aeat"
	OpBind      = "vincular"
)

// Recorder escribe entradas de auditoría. Nunca hace fallar la operación padre.
type Recorder struct {
	repo repository.AuditRepository
	log  *logger.Logger
	now  func() time.Time
}

// NewRecorder crea el recorder.
func NewRecorder(repo repository.AuditRepository, log *logger.Logger) *Recorder {
	return &Recorder{repo: repo, log: log.Component("audit"), now: time.Now}
}

// Record guarda la operación con el estado anterior y posterior serializados.
func (r *Recorder) Record(ctx context.Context, entityName, entityID, operation string, before, after any, actor string) {
	if r == nil || r.repo == nil {
		return
	}
	e := &entity.AuditEntry{
		ID:        uuid.NewString(),
		Entity:    entityName,
		EntityID:  entityID,
		Operation: operation,
		Before:    r.marshal(before),
		After:     r.marshal(after),
		Actor:     actor,
		At:        r.now().UTC(),
	}
	if err := r.repo.Append(ctx, e); err != nil {
		r.log.Warn().Err(err).
			Str("entity", entityName).
			Str("entity_id", entityID).
			Str("operation", operation).
			Msg("no se pudo registrar la auditoría")
	}
}

// History devuelve las entradas de la entidad en orden cronológico.
func (r *Recorder) History(ctx context.Context, entityName, entityID string) ([]*entity.AuditEntry, error) {
	return r.repo.ListByEntity(ctx, entityName, entityID)
}

func (r *Recorder) marshal(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw
	}
	b, err := json.Marshal(v)
	if err != nil {
		r.log.Warn().Err(err).Msg("auditoría: valor no serializable")
		return nil
	}
	return b
}
