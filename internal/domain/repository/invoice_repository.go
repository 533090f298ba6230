package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
)

// InvoiceRepository puerto de persistencia para facturas y líneas.
type InvoiceRepository interface {
	// NextNumber incrementa de forma atómica el contador (empresa, año) y devuelve el nuevo valor.
	NextNumber(ctx context.Context, companyID string, year int) (int64, error)
	NumberExists(ctx context.Context, companyID string, year int, number string) (bool, error)
	// Create persiste cabecera y líneas. Un número o serie repetidos devuelven domain.ErrDuplicate.
	Create(ctx context.Context, inv *entity.Invoice) error
	GetByID(ctx context.Context, id string) (*entity.Invoice, error)
	// InvoicedVehicleIDs devuelve cuáles de los vehículos aparecen en alguna línea facturada.
	InvoicedVehicleIDs(ctx context.Context, vehicleIDs []string) (map[string]bool, error)
	// UpdatePaymentStatus cambia from -> to solo si el estado actual sigue siendo from;
	// si no, devuelve domain.ErrConflict.
	UpdatePaymentStatus(ctx context.Context, id, from, to string, at time.Time) error
	SetSignature(ctx context.Context, id, signatureHash string, at time.Time) error
	SetFiscalResult(ctx context.Context, id, status, xml string, response json.RawMessage, at time.Time) error
}

// LegacyLineRepository acceso a líneas históricas sin referencia de vehículo (migración).
type LegacyLineRepository interface {
	ListLinesWithoutVehicle(ctx context.Context, limit int) ([]LegacyLine, error)
	SetLineVehicle(ctx context.Context, lineID, vehicleID string) error
}

// LegacyLine línea histórica pendiente de enlazar con su vehículo.
type LegacyLine struct {
	LineID      string
	InvoiceID   string
	CompanyID   string
	Description string
}
