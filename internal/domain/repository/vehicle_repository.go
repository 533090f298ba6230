package repository

import (
	"context"
	"time"

	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
)

// VehicleRepository puerto de persistencia para vehículos del inventario.
type VehicleRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Vehicle, error)
	GetByPlate(ctx context.Context, companyID, plate string) (*entity.Vehicle, error)
	// Deactivate marca el vehículo como vendido. Solo transiciona si está activo;
	// si ya estaba inactivo devuelve domain.ErrConflict.
	Deactivate(ctx context.Context, id, invoiceID string, at time.Time) error
}

// ProductRepository puerto del catálogo de venta.
type ProductRepository interface {
	// DeactivateByVehicle desactiva las fichas de catálogo asociadas al vehículo.
	DeactivateByVehicle(ctx context.Context, vehicleID string, at time.Time) (int64, error)
}

// ProformaRepository puerto de persistencia para proformas.
type ProformaRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Proforma, error)
	// ListByVehicleIDs devuelve las proformas que contienen alguno de los vehículos.
	ListByVehicleIDs(ctx context.Context, vehicleIDs []string) ([]*entity.Proforma, error)
	// UpdateState fija el estado y añade la nota al historial de notas.
	UpdateState(ctx context.Context, id, state, note string, at time.Time) error
}
