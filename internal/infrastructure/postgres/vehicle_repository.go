package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/Concesionario-api/internal/domain"
	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
	"github.com/jhoicas/Concesionario-api/internal/domain/repository"
	"github.com/jhoicas/Concesionario-api/pkg/aeat"
)

var (
	_ repository.VehicleRepository = (*VehicleRepo)(nil)
	_ repository.ProductRepository = (*ProductRepo)(nil)
)

// VehicleRepo inventario de vehículos.
type VehicleRepo struct {
	q Querier
}

// NewVehicleRepository construye el adaptador. Pasar pool o tx.
func NewVehicleRepository(q Querier) *VehicleRepo {
	return &VehicleRepo{q: q}
}

const vehicleColumns = `id, company_id, plate, vin, brand, model, year, price, active, sold_at, sold_invoice_id, created_at, updated_at`

func scanVehicle(row pgx.Row) (*entity.Vehicle, error) {
	var (
		v                                entity.Vehicle
		vin, brand, model, soldInvoiceID *string
		year                             *int
	)
	err := row.Scan(&v.ID, &v.CompanyID, &v.Plate, &vin, &brand, &model, &year, &v.Price,
		&v.Active, &v.SoldAt, &soldInvoiceID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	v.VIN, v.Brand, v.Model, v.SoldInvoiceID = derefStr(vin), derefStr(brand), derefStr(model), derefStr(soldInvoiceID)
	if year != nil {
		v.Year = *year
	}
	return &v, nil
}

// GetByID devuelve nil, nil si no existe.
func (r *VehicleRepo) GetByID(ctx context.Context, id string) (*entity.Vehicle, error) {
	v, err := scanVehicle(r.q.QueryRow(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get vehicle: %w", err)
	}
	return v, nil
}

// GetByPlate busca por matrícula normalizada (sin guiones ni espacios, en
// mayúsculas) dentro de la empresa.
func (r *VehicleRepo) GetByPlate(ctx context.Context, companyID, plate string) (*entity.Vehicle, error) {
	v, err := scanVehicle(r.q.QueryRow(ctx, `
		SELECT `+vehicleColumns+` FROM vehicles
		WHERE company_id = $1 AND upper(replace(replace(plate, '-', ''), ' ', '')) = $2
		ORDER BY id
		LIMIT 1`, companyID, aeat.NormalizePlate(plate)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get vehicle by plate: %w", err)
	}
	return v, nil
}

// Deactivate transiciona activo -> vendido. La condición active = true hace
// que dos emisiones concurrentes no puedan consumir el mismo vehículo.
func (r *VehicleRepo) Deactivate(ctx context.Context, id, invoiceID string, at time.Time) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE vehicles
		SET active = false, sold_at = $3, sold_invoice_id = $2, updated_at = $3
		WHERE id = $1 AND active = true`, id, invoiceID, at)
	if err != nil {
		return fmt.Errorf("deactivate vehicle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("vehículo %s: %w", id, domain.ErrConflict)
	}
	return nil
}

// ProductRepo catálogo de venta.
type ProductRepo struct {
	q Querier
}

// NewProductRepository construye el adaptador.
func NewProductRepository(q Querier) *ProductRepo {
	return &ProductRepo{q: q}
}

// DeactivateByVehicle desactiva las fichas activas del vehículo.
func (r *ProductRepo) DeactivateByVehicle(ctx context.Context, vehicleID string, at time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx,
		`UPDATE products SET active = false, updated_at = $2 WHERE vehicle_id = $1 AND active = true`,
		vehicleID, at)
	if err != nil {
		return 0, fmt.Errorf("deactivate products: %w", err)
	}
	return tag.RowsAffected(), nil
}
