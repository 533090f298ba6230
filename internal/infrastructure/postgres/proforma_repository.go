package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
	"github.com/jhoicas/Concesionario-api/internal/domain/repository"
)

var _ repository.ProformaRepository = (*ProformaRepo)(nil)

// ProformaRepo proformas y sus vehículos.
type ProformaRepo struct {
	q Querier
}

// NewProformaRepository construye el adaptador.
func NewProformaRepository(q Querier) *ProformaRepo {
	return &ProformaRepo{q: q}
}

// Los vehículos se agregan en la misma consulta (array_agg ordenado).
const proformaSelect = `
	SELECT p.id, p.company_id, p.customer_id, p.number, p.state, p.notes, p.created_at, p.updated_at,
	       COALESCE(array_agg(pv.vehicle_id ORDER BY pv.vehicle_id) FILTER (WHERE pv.vehicle_id IS NOT NULL), '{}')
	FROM proformas p
	LEFT JOIN proforma_vehicles pv ON pv.proforma_id = p.id`

func scanProforma(row pgx.Row) (*entity.Proforma, error) {
	var (
		p          entity.Proforma
		customerID *string
	)
	if err := row.Scan(&p.ID, &p.CompanyID, &customerID, &p.Number, &p.State, &p.Notes,
		&p.CreatedAt, &p.UpdatedAt, &p.VehicleIDs); err != nil {
		return nil, err
	}
	p.CustomerID = derefStr(customerID)
	return &p, nil
}

// GetByID devuelve nil, nil si no existe.
func (r *ProformaRepo) GetByID(ctx context.Context, id string) (*entity.Proforma, error) {
	p, err := scanProforma(r.q.QueryRow(ctx, proformaSelect+` WHERE p.id = $1 GROUP BY p.id`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get proforma: %w", err)
	}
	return p, nil
}

// ListByVehicleIDs proformas que comparten algún vehículo, bloqueadas hasta el
// fin de la transacción para que la reconciliación concurrente no se pise.
func (r *ProformaRepo) ListByVehicleIDs(ctx context.Context, vehicleIDs []string) ([]*entity.Proforma, error) {
	if len(vehicleIDs) == 0 {
		return nil, nil
	}
	if _, err := r.q.Exec(ctx, `
		SELECT 1 FROM proformas
		WHERE id IN (SELECT proforma_id FROM proforma_vehicles WHERE vehicle_id = ANY($1))
		ORDER BY id FOR UPDATE`, vehicleIDs); err != nil {
		return nil, fmt.Errorf("lock proformas: %w", err)
	}
	rows, err := r.q.Query(ctx, proformaSelect+`
		WHERE p.id IN (SELECT proforma_id FROM proforma_vehicles WHERE vehicle_id = ANY($1))
		GROUP BY p.id ORDER BY p.id`, vehicleIDs)
	if err != nil {
		return nil, fmt.Errorf("list proformas: %w", err)
	}
	defer rows.Close()
	var out []*entity.Proforma
	for rows.Next() {
		p, err := scanProforma(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proforma: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateState fija el estado y añade la nota en una línea nueva.
func (r *ProformaRepo) UpdateState(ctx context.Context, id, state, note string, at time.Time) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE proformas
		SET state = $2,
		    notes = CASE WHEN notes = '' THEN $3 ELSE notes || E'\n' || $3 END,
		    updated_at = $4
		WHERE id = $1`, id, state, note, at)
	if err != nil {
		return fmt.Errorf("update proforma: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("proforma %s no encontrada", id)
	}
	return nil
}
