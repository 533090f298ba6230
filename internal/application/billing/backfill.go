package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jhoicas/Concesionario-api/internal/domain"
	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
	"github.com/jhoicas/Concesionario-api/internal/domain/repository"
	aeatcat "github.com/jhoicas/Concesionario-api/pkg/aeat"
	"github.com/jhoicas/Concesionario-api/pkg/logger"
)

// BackfillReport resultado de la migración de referencias de vehículo.
type BackfillReport struct {
	Scanned    int
	Linked     int
	NoPlate    int
	NotFound   int
	Duplicates int
}

// BackfillVehicleRefs enlaza líneas históricas con su vehículo a partir de la
// matrícula escrita en la descripción. Es una migración de datos: la emisión
// nunca interpreta descripciones. Hace una sola pasada de hasta limit líneas;
// las que no se resuelven quedan sin enlazar para revisión manual.
//
// Cada enlace va en su propia transacción junto con sus consecuencias: el
// vehículo y su ficha de producto quedan inactivos y las proformas que lo
// contienen se recalculan, igual que en una emisión.
func BackfillVehicleRefs(
	ctx context.Context,
	lines repository.LegacyLineRepository,
	vehicles repository.VehicleRepository,
	txRunner repository.IssuanceTxRunner,
	limit int,
	dryRun bool,
	log *logger.Logger,
) (BackfillReport, error) {
	var rep BackfillReport
	pending, err := lines.ListLinesWithoutVehicle(ctx, limit)
	if err != nil {
		return rep, err
	}
	for _, l := range pending {
		rep.Scanned++
		plate := aeatcat.ParsePlate(l.Description)
		if plate == "" {
			rep.NoPlate++
			continue
		}
		v, err := vehicles.GetByPlate(ctx, l.CompanyID, plate)
		if err != nil {
			return rep, fmt.Errorf("buscar matrícula %s: %w", plate, err)
		}
		if v == nil {
			rep.NotFound++
			log.Warn().Str("line_id", l.LineID).Str("plate", plate).Msg("matrícula sin vehículo en inventario")
			continue
		}
		if dryRun {
			rep.Linked++
			continue
		}
		err = txRunner.RunIssuance(ctx, func(
			invoiceRepo repository.InvoiceRepository,
			vehicleRepo repository.VehicleRepository,
			productRepo repository.ProductRepository,
			proformaRepo repository.ProformaRepository,
		) error {
			txLines, ok := invoiceRepo.(repository.LegacyLineRepository)
			if !ok {
				return errors.New("el repositorio de facturas no permite enlazar líneas")
			}
			if err := txLines.SetLineVehicle(ctx, l.LineID, v.ID); err != nil {
				return err
			}
			return settleLinkedVehicle(ctx, l.InvoiceID, v, invoiceRepo, vehicleRepo, productRepo, proformaRepo, time.Now().UTC())
		})
		if err != nil {
			if errors.Is(err, domain.ErrDuplicate) {
				rep.Duplicates++
				log.Warn().Str("line_id", l.LineID).Str("vehicle_id", v.ID).Msg("vehículo ya enlazado a otra línea")
				continue
			}
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return rep, err
		}
		rep.Linked++
		log.Info().Str("line_id", l.LineID).Str("vehicle_id", v.ID).Msg("línea enlazada")
	}
	return rep, nil
}

// settleLinkedVehicle aplica al vehículo recién enlazado lo que la emisión
// habría hecho en su momento.
func settleLinkedVehicle(
	ctx context.Context,
	invoiceID string,
	v *entity.Vehicle,
	invoiceRepo repository.InvoiceRepository,
	vehicleRepo repository.VehicleRepository,
	productRepo repository.ProductRepository,
	proformaRepo repository.ProformaRepository,
	at time.Time,
) error {
	if v.Active {
		// ya inactivo por otra vía: se respeta
		if err := vehicleRepo.Deactivate(ctx, v.ID, invoiceID, at); err != nil && !errors.Is(err, domain.ErrConflict) {
			return fmt.Errorf("desactivar vehículo %s: %w", v.ID, err)
		}
	}
	if _, err := productRepo.DeactivateByVehicle(ctx, v.ID, at); err != nil {
		return fmt.Errorf("desactivar ficha del vehículo %s: %w", v.ID, err)
	}
	inv, err := invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return err
	}
	if inv == nil {
		return fmt.Errorf("factura %s: %w", invoiceID, domain.ErrNotFound)
	}
	linked := &entity.Invoice{
		ID:     inv.ID,
		Number: inv.Number,
		Lines:  []entity.InvoiceLine{{VehicleID: v.ID}},
	}
	return reconcileProformas(ctx, linked, invoiceRepo, proformaRepo, at)
}
