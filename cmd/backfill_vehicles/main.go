// backfill_vehicles enlaza las líneas de factura históricas con su vehículo
// leyendo la matrícula de la descripción. Migración de una sola vez: las
// facturas nuevas siempre llevan coche_id explícito.
//
// Uso: go run ./cmd/backfill_vehicles [-dry-run] [-limit 5000]
package main

import (
	"context"
	"flag"
	"os"

	"github.com/jhoicas/Concesionario-api/internal/application/billing"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/postgres"
	"github.com/jhoicas/Concesionario-api/pkg/config"
	"github.com/jhoicas/Concesionario-api/pkg/logger"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "solo informa, no escribe")
	limit := flag.Int("limit", 5000, "máximo de líneas a revisar en esta pasada")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.Log}).Component("backfill")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	rep, err := billing.BackfillVehicleRefs(ctx,
		postgres.NewInvoiceRepository(pool), postgres.NewVehicleRepository(pool), postgres.NewTxRunner(pool),
		*limit, *dryRun, log)
	if err != nil {
		log.Error().Err(err).Msg("migración interrumpida")
		os.Exit(1)
	}
	log.Info().
		Bool("dry_run", *dryRun).
		Int("revisadas", rep.Scanned).
		Int("enlazadas", rep.Linked).
		Int("sin_matricula", rep.NoPlate).
		Int("sin_vehiculo", rep.NotFound).
		Int("duplicadas", rep.Duplicates).
		Msg("migración terminada")
}
