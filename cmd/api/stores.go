package main

import (
	"context"
	"fmt"

	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
	"github.com/jhoicas/Concesionario-api/internal/domain/repository"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/memory"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/postgres"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/signature"
	"github.com/jhoicas/Concesionario-api/pkg/config"
	"github.com/jhoicas/Concesionario-api/pkg/logger"
)

// stores puertos de persistencia resueltos según STORE.
type stores struct {
	companies repository.CompanyRepository
	customers repository.CustomerRepository
	vehicles  repository.VehicleRepository
	proformas repository.ProformaRepository
	invoices  repository.InvoiceRepository
	bindings  repository.CertificateBindingRepository
	audit     repository.AuditRepository
	txRunner  repository.IssuanceTxRunner
	// artifacts solo en memoria; con postgres se usa ARTIFACT_BACKEND.
	artifacts repository.SignatureArtifactRepository
}

func openStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (*stores, func(), error) {
	if cfg.App.Store == "memory" {
		log.Warn().Msg("almacén en memoria: los datos se pierden al reiniciar")
		s := memory.NewStore()
		seedDemo(s)
		return &stores{
			companies: s.Companies(),
			customers: s.Customers(),
			vehicles:  s.Vehicles(),
			proformas: s.Proformas(),
			invoices:  s.Invoices(),
			bindings:  s.Bindings(),
			audit:     s.Audit(),
			txRunner:  s.TxRunner(),
			artifacts: s.Artifacts(),
		}, func() {}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("conexión a PostgreSQL: %w", err)
	}
	if cfg.DB.Migrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migraciones: %w", err)
		}
		log.Info().Msg("migraciones aplicadas")
	}
	return &stores{
		companies: postgres.NewCompanyRepository(pool),
		customers: postgres.NewCustomerRepository(pool),
		vehicles:  postgres.NewVehicleRepository(pool),
		proformas: postgres.NewProformaRepository(pool),
		invoices:  postgres.NewInvoiceRepository(pool),
		bindings:  postgres.NewCertificateBindingRepository(pool),
		audit:     postgres.NewAuditRepository(pool),
		txRunner:  postgres.NewTxRunner(pool),
	}, pool.Close, nil
}

// openArtifacts almacén append-only de firmas. En memoria se reutiliza el del store
// salvo que se pida DynamoDB explícitamente.
func openArtifacts(ctx context.Context, cfg *config.Config, st *stores) (repository.SignatureArtifactRepository, error) {
	switch {
	case cfg.Artifacts.Backend == "dynamodb":
		client, err := signature.NewDynamoClient(ctx, cfg.Artifacts.AWSRegion, cfg.Artifacts.DynamoEndpoint)
		if err != nil {
			return nil, err
		}
		return signature.NewDynamoArtifactStore(client, cfg.Artifacts.DynamoTable), nil
	case st.artifacts != nil:
		return st.artifacts, nil
	default:
		return signature.NewFSArtifactStore(cfg.Artifacts.Dir)
	}
}

// seedDemo datos mínimos para probar el flujo con STORE=memory.
func seedDemo(s *memory.Store) {
	s.AddCompany(&entity.Company{ID: "demo", Name: "Concesionario Demo SL", TaxID: "B12345674"})
	s.AddCustomer(&entity.Customer{ID: "cliente-demo", CompanyID: "demo", Name: "Cliente Demo", TaxID: "12345678Z"})
	s.AddVehicle(&entity.Vehicle{ID: "coche-1", CompanyID: "demo", Plate: "1234BCD", Brand: "Seat", Model: "Ibiza", Active: true})
	s.AddVehicle(&entity.Vehicle{ID: "coche-2", CompanyID: "demo", Plate: "5678FGH", Brand: "Toyota", Model: "Corolla", Active: true})
	s.AddProduct(&entity.Product{ID: "ficha-1", CompanyID: "demo", VehicleID: "coche-1", Name: "Seat Ibiza 1234BCD", Active: true})
	s.AddProforma(&entity.Proforma{ID: "proforma-demo", CompanyID: "demo", CustomerID: "cliente-demo", Number: "P-0001",
		State: entity.ProformaStateOpen, VehicleIDs: []string{"coche-1", "coche-2"}})
}
