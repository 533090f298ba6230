package billing_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Concesionario-api/internal/application/billing"
	"github.com/jhoicas/Concesionario-api/internal/application/certificates"
	"github.com/jhoicas/Concesionario-api/internal/application/dto"
	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
	"github.com/jhoicas/Concesionario-api/internal/domain/fiscal"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/aeat"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/audit"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/certstore"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/memory"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/signature"
	"github.com/jhoicas/Concesionario-api/pkg/logger"
)

// flakySigner falla mientras failing sea true; después delega.
type flakySigner struct {
	billing.DocumentSigner
	failing bool
}

func (f *flakySigner) SignDocument(ctx context.Context, actor, companyID string, doc []byte, invoiceID string) (*entity.SignatureArtifact, error) {
	if f.failing {
		return nil, errors.New("almacén de certificados no disponible")
	}
	return f.DocumentSigner.SignDocument(ctx, actor, companyID, doc, invoiceID)
}

type env struct {
	store     *memory.Store
	coord     *billing.Coordinator
	sub       *billing.SubmissionService
	signer    *flakySigner
	authority *aeat.SimulatedAuthority
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log := logger.Nop()
	store := memory.NewStore()
	seed(store)

	dev, err := signature.DevelopmentCustody("", "", log)
	require.NoError(t, err)
	registry := certstore.NewRegistry(filepath.Join(t.TempDir(), "certs"), "", log)
	engine := signature.NewEngine(store.Artifacts(), log)
	recorder := audit.NewRecorder(store.Audit(), log)
	certs := certificates.NewService(registry, store.Companies(), store.Bindings(), engine, dev, recorder, log)
	signer := &flakySigner{DocumentSigner: certs}

	coord := billing.NewCoordinator(
		store.Companies(), store.Customers(), store.Vehicles(), store.Proformas(), store.Invoices(),
		store.TxRunner(), fiscal.NewEngine(), signer, nil, recorder, nil, log,
	)

	authority := aeat.NewSimulatedAuthority()
	submitter := aeat.NewRetryingSubmitter(authority, 5*time.Second, 3, log, aeat.WithInitialInterval(time.Millisecond))
	sub := billing.NewSubmissionService(
		store.Invoices(), store.Companies(), store.Customers(),
		aeat.NewXMLBuilder("Concesionario API", "B12345674"), aeat.NewValidator(), aeat.NewXAdESSigner(),
		submitter, certs, nil, recorder, log,
	)
	return &env{store: store, coord: coord, sub: sub, signer: signer, authority: authority}
}

func seed(s *memory.Store) {
	s.AddCompany(&entity.Company{ID: "c1", Name: "Motor Canarias SL", TaxID: "B12345674"})
	s.AddCompany(&entity.Company{ID: "c2", Name: "Otra Empresa SA", TaxID: "A58818501"})
	s.AddCustomer(&entity.Customer{ID: "x1", CompanyID: "c1", Name: "Juan Pérez", TaxID: "12345678Z"})
	s.AddCustomer(&entity.Customer{ID: "x2", CompanyID: "c2", Name: "Ana López", TaxID: "87654321X"})
	s.AddCustomer(&entity.Customer{ID: "x3", CompanyID: "c1", Name: "Cliente Sin NIF", TaxID: "XYZ"})
	for _, v := range []struct{ id, plate string }{{"v1", "1234BCD"}, {"v2", "5678FGH"}, {"v3", "9012JKL"}} {
		s.AddVehicle(&entity.Vehicle{ID: v.id, CompanyID: "c1", Plate: v.plate, Brand: "Seat", Model: "Ibiza", Active: true})
	}
	s.AddVehicle(&entity.Vehicle{ID: "v9", CompanyID: "c2", Plate: "0000ZZZ", Active: true})
	s.AddProduct(&entity.Product{ID: "p1", CompanyID: "c1", VehicleID: "v1", Name: "Seat Ibiza 1234BCD", Active: true})
	s.AddProforma(&entity.Proforma{ID: "pf1", CompanyID: "c1", CustomerID: "x1", Number: "P-001",
		State: entity.ProformaStateOpen, VehicleIDs: []string{"v1", "v2"}})
	s.AddProforma(&entity.Proforma{ID: "pf2", CompanyID: "c1", Number: "P-002", State: entity.ProformaStateOpen})
}

// line línea con IGIC del 7%.
func line(vehicleID, price string) dto.InvoiceLineRequest {
	p := decimal.RequireFromString(price)
	tax := p.Mul(decimal.NewFromInt(7)).Div(decimal.NewFromInt(100)).Round(2)
	return dto.InvoiceLineRequest{
		VehicleID: vehicleID,
		Quantity:  decimal.NewFromInt(1),
		UnitPrice: p,
		Tax:       tax,
		Subtotal:  p,
		Total:     p.Add(tax),
	}
}

func request(lines ...dto.InvoiceLineRequest) dto.CreateInvoiceRequest {
	req := dto.CreateInvoiceRequest{
		CompanyID:    "c1",
		CustomerID:   "x1",
		EmissionDate: "2025-03-14",
		Lines:        lines,
	}
	for _, l := range lines {
		req.Subtotal = req.Subtotal.Add(l.Subtotal)
		req.Tax = req.Tax.Add(l.Tax)
		req.Total = req.Total.Add(l.Total)
	}
	return req
}
