//go:build integration

package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/Concesionario-api/internal/domain"
	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
	"github.com/jhoicas/Concesionario-api/internal/domain/repository"
	"github.com/jhoicas/Concesionario-api/pkg/config"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("concesionario"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	testcontainers.CleanupContainer(t, container)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := NewPool(ctx, config.DBConfig{DatabaseURL: dsn})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, Migrate(ctx, pool))
	// idempotente
	require.NoError(t, Migrate(ctx, pool))
	return pool
}

func seed(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()
	stmts := []string{
		`INSERT INTO companies (id, name, tax_id) VALUES ('c1', 'Automóviles Atlántico S.L.', 'B12345674')`,
		`INSERT INTO customers (id, company_id, name, tax_id) VALUES ('x1', 'c1', 'Juan Pérez', '12345678Z')`,
		`INSERT INTO vehicles (id, company_id, plate, price) VALUES ('v1', 'c1', '1234BCD', 20000), ('v2', 'c1', '5678FGH', 15000)`,
		`INSERT INTO products (id, company_id, vehicle_id, sku, name, price) VALUES ('p1', 'c1', 'v1', 'VH-1', 'Seat León', 20000)`,
		`INSERT INTO proformas (id, company_id, customer_id, number) VALUES ('pf1', 'c1', 'x1', 'P-001')`,
		`INSERT INTO proforma_vehicles (proforma_id, vehicle_id) VALUES ('pf1', 'v1'), ('pf1', 'v2')`,
	}
	for _, s := range stmts {
		_, err := pool.Exec(ctx, s)
		require.NoError(t, err, s)
	}
}

func newInvoice(number, serial, vehicleID string) *entity.Invoice {
	now := time.Now().UTC().Truncate(time.Microsecond)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return &entity.Invoice{
		CompanyID: "c1", CustomerID: "x1", Number: number, Year: now.Year(), Serial: serial,
		DocumentType: "F1", EmissionDate: day, OperationDate: day,
		Subtotal: decimal.NewFromInt(100), Tax: decimal.NewFromInt(7), Total: decimal.NewFromInt(107),
		DocumentHash: "H", SealedAt: now, FiscalCode: "VF", PaymentStatus: entity.PaymentStatusPending,
		FiscalStatus: entity.FiscalStatusPending, CreatedAt: now, UpdatedAt: now,
		Lines: []entity.InvoiceLine{{
			Position: 1, VehicleID: vehicleID, Description: "línea",
			Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(100),
			Tax: decimal.NewFromInt(7), Subtotal: decimal.NewFromInt(100), Total: decimal.NewFromInt(107), TaxType: "igic",
		}},
	}
}

func TestPostgres_Repositories(t *testing.T) {
	pool := startPostgres(t)
	seed(t, pool)
	ctx := context.Background()

	t.Run("NextNumber concurrente no repite", func(t *testing.T) {
		repo := NewInvoiceRepository(pool)
		var (
			mu   sync.Mutex
			seen = map[int64]bool{}
		)
		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < 20; i++ {
			g.Go(func() error {
				n, err := repo.NextNumber(gctx, "c1", 2030)
				if err != nil {
					return err
				}
				mu.Lock()
				defer mu.Unlock()
				if seen[n] {
					return fmt.Errorf("número repetido %d", n)
				}
				seen[n] = true
				return nil
			})
		}
		require.NoError(t, g.Wait())
		assert.Len(t, seen, 20)
	})

	t.Run("Create, duplicado y lectura", func(t *testing.T) {
		repo := NewInvoiceRepository(pool)
		inv := newInvoice("F-1", "NS-1", "v1")
		require.NoError(t, repo.Create(ctx, inv))

		dup := newInvoice("F-1", "NS-2", "")
		assert.ErrorIs(t, repo.Create(ctx, dup), domain.ErrDuplicate)

		got, err := repo.GetByID(ctx, inv.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "F-1", got.Number)
		assert.True(t, got.SealedAt.Equal(inv.SealedAt))
		require.Len(t, got.Lines, 1)
		assert.Equal(t, "v1", got.Lines[0].VehicleID)
		assert.True(t, got.Total.Equal(decimal.NewFromInt(107)))

		exists, err := repo.NumberExists(ctx, "c1", inv.Year, "F-1")
		require.NoError(t, err)
		assert.True(t, exists)

		again := newInvoice("F-2", "NS-3", "v1")
		var conflict *domain.ConflictError
		require.ErrorAs(t, repo.Create(ctx, again), &conflict)
		assert.Equal(t, domain.CodeVehicleAlreadyInvoiced, conflict.Code)

		invoiced, err := repo.InvoicedVehicleIDs(ctx, []string{"v1", "v2"})
		require.NoError(t, err)
		assert.Equal(t, map[string]bool{"v1": true}, invoiced)

		require.NoError(t, repo.SetFiscalResult(ctx, inv.ID, entity.FiscalStatusSubmitted, "<x/>", []byte(`{"codigo":"A"}`), time.Now()))
		got, err = repo.GetByID(ctx, inv.ID)
		require.NoError(t, err)
		assert.JSONEq(t, `{"codigo":"A"}`, string(got.AuthorityResponse))
		assert.ErrorIs(t, repo.UpdatePaymentStatus(ctx, "nope", entity.PaymentStatusPending, entity.PaymentStatusPaid, time.Now()), domain.ErrNotFound)

		require.NoError(t, repo.UpdatePaymentStatus(ctx, inv.ID, entity.PaymentStatusPending, entity.PaymentStatusAnnulled, time.Now()))
		assert.ErrorIs(t, repo.UpdatePaymentStatus(ctx, inv.ID, entity.PaymentStatusPending, entity.PaymentStatusPaid, time.Now()), domain.ErrConflict)
		got, err = repo.GetByID(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.PaymentStatusAnnulled, got.PaymentStatus)
	})

	t.Run("Deactivate una sola vez", func(t *testing.T) {
		vehicles := NewVehicleRepository(pool)
		require.NoError(t, vehicles.Deactivate(ctx, "v2", "inv-x", time.Now()))
		assert.ErrorIs(t, vehicles.Deactivate(ctx, "v2", "inv-y", time.Now()), domain.ErrConflict)

		v, err := vehicles.GetByPlate(ctx, "c1", "5678FGH")
		require.NoError(t, err)
		assert.False(t, v.Active)

		_, err = pool.Exec(ctx, `INSERT INTO vehicles (id, company_id, plate, price) VALUES ('v3', 'c1', '9012-jkl', 9000)`)
		require.NoError(t, err)
		v, err = vehicles.GetByPlate(ctx, "c1", "9012JKL")
		require.NoError(t, err)
		require.NotNil(t, v)
		assert.Equal(t, "v3", v.ID)
		assert.Equal(t, "inv-x", v.SoldInvoiceID)

		n, err := NewProductRepository(pool).DeactivateByVehicle(ctx, "v1", time.Now())
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("Proformas", func(t *testing.T) {
		var list []*entity.Proforma
		runner := NewTxRunner(pool)
		err := runner.RunIssuance(ctx, func(_ repository.InvoiceRepository, _ repository.VehicleRepository, _ repository.ProductRepository, p repository.ProformaRepository) error {
			var err error
			list, err = p.ListByVehicleIDs(ctx, []string{"v1"})
			if err != nil {
				return err
			}
			if err := p.UpdateState(ctx, "pf1", entity.ProformaStatePartInvoiced, "nota 1", time.Now()); err != nil {
				return err
			}
			return p.UpdateState(ctx, "pf1", entity.ProformaStatePartInvoiced, "nota 2", time.Now())
		})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.ElementsMatch(t, []string{"v1", "v2"}, list[0].VehicleIDs)

		pf, err := NewProformaRepository(pool).GetByID(ctx, "pf1")
		require.NoError(t, err)
		assert.Equal(t, entity.ProformaStatePartInvoiced, pf.State)
		assert.Equal(t, "nota 1\nnota 2", pf.Notes)
	})

	t.Run("Rollback si fn falla", func(t *testing.T) {
		runner := NewTxRunner(pool)
		err := runner.RunIssuance(ctx, func(_ repository.InvoiceRepository, _ repository.VehicleRepository, _ repository.ProductRepository, p repository.ProformaRepository) error {
			if err := p.UpdateState(ctx, "pf1", entity.ProformaStateAnnulled, "x", time.Now()); err != nil {
				return err
			}
			return fmt.Errorf("boom")
		})
		require.Error(t, err)
		pf, err := NewProformaRepository(pool).GetByID(ctx, "pf1")
		require.NoError(t, err)
		assert.NotEqual(t, entity.ProformaStateAnnulled, pf.State)
	})

	t.Run("Bindings y auditoría", func(t *testing.T) {
		bindings := NewCertificateBindingRepository(pool)
		missing, err := bindings.GetByCompany(ctx, "c1")
		require.NoError(t, err)
		assert.Nil(t, missing)

		require.NoError(t, bindings.Upsert(ctx, &entity.CertificateBinding{CompanyID: "c1", CertificateSerial: "A1", Tier: "high", BoundAt: time.Now()}))
		require.NoError(t, bindings.Upsert(ctx, &entity.CertificateBinding{CompanyID: "c1", CertificateSerial: "B2", Tier: "low", BoundAt: time.Now()}))
		b, err := bindings.GetByCompany(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, "B2", b.CertificateSerial)

		audit := NewAuditRepository(pool)
		require.NoError(t, audit.Append(ctx, &entity.AuditEntry{ID: "a1", Entity: "factura", EntityID: "i1", Operation: "crear", After: []byte(`{"a":1}`), At: time.Now()}))
		require.NoError(t, audit.Append(ctx, &entity.AuditEntry{ID: "a2", Entity: "factura", EntityID: "i1", Operation: "anular", At: time.Now().Add(time.Second)}))
		hist, err := audit.ListByEntity(ctx, "factura", "i1")
		require.NoError(t, err)
		require.Len(t, hist, 2)
		assert.Equal(t, "crear", hist[0].Operation)
		assert.Nil(t, hist[1].Before)
	})
}
