package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/Concesionario-api/internal/domain/repository"
)

var _ repository.IssuanceTxRunner = (*TxRunner)(nil)

// TxRunner ejecuta callbacks dentro de una transacción PostgreSQL.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner construye el runner con el pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunIssuance inicia una transacción con los repos de la emisión atados a ella
// y hace Commit o Rollback según el resultado de fn.
func (r *TxRunner) RunIssuance(ctx context.Context, fn func(
	invoiceRepo repository.InvoiceRepository,
	vehicleRepo repository.VehicleRepository,
	productRepo repository.ProductRepository,
	proformaRepo repository.ProformaRepository,
) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(
		NewInvoiceRepository(tx),
		NewVehicleRepository(tx),
		NewProductRepository(tx),
		NewProformaRepository(tx),
	); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
