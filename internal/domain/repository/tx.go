package repository

import "context"

// IssuanceTxRunner ejecuta fn en una única transacción con los repositorios que
// participan en la emisión: cabecera y líneas, inventario, catálogo y proformas.
// Si fn devuelve error no queda ningún efecto persistido.
type IssuanceTxRunner interface {
	RunIssuance(ctx context.Context, fn func(
		invoiceRepo InvoiceRepository,
		vehicleRepo VehicleRepository,
		productRepo ProductRepository,
		proformaRepo ProformaRepository,
	) error) error
}
