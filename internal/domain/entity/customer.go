package entity

import "time"

// Customer cliente (destinatario de la factura).
type Customer struct {
	ID        string
	CompanyID string
	Name      string
	TaxID     string // NIF, NIE o identificador extranjero
	Email     string
	Phone     string
	Address   string
	CreatedAt time.Time
	UpdatedAt time.Time
}
