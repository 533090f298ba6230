package entity

import "time"

// Company concesionario emisor de facturas.
type Company struct {
	ID        string
	Name      string
	TaxID     string // NIF/CIF
	Address   string
	City      string
	Province  string
	Email     string
	Phone     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
