package repository

import (
	"context"

	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
)

// CompanyRepository puerto de lectura de empresas. GetByID devuelve nil, nil si no existe.
type CompanyRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Company, error)
}

// CustomerRepository puerto de lectura de clientes.
type CustomerRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Customer, error)
}
