// Package memory implementa los puertos de persistencia en memoria. Sirve para
// desarrollo sin base de datos (STORE=memory) y para los tests de aplicación.
package memory

import (
	"context"
	"sync"

	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
	"github.com/jhoicas/Concesionario-api/internal/domain/repository"
)

type seqKey struct {
	companyID string
	year      int
}

// Store estado compartido por todos los repositorios en memoria.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex // una emisión a la vez: equivale al bloqueo de fila del contador

	companies map[string]*entity.Company
	customers map[string]*entity.Customer
	vehicles  map[string]*entity.Vehicle
	products  map[string]*entity.Product
	proformas map[string]*entity.Proforma
	invoices  map[string]*entity.Invoice
	sequences map[seqKey]int64
	bindings  map[string]*entity.CertificateBinding
	artifacts []*entity.SignatureArtifact
	audit     []*entity.AuditEntry
}

// NewStore crea un almacén vacío.
func NewStore() *Store {
	return &Store{
		companies: map[string]*entity.Company{},
		customers: map[string]*entity.Customer{},
		vehicles:  map[string]*entity.Vehicle{},
		products:  map[string]*entity.Product{},
		proformas: map[string]*entity.Proforma{},
		invoices:  map[string]*entity.Invoice{},
		sequences: map[seqKey]int64{},
		bindings:  map[string]*entity.CertificateBinding{},
	}
}

// AddCompany alta directa (datos de prueba y semilla de desarrollo).
func (s *Store) AddCompany(c *entity.Company) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.companies[c.ID] = &cp
}

// AddCustomer alta directa.
func (s *Store) AddCustomer(c *entity.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.customers[c.ID] = &cp
}

// AddVehicle alta directa.
func (s *Store) AddVehicle(v *entity.Vehicle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *v
	s.vehicles[v.ID] = &cp
}

// AddProduct alta directa.
func (s *Store) AddProduct(p *entity.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.products[p.ID] = &cp
}

// AddProforma alta directa.
func (s *Store) AddProforma(p *entity.Proforma) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proformas[p.ID] = copyProforma(p)
}

// Product lectura directa (tests).
func (s *Store) Product(id string) *entity.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

// Repositorios sobre este almacén.
func (s *Store) Companies() *CompanyRepo               { return &CompanyRepo{s: s} }
func (s *Store) Customers() *CustomerRepo              { return &CustomerRepo{s: s} }
func (s *Store) Vehicles() *VehicleRepo                { return &VehicleRepo{s: s} }
func (s *Store) Products() *ProductRepo                { return &ProductRepo{s: s} }
func (s *Store) Proformas() *ProformaRepo              { return &ProformaRepo{s: s} }
func (s *Store) Invoices() *InvoiceRepo                { return &InvoiceRepo{s: s} }
func (s *Store) Bindings() *BindingRepo                { return &BindingRepo{s: s} }
func (s *Store) Artifacts() *ArtifactRepo              { return &ArtifactRepo{s: s} }
func (s *Store) Audit() *AuditRepo                     { return &AuditRepo{s: s} }
func (s *Store) TxRunner() repository.IssuanceTxRunner { return &TxRunner{s: s} }

// TxRunner transacción simulada: serializa las emisiones y, si fn falla,
// deshace solo las claves que tocó la transacción. Las escrituras de otras
// peticiones hechas mientras tanto se conservan. Las escrituras de fn son
// visibles para otros lectores antes del commit.
type TxRunner struct {
	s *Store
}

var _ repository.IssuanceTxRunner = (*TxRunner)(nil)

// RunIssuance ejecuta fn con repositorios que anotan el estado previo de cada
// clave que modifican.
func (r *TxRunner) RunIssuance(ctx context.Context, fn func(
	invoiceRepo repository.InvoiceRepository,
	vehicleRepo repository.VehicleRepository,
	productRepo repository.ProductRepository,
	proformaRepo repository.ProformaRepository,
) error) error {
	r.s.txMu.Lock()
	defer r.s.txMu.Unlock()

	undo := newUndoLog()
	err := fn(
		&InvoiceRepo{s: r.s, undo: undo},
		&VehicleRepo{s: r.s, undo: undo},
		&ProductRepo{s: r.s, undo: undo},
		&ProformaRepo{s: r.s, undo: undo},
	)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		r.s.rollback(undo)
		return err
	}
	return nil
}

type seqPrior struct {
	value  int64
	exists bool
}

// undoLog guarda el valor anterior a la primera escritura de cada clave;
// nil significa que la clave no existía. Se usa siempre con Store.mu tomado.
type undoLog struct {
	vehicles  map[string]*entity.Vehicle
	products  map[string]*entity.Product
	proformas map[string]*entity.Proforma
	invoices  map[string]*entity.Invoice
	sequences map[seqKey]seqPrior
}

func newUndoLog() *undoLog {
	return &undoLog{
		vehicles:  map[string]*entity.Vehicle{},
		products:  map[string]*entity.Product{},
		proformas: map[string]*entity.Proforma{},
		invoices:  map[string]*entity.Invoice{},
		sequences: map[seqKey]seqPrior{},
	}
}

func (u *undoLog) vehicle(s *Store, id string) {
	if u == nil {
		return
	}
	if _, seen := u.vehicles[id]; seen {
		return
	}
	var prior *entity.Vehicle
	if v, ok := s.vehicles[id]; ok {
		cp := *v
		prior = &cp
	}
	u.vehicles[id] = prior
}

func (u *undoLog) product(s *Store, id string) {
	if u == nil {
		return
	}
	if _, seen := u.products[id]; seen {
		return
	}
	var prior *entity.Product
	if p, ok := s.products[id]; ok {
		cp := *p
		prior = &cp
	}
	u.products[id] = prior
}

func (u *undoLog) proforma(s *Store, id string) {
	if u == nil {
		return
	}
	if _, seen := u.proformas[id]; seen {
		return
	}
	var prior *entity.Proforma
	if p, ok := s.proformas[id]; ok {
		prior = copyProforma(p)
	}
	u.proformas[id] = prior
}

func (u *undoLog) invoice(s *Store, id string) {
	if u == nil {
		return
	}
	if _, seen := u.invoices[id]; seen {
		return
	}
	var prior *entity.Invoice
	if inv, ok := s.invoices[id]; ok {
		prior = copyInvoice(inv)
	}
	u.invoices[id] = prior
}

func (u *undoLog) sequence(s *Store, k seqKey) {
	if u == nil {
		return
	}
	if _, seen := u.sequences[k]; seen {
		return
	}
	v, ok := s.sequences[k]
	u.sequences[k] = seqPrior{value: v, exists: ok}
}

func (s *Store) rollback(u *undoLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, prior := range u.vehicles {
		if prior == nil {
			delete(s.vehicles, id)
		} else {
			s.vehicles[id] = prior
		}
	}
	for id, prior := range u.products {
		if prior == nil {
			delete(s.products, id)
		} else {
			s.products[id] = prior
		}
	}
	for id, prior := range u.proformas {
		if prior == nil {
			delete(s.proformas, id)
		} else {
			s.proformas[id] = prior
		}
	}
	for id, prior := range u.invoices {
		if prior == nil {
			delete(s.invoices, id)
		} else {
			s.invoices[id] = prior
		}
	}
	for k, prior := range u.sequences {
		if prior.exists {
			s.sequences[k] = prior.value
		} else {
			delete(s.sequences, k)
		}
	}
}

func copyProforma(p *entity.Proforma) *entity.Proforma {
	cp := *p
	cp.VehicleIDs = append([]string(nil), p.VehicleIDs...)
	return &cp
}

func copyInvoice(inv *entity.Invoice) *entity.Invoice {
	cp := *inv
	cp.Lines = append([]entity.InvoiceLine(nil), inv.Lines...)
	cp.AuthorityResponse = append([]byte(nil), inv.AuthorityResponse...)
	if inv.DueDate != nil {
		d := *inv.DueDate
		cp.DueDate = &d
	}
	if inv.SignedAt != nil {
		t := *inv.SignedAt
		cp.SignedAt = &t
	}
	return &cp
}
