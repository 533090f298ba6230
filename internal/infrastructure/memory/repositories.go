package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/Concesionario-api/internal/domain"
	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
	"github.com/jhoicas/Concesionario-api/internal/domain/repository"
	"github.com/jhoicas/Concesionario-api/pkg/aeat"
)

var (
	_ repository.CompanyRepository            = (*CompanyRepo)(nil)
	_ repository.CustomerRepository           = (*CustomerRepo)(nil)
	_ repository.VehicleRepository            = (*VehicleRepo)(nil)
	_ repository.ProductRepository            = (*ProductRepo)(nil)
	_ repository.ProformaRepository           = (*ProformaRepo)(nil)
	_ repository.InvoiceRepository            = (*InvoiceRepo)(nil)
	_ repository.LegacyLineRepository         = (*InvoiceRepo)(nil)
	_ repository.CertificateBindingRepository = (*BindingRepo)(nil)
	_ repository.SignatureArtifactRepository  = (*ArtifactRepo)(nil)
	_ repository.AuditRepository              = (*AuditRepo)(nil)
)

// CompanyRepo empresas.
type CompanyRepo struct{ s *Store }

func (r *CompanyRepo) GetByID(_ context.Context, id string) (*entity.Company, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.companies[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

// CustomerRepo clientes.
type CustomerRepo struct{ s *Store }

func (r *CustomerRepo) GetByID(_ context.Context, id string) (*entity.Customer, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.customers[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

// VehicleRepo inventario.
type VehicleRepo struct {
	s    *Store
	undo *undoLog
}

func (r *VehicleRepo) GetByID(_ context.Context, id string) (*entity.Vehicle, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	v, ok := r.s.vehicles[id]
	if !ok {
		return nil, nil
	}
	cp := *v
	return &cp, nil
}

func (r *VehicleRepo) GetByPlate(_ context.Context, companyID, plate string) (*entity.Vehicle, error) {
	want := aeat.NormalizePlate(plate)
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, v := range r.s.vehicles {
		if v.CompanyID == companyID && aeat.NormalizePlate(v.Plate) == want {
			cp := *v
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *VehicleRepo) Deactivate(_ context.Context, id, invoiceID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.vehicles[id]
	if !ok || !v.Active {
		return fmt.Errorf("vehículo %s: %w", id, domain.ErrConflict)
	}
	r.undo.vehicle(r.s, id)
	v.Active = false
	sold := at
	v.SoldAt = &sold
	v.SoldInvoiceID = invoiceID
	v.UpdatedAt = at
	return nil
}

// ProductRepo catálogo.
type ProductRepo struct {
	s    *Store
	undo *undoLog
}

func (r *ProductRepo) DeactivateByVehicle(_ context.Context, vehicleID string, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, p := range r.s.products {
		if p.VehicleID == vehicleID && p.Active {
			r.undo.product(r.s, p.ID)
			p.Active = false
			p.UpdatedAt = at
			n++
		}
	}
	return n, nil
}

// ProformaRepo proformas.
type ProformaRepo struct {
	s    *Store
	undo *undoLog
}

func (r *ProformaRepo) GetByID(_ context.Context, id string) (*entity.Proforma, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.proformas[id]
	if !ok {
		return nil, nil
	}
	return copyProforma(p), nil
}

func (r *ProformaRepo) ListByVehicleIDs(_ context.Context, vehicleIDs []string) ([]*entity.Proforma, error) {
	want := make(map[string]bool, len(vehicleIDs))
	for _, id := range vehicleIDs {
		want[id] = true
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*entity.Proforma
	for _, p := range r.s.proformas {
		for _, v := range p.VehicleIDs {
			if want[v] {
				out = append(out, copyProforma(p))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *ProformaRepo) UpdateState(_ context.Context, id, state, note string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.proformas[id]
	if !ok {
		return fmt.Errorf("proforma %s no encontrada", id)
	}
	r.undo.proforma(r.s, id)
	p.State = state
	if p.Notes == "" {
		p.Notes = note
	} else {
		p.Notes += "\n" + note
	}
	p.UpdatedAt = at
	return nil
}

// InvoiceRepo facturas con las mismas restricciones de unicidad que el esquema SQL.
type InvoiceRepo struct {
	s    *Store
	undo *undoLog
}

func (r *InvoiceRepo) NextNumber(_ context.Context, companyID string, year int) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := seqKey{companyID: companyID, year: year}
	r.undo.sequence(r.s, k)
	r.s.sequences[k]++
	return r.s.sequences[k], nil
}

func (r *InvoiceRepo) NumberExists(_ context.Context, companyID string, year int, number string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, inv := range r.s.invoices {
		if inv.CompanyID == companyID && inv.Year == year && inv.Number == number {
			return true, nil
		}
	}
	return false, nil
}

func (r *InvoiceRepo) Create(_ context.Context, inv *entity.Invoice) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	for _, other := range r.s.invoices {
		if other.Serial == inv.Serial ||
			(other.CompanyID == inv.CompanyID && other.Year == inv.Year && other.Number == inv.Number) {
			return fmt.Errorf("factura %s: %w", inv.Number, domain.ErrDuplicate)
		}
	}
	used := r.invoicedLocked()
	for i := range inv.Lines {
		l := &inv.Lines[i]
		if l.VehicleID != "" && used[l.VehicleID] {
			return &domain.ConflictError{
				Code:    domain.CodeVehicleAlreadyInvoiced,
				Field:   fmt.Sprintf("productos[%d].coche_id", i),
				Message: "el vehículo ya figura en otra factura",
			}
		}
		if l.ID == "" {
			l.ID = uuid.New().String()
		}
		l.InvoiceID = inv.ID
	}
	r.undo.invoice(r.s, inv.ID)
	r.s.invoices[inv.ID] = copyInvoice(inv)
	return nil
}

func (r *InvoiceRepo) GetByID(_ context.Context, id string) (*entity.Invoice, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	inv, ok := r.s.invoices[id]
	if !ok {
		return nil, nil
	}
	return copyInvoice(inv), nil
}

func (r *InvoiceRepo) invoicedLocked() map[string]bool {
	used := map[string]bool{}
	for _, inv := range r.s.invoices {
		for _, l := range inv.Lines {
			if l.VehicleID != "" {
				used[l.VehicleID] = true
			}
		}
	}
	return used
}

func (r *InvoiceRepo) InvoicedVehicleIDs(_ context.Context, vehicleIDs []string) (map[string]bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	used := r.invoicedLocked()
	out := make(map[string]bool, len(vehicleIDs))
	for _, id := range vehicleIDs {
		if used[id] {
			out[id] = true
		}
	}
	return out, nil
}

func (r *InvoiceRepo) update(id string, fn func(inv *entity.Invoice) error) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.invoices[id]
	if !ok {
		return domain.ErrNotFound
	}
	return fn(inv)
}

func (r *InvoiceRepo) UpdatePaymentStatus(_ context.Context, id, from, to string, at time.Time) error {
	return r.update(id, func(inv *entity.Invoice) error {
		if inv.PaymentStatus != from {
			return fmt.Errorf("factura %s ya no está %s: %w", id, from, domain.ErrConflict)
		}
		r.undo.invoice(r.s, id)
		inv.PaymentStatus = to
		inv.UpdatedAt = at
		return nil
	})
}

func (r *InvoiceRepo) SetSignature(_ context.Context, id, signatureHash string, at time.Time) error {
	return r.update(id, func(inv *entity.Invoice) error {
		r.undo.invoice(r.s, id)
		inv.SignatureHash = signatureHash
		signed := at
		inv.SignedAt = &signed
		inv.UpdatedAt = at
		return nil
	})
}

func (r *InvoiceRepo) SetFiscalResult(_ context.Context, id, status, xml string, response json.RawMessage, at time.Time) error {
	return r.update(id, func(inv *entity.Invoice) error {
		r.undo.invoice(r.s, id)
		inv.FiscalStatus = status
		inv.SubmittedXML = xml
		inv.AuthorityResponse = append(json.RawMessage(nil), response...)
		inv.UpdatedAt = at
		return nil
	})
}

func (r *InvoiceRepo) ListLinesWithoutVehicle(_ context.Context, limit int) ([]repository.LegacyLine, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	invs := make([]*entity.Invoice, 0, len(r.s.invoices))
	for _, inv := range r.s.invoices {
		invs = append(invs, inv)
	}
	sort.Slice(invs, func(i, j int) bool { return invs[i].CreatedAt.Before(invs[j].CreatedAt) })
	var out []repository.LegacyLine
	for _, inv := range invs {
		for _, l := range inv.Lines {
			if l.VehicleID != "" || l.Description == "" {
				continue
			}
			if len(out) == limit {
				return out, nil
			}
			out = append(out, repository.LegacyLine{LineID: l.ID, InvoiceID: inv.ID, CompanyID: inv.CompanyID, Description: l.Description})
		}
	}
	return out, nil
}

func (r *InvoiceRepo) SetLineVehicle(_ context.Context, lineID, vehicleID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.invoicedLocked()[vehicleID] {
		return fmt.Errorf("vehículo %s ya enlazado: %w", vehicleID, domain.ErrDuplicate)
	}
	for _, inv := range r.s.invoices {
		for i := range inv.Lines {
			if inv.Lines[i].ID == lineID && inv.Lines[i].VehicleID == "" {
				r.undo.invoice(r.s, inv.ID)
				inv.Lines[i].VehicleID = vehicleID
				return nil
			}
		}
	}
	return domain.ErrNotFound
}

// BindingRepo vinculaciones certificado-empresa.
type BindingRepo struct{ s *Store }

func (r *BindingRepo) Upsert(_ context.Context, b *entity.CertificateBinding) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *b
	r.s.bindings[b.CompanyID] = &cp
	return nil
}

func (r *BindingRepo) GetByCompany(_ context.Context, companyID string) (*entity.CertificateBinding, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.bindings[companyID]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

// ArtifactRepo almacén append-only de firmas.
type ArtifactRepo struct{ s *Store }

func (r *ArtifactRepo) Append(_ context.Context, a *entity.SignatureArtifact) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.artifacts {
		if strings.EqualFold(e.DocumentHash, a.DocumentHash) && e.SignedAt.Equal(a.SignedAt) {
			return domain.ErrDuplicate
		}
	}
	cp := *a
	cp.DocumentHash = strings.ToUpper(a.DocumentHash)
	r.s.artifacts = append(r.s.artifacts, &cp)
	return nil
}

func (r *ArtifactRepo) ListByHash(_ context.Context, documentHash string) ([]*entity.SignatureArtifact, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*entity.SignatureArtifact
	for _, e := range r.s.artifacts {
		if strings.EqualFold(e.DocumentHash, documentHash) {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SignedAt.Before(out[j].SignedAt) })
	return out, nil
}

func (r *ArtifactRepo) List(_ context.Context) ([]*entity.SignatureArtifact, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*entity.SignatureArtifact, 0, len(r.s.artifacts))
	for _, e := range r.s.artifacts {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SignedAt.Before(out[j].SignedAt) })
	return out, nil
}

// AuditRepo historial.
type AuditRepo struct{ s *Store }

func (r *AuditRepo) Append(_ context.Context, e *entity.AuditEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *e
	r.s.audit = append(r.s.audit, &cp)
	return nil
}

func (r *AuditRepo) ListByEntity(_ context.Context, entityName, entityID string) ([]*entity.AuditEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*entity.AuditEntry
	for _, e := range r.s.audit {
		if e.Entity == entityName && e.EntityID == entityID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}
