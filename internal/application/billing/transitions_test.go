package billing_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Concesionario-api/internal/application/billing"
	"github.com/jhoicas/Concesionario-api/internal/domain"
	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
	"github.com/jhoicas/Concesionario-api/internal/domain/fiscal"
	"github.com/jhoicas/Concesionario-api/internal/domain/repository"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/audit"
	"github.com/jhoicas/Concesionario-api/pkg/logger"
)

// gatedInvoices detiene el primer paso a "pagada" hasta que se cierre release.
type gatedInvoices struct {
	repository.InvoiceRepository
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedInvoices) UpdatePaymentStatus(ctx context.Context, id, from, to string, at time.Time) error {
	if to == entity.PaymentStatusPaid {
		g.once.Do(func() {
			close(g.entered)
			<-g.release
		})
	}
	return g.InvoiceRepository.UpdatePaymentStatus(ctx, id, from, to, at)
}

func TestTransiciones_AnulacionConcurrenteEsTerminal(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	resp, err := e.coord.IssueInvoice(ctx, "u1", request(line("v1", "15000.00")))
	require.NoError(t, err)

	log := logger.Nop()
	gated := &gatedInvoices{
		InvoiceRepository: e.store.Invoices(),
		entered:           make(chan struct{}),
		release:           make(chan struct{}),
	}
	coord := billing.NewCoordinator(
		e.store.Companies(), e.store.Customers(), e.store.Vehicles(), e.store.Proformas(), gated,
		e.store.TxRunner(), fiscal.NewEngine(), e.signer, nil, audit.NewRecorder(e.store.Audit(), log), nil, log,
	)

	paidErr := make(chan error, 1)
	go func() {
		_, err := coord.MarkPaid(ctx, "u2", resp.ID)
		paidErr <- err
	}()

	// MarkPaid ya leyó "pendiente"; la anulación se completa antes de su escritura.
	<-gated.entered
	st, err := coord.Annul(ctx, "u3", resp.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentStatusAnnulled, st.PaymentStatus)
	close(gated.release)

	err = <-paidErr
	var cerr *domain.ConflictError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, domain.CodeInvalidState, cerr.Code)

	inv, err := e.store.Invoices().GetByID(ctx, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentStatusAnnulled, inv.PaymentStatus)

	hist, err := e.coord.History(ctx, resp.ID)
	require.NoError(t, err)
	ops := make([]string, 0, len(hist))
	for _, h := range hist {
		ops = append(ops, h.Operation)
	}
	assert.NotContains(t, ops, audit.OpMarkPaid)
}

func TestTransiciones_CarreraMismoDestinoEsIdempotente(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	resp, err := e.coord.IssueInvoice(ctx, "u1", request(line("v1", "15000.00")))
	require.NoError(t, err)

	log := logger.Nop()
	gated := &gatedInvoices{
		InvoiceRepository: e.store.Invoices(),
		entered:           make(chan struct{}),
		release:           make(chan struct{}),
	}
	coord := billing.NewCoordinator(
		e.store.Companies(), e.store.Customers(), e.store.Vehicles(), e.store.Proformas(), gated,
		e.store.TxRunner(), fiscal.NewEngine(), e.signer, nil, audit.NewRecorder(e.store.Audit(), log), nil, log,
	)

	paidErr := make(chan error, 1)
	go func() {
		_, err := coord.MarkPaid(ctx, "u2", resp.ID)
		paidErr <- err
	}()

	<-gated.entered
	_, err = e.coord.MarkPaid(ctx, "u3", resp.ID)
	require.NoError(t, err)
	close(gated.release)

	require.NoError(t, <-paidErr)
	inv, err := e.store.Invoices().GetByID(ctx, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentStatusPaid, inv.PaymentStatus)
}
