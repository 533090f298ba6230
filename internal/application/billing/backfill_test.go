package billing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Concesionario-api/internal/application/billing"
	"github.com/jhoicas/Concesionario-api/internal/application/dto"
	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
	"github.com/jhoicas/Concesionario-api/pkg/logger"
)

func TestBackfillVehicleRefs(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.coord.IssueInvoice(ctx, "u1", request(line("v1", "10000")))
	require.NoError(t, err)

	legacy := func(desc string) dto.InvoiceLineRequest {
		l := line("", "100")
		l.Description = desc
		return l
	}
	legacyResp, err := e.coord.IssueInvoice(ctx, "u1", request(
		legacy("Seat Ibiza matrícula 5678-FGH"),
		legacy("Alfombrillas"),
		legacy("Seat Ibiza 1234 BCD"),
		legacy("Opel Corsa 9999XYZ"),
	))
	require.NoError(t, err)

	rep, err := billing.BackfillVehicleRefs(ctx, e.store.Invoices(), e.store.Vehicles(), e.store.TxRunner(), 100, true, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Scanned)
	assert.Equal(t, 2, rep.Linked, "en simulación v1 aún no se detecta como duplicado")

	rep, err = billing.BackfillVehicleRefs(ctx, e.store.Invoices(), e.store.Vehicles(), e.store.TxRunner(), 100, false, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, billing.BackfillReport{Scanned: 4, Linked: 1, NoPlate: 1, NotFound: 1, Duplicates: 1}, rep)

	inv, err := e.coord.Get(ctx, legacyResp.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", inv.Lines[0].VehicleID)
	assert.Empty(t, inv.Lines[1].VehicleID)

	// el vehículo enlazado queda vendido y la proforma que lo contiene se recalcula
	v2, err := e.store.Vehicles().GetByID(ctx, "v2")
	require.NoError(t, err)
	assert.False(t, v2.Active)
	assert.Equal(t, legacyResp.ID, v2.SoldInvoiceID)
	pf1, err := e.store.Proformas().GetByID(ctx, "pf1")
	require.NoError(t, err)
	assert.Equal(t, entity.ProformaStateInvoiced, pf1.State)

	// segunda pasada: solo quedan las no resueltas
	rep, err = billing.BackfillVehicleRefs(ctx, e.store.Invoices(), e.store.Vehicles(), e.store.TxRunner(), 100, false, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Scanned)
	assert.Equal(t, 0, rep.Linked)
}
