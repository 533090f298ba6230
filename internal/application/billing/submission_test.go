package billing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Concesionario-api/internal/domain"
	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
)

func TestFiscalXML(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	resp, err := e.coord.IssueInvoice(ctx, "u1", request(line("v1", "15000.00")))
	require.NoError(t, err)

	out, err := e.sub.FiscalXML(ctx, resp.ID)
	require.NoError(t, err)
	assert.True(t, out.Validation.Valid, out.Validation.Errors)
	assert.Empty(t, out.Validation.Errors)
	assert.Equal(t, resp.ID, out.InvoiceID)
	assert.Equal(t, resp.Serial, out.Serial)
	assert.Contains(t, out.XML, resp.DocumentHash)
	assert.Contains(t, out.XML, "<sf:NumSerieFactura>"+resp.Number+"</sf:NumSerieFactura>")
	assert.NotContains(t, out.XML, "Signature")

	_, err = e.sub.FiscalXML(ctx, "no-existe")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSubmit_EnvioIdempotente(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	resp, err := e.coord.IssueInvoice(ctx, "u1", request(line("v1", "15000.00")))
	require.NoError(t, err)

	e.authority.FailNext(2)
	out, err := e.sub.Submit(ctx, "u1", resp.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.FiscalStatusSubmitted, out.FiscalStatus)
	require.NotNil(t, out.AuthorityResponse)
	assert.True(t, out.AuthorityResponse.Accepted)
	assert.Equal(t, 3, out.AuthorityResponse.Attempts)
	assert.NotEmpty(t, out.AuthorityResponse.CSV)
	assert.Contains(t, out.SubmittedXML, "ds:Signature")

	again, err := e.sub.Submit(ctx, "u1", resp.ID)
	require.NoError(t, err)
	assert.Equal(t, out.AuthorityResponse.Code, again.AuthorityResponse.Code)
	assert.Equal(t, out.SubmittedXML, again.SubmittedXML)

	inv, err := e.coord.Get(ctx, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.FiscalStatusSubmitted, inv.FiscalStatus)
	require.NotNil(t, inv.Authority)
	assert.Equal(t, out.AuthorityResponse.Code, inv.Authority.Code)
	// el envío no toca el contenido fiscal
	assert.Equal(t, resp.DocumentHash, inv.DocumentHash)
}

func TestSubmit_XMLInvalidoNoSeEnvia(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	req := request(line("", "100.00"))
	req.CustomerID = "x3" // NIF sin formato válido
	resp, err := e.coord.IssueInvoice(ctx, "u1", req)
	require.NoError(t, err)

	out, err := e.sub.FiscalXML(ctx, resp.ID)
	require.NoError(t, err)
	assert.False(t, out.Validation.Valid)

	_, err = e.sub.Submit(ctx, "u1", resp.ID)
	var ferr *domain.FiscalValidationError
	require.ErrorAs(t, err, &ferr)
	assert.NotEmpty(t, ferr.Errors)

	inv, err := e.coord.Get(ctx, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.FiscalStatusError, inv.FiscalStatus)
	assert.Equal(t, resp.Number, inv.Number)
}

func TestSubmit_AutoridadNoDisponible(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	resp, err := e.coord.IssueInvoice(ctx, "u1", request(line("", "100.00")))
	require.NoError(t, err)

	e.authority.FailNext(10)
	_, err = e.sub.Submit(ctx, "u1", resp.ID)
	require.Error(t, err)

	inv, err := e.coord.Get(ctx, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.FiscalStatusError, inv.FiscalStatus)

	// al recuperarse el servicio el reenvío funciona
	e.authority.FailNext(0)
	out, err := e.sub.Submit(ctx, "u1", resp.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.FiscalStatusSubmitted, out.FiscalStatus)
}
