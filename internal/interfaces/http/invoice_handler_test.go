package http_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Concesionario-api/internal/application/dto"
	"github.com/jhoicas/Concesionario-api/internal/domain"
	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
	pkgjwt "github.com/jhoicas/Concesionario-api/pkg/jwt"
)

// invoiceBody factura de un vehículo a 10000 con IGIC 7%. Sin empresa_id: se toma del token.
func invoiceBody(vehicleID string) map[string]any {
	return map[string]any{
		"cliente_id":    "x1",
		"fecha_emision": "2025-03-14",
		"subtotal":      "10000",
		"igic":          "700",
		"total":         "10700",
		"productos": []map[string]any{{
			"coche_id":        vehicleID,
			"cantidad":        "1",
			"precio_unitario": "10000",
			"igic":            "700",
			"subtotal":        "10000",
			"total":           "10700",
		}},
	}
}

func TestInvoiceHandler_CrearYConsultar(t *testing.T) {
	app, store := newAPI(t)
	ctx := context.Background()
	tok := bearer(t, "c1", pkgjwt.RoleFacturacion)

	var created dto.IssueInvoiceResponse
	require.Equal(t, http.StatusCreated, call(t, app, http.MethodPost, "/api/invoices", tok, invoiceBody("v1"), &created))
	assert.Equal(t, "F2025-00001", created.Number)
	assert.NotEmpty(t, created.Serial)
	assert.NotEmpty(t, created.DocumentHash)
	assert.NotEmpty(t, created.Seal)
	assert.True(t, created.Signed)

	v1, err := store.Vehicles().GetByID(ctx, "v1")
	require.NoError(t, err)
	assert.False(t, v1.Active)
	pf, err := store.Proformas().GetByID(ctx, "pf1")
	require.NoError(t, err)
	assert.Equal(t, entity.ProformaStatePartInvoiced, pf.State)

	var got dto.InvoiceResponse
	require.Equal(t, http.StatusOK, call(t, app, http.MethodGet, "/api/invoices/"+created.ID, tok, nil, &got))
	assert.Equal(t, "c1", got.CompanyID)
	assert.Equal(t, created.Serial, got.Serial)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, "v1", got.Lines[0].VehicleID)

	// vendedor puede leer
	assert.Equal(t, http.StatusOK, call(t, app, http.MethodGet, "/api/invoices/"+created.ID, bearer(t, "c1", pkgjwt.RoleVendedor), nil, nil))
}

func TestInvoiceHandler_Autorizacion(t *testing.T) {
	app, _ := newAPI(t)

	var errResp dto.ErrorResponse
	assert.Equal(t, http.StatusForbidden,
		call(t, app, http.MethodPost, "/api/invoices", bearer(t, "c1", pkgjwt.RoleVendedor), invoiceBody("v1"), &errResp))
	assert.Equal(t, "FORBIDDEN", errResp.Code)

	// empresa_id distinta de la del token
	body := invoiceBody("v1")
	body["empresa_id"] = "c2"
	assert.Equal(t, http.StatusForbidden,
		call(t, app, http.MethodPost, "/api/invoices", bearer(t, "c1", pkgjwt.RoleFacturacion), body, nil))

	var created dto.IssueInvoiceResponse
	require.Equal(t, http.StatusCreated,
		call(t, app, http.MethodPost, "/api/invoices", bearer(t, "c1", pkgjwt.RoleFacturacion), invoiceBody("v1"), &created))

	// factura de otra empresa
	assert.Equal(t, http.StatusForbidden,
		call(t, app, http.MethodGet, "/api/invoices/"+created.ID, bearer(t, "c2", pkgjwt.RoleFacturacion), nil, nil))
	assert.Equal(t, http.StatusOK,
		call(t, app, http.MethodGet, "/api/invoices/"+created.ID, bearer(t, "c2", pkgjwt.RoleAdmin), nil, nil))
}

func TestInvoiceHandler_ErroresDeValidacion(t *testing.T) {
	app, _ := newAPI(t)
	tok := bearer(t, "c1", pkgjwt.RoleFacturacion)

	var errResp dto.ErrorResponse
	assert.Equal(t, http.StatusBadRequest,
		call(t, app, http.MethodPost, "/api/invoices", tok, invoiceBody("v404"), &errResp))
	assert.Equal(t, domain.CodeVehicleNotFound, errResp.Code)
	assert.Equal(t, "productos[0].coche_id", errResp.Field)

	body := invoiceBody("v1")
	body["total"] = "99999"
	errResp = dto.ErrorResponse{}
	assert.Equal(t, http.StatusBadRequest, call(t, app, http.MethodPost, "/api/invoices", tok, body, &errResp))
	assert.Equal(t, domain.CodeInvalidTotals, errResp.Code)

	errResp = dto.ErrorResponse{}
	assert.Equal(t, http.StatusBadRequest, call(t, app, http.MethodPost, "/api/invoices", tok, "no-es-un-objeto", &errResp))
	assert.Equal(t, "INVALID_BODY", errResp.Code)

	assert.Equal(t, http.StatusNotFound, call(t, app, http.MethodGet, "/api/invoices/no-existe", tok, nil, nil))
}

func TestInvoiceHandler_Transiciones(t *testing.T) {
	app, _ := newAPI(t)
	tok := bearer(t, "c1", pkgjwt.RoleFacturacion)

	var created dto.IssueInvoiceResponse
	require.Equal(t, http.StatusCreated, call(t, app, http.MethodPost, "/api/invoices", tok, invoiceBody("v1"), &created))
	base := "/api/invoices/" + created.ID

	var status dto.InvoiceStatusResponse
	require.Equal(t, http.StatusOK, call(t, app, http.MethodPut, base+"/mark-paid", tok, nil, &status))
	assert.Equal(t, entity.PaymentStatusPaid, status.PaymentStatus)
	require.Equal(t, http.StatusOK, call(t, app, http.MethodPut, base+"/annul", tok, nil, &status))
	assert.Equal(t, entity.PaymentStatusAnnulled, status.PaymentStatus)

	var errResp dto.ErrorResponse
	assert.Equal(t, http.StatusConflict, call(t, app, http.MethodPut, base+"/mark-pending", tok, nil, &errResp))
	assert.Equal(t, domain.CodeInvalidState, errResp.Code)

	// las transiciones no tocan la huella
	var integrity dto.IntegrityResponse
	require.Equal(t, http.StatusOK, call(t, app, http.MethodGet, base+"/verify", tok, nil, &integrity))
	assert.True(t, integrity.Valid)
	assert.Equal(t, created.DocumentHash, integrity.StoredHash)
	require.NotNil(t, integrity.Signature)
	assert.True(t, integrity.Signature.Valid)

	var history []dto.HistoryEntry
	require.Equal(t, http.StatusOK, call(t, app, http.MethodGet, base+"/history", tok, nil, &history))
	ops := make([]string, 0, len(history))
	for _, h := range history {
		ops = append(ops, h.Operation)
	}
	assert.Equal(t, []string{"crear", "firmar", "marcar_pagada", "anular"}, ops)
}

func TestInvoiceHandler_FirmaYEnvioFiscal(t *testing.T) {
	app, _ := newAPI(t)
	tok := bearer(t, "c1", pkgjwt.RoleFacturacion)

	var created dto.IssueInvoiceResponse
	require.Equal(t, http.StatusCreated, call(t, app, http.MethodPost, "/api/invoices", tok, invoiceBody("v1"), &created))
	base := "/api/invoices/" + created.ID

	var signed dto.SignInvoiceResponse
	require.Equal(t, http.StatusOK, call(t, app, http.MethodPost, base+"/sign", tok, nil, &signed))
	assert.True(t, signed.AlreadySigned)

	var fx dto.FiscalXMLResponse
	require.Equal(t, http.StatusOK, call(t, app, http.MethodGet, base+"/fiscal-xml", tok, nil, &fx))
	assert.True(t, fx.Validation.Valid, fx.Validation.Errors)
	assert.Equal(t, created.Serial, fx.Serial)
	assert.NotContains(t, fx.XML, "ds:Signature")

	var sent dto.SubmitResponse
	require.Equal(t, http.StatusOK, call(t, app, http.MethodPost, base+"/submit", tok, nil, &sent))
	assert.Equal(t, entity.FiscalStatusSubmitted, sent.FiscalStatus)
	require.NotNil(t, sent.AuthorityResponse)
	assert.True(t, sent.AuthorityResponse.Accepted)
	assert.Contains(t, sent.SubmittedXML, "ds:Signature")

	// segundo envío devuelve la respuesta almacenada
	var again dto.SubmitResponse
	require.Equal(t, http.StatusOK, call(t, app, http.MethodPost, base+"/submit", tok, nil, &again))
	assert.Equal(t, sent.AuthorityResponse.Code, again.AuthorityResponse.Code)
}
