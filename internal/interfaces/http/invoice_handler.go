package http

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/Concesionario-api/internal/application/billing"
	"github.com/jhoicas/Concesionario-api/internal/application/dto"
	"github.com/jhoicas/Concesionario-api/pkg/jwt"
	"github.com/jhoicas/Concesionario-api/pkg/logger"
)

// InvoiceHandler maneja las peticiones HTTP de facturación (protegido).
type InvoiceHandler struct {
	coord      *billing.Coordinator
	submission *billing.SubmissionService
	log        *logger.Logger
}

// NewInvoiceHandler construye el handler.
func NewInvoiceHandler(coord *billing.Coordinator, submission *billing.SubmissionService, log *logger.Logger) *InvoiceHandler {
	return &InvoiceHandler{coord: coord, submission: submission, log: log}
}

// Create emite una factura: numeración, sellado, baja de vehículos, proformas y firma.
// POST /api/invoices
func (h *InvoiceHandler) Create(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	userID := GetUserID(c)
	if companyID == "" || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	var in dto.CreateInvoiceRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	if in.CompanyID == "" {
		in.CompanyID = companyID
	}
	if in.CompanyID != companyID && GetRole(c) != jwt.RoleAdmin {
		return forbidden(c)
	}
	resp, err := h.coord.IssueInvoice(c.Context(), userID, in)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// GetByID detalle completo de la factura.
// GET /api/invoices/:id
func (h *InvoiceHandler) GetByID(c *fiber.Ctx) error {
	inv, err := h.owned(c)
	if err != nil || inv == nil {
		return err
	}
	return c.JSON(inv)
}

// FiscalXML registro de alta sin firmar y su validación.
// GET /api/invoices/:id/fiscal-xml
func (h *InvoiceHandler) FiscalXML(c *fiber.Ctx) error {
	inv, err := h.owned(c)
	if err != nil || inv == nil {
		return err
	}
	resp, err := h.submission.FiscalXML(c.Context(), inv.ID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(resp)
}

// Submit firma el XML y lo envía a la autoridad. Idempotente por número de serie.
// POST /api/invoices/:id/submit
func (h *InvoiceHandler) Submit(c *fiber.Ctx) error {
	inv, err := h.owned(c)
	if err != nil || inv == nil {
		return err
	}
	resp, err := h.submission.Submit(c.Context(), GetUserID(c), inv.ID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(resp)
}

// MarkPaid PUT /api/invoices/:id/mark-paid
func (h *InvoiceHandler) MarkPaid(c *fiber.Ctx) error {
	return h.transition(c, h.coord.MarkPaid)
}

// MarkPending PUT /api/invoices/:id/mark-pending
func (h *InvoiceHandler) MarkPending(c *fiber.Ctx) error {
	return h.transition(c, h.coord.MarkPending)
}

// Annul PUT /api/invoices/:id/annul
func (h *InvoiceHandler) Annul(c *fiber.Ctx) error {
	return h.transition(c, h.coord.Annul)
}

// Verify recalcula la huella y comprueba la firma almacenada.
// GET /api/invoices/:id/verify
func (h *InvoiceHandler) Verify(c *fiber.Ctx) error {
	inv, err := h.owned(c)
	if err != nil || inv == nil {
		return err
	}
	resp, err := h.coord.VerifyIntegrity(c.Context(), inv.ID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(resp)
}

// Sign reintenta la firma de una factura emitida. Nunca crea facturas.
// POST /api/invoices/:id/sign
func (h *InvoiceHandler) Sign(c *fiber.Ctx) error {
	inv, err := h.owned(c)
	if err != nil || inv == nil {
		return err
	}
	resp, err := h.coord.RetrySign(c.Context(), GetUserID(c), inv.ID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(resp)
}

// History auditoría de la factura.
// GET /api/invoices/:id/history
func (h *InvoiceHandler) History(c *fiber.Ctx) error {
	inv, err := h.owned(c)
	if err != nil || inv == nil {
		return err
	}
	entries, err := h.coord.History(c.Context(), inv.ID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(entries)
}

func (h *InvoiceHandler) transition(c *fiber.Ctx, fn func(ctx context.Context, actor, id string) (*dto.InvoiceStatusResponse, error)) error {
	inv, err := h.owned(c)
	if err != nil || inv == nil {
		return err
	}
	resp, err := fn(c.Context(), GetUserID(c), inv.ID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(resp)
}

// owned carga la factura y comprueba que pertenece a la empresa del token.
// Si devuelve nil la respuesta de error ya está escrita.
func (h *InvoiceHandler) owned(c *fiber.Ctx) (*dto.InvoiceResponse, error) {
	id := c.Params("id")
	if id == "" {
		return nil, c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	inv, err := h.coord.Get(c.Context(), id)
	if err != nil {
		return nil, respondError(c, h.log, err)
	}
	if !canAccessCompany(c, inv.CompanyID) {
		return nil, forbidden(c)
	}
	return inv, nil
}
