package http

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/Concesionario-api/internal/application/certificates"
	"github.com/jhoicas/Concesionario-api/internal/application/dto"
	"github.com/jhoicas/Concesionario-api/pkg/logger"
)

// CertificateHandler certificados del host, vínculo con la empresa y firma de documentos.
type CertificateHandler struct {
	svc *certificates.Service
	log *logger.Logger
}

// NewCertificateHandler construye el handler.
func NewCertificateHandler(svc *certificates.Service, log *logger.Logger) *CertificateHandler {
	return &CertificateHandler{svc: svc, log: log}
}

// List certificados descubiertos (caché del registro).
// GET /api/certificates
func (h *CertificateHandler) List(c *fiber.Ctx) error {
	return c.JSON(h.svc.List(c.Context()))
}

// Refresh fuerza un nuevo descubrimiento.
// POST /api/certificates/refresh
func (h *CertificateHandler) Refresh(c *fiber.Ctx) error {
	return c.JSON(h.svc.Refresh(c.Context()))
}

// Rank certificados evaluados para la empresa.
// GET /api/companies/:id/certificates
func (h *CertificateHandler) Rank(c *fiber.Ctx) error {
	ranked, err := h.svc.Rank(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(ranked)
}

// Recommended GET /api/companies/:id/certificates/recommended
func (h *CertificateHandler) Recommended(c *fiber.Ctx) error {
	r, err := h.svc.Recommend(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(r)
}

// Binding vínculo activo de la empresa.
// GET /api/companies/:id/certificate
func (h *CertificateHandler) Binding(c *fiber.Ctx) error {
	b, err := h.svc.Binding(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(b)
}

// Bind vincula un certificado a la empresa; sustituye el vínculo anterior.
// PUT /api/companies/:id/certificate
func (h *CertificateHandler) Bind(c *fiber.Ctx) error {
	var in dto.BindCertificateRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	b, err := h.svc.Bind(c.Context(), GetUserID(c), c.Params("id"), strings.TrimSpace(in.Serial))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(b)
}

// Sign firma un documento JSON arbitrario con la custodia de la empresa.
// POST /api/companies/:id/sign
func (h *CertificateHandler) Sign(c *fiber.Ctx) error {
	var in dto.SignDocumentRequest
	if err := c.BodyParser(&in); err != nil || !validDocument(in.Document) {
		return badBody(c)
	}
	artifact, err := h.svc.SignDocument(c.Context(), GetUserID(c), c.Params("id"), in.Document, "")
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(artifact)
}

// Verify contrasta un artefacto con el documento recibido.
// POST /api/signatures/verify
func (h *CertificateHandler) Verify(c *fiber.Ctx) error {
	var in dto.VerifySignatureRequest
	if err := c.BodyParser(&in); err != nil || in.Artifact == nil || !validDocument(in.Document) {
		return badBody(c)
	}
	return c.JSON(h.svc.VerifyDocument(in.Artifact, in.Document))
}

func validDocument(doc json.RawMessage) bool {
	return len(doc) > 0 && string(doc) != "null" && json.Valid(doc)
}
