package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jhoicas/Concesionario-api/internal/application/billing"
	"github.com/jhoicas/Concesionario-api/internal/application/certificates"
	"github.com/jhoicas/Concesionario-api/pkg/jwt"
	"github.com/jhoicas/Concesionario-api/pkg/logger"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Coordinator  *billing.Coordinator
	Submission   *billing.SubmissionService
	Certificates *certificates.Service
	JWTSecret    string
	Log          *logger.Logger
	// Gatherer origen de /metrics; nil omite la ruta.
	Gatherer prometheus.Gatherer
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	if deps.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api")

	// Rutas protegidas (requieren Bearer Token)
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret))

	readers := RequireRole(jwt.RoleAdmin, jwt.RoleFacturacion, jwt.RoleVendedor)
	billers := RequireRole(jwt.RoleAdmin, jwt.RoleFacturacion)
	admins := RequireRole(jwt.RoleAdmin)

	// Invoices
	invoices := protected.Group("/invoices")
	invoiceHandler := NewInvoiceHandler(deps.Coordinator, deps.Submission, deps.Log)
	invoices.Post("/", billers, invoiceHandler.Create)
	invoices.Get("/:id", readers, invoiceHandler.GetByID)
	invoices.Get("/:id/fiscal-xml", billers, invoiceHandler.FiscalXML)
	invoices.Post("/:id/submit", billers, invoiceHandler.Submit)
	invoices.Put("/:id/mark-paid", billers, invoiceHandler.MarkPaid)
	invoices.Put("/:id/mark-pending", billers, invoiceHandler.MarkPending)
	invoices.Put("/:id/annul", billers, invoiceHandler.Annul)
	invoices.Get("/:id/verify", readers, invoiceHandler.Verify)
	invoices.Post("/:id/sign", billers, invoiceHandler.Sign)
	invoices.Get("/:id/history", billers, invoiceHandler.History)

	// Certificates del host
	certHandler := NewCertificateHandler(deps.Certificates, deps.Log)
	certs := protected.Group("/certificates")
	certs.Get("/", billers, certHandler.List)
	certs.Post("/refresh", admins, certHandler.Refresh)

	// Certificado de la empresa
	scoped := RequireCompanyScope("id")
	companies := protected.Group("/companies")
	companies.Get("/:id/certificates", billers, scoped, certHandler.Rank)
	companies.Get("/:id/certificates/recommended", billers, scoped, certHandler.Recommended)
	companies.Get("/:id/certificate", billers, scoped, certHandler.Binding)
	companies.Put("/:id/certificate", admins, scoped, certHandler.Bind)
	companies.Post("/:id/sign", billers, scoped, certHandler.Sign)

	protected.Post("/signatures/verify", readers, certHandler.Verify)
}
