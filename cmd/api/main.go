package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jhoicas/Concesionario-api/internal/application/billing"
	"github.com/jhoicas/Concesionario-api/internal/application/certificates"
	"github.com/jhoicas/Concesionario-api/internal/domain/fiscal"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/aeat"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/audit"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/cache"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/certstore"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/metrics"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/signature"
	httpRouter "github.com/jhoicas/Concesionario-api/internal/interfaces/http"
	"github.com/jhoicas/Concesionario-api/pkg/config"
	"github.com/jhoicas/Concesionario-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.Log,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("store", cfg.App.Store).
		Msg("iniciando aplicación")

	ctx := context.Background()
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	st, closeStore, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("almacén de datos")
	}
	defer closeStore()

	artifacts, err := openArtifacts(ctx, cfg, st)
	if err != nil {
		log.Fatal().Err(err).Msg("almacén de firmas")
	}

	// Redis es opcional: sin REDIS_URL no hay listados cacheados que invalidar.
	var invalidator cache.Invalidator = cache.NopInvalidator{}
	redisClient, err := cache.Connect(ctx, cfg.Redis.URL)
	if err != nil {
		log.Warn().Err(err).Msg("redis no disponible; invalidación de caché desactivada")
	} else if redisClient != nil {
		defer redisClient.Close()
		invalidator = cache.NewRedisInvalidator(redisClient, log, m)
	}

	devCustody, err := signature.DevelopmentCustody(cfg.Certs.DevCertPath, cfg.Certs.DevKeyPath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("certificado de desarrollo")
	}
	registry := certstore.NewRegistry(cfg.Certs.StoreDir, cfg.Certs.StorePassword, log, certstore.WithMetrics(m))
	engine := signature.NewEngine(artifacts, log, signature.WithEngineMetrics(m))
	recorder := audit.NewRecorder(st.audit, log)
	certSvc := certificates.NewService(registry, st.companies, st.bindings, engine, devCustody, recorder, log)

	coordinator := billing.NewCoordinator(
		st.companies, st.customers, st.vehicles, st.proformas, st.invoices,
		st.txRunner, fiscal.NewEngine(), certSvc, invalidator, recorder, m, log,
	)

	submitter := aeat.NewRetryingSubmitter(
		aeat.NewSimulatedAuthority(), cfg.AEAT.SubmitTimeout, cfg.AEAT.MaxRetries, log,
		aeat.WithSubmitMetrics(m),
	)
	submission := billing.NewSubmissionService(
		st.invoices, st.companies, st.customers,
		aeat.NewXMLBuilder(cfg.AEAT.SoftwareName, cfg.AEAT.SoftwareNIF), aeat.NewValidator(), aeat.NewXAdESSigner(),
		submitter, certSvc, invalidator, recorder, log,
	)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 30,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Concesionario API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		Coordinator:  coordinator,
		Submission:   submission,
		Certificates: certSvc,
		JWTSecret:    cfg.JWT.Secret,
		Log:          log,
		Gatherer:     reg,
	})

	// Descubrimiento inicial fuera del camino de la primera petición.
	go registry.Discover(ctx)

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
