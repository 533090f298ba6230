package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics observabilidad de emisión, firma y envío fiscal.
// Todos los métodos aceptan receptor nil (componentes sin métricas en tests).
type Metrics struct {
	// Emisiones por resultado: ok, validation, conflict, error
	InvoicesIssued *prometheus.CounterVec

	// Latencia completa de la emisión
	IssuanceLatency prometheus.Histogram

	// Firmas por algoritmo y si usaron el certificado de desarrollo
	Signatures *prometheus.CounterVec

	// Envíos a la autoridad por estado
	Submissions *prometheus.CounterVec

	// Certificados encontrados en el último descubrimiento
	CertificatesDiscovered prometheus.Gauge

	// Invalidaciones de caché por resultado
	CacheInvalidations *prometheus.CounterVec
}

// New registra las métricas en reg. Con nil se usa el registro global.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		InvoicesIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "concesionario_invoices_issued_total",
			Help: "Total de emisiones de factura por resultado",
		}, []string{"outcome"}),

		IssuanceLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "concesionario_invoice_issuance_duration_seconds",
			Help:    "Duración de la emisión de una factura (validación a firma)",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		Signatures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "concesionario_signatures_total",
			Help: "Firmas producidas por algoritmo y origen del certificado",
		}, []string{"algorithm", "development"}),

		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "concesionario_fiscal_submissions_total",
			Help: "Envíos a la autoridad tributaria por estado",
		}, []string{"status"}),

		CertificatesDiscovered: f.NewGauge(prometheus.GaugeOpts{
			Name: "concesionario_certificates_discovered",
			Help: "Certificados encontrados en el último descubrimiento",
		}),

		CacheInvalidations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "concesionario_cache_invalidations_total",
			Help: "Invalidaciones de listados cacheados por resultado",
		}, []string{"result"}),
	}
}

// ObserveIssuance registra el resultado y la duración de una emisión.
func (m *Metrics) ObserveIssuance(outcome string, d time.Duration) {
	if m != nil {
		m.InvoicesIssued.WithLabelValues(outcome).Inc()
		m.IssuanceLatency.Observe(d.Seconds())
	}
}

// IncSignature cuenta una firma producida.
func (m *Metrics) IncSignature(algorithm string, development bool) {
	if m != nil {
		dev := "false"
		if development {
			dev = "true"
		}
		m.Signatures.WithLabelValues(algorithm, dev).Inc()
	}
}

// IncSubmission cuenta un envío por estado final.
func (m *Metrics) IncSubmission(status string) {
	if m != nil {
		m.Submissions.WithLabelValues(status).Inc()
	}
}

// SetCertificatesDiscovered fija el número de certificados del último descubrimiento.
func (m *Metrics) SetCertificatesDiscovered(n int) {
	if m != nil {
		m.CertificatesDiscovered.Set(float64(n))
	}
}

// IncCacheInvalidation cuenta una invalidación (ok | error).
func (m *Metrics) IncCacheInvalidation(result string) {
	if m != nil {
		m.CacheInvalidations.WithLabelValues(result).Inc()
	}
}
