package certstore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/metrics"
	"github.com/jhoicas/Concesionario-api/pkg/logger"
)

// Registry descubre los certificados de identidad disponibles en el host
// (directorio del almacén) y los mantiene en caché hasta un Refresh explícito.
// Un fallo de enumeración nunca se propaga: se registra y se devuelve lista vacía.
type Registry struct {
	dir      string
	password string
	log      *logger.Logger
	metrics  *metrics.Metrics

	mu      sync.RWMutex
	entries []*Entry
	loaded  bool

	group singleflight.Group
}

// Option configura el Registry.
type Option func(*Registry)

// WithMetrics publica el número de certificados descubiertos.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry crea el registro sobre dir. password se prueba con los .p12/.pfx.
func NewRegistry(dir, password string, log *logger.Logger, opts ...Option) *Registry {
	r := &Registry{dir: dir, password: password, log: log.Component("certstore")}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Discover devuelve los certificados descubiertos (caché tras la primera llamada).
func (r *Registry) Discover(ctx context.Context) []entity.CertificateDescriptor {
	return describeAll(r.load(ctx, false))
}

// Refresh fuerza un nuevo descubrimiento.
func (r *Registry) Refresh(ctx context.Context) []entity.CertificateDescriptor {
	return describeAll(r.load(ctx, true))
}

// Lookup busca por número de serie (hex, sin distinguir mayúsculas) en la caché.
func (r *Registry) Lookup(ctx context.Context, serial string) (*Entry, bool) {
	for _, e := range r.load(ctx, false) {
		if strings.EqualFold(e.Descriptor.Serial, serial) {
			return e, true
		}
	}
	return nil, false
}

func (r *Registry) load(ctx context.Context, force bool) []*Entry {
	if !force {
		r.mu.RLock()
		if r.loaded {
			entries := r.entries
			r.mu.RUnlock()
			return entries
		}
		r.mu.RUnlock()
	}

	// Descubrimientos concurrentes comparten una sola lectura del directorio,
	// desligada de la cancelación de quien la dispare.
	shared := context.WithoutCancel(ctx)
	v, _, _ := r.group.Do("discover", func() (interface{}, error) {
		entries, complete := r.scan(shared)
		r.mu.Lock()
		defer r.mu.Unlock()
		if !complete {
			// Solo se cachea una enumeración terminada.
			return r.entries, nil
		}
		r.entries = entries
		r.loaded = true
		r.metrics.SetCertificatesDiscovered(len(entries))
		return entries, nil
	})
	return v.([]*Entry)
}

// scan recorre el directorio. complete es false si la enumeración se interrumpió
// por el contexto.
func (r *Registry) scan(ctx context.Context) (entries []*Entry, complete bool) {
	if r.dir == "" {
		r.log.Warn().Msg("almacén de certificados no configurado; se usará el certificado de desarrollo")
		return nil, true
	}
	start := time.Now()
	err := filepath.WalkDir(r.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if !pemExts[ext] && !p12Exts[ext] {
			return nil
		}
		loaded, lerr := LoadFile(path, r.password)
		if lerr != nil {
			r.log.Warn().Err(lerr).Str("file", path).Msg("certificado ignorado")
			return nil
		}
		entries = append(entries, loaded...)
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		r.log.Warn().Err(err).Str("dir", r.dir).Msg("enumeración de certificados interrumpida")
		return nil, false
	case errors.Is(err, os.ErrNotExist):
		r.log.Warn().Str("dir", r.dir).Msg("almacén de certificados no encontrado")
		return nil, true
	default:
		r.log.Warn().Err(err).Str("dir", r.dir).Msg("enumeración de certificados fallida")
		return nil, true
	}

	entries = dedupe(entries)
	r.log.Info().Int("count", len(entries)).Dur("elapsed", time.Since(start)).Msg("certificados descubiertos")
	return entries, true
}

// dedupe un mismo certificado puede estar en .pem y .p12; se prefiere la copia con clave.
func dedupe(entries []*Entry) []*Entry {
	bySerial := make(map[string]*Entry, len(entries))
	order := make([]string, 0, len(entries))
	for _, e := range entries {
		key := e.Descriptor.Fingerprint
		prev, ok := bySerial[key]
		if !ok {
			order = append(order, key)
			bySerial[key] = e
			continue
		}
		if prev.Key == nil && e.Key != nil {
			bySerial[key] = e
		}
	}
	out := make([]*Entry, 0, len(order))
	for _, k := range order {
		out = append(out, bySerial[k])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Descriptor.NotAfter.After(out[j].Descriptor.NotAfter)
	})
	return out
}

func describeAll(entries []*Entry) []entity.CertificateDescriptor {
	out := make([]entity.CertificateDescriptor, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Descriptor)
	}
	return out
}
