package fiscal

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SerialPrefix prefijo de los números de serie fiscales.
const SerialPrefix = "NS"

// Engine asigna series, sella y calcula la huella y el código fiscal.
// Es puro salvo por el reloj y la fuente de entropía, inyectables en tests.
type Engine struct {
	now     func() time.Time
	entropy func() string
}

// Option configura el Engine.
type Option func(*Engine)

// WithClock sustituye el reloj.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithEntropy sustituye la fuente de entropía de las series.
func WithEntropy(fn func() string) Option {
	return func(e *Engine) { e.entropy = fn }
}

// NewEngine crea el motor con reloj del sistema y entropía UUIDv4.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		now:     time.Now,
		entropy: uuid.NewString,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// AllocateSerial deriva una serie opaca a partir de empresa, número y entropía.
// No garantiza unicidad por sí sola: la restricción única en el almacén decide
// y el llamador reintenta con una serie nueva.
func (e *Engine) AllocateSerial(companyID, invoiceNumber string) string {
	sum := sha256.Sum256([]byte(companyID + fieldSep + invoiceNumber + fieldSep + e.entropy()))
	return SerialPrefix + "-" + strings.ToUpper(hex.EncodeToString(sum[:10]))
}

// Seal captura el instante de emisión. Se trunca a microsegundos para que la
// huella se pueda recalcular tras guardar en PostgreSQL (timestamptz).
func (e *Engine) Seal() time.Time {
	return e.now().UTC().Truncate(time.Microsecond)
}

// Now reloj del motor (fecha de emisión por defecto).
func (e *Engine) Now() time.Time {
	return e.now()
}

// Hash huella del payload con el sellado incluido.
func (e *Engine) Hash(p Payload, seal time.Time) string {
	return ComputeHash(p, seal)
}

// FiscalCode código de referencia (payload del QR): serie, sellado compacto y prefijo de la huella.
func (e *Engine) FiscalCode(serial, hash string, seal time.Time) string {
	short := hash
	if len(short) > 12 {
		short = short[:12]
	}
	return fmt.Sprintf("VF-%s-%s-%s", strings.TrimPrefix(serial, SerialPrefix+"-"), seal.UTC().Format("20060102150405"), short)
}

// Verify recalcula la huella y la compara con la almacenada.
func (e *Engine) Verify(p Payload, seal time.Time, stored string) (bool, string) {
	computed := ComputeHash(p, seal)
	return strings.EqualFold(computed, stored), computed
}

// FormatNumber número legible por defecto: F<año>-<secuencia de 5 dígitos>.
func FormatNumber(year int, seq int64) string {
	return fmt.Sprintf("F%d-%05d", year, seq)
}
