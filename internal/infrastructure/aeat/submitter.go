package aeat

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/metrics"
	aeatcat "github.com/jhoicas/Concesionario-api/pkg/aeat"
	"github.com/jhoicas/Concesionario-api/pkg/logger"
)

// ErrUnavailable fallo transitorio de la autoridad; se puede reintentar.
var ErrUnavailable = errors.New("aeat: servicio no disponible")

// Submitter puerto de salida hacia la autoridad tributaria. Debe ser idempotente
// por número de serie: un segundo envío de la misma serie devuelve la respuesta original.
type Submitter interface {
	Submit(ctx context.Context, serial string, xml []byte) (*entity.FiscalSubmissionResult, error)
}

// SimulatedAuthority sustituto determinista del servicio real de la AEAT.
type SimulatedAuthority struct {
	validator *Validator
	now       func() time.Time

	mu        sync.Mutex
	responses map[string]*entity.FiscalSubmissionResult
	failures  int // fallos transitorios pendientes de inyectar
}

var _ Submitter = (*SimulatedAuthority)(nil)

// NewSimulatedAuthority crea la autoridad simulada.
func NewSimulatedAuthority() *SimulatedAuthority {
	return &SimulatedAuthority{
		validator: NewValidator(),
		now:       time.Now,
		responses: make(map[string]*entity.FiscalSubmissionResult),
	}
}

// FailNext hace que las próximas n llamadas devuelvan ErrUnavailable.
func (a *SimulatedAuthority) FailNext(n int) {
	a.mu.Lock()
	a.failures = n
	a.mu.Unlock()
}

// Submit acepta el registro si pasa la validación estructural. El código de
// respuesta se deriva de la serie y del contenido.
func (a *SimulatedAuthority) Submit(ctx context.Context, serial string, xml []byte) (*entity.FiscalSubmissionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if prev, ok := a.responses[serial]; ok {
		cp := *prev
		return &cp, nil
	}
	if a.failures > 0 {
		a.failures--
		return nil, ErrUnavailable
	}

	sum := sha256.Sum256([]byte(serial + "|" + string(xml)))
	digest := strings.ToUpper(hex.EncodeToString(sum[:]))
	res := &entity.FiscalSubmissionResult{
		Code:      "AEAT-" + digest[:16],
		Timestamp: a.now().UTC().Truncate(time.Second),
	}
	if v := a.validator.Validate(xml); v.Valid {
		res.Accepted = true
		res.Status = aeatcat.EstadoEnvioCorrecto
		res.CSV = digest[16:32]
	} else {
		res.Status = aeatcat.EstadoEnvioIncorrecto
		res.Message = strings.Join(v.Errors, "; ")
	}
	a.responses[serial] = res
	cp := *res
	return &cp, nil
}

// RetryingSubmitter añade timeout y reintentos acotados con backoff exponencial.
// Solo reintenta fallos transitorios; un rechazo es una respuesta, no un error.
type RetryingSubmitter struct {
	inner      Submitter
	timeout    time.Duration
	maxRetries int
	initial    time.Duration
	log        *logger.Logger
	metrics    *metrics.Metrics
}

var _ Submitter = (*RetryingSubmitter)(nil)

// RetryOption configura el RetryingSubmitter.
type RetryOption func(*RetryingSubmitter)

// WithInitialInterval primer intervalo de espera entre intentos.
func WithInitialInterval(d time.Duration) RetryOption {
	return func(r *RetryingSubmitter) { r.initial = d }
}

// WithSubmitMetrics cuenta los envíos por estado.
func WithSubmitMetrics(m *metrics.Metrics) RetryOption {
	return func(r *RetryingSubmitter) { r.metrics = m }
}

// NewRetryingSubmitter envuelve inner.
func NewRetryingSubmitter(inner Submitter, timeout time.Duration, maxRetries int, log *logger.Logger, opts ...RetryOption) *RetryingSubmitter {
	r := &RetryingSubmitter{
		inner:      inner,
		timeout:    timeout,
		maxRetries: maxRetries,
		initial:    200 * time.Millisecond,
		log:        log.Component("aeat"),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Submit envía con timeout global y reintentos.
func (r *RetryingSubmitter) Submit(ctx context.Context, serial string, xml []byte) (*entity.FiscalSubmissionResult, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initial
	b.MaxElapsedTime = 0 // el límite lo marcan el contexto y maxRetries
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.maxRetries)), ctx)

	var (
		res      *entity.FiscalSubmissionResult
		attempts int
	)
	op := func() error {
		attempts++
		out, err := r.inner.Submit(ctx, serial, xml)
		if err != nil {
			if errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return backoff.Permanent(err)
		}
		res = out
		return nil
	}
	notify := func(err error, wait time.Duration) {
		r.log.Warn().Err(err).Str("serial", serial).Int("attempt", attempts).Dur("wait", wait).Msg("reintentando envío a la AEAT")
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		r.metrics.IncSubmission("error")
		return nil, fmt.Errorf("enviar a la AEAT tras %d intentos: %w", attempts, err)
	}
	res.Attempts = attempts
	r.metrics.IncSubmission(res.Status)
	r.log.Info().Str("serial", serial).Str("code", res.Code).Bool("accepted", res.Accepted).Int("attempts", attempts).Msg("registro enviado")
	return res, nil
}
