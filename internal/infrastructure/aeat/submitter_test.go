package aeat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
	aeatcat "github.com/jhoicas/Concesionario-api/pkg/aeat"
	"github.com/jhoicas/Concesionario-api/pkg/logger"
)

func TestSimulatedAuthority_DeterministaEIdempotente(t *testing.T) {
	xml, err := NewXMLBuilder("Concesionario API", "B12345674").Build(sampleInput())
	require.NoError(t, err)

	a := NewSimulatedAuthority()
	r1, err := a.Submit(context.Background(), "NS-1", xml)
	require.NoError(t, err)
	assert.True(t, r1.Accepted)
	assert.Equal(t, aeatcat.EstadoEnvioCorrecto, r1.Status)
	assert.NotEmpty(t, r1.CSV)

	r2, err := a.Submit(context.Background(), "NS-1", []byte("<otro/>"))
	require.NoError(t, err)
	assert.Equal(t, r1.Code, r2.Code, "misma serie, misma respuesta")

	other := NewSimulatedAuthority()
	r3, err := other.Submit(context.Background(), "NS-1", xml)
	require.NoError(t, err)
	assert.Equal(t, r1.Code, r3.Code)
}

func TestSimulatedAuthority_Rechazo(t *testing.T) {
	a := NewSimulatedAuthority()
	res, err := a.Submit(context.Background(), "NS-2", []byte("<sf:RegistroAlta xmlns:sf=\"x\"></sf:RegistroAlta>"))
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, aeatcat.EstadoEnvioIncorrecto, res.Status)
	assert.NotEmpty(t, res.Message)
}

func TestRetryingSubmitter_ReintentaTransitorios(t *testing.T) {
	xml, err := NewXMLBuilder("Concesionario API", "B12345674").Build(sampleInput())
	require.NoError(t, err)

	a := NewSimulatedAuthority()
	a.FailNext(2)
	r := NewRetryingSubmitter(a, 5*time.Second, 3, logger.Nop(), WithInitialInterval(time.Millisecond))

	res, err := r.Submit(context.Background(), "NS-3", xml)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, 3, res.Attempts)
}

func TestRetryingSubmitter_AgotaReintentos(t *testing.T) {
	a := NewSimulatedAuthority()
	a.FailNext(10)
	r := NewRetryingSubmitter(a, 5*time.Second, 2, logger.Nop(), WithInitialInterval(time.Millisecond))

	_, err := r.Submit(context.Background(), "NS-4", []byte("<x/>"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

type failingSubmitter struct{ calls int }

func (f *failingSubmitter) Submit(context.Context, string, []byte) (*entity.FiscalSubmissionResult, error) {
	f.calls++
	return nil, errors.New("certificado rechazado")
}

func TestRetryingSubmitter_ErrorPermanenteNoReintenta(t *testing.T) {
	f := &failingSubmitter{}
	r := NewRetryingSubmitter(f, time.Second, 5, logger.Nop(), WithInitialInterval(time.Millisecond))
	_, err := r.Submit(context.Background(), "NS-5", []byte("<x/>"))
	assert.Error(t, err)
	assert.Equal(t, 1, f.calls)
}
