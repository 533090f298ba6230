package certificates_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Concesionario-api/internal/application/certificates"
	"github.com/jhoicas/Concesionario-api/internal/domain"
	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/audit"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/certstore"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/memory"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/signature"
	"github.com/jhoicas/Concesionario-api/pkg/logger"
)

type fakeRegistry struct {
	entries   []*certstore.Entry
	late      []*certstore.Entry // aparecen tras Refresh
	refreshes int
}

func (f *fakeRegistry) Discover(context.Context) []entity.CertificateDescriptor {
	out := make([]entity.CertificateDescriptor, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.Descriptor)
	}
	return out
}

func (f *fakeRegistry) Refresh(ctx context.Context) []entity.CertificateDescriptor {
	f.refreshes++
	f.entries = append(f.entries, f.late...)
	f.late = nil
	return f.Discover(ctx)
}

func (f *fakeRegistry) Lookup(_ context.Context, serial string) (*certstore.Entry, bool) {
	for _, e := range f.entries {
		if strings.EqualFold(e.Descriptor.Serial, serial) {
			return e, true
		}
	}
	return nil, false
}

func newEntry(t *testing.T, serial int64, cn, serialNumber string, notAfter time.Time, withKey bool) *certstore.Entry {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tpl := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      pkix.Name{CommonName: cn, SerialNumber: serialNumber, Country: []string{"ES"}},
		NotBefore:    notAfter.Add(-365 * 24 * time.Hour),
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tpl, tpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	e := &certstore.Entry{Descriptor: certstore.Describe(cert, withKey, "test"), Cert: cert}
	if withKey {
		e.Key = key
	}
	return e
}

type fixture struct {
	store    *memory.Store
	registry *fakeRegistry
	svc      *certificates.Service
	high     *certstore.Entry
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	store.AddCompany(&entity.Company{ID: "c1", Name: "Motor Canarias SL", TaxID: "B12345674"})

	high := newEntry(t, 0x1A, "Representante Motor", "VATES-B12345674", time.Now().Add(90*24*time.Hour), true)
	registry := &fakeRegistry{entries: []*certstore.Entry{high}}

	dev, err := signature.DevelopmentCustody("", "", logger.Nop())
	require.NoError(t, err)
	engine := signature.NewEngine(store.Artifacts(), logger.Nop())
	recorder := audit.NewRecorder(store.Audit(), logger.Nop())
	svc := certificates.NewService(registry, store.Companies(), store.Bindings(), engine, dev, recorder, logger.Nop())
	return &fixture{store: store, registry: registry, svc: svc, high: high}
}

func TestBind_CertificadoConNIFDeLaEmpresa(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	resp, err := f.svc.Bind(ctx, "u1", "c1", "1a")
	require.NoError(t, err)
	assert.Equal(t, "1A", resp.Serial)
	assert.Equal(t, "high", resp.Tier)
	assert.Equal(t, "u1", resp.BoundBy)

	b, err := f.store.Bindings().GetByCompany(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "1A", b.CertificateSerial)

	hist, err := f.store.Audit().ListByEntity(ctx, audit.EntityCertificateBinding, "c1")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, audit.OpBind, hist[0].Operation)
}

func TestBind_UltimoVinculoGana(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	other := newEntry(t, 0x2B, "Motor Canarias", "", time.Now().Add(30*24*time.Hour), true)
	f.registry.entries = append(f.registry.entries, other)

	_, err := f.svc.Bind(ctx, "u1", "c1", "1A")
	require.NoError(t, err)
	resp, err := f.svc.Bind(ctx, "u1", "c1", "2B")
	require.NoError(t, err)
	assert.Equal(t, "medium", resp.Tier)

	got, err := f.svc.Binding(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "2B", got.Serial)
}

func TestBind_RefrescaAntesDeRechazar(t *testing.T) {
	f := setup(t)
	f.registry.late = []*certstore.Entry{newEntry(t, 0x3C, "Motor Canarias SL", "", time.Now().Add(time.Hour), true)}

	resp, err := f.svc.Bind(context.Background(), "u1", "c1", "3C")
	require.NoError(t, err)
	assert.Equal(t, 1, f.registry.refreshes)
	assert.Equal(t, "3C", resp.Serial)
}

func TestBind_Errores(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	// caducado, sin clave y sin coincidencia de identidad: nivel none
	f.registry.entries = append(f.registry.entries,
		newEntry(t, 0x4D, "Otra Empresa SA", "", time.Now().Add(-time.Hour), false))

	var verr *domain.ValidationError

	_, err := f.svc.Bind(ctx, "u1", "c1", "FFFF")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, domain.CodeCertificateNotFound, verr.Code)
	assert.Equal(t, 1, f.registry.refreshes)

	_, err = f.svc.Bind(ctx, "u1", "c1", "4D")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, domain.CodeCertificateIncompatible, verr.Code)

	_, err = f.svc.Bind(ctx, "u1", "no-existe", "1A")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.Bind(ctx, "u1", "c1", " ")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "numero_serie", verr.Field)
}

func TestCustodyFor_SinVinculoUsaDesarrollo(t *testing.T) {
	f := setup(t)

	custody, ref, err := f.svc.CustodyFor(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, ref.Development)
	assert.Equal(t, certificates.TierDevelopment, ref.Tier)
	assert.Equal(t, signature.DevelopmentCN, custody.Certificate().Subject.CommonName)
}

func TestCustodyFor_SinDesarrolloNiVinculo(t *testing.T) {
	store := memory.NewStore()
	engine := signature.NewEngine(store.Artifacts(), logger.Nop())
	svc := certificates.NewService(&fakeRegistry{}, store.Companies(), store.Bindings(), engine, nil, nil, logger.Nop())

	_, _, err := svc.CustodyFor(context.Background(), "c1")
	assert.ErrorIs(t, err, domain.ErrNoCertificate)
}

func TestSignDocument_ConCertificadoVinculado(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.svc.Bind(ctx, "u1", "c1", "1A")
	require.NoError(t, err)

	doc := []byte(`{"importe": "100.00", "concepto": "señal"}`)
	artifact, err := f.svc.SignDocument(ctx, "u1", "c1", doc, "")
	require.NoError(t, err)
	assert.False(t, artifact.Binding.Development)
	assert.Equal(t, "1A", artifact.Certificate.Serial)
	assert.Equal(t, "B12345674", artifact.Certificate.TaxID)

	res := f.svc.VerifyDocument(artifact, doc)
	assert.True(t, res.Valid, res.Reason)

	res = f.svc.VerifyDocument(artifact, []byte(`{"importe": "101.00", "concepto": "señal"}`))
	assert.False(t, res.Valid)

	latest, err := f.svc.LatestSignature(ctx, artifact.DocumentHash)
	require.NoError(t, err)
	assert.Equal(t, artifact.SignatureValue, latest.SignatureValue)
}

func TestSignDocument_CertificadoVinculadoDesaparecido(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.svc.Bind(ctx, "u1", "c1", "1A")
	require.NoError(t, err)
	f.registry.entries = nil

	artifact, err := f.svc.SignDocument(ctx, "u1", "c1", []byte(`{"a":1}`), "")
	require.NoError(t, err)
	assert.True(t, artifact.Binding.Development)
}

func TestRankYRecommend(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.registry.entries = append(f.registry.entries,
		newEntry(t, 0x5E, "Motor Canarias", "", time.Now().Add(400*24*time.Hour), true),
		newEntry(t, 0x6F, "Desconocido", "", time.Now().Add(-time.Hour), false),
	)

	ranked, err := f.svc.Rank(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "1A", ranked[0].Serial)
	assert.Equal(t, "high", ranked[0].Tier)
	assert.True(t, ranked[0].Recommended)
	assert.Equal(t, "medium", ranked[1].Tier)
	assert.False(t, ranked[1].Recommended)

	rec, err := f.svc.Recommend(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "1A", rec.Serial)
}

func TestRecommend_IncluyeCertificadosDeFirmasAnteriores(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.svc.Bind(ctx, "u1", "c1", "1A")
	require.NoError(t, err)
	_, err = f.svc.SignDocument(ctx, "u1", "c1", []byte(`{"a":1}`), "")
	require.NoError(t, err)

	// el certificado deja de estar en el host pero consta en el artefacto
	f.registry.entries = nil
	rec, err := f.svc.Recommend(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "1A", rec.Serial)
	assert.False(t, rec.HasKey)
}

func TestRecommend_SinCandidatos(t *testing.T) {
	f := setup(t)
	f.registry.entries = nil

	_, err := f.svc.Recommend(context.Background(), "c1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
