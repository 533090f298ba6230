package signature

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"

	"github.com/jhoicas/Concesionario-api/pkg/logger"
)

// DevelopmentCN nombre común del certificado de desarrollo generado.
const DevelopmentCN = "Concesionario API - DESARROLLO"

// DevelopmentCustody custodia de respaldo cuando la empresa no tiene certificado
// vinculado. Con certPath vacío genera un par ECDSA P-256 autofirmado en memoria.
func DevelopmentCustody(certPath, keyPath string, log *logger.Logger) (*FileCustody, error) {
	if certPath != "" {
		if keyPath == "" {
			keyPath = certPath
		}
		pair, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			return nil, fmt.Errorf("cargar certificado de desarrollo: %w", err)
		}
		leaf, err := x509.ParseCertificate(pair.Certificate[0])
		if err != nil {
			return nil, fmt.Errorf("parsear certificado de desarrollo: %w", err)
		}
		signer, ok := pair.PrivateKey.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("clave de desarrollo no apta para firmar: %T", pair.PrivateKey)
		}
		log.Info().Str("path", certPath).Msg("certificado de desarrollo cargado")
		return NewFileCustody(leaf, signer)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generar clave de desarrollo: %w", err)
	}
	cert, err := SelfSigned(key, pkix.Name{CommonName: DevelopmentCN, Country: []string{"ES"}}, 365*24*time.Hour)
	if err != nil {
		return nil, err
	}
	log.Warn().Str("serial", cert.SerialNumber.Text(16)).Msg("usando certificado de desarrollo autofirmado; las firmas no tienen validez legal")
	return NewFileCustody(cert, key)
}

// SelfSigned crea un certificado autofirmado para la clave dada.
func SelfSigned(key crypto.Signer, subject pkix.Name, validity time.Duration) (*x509.Certificate, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return nil, fmt.Errorf("generar serie: %w", err)
	}
	now := time.Now()
	tpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               subject,
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tpl, tpl, key.Public(), key)
	if err != nil {
		return nil, fmt.Errorf("crear certificado: %w", err)
	}
	return x509.ParseCertificate(der)
}
