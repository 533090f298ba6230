package certstore

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/pkcs12"

	"github.com/jhoicas/Concesionario-api/internal/domain/certificate"
	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
	"github.com/jhoicas/Concesionario-api/pkg/aeat"
)

// Entry certificado cargado con su clave privada (si está disponible).
type Entry struct {
	Descriptor entity.CertificateDescriptor
	Cert       *x509.Certificate
	Key        crypto.Signer // nil si no hay clave
}

// extensiones reconocidas.
var (
	pemExts = map[string]bool{".pem": true, ".crt": true, ".cer": true}
	p12Exts = map[string]bool{".p12": true, ".pfx": true}
)

// LoadFile carga los certificados de un fichero. Los .pem/.crt/.cer pueden
// llevar la clave en el propio fichero o en <base>.key junto a él.
func LoadFile(path, password string) ([]*Entry, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case p12Exts[ext]:
		e, err := loadP12(path, password)
		if err != nil {
			return nil, err
		}
		return []*Entry{e}, nil
	case pemExts[ext]:
		return loadPEM(path)
	default:
		return nil, fmt.Errorf("certstore: extensión no soportada %q", ext)
	}
}

func loadP12(path, password string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("leer p12: %w", err)
	}
	priv, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, fmt.Errorf("decodificar p12: %w", err)
	}
	signer, _ := priv.(crypto.Signer)
	return newEntry(cert, signer, path), nil
}

func loadPEM(path string) ([]*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("leer pem: %w", err)
	}

	var certs []*x509.Certificate
	var keys []crypto.Signer
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch {
		case block.Type == "CERTIFICATE":
			c, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("parsear certificado: %w", err)
			}
			certs = append(certs, c)
		case strings.HasSuffix(block.Type, "PRIVATE KEY"):
			k, err := parsePrivateKey(block.Bytes)
			if err != nil {
				return nil, err
			}
			keys = append(keys, k)
		}
	}
	// .cer en DER
	if len(certs) == 0 {
		c, err := x509.ParseCertificate(data)
		if err != nil {
			return nil, fmt.Errorf("certstore: %s no contiene certificados", filepath.Base(path))
		}
		certs = append(certs, c)
	}

	keyPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".key"
	if k, err := LoadKeyFile(keyPath); err == nil {
		keys = append(keys, k)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	out := make([]*Entry, 0, len(certs))
	for _, c := range certs {
		out = append(out, newEntry(c, matchKey(c, keys), path))
	}
	return out, nil
}

// LoadKeyFile lee una clave privada PEM (PKCS#8, PKCS#1 o SEC 1).
func LoadKeyFile(path string) (crypto.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	for rest := data; ; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return nil, fmt.Errorf("certstore: %s sin clave privada", filepath.Base(path))
		}
		if strings.HasSuffix(block.Type, "PRIVATE KEY") {
			return parsePrivateKey(block.Bytes)
		}
	}
}

func parsePrivateKey(der []byte) (crypto.Signer, error) {
	if k, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		if s, ok := k.(crypto.Signer); ok {
			return s, nil
		}
		return nil, fmt.Errorf("certstore: tipo de clave no soportado %T", k)
	}
	if k, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return k, nil
	}
	if k, err := x509.ParseECPrivateKey(der); err == nil {
		return k, nil
	}
	return nil, fmt.Errorf("certstore: clave privada no reconocida")
}

// matchKey devuelve la clave cuya parte pública coincide con la del certificado.
func matchKey(c *x509.Certificate, keys []crypto.Signer) crypto.Signer {
	for _, k := range keys {
		if publicKeysEqual(c.PublicKey, k.Public()) {
			return k
		}
	}
	return nil
}

func publicKeysEqual(a, b crypto.PublicKey) bool {
	switch pa := a.(type) {
	case *rsa.PublicKey:
		return pa.Equal(b)
	case *ecdsa.PublicKey:
		return pa.Equal(b)
	case ed25519.PublicKey:
		return pa.Equal(b)
	default:
		return false
	}
}

func newEntry(c *x509.Certificate, key crypto.Signer, source string) *Entry {
	return &Entry{
		Descriptor: Describe(c, key != nil, source),
		Cert:       c,
		Key:        key,
	}
}

// Describe normaliza los atributos del certificado. El NIF se busca en el
// sujeto, incluidos los atributos sin nombre conocido (organizationIdentifier).
func Describe(c *x509.Certificate, hasKey bool, source string) entity.CertificateDescriptor {
	subject := c.Subject.String()
	taxID := certificate.ExtractTaxID(subjectText(c))
	fp := sha256.Sum256(c.Raw)
	return entity.CertificateDescriptor{
		Serial:        SerialOf(c),
		SubjectCN:     c.Subject.CommonName,
		Subject:       subject,
		Issuer:        c.Issuer.String(),
		NotBefore:     c.NotBefore.UTC(),
		NotAfter:      c.NotAfter.UTC(),
		HasPrivateKey: hasKey,
		TaxID:         taxID,
		TaxIDValid:    taxID != "" && aeat.ValidateNIF(taxID) == nil,
		Source:        source,
		Fingerprint:   strings.ToUpper(hex.EncodeToString(fp[:])),
	}
}

// subjectText valores de todos los atributos del sujeto. pkix.Name.String()
// imprime los OID desconocidos en hexadecimal, así que se recorren a mano.
func subjectText(c *x509.Certificate) string {
	parts := []string{c.Subject.String()}
	for _, atv := range c.Subject.Names {
		if v, ok := atv.Value.(string); ok {
			parts = append(parts, atv.Type.String()+"="+v)
		}
	}
	return strings.Join(parts, ",")
}

// SerialOf número de serie en hexadecimal en mayúsculas.
func SerialOf(c *x509.Certificate) string {
	return strings.ToUpper(c.SerialNumber.Text(16))
}
