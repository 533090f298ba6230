package signature

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
)

// Algoritmos soportados.
const (
	AlgRSAPSSSHA256 = "RSA-PSS-SHA256"
	AlgECDSASHA256  = "ECDSA-SHA256"
	AlgEd25519      = "Ed25519"
)

// KeyCustody capacidad de firma desacoplada del custodio de la clave
// (almacén del sistema, HSM o fichero de desarrollo). Sign recibe el digest SHA-256.
type KeyCustody interface {
	Sign(ctx context.Context, digest []byte) ([]byte, error)
	PublicKey() crypto.PublicKey
	Algorithm() string
	Certificate() *x509.Certificate
}

// FileCustody custodia en memoria a partir de una clave cargada de fichero.
type FileCustody struct {
	cert *x509.Certificate
	key  crypto.Signer
	alg  string
}

var _ KeyCustody = (*FileCustody)(nil)

// NewFileCustody envuelve certificado y clave. La clave debe corresponder al certificado.
func NewFileCustody(cert *x509.Certificate, key crypto.Signer) (*FileCustody, error) {
	if cert == nil || key == nil {
		return nil, errors.New("signature: certificado y clave son obligatorios")
	}
	alg, err := algorithmFor(key.Public())
	if err != nil {
		return nil, err
	}
	if !sameKey(cert.PublicKey, key.Public()) {
		return nil, errors.New("signature: la clave privada no corresponde al certificado")
	}
	return &FileCustody{cert: cert, key: key, alg: alg}, nil
}

// Sign firma el digest con el esquema asimétrico que corresponde a la clave.
func (c *FileCustody) Sign(ctx context.Context, digest []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch c.alg {
	case AlgRSAPSSSHA256:
		return c.key.Sign(rand.Reader, digest, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: crypto.SHA256})
	case AlgECDSASHA256:
		return c.key.Sign(rand.Reader, digest, crypto.SHA256)
	case AlgEd25519:
		// Ed25519 firma el mensaje; aquí el mensaje es el digest.
		return c.key.Sign(rand.Reader, digest, crypto.Hash(0))
	}
	return nil, fmt.Errorf("signature: algoritmo %s no soportado", c.alg)
}

func (c *FileCustody) PublicKey() crypto.PublicKey    { return c.key.Public() }
func (c *FileCustody) Algorithm() string              { return c.alg }
func (c *FileCustody) Certificate() *x509.Certificate { return c.cert }

// VerifyDigest comprueba una firma sobre el digest con la clave pública.
func VerifyDigest(pub crypto.PublicKey, alg string, digest, sig []byte) error {
	switch alg {
	case AlgRSAPSSSHA256:
		k, ok := pub.(*rsa.PublicKey)
		if !ok {
			return errors.New("signature: la clave pública no es RSA")
		}
		return rsa.VerifyPSS(k, crypto.SHA256, digest, sig, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
	case AlgECDSASHA256:
		k, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return errors.New("signature: la clave pública no es ECDSA")
		}
		if !ecdsa.VerifyASN1(k, digest, sig) {
			return errors.New("signature: firma ECDSA inválida")
		}
		return nil
	case AlgEd25519:
		k, ok := pub.(ed25519.PublicKey)
		if !ok {
			return errors.New("signature: la clave pública no es Ed25519")
		}
		if !ed25519.Verify(k, digest, sig) {
			return errors.New("signature: firma Ed25519 inválida")
		}
		return nil
	}
	return fmt.Errorf("signature: algoritmo %q desconocido", alg)
}

func algorithmFor(pub crypto.PublicKey) (string, error) {
	switch pub.(type) {
	case *rsa.PublicKey:
		return AlgRSAPSSSHA256, nil
	case *ecdsa.PublicKey:
		return AlgECDSASHA256, nil
	case ed25519.PublicKey:
		return AlgEd25519, nil
	}
	return "", fmt.Errorf("signature: tipo de clave no soportado %T", pub)
}

func sameKey(a, b crypto.PublicKey) bool {
	type equaler interface{ Equal(crypto.PublicKey) bool }
	e, ok := a.(equaler)
	return ok && e.Equal(b)
}
