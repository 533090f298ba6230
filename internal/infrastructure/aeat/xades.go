package aeat

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/ucarion/c14n"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"

	"github.com/jhoicas/Concesionario-api/internal/infrastructure/signature"
)

// Namespaces y algoritmos XMLDSig / XAdES.
const (
	NamespaceDS        = "http://www.w3.org/2000/09/xmldsig#"
	NamespaceXAdES     = "http://uri.etsi.org/01903/v1.3.2#"
	AlgC14N            = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"
	AlgSHA256          = "http://www.w3.org/2001/04/xmlenc#sha256"
	AlgRSAPSSSHA256    = "http://www.w3.org/2007/05/xmldsig-more#sha256-rsa-MGF1"
	AlgECDSASHA256     = "http://www.w3.org/2001/04/xmldsig-more#ecdsa-sha256"
	AlgEd25519         = "http://www.w3.org/2021/04/xmldsig-more#eddsa-ed25519"
	TransformEnveloped = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
)

// XAdESSigner firma el registro en modo enveloped con la custodia de la empresa.
type XAdESSigner struct {
	now func() time.Time
}

// NewXAdESSigner crea el firmador.
func NewXAdESSigner() *XAdESSigner {
	return &XAdESSigner{now: time.Now}
}

// Sign calcula el digest C14N del documento, firma el SignedInfo e inyecta
// ds:Signature como último hijo de la raíz.
func (s *XAdESSigner) Sign(ctx context.Context, xmlBytes []byte, custody signature.KeyCustody) ([]byte, error) {
	if len(xmlBytes) == 0 {
		return nil, fmt.Errorf("aeat: XML vacío")
	}
	if custody == nil || custody.Certificate() == nil {
		return nil, fmt.Errorf("aeat: custodia sin certificado")
	}
	sigAlg, err := xmldsigAlgorithm(custody.Algorithm())
	if err != nil {
		return nil, err
	}

	canonicalDoc, err := canonicalizeXML(xmlBytes)
	if err != nil {
		return nil, fmt.Errorf("aeat: canonicalizar documento: %w", err)
	}
	docDigest := sha256.Sum256(canonicalDoc)
	signedInfo := buildSignedInfo(base64.StdEncoding.EncodeToString(docDigest[:]), sigAlg)

	canonicalSI, err := canonicalizeXML([]byte(signedInfo))
	if err != nil {
		return nil, fmt.Errorf("aeat: canonicalizar SignedInfo: %w", err)
	}
	siDigest := sha256.Sum256(canonicalSI)
	raw, err := custody.Sign(ctx, siDigest[:])
	if err != nil {
		return nil, fmt.Errorf("aeat: firmar SignedInfo: %w", err)
	}
	if custody.Algorithm() == signature.AlgECDSASHA256 {
		// XMLDSig exige r||s de ancho fijo, no DER.
		if raw, err = ecdsaRawSignature(raw, custody.Certificate()); err != nil {
			return nil, err
		}
	}

	sigXML := buildSignature(signedInfo, base64.StdEncoding.EncodeToString(raw), custody.Certificate(), s.now().UTC())
	return injectSignature(xmlBytes, sigXML)
}

func canonicalizeXML(data []byte) ([]byte, error) {
	// C14N descarta la declaración XML.
	data = bytes.TrimSpace(data)
	if bytes.HasPrefix(data, []byte("<?xml")) {
		if end := bytes.Index(data, []byte("?>")); end >= 0 {
			data = bytes.TrimSpace(data[end+2:])
		}
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(dec)
}

func xmldsigAlgorithm(alg string) (string, error) {
	switch alg {
	case signature.AlgRSAPSSSHA256:
		return AlgRSAPSSSHA256, nil
	case signature.AlgECDSASHA256:
		return AlgECDSASHA256, nil
	case signature.AlgEd25519:
		return AlgEd25519, nil
	}
	return "", fmt.Errorf("aeat: algoritmo %q sin equivalente XMLDSig", alg)
}

func buildSignedInfo(docDigestB64, sigAlg string) string {
	var sb strings.Builder
	sb.WriteString(`<ds:SignedInfo xmlns:ds="` + NamespaceDS + `">`)
	sb.WriteString(`<ds:CanonicalizationMethod Algorithm="` + AlgC14N + `"></ds:CanonicalizationMethod>`)
	sb.WriteString(`<ds:SignatureMethod Algorithm="` + sigAlg + `"></ds:SignatureMethod>`)
	sb.WriteString(`<ds:Reference URI="#` + RegistroAltaID + `">`)
	sb.WriteString(`<ds:Transforms><ds:Transform Algorithm="` + TransformEnveloped + `"></ds:Transform>`)
	sb.WriteString(`<ds:Transform Algorithm="` + AlgC14N + `"></ds:Transform></ds:Transforms>`)
	sb.WriteString(`<ds:DigestMethod Algorithm="` + AlgSHA256 + `"></ds:DigestMethod>`)
	sb.WriteString(`<ds:DigestValue>` + docDigestB64 + `</ds:DigestValue>`)
	sb.WriteString(`</ds:Reference>`)
	sb.WriteString(`</ds:SignedInfo>`)
	return sb.String()
}

func buildSignature(signedInfo, sigValueB64 string, cert *x509.Certificate, signingTime time.Time) string {
	certDigest := sha256.Sum256(cert.Raw)
	var sb strings.Builder
	sb.WriteString(`<ds:Signature xmlns:ds="` + NamespaceDS + `" xmlns:xades="` + NamespaceXAdES + `">`)
	sb.WriteString(signedInfo)
	sb.WriteString(`<ds:SignatureValue>` + sigValueB64 + `</ds:SignatureValue>`)
	sb.WriteString(`<ds:KeyInfo><ds:X509Data><ds:X509Certificate>` + base64.StdEncoding.EncodeToString(cert.Raw) + `</ds:X509Certificate></ds:X509Data></ds:KeyInfo>`)
	sb.WriteString(`<ds:Object><xades:QualifyingProperties><xades:SignedProperties Id="signed-props"><xades:SignedSignatureProperties>`)
	sb.WriteString(`<xades:SigningTime>` + signingTime.Format("2006-01-02T15:04:05.000Z") + `</xades:SigningTime>`)
	sb.WriteString(`<xades:SigningCertificate><xades:Cert><xades:CertDigest><ds:DigestMethod Algorithm="` + AlgSHA256 + `"></ds:DigestMethod>`)
	sb.WriteString(`<ds:DigestValue>` + base64.StdEncoding.EncodeToString(certDigest[:]) + `</ds:DigestValue></xades:CertDigest>`)
	sb.WriteString(`<xades:IssuerSerial><ds:X509IssuerName>` + escapeXML(cert.Issuer.String()) + `</ds:X509IssuerName>`)
	sb.WriteString(`<ds:X509SerialNumber>` + cert.SerialNumber.String() + `</ds:X509SerialNumber></xades:IssuerSerial>`)
	sb.WriteString(`</xades:Cert></xades:SigningCertificate></xades:SignedSignatureProperties></xades:SignedProperties></xades:QualifyingProperties></ds:Object>`)
	sb.WriteString(`</ds:Signature>`)
	return sb.String()
}

func injectSignature(xmlBytes []byte, sigXML string) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, fmt.Errorf("aeat: parsear XML: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("aeat: documento sin raíz")
	}
	sigDoc := etree.NewDocument()
	if err := sigDoc.ReadFromString(sigXML); err != nil {
		return nil, fmt.Errorf("aeat: parsear Signature: %w", err)
	}
	root.AddChild(sigDoc.Root())
	var out bytes.Buffer
	if _, err := doc.WriteTo(&out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// ecdsaRawSignature convierte la firma DER (SEQUENCE{r, s}) a r||s.
func ecdsaRawSignature(der []byte, cert *x509.Certificate) ([]byte, error) {
	pub, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("aeat: el certificado no contiene clave ECDSA")
	}
	var r, sv big.Int
	input := cryptobyte.String(der)
	var inner cryptobyte.String
	if !input.ReadASN1(&inner, asn1.SEQUENCE) || !input.Empty() ||
		!inner.ReadASN1Integer(&r) || !inner.ReadASN1Integer(&sv) || !inner.Empty() {
		return nil, fmt.Errorf("aeat: firma ECDSA con codificación inválida")
	}
	size := (pub.Curve.Params().BitSize + 7) / 8
	out := make([]byte, 2*size)
	r.FillBytes(out[:size])
	sv.FillBytes(out[size:])
	return out, nil
}

func escapeXML(s string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
