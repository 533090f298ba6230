package entity

import "time"

// CertificateDescriptor certificado de identidad descubierto en el host. Efímero:
// se reconstruye en cada descubrimiento.
type CertificateDescriptor struct {
	Serial        string
	SubjectCN     string
	Subject       string
	Issuer        string
	NotBefore     time.Time
	NotAfter      time.Time
	HasPrivateKey bool
	TaxID         string // vacío si ningún patrón del sujeto coincide
	TaxIDValid    bool
	Source        string // ruta del fichero
	Fingerprint   string // SHA-256 del DER
}

// IsValidAt indica si t cae dentro de [NotBefore, NotAfter).
func (c CertificateDescriptor) IsValidAt(t time.Time) bool {
	return !t.Before(c.NotBefore) && t.Before(c.NotAfter)
}

// CertificateBinding asociación activa certificado-empresa (una por empresa).
type CertificateBinding struct {
	CompanyID         string
	CertificateSerial string
	Tier              string
	BoundAt           time.Time
	BoundBy           string
}
