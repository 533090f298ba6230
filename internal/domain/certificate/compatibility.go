package certificate

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
)

// Tier nivel de confianza de que un certificado identifica a una empresa.
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
	TierNone   Tier = "none"
)

// Rank orden numérico (mayor = más confianza).
func (t Tier) Rank() int {
	switch t {
	case TierHigh:
		return 3
	case TierMedium:
		return 2
	case TierLow:
		return 1
	default:
		return 0
	}
}

// AtLeast indica si t alcanza el mínimo indicado.
func (t Tier) AtLeast(min Tier) bool {
	return t.Rank() >= min.Rank()
}

// Compatibility resultado de evaluar un certificado frente a una empresa.
type Compatibility struct {
	Tier   Tier
	Reason string
}

// Evaluate clasifica la compatibilidad:
//   - high: NIF extraído igual al de la empresa (sin distinguir mayúsculas)
//   - medium: un nombre contiene al otro (sin mayúsculas ni tildes)
//   - low: sin coincidencia de identidad pero vigente y con clave privada
//   - none: en otro caso
func Evaluate(cert entity.CertificateDescriptor, company *entity.Company, now time.Time) Compatibility {
	if company != nil {
		if cert.TaxID != "" && company.TaxID != "" && strings.EqualFold(normalizeTaxID(cert.TaxID), normalizeTaxID(company.TaxID)) {
			return Compatibility{Tier: TierHigh, Reason: "el NIF del certificado coincide con el de la empresa"}
		}
		if namesOverlap(cert.SubjectCN, company.Name) {
			return Compatibility{Tier: TierMedium, Reason: "el nombre del titular coincide parcialmente con la razón social"}
		}
	}
	if cert.IsValidAt(now) && cert.HasPrivateKey {
		return Compatibility{Tier: TierLow, Reason: "certificado vigente con clave privada, sin coincidencia de identidad"}
	}
	return Compatibility{Tier: TierNone, Reason: "sin coincidencia de identidad y no utilizable para firmar"}
}

// Ranked certificado con su compatibilidad para una empresa.
type Ranked struct {
	Certificate   entity.CertificateDescriptor
	Compatibility Compatibility
	Valid         bool
	Recommended   bool
}

// Rank evalúa y ordena: primero por nivel, después por caducidad más lejana.
// Se descartan los de nivel none. Recommended solo si high y vigente.
func Rank(certs []entity.CertificateDescriptor, company *entity.Company, now time.Time) []Ranked {
	out := make([]Ranked, 0, len(certs))
	seen := make(map[string]bool, len(certs))
	for _, c := range certs {
		if seen[c.Serial] {
			continue
		}
		seen[c.Serial] = true
		comp := Evaluate(c, company, now)
		if comp.Tier == TierNone {
			continue
		}
		valid := c.IsValidAt(now)
		out = append(out, Ranked{
			Certificate:   c,
			Compatibility: comp,
			Valid:         valid,
			Recommended:   comp.Tier == TierHigh && valid,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Compatibility.Tier.Rank(), out[j].Compatibility.Tier.Rank()
		if ri != rj {
			return ri > rj
		}
		return out[i].Certificate.NotAfter.After(out[j].Certificate.NotAfter)
	})
	return out
}

// Recommend devuelve el candidato recomendado con caducidad más lejana, o nil.
func Recommend(certs []entity.CertificateDescriptor, company *entity.Company, now time.Time) *Ranked {
	for _, r := range Rank(certs, company, now) {
		if r.Recommended {
			r := r
			return &r
		}
	}
	return nil
}

func normalizeTaxID(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "", "-", "", ".", "").Replace(s)
	if len(s) == 11 && strings.HasPrefix(s, "ES") {
		s = s[2:]
	}
	return s
}

// namesOverlap compara plegando mayúsculas y quitando tildes. Cadenas vacías nunca coinciden.
func namesOverlap(a, b string) bool {
	fa, fb := foldName(a), foldName(b)
	if fa == "" || fb == "" {
		return false
	}
	return strings.Contains(fa, fb) || strings.Contains(fb, fa)
}

func foldName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC, cases.Fold())
	out, _, err := transform.String(t, s)
	if err != nil {
		out = strings.ToLower(s)
	}
	return strings.Join(strings.Fields(out), " ")
}
