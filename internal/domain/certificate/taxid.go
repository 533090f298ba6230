// Package certificate reglas de identidad de certificados: extracción del NIF
// del sujeto y compatibilidad certificado-empresa.
package certificate

import (
	"regexp"
	"strings"
)

// patrones conocidos del sujeto, en orden de preferencia.
var taxIDPatterns = []*regexp.Regexp{
	// organizationIdentifier de certificados de representante (ETSI EN 319 412-1)
	regexp.MustCompile(`VATES-([A-Z0-9]{9})`),
	// serialNumber de certificados de persona física
	regexp.MustCompile(`IDCES-([A-Z0-9]{9})`),
	// texto libre en CN/OU: "NIF B12345674", "CIF: B12345674"
	regexp.MustCompile(`(?:NIF|CIF|NIE)[:\s-]+([A-Z0-9]{9})\b`),
}

// ExtractTaxID devuelve el NIF embebido en el sujeto o "" si ningún patrón coincide.
func ExtractTaxID(subject string) string {
	upper := strings.ToUpper(subject)
	for _, re := range taxIDPatterns {
		if m := re.FindStringSubmatch(upper); m != nil {
			return m[1]
		}
	}
	return ""
}
