package aeat

import (
	"regexp"
	"strings"
)

var (
	// Formato nacional vigente desde 2000: 4 dígitos + 3 consonantes (sin vocales, Ñ ni Q).
	rePlateCurrent = regexp.MustCompile(`\b([0-9]{4})[\s-]?([BCDFGHJKLMNPRSTVWXYZ]{3})\b`)
	// Formato provincial anterior: GC-1234-AB.
	rePlateProvincial = regexp.MustCompile(`\b([A-Z]{1,2})[\s-]?([0-9]{4})[\s-]?([A-Z]{1,2})\b`)
)

// ParsePlate busca un token con forma de matrícula en un texto libre y lo devuelve
// normalizado (sin espacios ni guiones). Devuelve "" si no hay coincidencia.
//
// Solo se usa en la migración de datos históricos; las líneas nuevas referencian
// el vehículo explícitamente.
func ParsePlate(text string) string {
	upper := strings.ToUpper(text)
	if m := rePlateCurrent.FindStringSubmatch(upper); m != nil {
		return m[1] + m[2]
	}
	if m := rePlateProvincial.FindStringSubmatch(upper); m != nil {
		return m[1] + m[2] + m[3]
	}
	return ""
}

// NormalizePlate quita separadores y pasa a mayúsculas para comparar matrículas.
func NormalizePlate(plate string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(strings.ToUpper(strings.TrimSpace(plate)))
}
