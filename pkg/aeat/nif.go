package aeat

import (
	"fmt"
	"regexp"
	"strings"
)

// letras de control del DNI/NIE (módulo 23).
const dniLetters = "TRWAGMYFPDXBNJZSQVHLCKE"

// letras de control del CIF cuando el control es alfabético.
const cifControlLetters = "JABCDEFGHI"

var (
	reDNI    = regexp.MustCompile(`^[0-9]{8}[A-Z]$`)
	reNIE    = regexp.MustCompile(`^[XYZ][0-9]{7}[A-Z]$`)
	reCIF    = regexp.MustCompile(`^[ABCDEFGHJNPQRSUVW][0-9]{7}[0-9A-J]$`)
	reFormat = regexp.MustCompile(`^[A-Z0-9]{9}$`)
)

// NormalizeNIF pasa a mayúsculas y elimina separadores y el prefijo de país "ES".
// "es-b12.345.674" -> "B12345674".
func NormalizeNIF(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "", "-", "", ".", "", "/", "").Replace(s)
	if len(s) == 11 && strings.HasPrefix(s, "ES") {
		s = s[2:]
	}
	return s
}

// HasNIFFormat comprueba solo la forma (9 caracteres alfanuméricos), sin dígito de control.
// Es la comprobación que exige el esquema del registro.
func HasNIFFormat(s string) bool {
	return reFormat.MatchString(s)
}

// ValidateNIF valida un NIF español (DNI, NIE o CIF) incluyendo el carácter de control.
func ValidateNIF(raw string) error {
	nif := NormalizeNIF(raw)
	switch {
	case reDNI.MatchString(nif):
		return checkDNI(nif[:8], nif[8])
	case reNIE.MatchString(nif):
		prefix := strings.IndexByte("XYZ", nif[0])
		return checkDNI(fmt.Sprintf("%d%s", prefix, nif[1:8]), nif[8])
	case reCIF.MatchString(nif):
		return checkCIF(nif)
	default:
		return fmt.Errorf("aeat: NIF %q con formato no reconocido", raw)
	}
}

func checkDNI(digits string, letter byte) error {
	var n int
	for i := 0; i < len(digits); i++ {
		n = n*10 + int(digits[i]-'0')
	}
	expected := dniLetters[n%23]
	if letter != expected {
		return fmt.Errorf("aeat: letra de control inválida: esperada %c, recibida %c", expected, letter)
	}
	return nil
}

func checkCIF(cif string) error {
	body := cif[1:8]
	var sum int
	for i := 0; i < len(body); i++ {
		d := int(body[i] - '0')
		if i%2 == 1 {
			sum += d
			continue
		}
		p := d * 2
		sum += p/10 + p%10
	}
	digit := (10 - sum%10) % 10
	control := cif[8]

	// K, P, Q, S, N, W exigen letra; A, B, E, H exigen dígito; el resto admite ambos.
	switch cif[0] {
	case 'K', 'P', 'Q', 'S', 'N', 'W':
		if control != cifControlLetters[digit] {
			return fmt.Errorf("aeat: control de CIF inválido: esperado %c", cifControlLetters[digit])
		}
	case 'A', 'B', 'E', 'H':
		if control != byte('0'+digit) {
			return fmt.Errorf("aeat: control de CIF inválido: esperado %d", digit)
		}
	default:
		if control != byte('0'+digit) && control != cifControlLetters[digit] {
			return fmt.Errorf("aeat: control de CIF inválido")
		}
	}
	return nil
}
