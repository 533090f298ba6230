package signature

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Canonicalize forma canónica de un documento JSON: claves de objeto ordenadas,
// sin espacios y con los números tal como llegaron (sin pasar por float64).
func Canonicalize(doc []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("documento JSON inválido: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("documento JSON inválido: contenido tras el valor raíz")
	}
	// encoding/json serializa los map con las claves ordenadas.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// DocumentHash SHA-256 (hex en mayúsculas) de la forma canónica. Devuelve también el digest crudo.
func DocumentHash(doc []byte) (string, []byte, error) {
	canonical, err := Canonicalize(doc)
	if err != nil {
		return "", nil, err
	}
	sum := sha256.Sum256(canonical)
	return strings.ToUpper(hex.EncodeToString(sum[:])), sum[:], nil
}
