package aeat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateNIF(t *testing.T) {
	cases := []struct {
		name  string
		nif   string
		valid bool
	}{
		{"DNI válido", "12345678Z", true},
		{"DNI letra errónea", "12345678A", false},
		{"NIE válido", "X1234567L", true},
		{"CIF sociedad limitada", "B12345674", true},
		{"CIF control erróneo", "B12345678", false},
		{"CIF con prefijo ES y guiones", "ES-B12345674", true},
		{"CIF letra obligatoria", "Q1234567D", true},
		{"formato desconocido", "ABC", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateNIF(tc.nif)
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestNormalizeNIF(t *testing.T) {
	assert.Equal(t, "B12345674", NormalizeNIF(" es-b12.345.674 "))
	assert.True(t, HasNIFFormat("B12345678"))
	assert.False(t, HasNIFFormat("B1234"))
}

func TestParsePlate(t *testing.T) {
	assert.Equal(t, "1234BCD", ParsePlate("Toyota Corolla matrícula 1234-BCD gris"))
	assert.Equal(t, "5678FGH", ParsePlate("seat ibiza 5678 fgh"))
	assert.Equal(t, "GC1234AB", ParsePlate("Renault Clio GC-1234-AB (2005)"))
	assert.Equal(t, "", ParsePlate("Revisión 10.000 km"))
	assert.Equal(t, "1234BCD", NormalizePlate(" 1234-bcd "))
}
