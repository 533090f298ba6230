package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize(t *testing.T) {
	out, err := Canonicalize([]byte(`{"b": 1.50, "a": {"z": true, "y": [3, "<x>"]}}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"y":[3,"<x>"],"z":true},"b":1.50}`, string(out))
}

func TestCanonicalize_Invalido(t *testing.T) {
	_, err := Canonicalize([]byte(`{"a":1} {"b":2}`))
	assert.Error(t, err)
	_, err = Canonicalize([]byte(`{`))
	assert.Error(t, err)
}
