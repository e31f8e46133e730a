package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSON(t *testing.T) {
	v, err := DecodeJSON([]byte(`{"n": 1, "f": 1.5, "big": 1e3, "list": [2, "x", null]}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"n":    int64(1),
		"f":    1.5,
		"big":  1000.0,
		"list": []any{int64(2), "x", nil},
	}, v)
}

func TestDecodeJSON_Errors(t *testing.T) {
	_, err := DecodeJSON([]byte(`{"a": `))
	assert.ErrorContains(t, err, "invalid JSON")

	_, err = DecodeJSON([]byte(`1 2`))
	assert.ErrorContains(t, err, "trailing data")
}

func TestPtr(t *testing.T) {
	p := Ptr(42)
	require.NotNil(t, p)
	assert.Equal(t, 42, *p)
}
