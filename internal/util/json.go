package util

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/teranos/PTX/errors"
)

// DecodeJSON decodes a single JSON value. Integers come back as int64 and
// other numbers as float64, so templates print 1 rather than 1.000000.
// Trailing data after the value is an error.
func DecodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, errors.Wrap(err, "invalid JSON")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("invalid JSON: trailing data after value")
	}
	return NormalizeNumbers(v), nil
}

// NormalizeNumbers replaces json.Number in v (recursively, in place) with
// int64 when the literal is an integer and float64 otherwise.
func NormalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, item := range t {
			t[k] = NormalizeNumbers(item)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = NormalizeNumbers(item)
		}
		return t
	}
	return v
}
