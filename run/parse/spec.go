// Package parse turns a rendered prompt into a model response and a parsed
// value using one of three strategies: raw text, schema-constrained
// prediction, or a user transform written in Starlark.
package parse

import (
	"github.com/teranos/PTX/errors"
)

// Type tags a parser strategy on the wire
type Type string

const (
	TypeRaw        Type = "raw"
	TypeStructured Type = "structured"
	TypePython     Type = "python"
)

// Spec is the wire form of a parser choice
type Spec struct {
	Type             Type   `json:"type"`
	SchemaDefinition string `json:"schema_definition,omitempty"`
	TransformCode    string `json:"transform_code,omitempty"`
}

// Strategy is one of Raw, Structured or Python
type Strategy interface {
	strategy()
}

// Raw returns the completion unchanged
type Raw struct{}

// Structured predicts a value conforming to a schema
type Structured struct {
	SchemaDefinition string
}

// Python runs the completion through a parse(text) function
type Python struct {
	TransformCode string
}

func (Raw) strategy()        {}
func (Structured) strategy() {}
func (Python) strategy()     {}

// Strategy converts the wire form. A nil spec or empty type means raw.
func (s *Spec) Strategy() (Strategy, error) {
	if s == nil {
		return Raw{}, nil
	}
	switch s.Type {
	case "", TypeRaw:
		return Raw{}, nil
	case TypeStructured:
		return Structured{SchemaDefinition: s.SchemaDefinition}, nil
	case TypePython:
		return Python{TransformCode: s.TransformCode}, nil
	}
	return nil, errors.NewInvalidInputf("unknown parser type %q (raw, structured, python)", s.Type)
}
