package parse

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/teranos/PTX/ai/model"
	"github.com/teranos/PTX/errors"
)

const compiledCacheSize = 64

// Parser runs parser strategies. Compiled schemas and transforms are cached
// by source so a batch compiles each once.
type Parser struct {
	maxSteps uint64

	mu         sync.Mutex
	schemas    map[string]*openapi3.Schema
	transforms map[string]*Transform
}

// New creates a Parser. maxSteps bounds each transform call (0 = default).
func New(maxSteps uint64) *Parser {
	return &Parser{
		maxSteps:   maxSteps,
		schemas:    make(map[string]*openapi3.Schema),
		transforms: make(map[string]*Transform),
	}
}

// Parse sends prompt to m according to strategy and returns the raw
// response text and the parsed value. On transform failures raw is still
// returned alongside the error.
func (p *Parser) Parse(ctx context.Context, strategy Strategy, prompt string, m model.Model) (string, any, error) {
	switch s := strategy.(type) {
	case Raw:
		raw, err := m.Complete(ctx, prompt)
		if err != nil {
			return "", nil, err
		}
		return raw, raw, nil

	case Structured:
		schema, err := p.schema(ctx, s.SchemaDefinition)
		if err != nil {
			return "", nil, err
		}
		value, err := m.StructuredPredict(ctx, schema, prompt)
		if err != nil {
			return "", nil, errors.Mark(errors.Wrap(err, "structured prediction failed"), errors.ErrStructuredPredict)
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return "", nil, errors.Mark(errors.Wrap(err, "structured value is not serializable"), errors.ErrStructuredPredict)
		}
		return string(raw), value, nil

	case Python:
		raw, err := m.Complete(ctx, prompt)
		if err != nil {
			return "", nil, err
		}
		transform, err := p.transform(s.TransformCode)
		if err != nil {
			return raw, nil, err
		}
		parsed, err := transform.Call(ctx, raw)
		if err != nil {
			return raw, nil, err
		}
		return raw, parsed, nil
	}
	return "", nil, errors.AssertionFailedf("unhandled parser strategy %T", strategy)
}

func (p *Parser) schema(ctx context.Context, definition string) (*openapi3.Schema, error) {
	p.mu.Lock()
	schema, ok := p.schemas[definition]
	p.mu.Unlock()
	if ok {
		return schema, nil
	}

	schema, err := CompileSchema(ctx, definition)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	if len(p.schemas) >= compiledCacheSize {
		clear(p.schemas)
	}
	p.schemas[definition] = schema
	p.mu.Unlock()
	return schema, nil
}

func (p *Parser) transform(code string) (*Transform, error) {
	p.mu.Lock()
	t, ok := p.transforms[code]
	p.mu.Unlock()
	if ok {
		return t, nil
	}

	t, err := CompileTransform(code, p.maxSteps)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	if len(p.transforms) >= compiledCacheSize {
		clear(p.transforms)
	}
	p.transforms[code] = t
	p.mu.Unlock()
	return t, nil
}
